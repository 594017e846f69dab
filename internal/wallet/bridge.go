package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BridgeClient implements Connector over HTTP against a TON Connect
// bridge service.
type BridgeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridgeClient constructs a bridge client. The HTTP timeout is bounded
// by the payment validity window so a hung wallet call cannot outlive the
// request it serves.
func NewBridgeClient(baseURL string, timeout time.Duration) *BridgeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BridgeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Session reports the wallet connection state and address for a user.
func (c *BridgeClient) Session(ctx context.Context, userID string) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions/"+userID, nil)
	if err != nil {
		return Session{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("wallet bridge session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Session{Connected: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("wallet bridge session: status %d", resp.StatusCode)
	}
	var session Session
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&session); err != nil {
		return Session{}, fmt.Errorf("wallet bridge session: decode: %w", err)
	}
	return session, nil
}

// SendTransaction submits a payment request and waits for the signed
// result or a failure. The raw response body is normalized here; callers
// only ever see TransactionResult.
func (c *BridgeClient) SendTransaction(ctx context.Context, userID string, payment PaymentRequest) (TransactionResult, error) {
	body, err := json.Marshal(payment)
	if err != nil {
		return TransactionResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions/"+userID+"/transactions", bytes.NewReader(body))
	if err != nil {
		return TransactionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("wallet bridge send: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusForbidden:
		return TransactionResult{}, ErrRejected
	case http.StatusRequestTimeout, http.StatusGone:
		return TransactionResult{}, ErrExpired
	case http.StatusNotFound, http.StatusConflict:
		return TransactionResult{}, ErrNotConnected
	default:
		return TransactionResult{}, fmt.Errorf("wallet bridge send: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TransactionResult{}, fmt.Errorf("wallet bridge send: read: %w", err)
	}
	return Normalize(raw), nil
}
