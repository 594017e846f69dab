// Package wallet talks to the TON Connect bridge. It owns the messy part
// of the wallet protocol: the transaction result body has no fixed shape,
// so normalization into a single TransactionReference happens here and
// callers never see the raw payload.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConnected means no active wallet session exists for the user.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrRejected means the user or wallet declined the transaction.
	ErrRejected = errors.New("transaction rejected")
	// ErrExpired means the payment validity window elapsed before signing.
	ErrExpired = errors.New("transaction expired")
)

// ResultKind tags which shape the wallet layer returned.
type ResultKind string

const (
	KindBoc         ResultKind = "boc"
	KindHash        ResultKind = "hash"
	KindString      ResultKind = "string"
	KindSynthesized ResultKind = "synthesized"
)

// PaymentRequest describes one payment to submit through the bridge.
type PaymentRequest struct {
	Recipient  string `json:"recipient"`
	AmountNano int64  `json:"amountNano"`
	ValidUntil int64  `json:"validUntil"` // unix seconds
}

// TransactionResult is the normalized form of whatever the wallet layer
// returned. Ref is always non-empty.
type TransactionResult struct {
	Kind ResultKind      `json:"kind"`
	Ref  string          `json:"ref"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// Session reports an active wallet connection.
type Session struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Connector manages wallet sessions and submits payment transactions.
type Connector interface {
	Session(ctx context.Context, userID string) (Session, error)
	SendTransaction(ctx context.Context, userID string, req PaymentRequest) (TransactionResult, error)
}

const nanoPerTon = 1_000_000_000

// Nanotons converts a decimal TON price into the chain's smallest unit.
// The conversion is exact integer math; fractional digits beyond nine are
// truncated, never rounded.
func Nanotons(price string) (int64, error) {
	price = strings.TrimSpace(price)
	if price == "" {
		return 0, errors.New("empty price")
	}
	if strings.HasPrefix(price, "-") {
		return 0, fmt.Errorf("negative price %q", price)
	}
	whole, frac, _ := strings.Cut(price, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("malformed price %q", price)
	}
	if whole == "" {
		whole = "0"
	}
	var nano int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed price %q", price)
		}
		d := int64(r - '0')
		if nano > (1<<63-1-d)/10 {
			return 0, fmt.Errorf("price %q overflows", price)
		}
		nano = nano*10 + d
	}
	if nano > (1<<63-1)/nanoPerTon {
		return 0, fmt.Errorf("price %q overflows", price)
	}
	nano *= nanoPerTon
	scale := int64(nanoPerTon / 10)
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed price %q", price)
		}
		if scale == 0 {
			break // truncate beyond nine decimals
		}
		nano += int64(r-'0') * scale
		scale /= 10
	}
	return nano, nil
}

// Normalize folds the polymorphic result body into a TransactionResult.
// It accepts an object with one of several hash-bearing fields, a bare
// JSON string, or a plain string; when nothing usable is present it
// synthesizes a locally-unique placeholder reference instead of failing.
func Normalize(raw []byte) TransactionResult {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return synthesized(nil)
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString = strings.TrimSpace(asString); asString != "" {
			return TransactionResult{Kind: KindString, Ref: asString, Raw: json.RawMessage(raw)}
		}
		return synthesized(raw)
	}

	var asObject struct {
		Boc             string `json:"boc"`
		Hash            string `json:"hash"`
		TxHash          string `json:"txHash"`
		TransactionHash string `json:"transactionHash"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		if ref := strings.TrimSpace(asObject.Boc); ref != "" {
			return TransactionResult{Kind: KindBoc, Ref: ref, Raw: json.RawMessage(raw)}
		}
		for _, ref := range []string{asObject.Hash, asObject.TxHash, asObject.TransactionHash} {
			if ref = strings.TrimSpace(ref); ref != "" {
				return TransactionResult{Kind: KindHash, Ref: ref, Raw: json.RawMessage(raw)}
			}
		}
		return synthesized(raw)
	}

	// Not JSON at all: treat the body as an opaque reference.
	return TransactionResult{Kind: KindString, Ref: trimmed, Raw: json.RawMessage(raw)}
}

func synthesized(raw []byte) TransactionResult {
	ref := fmt.Sprintf("ton_tx_%d_%s", time.Now().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	res := TransactionResult{Kind: KindSynthesized, Ref: ref}
	if len(raw) > 0 {
		res.Raw = json.RawMessage(raw)
	}
	return res
}
