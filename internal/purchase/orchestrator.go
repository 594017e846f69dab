// Package purchase coordinates wallet payment with entitlement recording.
// Payment submission always completes (or fails) before any entitlement
// is written; the reverse order is never correct.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spacebooks/internal/events"
	"spacebooks/internal/snapshot"
	"spacebooks/internal/util"
	"spacebooks/internal/wallet"
	"spacebooks/pkg/domain"
	"spacebooks/pkg/store"
)

var (
	// ErrWalletNotConnected is a precondition failure; callers should
	// prompt the user to connect instead of retrying.
	ErrWalletNotConnected = errors.New("wallet not connected")
	// ErrTransactionRejected is recoverable; the user may retry.
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrTransactionExpired is recoverable with a fresh validity window.
	ErrTransactionExpired = errors.New("transaction expired")
)

// DefaultValidityWindow bounds how long a payment request stays valid.
const DefaultValidityWindow = 10 * time.Minute

// Result reports a completed purchase. Durable is false when the store
// write failed and the entitlement only exists in the session snapshot.
type Result struct {
	Purchase domain.Purchase
	Durable  bool
}

// Orchestrator runs the payment-then-entitlement sequence.
type Orchestrator struct {
	connector wallet.Connector
	store     store.Store
	snapshot  snapshot.Store
	publisher events.Publisher
	recipient string
	window    time.Duration
	now       func() time.Time
}

// Config wires orchestrator dependencies. Recipient is the fixed payment
// address all purchases settle to.
type Config struct {
	Connector      wallet.Connector
	Store          store.Store
	Snapshot       snapshot.Store
	Publisher      events.Publisher
	Recipient      string
	ValidityWindow time.Duration
	Now            func() time.Time
}

// New constructs the orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Connector == nil {
		return nil, errors.New("wallet connector required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Recipient == "" {
		return nil, errors.New("recipient address required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.ValidityWindow <= 0 {
		cfg.ValidityWindow = DefaultValidityWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		connector: cfg.Connector,
		store:     cfg.Store,
		snapshot:  cfg.Snapshot,
		publisher: cfg.Publisher,
		recipient: cfg.Recipient,
		window:    cfg.ValidityWindow,
		now:       cfg.Now,
	}, nil
}

// Purchase performs payment for one book and, on success, records the
// entitlement. A failed durable write does not fail the purchase: payment
// already happened, so the entitlement is granted session-locally and the
// failure is only logged.
func (o *Orchestrator) Purchase(ctx context.Context, user domain.User, book domain.Book) (Result, error) {
	session, err := o.connector.Session(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("wallet session: %w", err)
	}
	if !session.Connected {
		return Result{}, ErrWalletNotConnected
	}

	amount, err := wallet.Nanotons(book.Price)
	if err != nil {
		return Result{}, fmt.Errorf("price of book %s: %w", book.ID, err)
	}
	payment := wallet.PaymentRequest{
		Recipient:  o.recipient,
		AmountNano: amount,
		ValidUntil: o.now().Add(o.window).Unix(),
	}

	result, err := o.connector.SendTransaction(ctx, user.ID, payment)
	switch {
	case errors.Is(err, wallet.ErrNotConnected):
		return Result{}, ErrWalletNotConnected
	case errors.Is(err, wallet.ErrRejected):
		return Result{}, ErrTransactionRejected
	case errors.Is(err, wallet.ErrExpired):
		return Result{}, ErrTransactionExpired
	case err != nil:
		return Result{}, fmt.Errorf("send transaction: %w", err)
	}

	record := domain.Purchase{
		ID:             util.NewID(),
		UserID:         user.ID,
		BookID:         book.ID,
		TransactionRef: result.Ref,
		PurchasedAt:    o.now().UTC(),
	}
	walletResult, _ := json.Marshal(result)

	durable := true
	if err := o.store.AddPurchase(record, walletResult); err != nil {
		// Payment already happened; never lose the sale over a store error.
		durable = false
		slog.Error("purchase persisted locally only",
			"user_id", user.ID,
			"book_id", book.ID,
			"transaction_ref", record.TransactionRef,
			"err", err,
		)
	}
	if o.snapshot != nil {
		if err := o.snapshot.AddPurchasedBookID(ctx, user.ID, book.ID); err != nil {
			slog.Warn("purchase snapshot update failed", "user_id", user.ID, "book_id", book.ID, "err", err)
		}
	}

	if err := o.publisher.PublishPurchase(ctx, events.PurchaseEvent{
		PurchaseID:     record.ID,
		UserID:         record.UserID,
		BookID:         record.BookID,
		TransactionRef: record.TransactionRef,
		Durable:        durable,
		PurchasedAt:    record.PurchasedAt,
	}); err != nil {
		slog.Warn("purchase event publish failed", "purchase_id", record.ID, "err", err)
	}

	return Result{Purchase: record, Durable: durable}, nil
}
