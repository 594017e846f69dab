package purchase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"spacebooks/internal/events"
	"spacebooks/internal/snapshot"
	"spacebooks/internal/wallet"
	"spacebooks/pkg/domain"
	"spacebooks/pkg/store"
)

type fakeConnector struct {
	connected bool
	address   string
	payments  []wallet.PaymentRequest
	results   []wallet.TransactionResult
	sendErr   error
}

func (f *fakeConnector) Session(context.Context, string) (wallet.Session, error) {
	return wallet.Session{Connected: f.connected, Address: f.address}, nil
}

func (f *fakeConnector) SendTransaction(_ context.Context, _ string, req wallet.PaymentRequest) (wallet.TransactionResult, error) {
	f.payments = append(f.payments, req)
	if f.sendErr != nil {
		return wallet.TransactionResult{}, f.sendErr
	}
	res := wallet.TransactionResult{Kind: wallet.KindBoc, Ref: fmt.Sprintf("boc-%d", len(f.payments))}
	f.results = append(f.results, res)
	return res, nil
}

type failingPurchaseStore struct {
	*store.MemoryStore
	addCalls int
}

func (f *failingPurchaseStore) AddPurchase(domain.Purchase, []byte) error {
	f.addCalls++
	return errors.New("store down")
}

type recordingPublisher struct {
	events []events.PurchaseEvent
}

func (r *recordingPublisher) PublishPurchase(_ context.Context, e events.PurchaseEvent) error {
	r.events = append(r.events, e)
	return nil
}

func newSnapshotStore(t *testing.T) *snapshot.RedisStore {
	t.Helper()
	redis := miniredis.RunT(t)
	snap, err := snapshot.NewRedisStore(redis.Addr(), "", "test:snapshot")
	if err != nil {
		t.Fatalf("new snapshot store: %v", err)
	}
	return snap
}

var (
	testUser = domain.User{ID: "u1", TelegramID: "tg1", FirstName: "John"}
	testBook = domain.Book{ID: "b1", Title: "T", Author: "A", Category: "c", Price: "2.5"}
)

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Recipient == "" {
		cfg.Recipient = "UQCrecipient"
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestPurchaseRequiresConnectedWallet(t *testing.T) {
	connector := &fakeConnector{connected: false}
	mem := store.NewMemoryStore()
	o := newOrchestrator(t, Config{Connector: connector, Store: mem})

	_, err := o.Purchase(context.Background(), testUser, testBook)
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("err = %v, want ErrWalletNotConnected", err)
	}
	if len(connector.payments) != 0 {
		t.Fatalf("no payment must be submitted without a wallet session")
	}
	if n, _ := mem.PurchaseCount(); n != 0 {
		t.Fatalf("no entitlement must be recorded without payment")
	}
}

func TestPurchaseEncodesAmountAndValidityWindow(t *testing.T) {
	connector := &fakeConnector{connected: true, address: "UQCwallet"}
	mem := store.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o := newOrchestrator(t, Config{
		Connector: connector,
		Store:     mem,
		Recipient: "UQCrecipient",
		Now:       func() time.Time { return now },
	})

	res, err := o.Purchase(context.Background(), testUser, testBook)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(connector.payments) != 1 {
		t.Fatalf("expected one payment submission, got %d", len(connector.payments))
	}
	payment := connector.payments[0]
	if payment.AmountNano != 2_500_000_000 {
		t.Fatalf("amount = %d, want price x 10^9 = 2500000000", payment.AmountNano)
	}
	if payment.Recipient != "UQCrecipient" {
		t.Fatalf("recipient = %q", payment.Recipient)
	}
	if payment.ValidUntil != now.Add(DefaultValidityWindow).Unix() {
		t.Fatalf("validUntil = %d, want now+10m", payment.ValidUntil)
	}
	if !res.Durable || res.Purchase.TransactionRef != "boc-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPurchaseMapsWalletErrors(t *testing.T) {
	tests := []struct {
		sendErr error
		want    error
	}{
		{wallet.ErrRejected, ErrTransactionRejected},
		{wallet.ErrExpired, ErrTransactionExpired},
		{wallet.ErrNotConnected, ErrWalletNotConnected},
	}
	for _, tc := range tests {
		connector := &fakeConnector{connected: true, sendErr: tc.sendErr}
		mem := store.NewMemoryStore()
		o := newOrchestrator(t, Config{Connector: connector, Store: mem})
		_, err := o.Purchase(context.Background(), testUser, testBook)
		if !errors.Is(err, tc.want) {
			t.Fatalf("sendErr %v: got %v, want %v", tc.sendErr, err, tc.want)
		}
		if n, _ := mem.PurchaseCount(); n != 0 {
			t.Fatalf("entitlement must never be recorded before payment success")
		}
	}
}

func TestPurchaseSurvivesStoreFailure(t *testing.T) {
	connector := &fakeConnector{connected: true}
	failing := &failingPurchaseStore{MemoryStore: store.NewMemoryStore()}
	snap := newSnapshotStore(t)
	pub := &recordingPublisher{}
	o := newOrchestrator(t, Config{Connector: connector, Store: failing, Snapshot: snap, Publisher: pub})

	res, err := o.Purchase(context.Background(), testUser, testBook)
	if err != nil {
		t.Fatalf("purchase should succeed despite store failure: %v", err)
	}
	if res.Durable {
		t.Fatalf("result should be marked non-durable")
	}
	if failing.addCalls != 1 {
		t.Fatalf("store write should be attempted once, got %d", failing.addCalls)
	}
	ids, err := snap.PurchasedBookIDs(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot read: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b1" {
		t.Fatalf("session-local entitlement missing, got %v", ids)
	}
	if len(pub.events) != 1 || pub.events[0].Durable {
		t.Fatalf("published event should carry durable=false, got %+v", pub.events)
	}
}

func TestRepeatPurchaseYieldsIndependentRecords(t *testing.T) {
	connector := &fakeConnector{connected: true}
	mem := store.NewMemoryStore()
	o := newOrchestrator(t, Config{Connector: connector, Store: mem})

	first, err := o.Purchase(context.Background(), testUser, testBook)
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, err := o.Purchase(context.Background(), testUser, testBook)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if first.Purchase.TransactionRef == second.Purchase.TransactionRef {
		t.Fatalf("repeat purchase must get a fresh transaction reference")
	}
	purchases, _ := mem.ListPurchasesByUser("u1")
	if len(purchases) != 2 {
		t.Fatalf("expected two entitlement records, got %d", len(purchases))
	}
}
