// Package events emits purchase receipts to RabbitMQ. Publishing is
// best-effort everywhere: a broker outage never fails a purchase.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName = "spacebooks.events"
	purchaseKey  = "purchase.completed"
)

// PurchaseEvent is the wire shape of a purchase receipt.
type PurchaseEvent struct {
	PurchaseID     string    `json:"purchaseId"`
	UserID         string    `json:"userId"`
	BookID         string    `json:"bookId"`
	TransactionRef string    `json:"transactionRef"`
	Durable        bool      `json:"durable"`
	PurchasedAt    time.Time `json:"purchasedAt"`
}

// Publisher emits purchase events.
type Publisher interface {
	PublishPurchase(ctx context.Context, event PurchaseEvent) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishPurchase(context.Context, PurchaseEvent) error { return nil }

// AMQPPublisher publishes to a topic exchange on RabbitMQ.
type AMQPPublisher struct {
	mu      sync.Mutex
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher prepares a publisher for the broker URL. The connection
// is established on first publish, so a broker outage at boot does not
// fail startup; publishing is best-effort either way.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	return &AMQPPublisher{url: url}, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.channel = channel
	return nil
}

// PublishPurchase emits one purchase receipt, reconnecting once on a
// closed connection.
func (p *AMQPPublisher) PublishPurchase(ctx context.Context, event PurchaseEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode purchase event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	err = p.channel.PublishWithContext(ctx, exchangeName, purchaseKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish purchase event: %w", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
