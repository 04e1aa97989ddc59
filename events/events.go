// Package events publishes domain events, such as completed orders and
// payments that need reconciliation, for other services to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	OrderCompleted         = "order.completed"
	ReconciliationRequired = "payment.reconciliation_required"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, typ string, data any) error
}

type discard struct{}

func (discard) Publish(context.Context, string, any) error { return nil }

// Discard drops every event. It is used when no broker is configured.
var Discard Publisher = discard{}

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes events as persistent JSON messages on a durable queue.
type AMQP struct {
	mu    sync.Mutex
	ch    Channel
	conn  *amqp.Connection
	queue string
}

func DialAMQP(url string, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	a, err := NewAMQP(ch, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a.conn = conn
	return a, nil
}

// NewAMQP declares queue on ch and publishes to it.
func NewAMQP(ch Channel, queue string) (*AMQP, error) {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	return &AMQP{ch: ch, queue: queue}, nil
}

func (a *AMQP) Publish(ctx context.Context, typ string, data any) error {
	evt := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", typ, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Type:         typ,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing.
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ch.PublishWithContext(ctx, "", a.queue, false, false, msg); err != nil {
		return fmt.Errorf("publishing event %s: %w", typ, err)
	}
	return nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
