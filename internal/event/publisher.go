package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	OrderCreated       = "order.created"
	OrderPaid          = "order.paid"
	OrderStatusChanged = "order.status_changed"
	PayoutRequested    = "payout.requested"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func New(eventType string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher hands domain events to the notification side. Callers publish
// after their transaction commits and treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close()
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &amqpPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
	}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		evt.Type, // routing key
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			MessageId:    evt.ID,
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.OccurredAt,
			ContentType:  "application/json",
			Type:         evt.Type,
			Body:         body,
		},
	)
}

func (p *amqpPublisher) Close() {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.L.Warn("close rabbitmq channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.L.Warn("close rabbitmq connection", zap.Error(err))
		}
	}
}

type nopPublisher struct{}

// NewNopPublisher drops every event. Used when no broker is configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func (nopPublisher) Close() {}

// PublishAll publishes events in order, logging rather than returning
// failures.
func PublishAll(ctx context.Context, p Publisher, events ...Event) {
	for _, evt := range events {
		if err := p.Publish(ctx, evt); err != nil {
			log.L.Warn("publish event",
				zap.String("event_id", evt.ID),
				zap.String("type", evt.Type),
				zap.Error(err),
			)
		}
	}
}
