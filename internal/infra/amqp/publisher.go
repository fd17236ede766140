package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vietddude/partsync/internal/core/domain"
)

// Config holds RabbitMQ publishing configuration.
type Config struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"` // defaults to "state.<stream>"
}

// Message is the body of a published state snapshot.
type Message struct {
	Stream    string              `json:"stream"`
	Namespace string              `json:"namespace"`
	RunID     string              `json:"run_id,omitempty"`
	EmittedAt time.Time           `json:"emitted_at"`
	State     domain.ManagerState `json:"state"`
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher broadcasts state snapshots to a topic exchange.
type Publisher struct {
	cfg   Config
	runID string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
}

// NewPublisher dials RabbitMQ and declares the exchange.
func NewPublisher(cfg Config, runID string) (*Publisher, error) {
	if cfg.Exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(cfg, runID, ch)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(cfg Config, runID string, ch channel) (*Publisher, error) {
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	return &Publisher{cfg: cfg, runID: runID, ch: ch}, nil
}

// Publish sends one state snapshot as a persistent JSON message.
func (p *Publisher) Publish(
	ctx context.Context,
	streamName, namespace string,
	state domain.ManagerState,
) error {
	now := time.Now().UTC()
	body, err := json.Marshal(Message{
		Stream:    streamName,
		Namespace: namespace,
		RunID:     p.runID,
		EmittedAt: now,
		State:     state,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state message: %w", err)
	}

	key := p.cfg.RoutingKey
	if key == "" {
		key = "state." + streamName
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("publisher is closed")
	}
	err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
