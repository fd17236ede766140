package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vietddude/partsync/internal/core/domain"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	declareErr error
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return c.declareErr
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(Config{Exchange: "partsync"}, "run-1", ch)
	if err != nil {
		t.Fatalf("newPublisher failed: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "partsync:topic" {
		t.Errorf("expected topic exchange declared, got %v", ch.declared)
	}

	state := domain.ManagerState{State: domain.CursorState{"updated_at": "2024-01-10T00:00:00Z"}}
	if err := p.Publish(context.Background(), "comments", "ns", state); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("expected 1 message, got %d", len(ch.published))
	}
	got := ch.published[0]
	if got.exchange != "partsync" || got.key != "state.comments" {
		t.Errorf("unexpected destination %s/%s", got.exchange, got.key)
	}
	if got.msg.DeliveryMode != amqp.Persistent {
		t.Error("expected persistent delivery")
	}
	if _, err := uuid.Parse(got.msg.MessageId); err != nil {
		t.Errorf("expected uuid message id, got %q", got.msg.MessageId)
	}

	var body Message
	if err := json.Unmarshal(got.msg.Body, &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Stream != "comments" || body.RunID != "run-1" || body.State.State["updated_at"] != "2024-01-10T00:00:00Z" {
		t.Errorf("unexpected body %+v", body)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !ch.closed {
		t.Error("expected channel closed")
	}
	if err := p.Publish(context.Background(), "comments", "ns", state); err == nil {
		t.Error("expected error publishing on closed publisher")
	}
}

func TestPublisher_DeclareFailure(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	if _, err := newPublisher(Config{Exchange: "partsync"}, "", ch); err == nil {
		t.Fatal("expected declare error")
	}
	if !ch.closed {
		t.Error("expected channel closed after failed declare")
	}
}
