package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/routebook/internal/route/domain"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "routebook.likes"

type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Publisher writes like events to a NATS subject so downstream consumers
// (leaderboards, sheet mirrors) can follow activity without polling.
type Publisher struct {
	conn    msgPublisher
	subject string
}

// NewPublisher builds a Publisher. A nil connection yields a publisher that drops events.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	p := &Publisher{subject: subject}
	if conn != nil {
		p.conn = conn
	}
	return p
}

// Publish satisfies domain.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event domain.LikeEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	msg.Header.Set("x-event-type", string(event.Type))
	if traceID := traceIDFromContext(ctx); traceID != "" {
		msg.Header.Set("x-trace-id", traceID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
