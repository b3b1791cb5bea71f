package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
)

// Type discriminates import-run outcome events.
type Type string

const (
	TypeCarParkImport       Type = "CarParkImport"
	TypeAvailabilityRefresh Type = "AvailabilityRefresh"
)

// Event reports the final counts of one import or refresh run. The admin
// endpoints only acknowledge initiation, so these events (plus logs and
// metrics) are how run outcomes become observable.
type Event struct {
	RunID       string    `json:"run_id"`
	Type        Type      `json:"type"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher writes run outcome events to a NATS subject. A nil Publisher or
// nil connection publishes nothing, so callers need no wiring when NATS is
// not configured.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher builds a Publisher using the provided NATS connection.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = "carpark.imports"
	}
	return &Publisher{conn: conn, subject: subject}
}

// Publish sends the event, carrying the trace id when one is in flight.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.subject, Data: payload, Header: map[string][]string{
		"x-trace-id":   {traceIDFromContext(ctx)},
		"x-event-type": {string(event.Type)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
