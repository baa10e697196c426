// Package notify delivers reference domain events to the notification
// collaborator. Delivery is fire-and-forget: Notify never blocks the engine
// on the transport and never reports failures back to it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "refroute/pkg/domain"
)

// EventType names a domain event.
type EventType string

const (
	ReferenceMoved  EventType = "reference.moved"
	ReopenRequested EventType = "reference.reopen_requested"
	ReopenResolved  EventType = "reference.reopen_resolved"
)

// Event is the payload handed to sinks.
type Event struct {
	Type        EventType      `json:"type"`
	ReferenceID id.ReferenceID `json:"reference_id"`
	RefID       string         `json:"ref_id"`
	Scope       id.Scope       `json:"scope"`
	Actor       id.UserID      `json:"actor"`
	MarkedTo    []id.UserID    `json:"marked_to,omitempty"`
	Status      string         `json:"status"`
	Remarks     string         `json:"remarks,omitempty"`
	Approved    *bool          `json:"approved,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Sink accepts events for delivery.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "reference event",
		"event", ev.Type,
		"reference_id", ev.ReferenceID,
		"ref_id", ev.RefID,
		"scope", ev.Scope,
		"actor", ev.Actor,
		"status", ev.Status,
	)
}

// Recorder keeps events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
