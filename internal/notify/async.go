package notify

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "refroute_notify_dropped_total",
	Help: "Reference events dropped because the notification buffer was full.",
})

const defaultBatchSize = 64

// AsyncSink decouples callers from a slower sink. Notify only enqueues; a
// worker started with Run drains the buffer into next.
type AsyncSink struct {
	buf    *RingBuffer
	next   Sink
	wake   chan struct{}
	batch  int
	logger *slog.Logger
}

func NewAsyncSink(next Sink, capacity int, logger *slog.Logger) *AsyncSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSink{
		buf:    NewRingBuffer(capacity),
		next:   next,
		wake:   make(chan struct{}, 1),
		batch:  defaultBatchSize,
		logger: logger,
	}
}

func (s *AsyncSink) Notify(ctx context.Context, ev Event) {
	if s.buf.Enqueue(ev) {
		droppedEvents.Inc()
		s.logger.WarnContext(ctx, "notification buffer full, dropped oldest event")
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run delivers buffered events until ctx is cancelled, then flushes what is
// left with a context that is no longer cancelled.
func (s *AsyncSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-s.wake:
			s.drain(ctx)
		}
	}
}

func (s *AsyncSink) drain(ctx context.Context) {
	for {
		events := s.buf.DequeueBatch(s.batch)
		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			s.next.Notify(ctx, ev)
		}
	}
}

// Pending is the number of events waiting for the worker.
func (s *AsyncSink) Pending() int { return s.buf.Len() }

// Dropped is the number of events lost to overflow.
func (s *AsyncSink) Dropped() int64 { return s.buf.Dropped() }
