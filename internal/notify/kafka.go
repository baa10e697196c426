package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"refroute/pkg/platform/circuit"
)

// KafkaSink produces events keyed by reference id so one reference's events
// stay ordered within a partition. While the circuit is open, events are
// also handed to the fallback sink.
type KafkaSink struct {
	client   *kgo.Client
	topic    string
	breaker  *circuit.Breaker
	fallback Sink
	logger   *slog.Logger
}

func NewKafkaSink(client *kgo.Client, topic string, fallback Sink, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback = LogSink{Logger: logger}
	}
	return &KafkaSink{
		client:   client,
		topic:    topic,
		breaker:  circuit.New("notify-kafka", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		fallback: fallback,
		logger:   logger,
	}
}

func (s *KafkaSink) Notify(ctx context.Context, ev Event) {
	rec, err := s.record(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode reference event", "event", ev.Type, "error", err)
		return
	}
	s.client.Produce(context.WithoutCancel(ctx), rec, func(_ *kgo.Record, err error) {
		s.outcome(ctx, ev, err)
	})
}

func (s *KafkaSink) record(ev Event) (*kgo.Record, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: s.topic,
		Key:   []byte(ev.ReferenceID.String()),
		Value: raw,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

func (s *KafkaSink) outcome(ctx context.Context, ev Event, err error) {
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "notification producer recovered", "breaker", s.breaker.Name())
		}
		return
	}
	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "notification producer circuit opened", "breaker", s.breaker.Name(), "error", err)
	}
	if useFallback {
		s.fallback.Notify(context.WithoutCancel(ctx), ev)
		return
	}
	s.logger.WarnContext(ctx, "notification produce failed", "event", ev.Type, "reference_id", ev.ReferenceID, "error", err)
}

// Flush waits for buffered records to be delivered.
func (s *KafkaSink) Flush(ctx context.Context) error {
	return s.client.Flush(ctx)
}
