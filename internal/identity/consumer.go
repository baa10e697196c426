package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"refroute/internal/platform/kafka"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
)

const (
	defaultDeliverAttempts = 5
	defaultDeliverBackoff  = 200 * time.Millisecond
)

// ChangeEvent is the payload of the identity change topic.
type ChangeEvent struct {
	UserID string `json:"user_id"`
}

// DecodeChange parses one change record.
func DecodeChange(value []byte) (id.UserID, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return id.UserID{}, fmt.Errorf("decode identity change: %w", err)
	}
	return id.ParseUserID(ev.UserID)
}

// ChangeConsumer feeds identity change events into a handler.
type ChangeConsumer struct {
	client    *kgo.Client
	handle    ChangeHandler
	requeue   ChangeHandler
	logger    *slog.Logger
	attempts  int
	backoff   time.Duration
	broadcast bool
}

type ConsumerOption func(*ChangeConsumer)

// WithRetry bounds the in-place retries of a transiently failing change.
// backoff doubles after every attempt.
func WithRetry(attempts int, backoff time.Duration) ConsumerOption {
	return func(c *ChangeConsumer) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithRequeue hands a change whose retries ran out back to the topic.
func WithRequeue(requeue ChangeHandler) ConsumerOption {
	return func(c *ChangeConsumer) {
		c.requeue = requeue
	}
}

// NewChangeConsumer drives handle from a consumer group, so each change is
// handled by one replica.
func NewChangeConsumer(client *kgo.Client, handle ChangeHandler, logger *slog.Logger, opts ...ConsumerOption) *ChangeConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ChangeConsumer{
		client:   client,
		handle:   handle,
		logger:   logger,
		attempts: defaultDeliverAttempts,
		backoff:  defaultDeliverBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewBroadcastConsumer drives handle from a groupless tail of the topic, so
// every replica sees every change. Used to evict per-process caches.
func NewBroadcastConsumer(client *kgo.Client, handle ChangeHandler, logger *slog.Logger) *ChangeConsumer {
	c := NewChangeConsumer(client, handle, logger, WithRetry(1, 0))
	c.broadcast = true
	return c
}

// Run consumes until ctx is cancelled. Undecodable records are logged and
// skipped. A change that could neither be handled nor requeued stops the
// loop before its offset is committed.
func (c *ChangeConsumer) Run(ctx context.Context) error {
	consume := kafka.Consume
	if c.broadcast {
		consume = kafka.Tail
	}
	return consume(ctx, c.client, c.logger, func(ctx context.Context, rec *kgo.Record) error {
		user, err := DecodeChange(rec.Value)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping identity change", "offset", rec.Offset, "error", err)
			return nil
		}
		return c.Deliver(ctx, user)
	})
}

// Deliver runs the handler for one change. Transient failures are retried
// with backoff; when the attempts run out the change is requeued. Permanent
// failures are logged and dropped.
func (c *ChangeConsumer) Deliver(ctx context.Context, user id.UserID) error {
	delay := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = c.handle(ctx, user); err == nil {
			return nil
		}
		if !dErrors.Retryable(dErrors.CodeOf(err)) {
			c.logger.ErrorContext(ctx, "identity change dropped", "user_id", user.String(), "error", err)
			return nil
		}
		if attempt >= c.attempts {
			break
		}
		c.logger.WarnContext(ctx, "identity change failed, retrying",
			"user_id", user.String(),
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	if c.requeue == nil {
		c.logger.ErrorContext(ctx, "identity change dropped after retries", "user_id", user.String(), "error", err)
		return nil
	}
	if rqErr := c.requeue(ctx, user); rqErr != nil {
		return fmt.Errorf("requeue identity change for %s: %w", user, rqErr)
	}
	c.logger.WarnContext(ctx, "identity change requeued", "user_id", user.String(), "error", err)
	return nil
}

// PublishChange announces that user's identity changed.
func PublishChange(ctx context.Context, producer *kgo.Client, topic string, user id.UserID) error {
	raw, err := json.Marshal(ChangeEvent{UserID: user.String()})
	if err != nil {
		return err
	}
	rec := &kgo.Record{Topic: topic, Key: []byte(user.String()), Value: raw}
	return producer.ProduceSync(ctx, rec).FirstErr()
}
