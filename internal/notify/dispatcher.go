package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 50
	defaultBaseDelay    = 5 * time.Second
	defaultMaxDelay     = 30 * time.Minute
)

// OutboxStore is the slice of the persistence layer the dispatcher needs.
type OutboxStore interface {
	PendingMessages(ctx context.Context, now time.Time, limit int) ([]booking.OutboxMessage, error)
	MarkDelivered(ctx context.Context, messageID string, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, messageID string, attempts int, nextAttempt time.Time, reason string) error
}

// DeliveryRecorder observes the outcome of each publish attempt.
type DeliveryRecorder interface {
	RecordDelivery(eventType string, delivered bool)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPollInterval sets how often Run drains the outbox.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.interval = interval
	}
}

// WithBatchSize caps how many messages one pass publishes.
func WithBatchSize(size int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.batchSize = size
	}
}

// WithRetryDelays sets the first retry delay and the cap of the exponential backoff.
func WithRetryDelays(base time.Duration, max time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.baseDelay = base
		dispatcher.maxDelay = max
	}
}

// WithClock overrides the dispatcher time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.now = now
	}
}

// WithDeliveryRecorder wires delivery metrics.
func WithDeliveryRecorder(recorder DeliveryRecorder) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.recorder = recorder
	}
}

// Dispatcher drains the outbox into a Sink. Exactly one dispatcher should run per database.
type Dispatcher struct {
	store     OutboxStore
	sink      Sink
	logger    *zap.Logger
	recorder  DeliveryRecorder
	now       func() time.Time
	interval  time.Duration
	batchSize int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(store OutboxStore, sink Sink, logger *zap.Logger, options ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("dispatcher: outbox store is nil")
	}
	if sink == nil {
		return nil, errors.New("dispatcher: sink is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := &Dispatcher{
		store:     store,
		sink:      sink,
		logger:    logger.With(zap.String("component", "outbox_dispatcher")),
		now:       func() time.Time { return time.Now().UTC() },
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	if dispatcher.interval <= 0 {
		return nil, fmt.Errorf("dispatcher: poll interval must be positive, got %s", dispatcher.interval)
	}
	if dispatcher.batchSize <= 0 {
		return nil, fmt.Errorf("dispatcher: batch size must be positive, got %d", dispatcher.batchSize)
	}
	if dispatcher.baseDelay <= 0 || dispatcher.maxDelay < dispatcher.baseDelay {
		return nil, fmt.Errorf("dispatcher: invalid retry delays %s..%s", dispatcher.baseDelay, dispatcher.maxDelay)
	}
	if dispatcher.now == nil {
		return nil, errors.New("dispatcher: clock is nil")
	}
	return dispatcher, nil
}

// Run polls until ctx is cancelled.
func (dispatcher *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(dispatcher.interval)
	defer ticker.Stop()
	dispatcher.logger.Info("started", zap.Duration("interval", dispatcher.interval))
	var lastFailure string
	for {
		select {
		case <-ctx.Done():
			dispatcher.logger.Info("stopped")
			return nil
		case <-ticker.C:
			if _, err := dispatcher.DispatchOnce(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				if err.Error() != lastFailure {
					dispatcher.logger.Warn("outbox pass failed", zap.Error(err))
					lastFailure = err.Error()
				}
				continue
			}
			lastFailure = ""
		}
	}
}

// DispatchOnce publishes one batch of due messages and reports how many were delivered.
// Failed messages are rescheduled with exponential backoff and never abort the batch.
func (dispatcher *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	messages, err := dispatcher.store.PendingMessages(ctx, dispatcher.now(), dispatcher.batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, message := range messages {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		publishErr := dispatcher.sink.Publish(ctx, message)
		dispatcher.record(message, publishErr == nil)
		if publishErr != nil {
			if err := dispatcher.reschedule(ctx, message, publishErr); err != nil {
				return delivered, err
			}
			continue
		}
		if err := dispatcher.store.MarkDelivered(ctx, message.MessageID, dispatcher.now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (dispatcher *Dispatcher) reschedule(ctx context.Context, message booking.OutboxMessage, publishErr error) error {
	attempts := message.Attempts + 1
	delay := RetryDelay(attempts, dispatcher.baseDelay, dispatcher.maxDelay)
	dispatcher.logger.Warn("publish failed; scheduled retry",
		zap.String("message_id", message.MessageID),
		zap.String("type", message.Event.Type.String()),
		zap.Int("attempt", attempts),
		zap.Duration("retry_in", delay),
		zap.Error(publishErr),
	)
	return dispatcher.store.MarkFailed(ctx, message.MessageID, attempts, dispatcher.now().Add(delay), publishErr.Error())
}

func (dispatcher *Dispatcher) record(message booking.OutboxMessage, delivered bool) {
	if dispatcher.recorder == nil {
		return
	}
	dispatcher.recorder.RecordDelivery(message.Event.Type.String(), delivered)
}

// RetryDelay doubles base for every attempt after the first and caps the result at max.
func RetryDelay(attempts int, base time.Duration, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for step := 1; step < attempts; step++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
