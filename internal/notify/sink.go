package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"go.uber.org/zap"
)

const (
	BackendLog   = "log"
	BackendAMQP  = "amqp"
	BackendRedis = "redis"
)

// Sink delivers one outbox message to subscribers. Delivery is at-least-once, so sinks may see
// the same MessageID more than once.
type Sink interface {
	Publish(ctx context.Context, message booking.OutboxMessage) error
	Close() error
}

// envelope is the wire shape shared by every sink.
type envelope struct {
	MessageID string              `json:"message_id"`
	Attempt   int                 `json:"attempt"`
	Event     booking.DomainEvent `json:"event"`
}

func encodeEnvelope(message booking.OutboxMessage) ([]byte, error) {
	body, err := json.Marshal(envelope{
		MessageID: message.MessageID,
		Attempt:   message.Attempts + 1,
		Event:     message.Event,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification %s: %w", message.MessageID, err)
	}
	return body, nil
}

// LogSink writes notifications to a zap logger. It is the default when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink; a nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (sink *LogSink) Publish(ctx context.Context, message booking.OutboxMessage) error {
	sink.logger.Info("notification",
		zap.String("message_id", message.MessageID),
		zap.String("type", message.Event.Type.String()),
		zap.String("event_id", message.Event.EventID.String()),
		zap.String("user_id", message.Event.UserID.String()),
		zap.String("booking_id", message.Event.BookingID.String()),
		zap.String("message", message.Event.Message),
		zap.Time("occurred_at", message.Event.OccurredAt),
	)
	return nil
}

func (sink *LogSink) Close() error {
	return nil
}
