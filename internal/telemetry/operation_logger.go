package telemetry

import (
	"context"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"go.uber.org/zap"
)

// OperationLogger writes booking.OperationLog entries to zap and counts them in Metrics.
// Expected domain rejections log at Warn; unclassified failures log at Error.
type OperationLogger struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewOperationLogger builds an OperationLogger. Either dependency may be nil.
func NewOperationLogger(logger *zap.Logger, metrics *Metrics) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger.Named("booking"), metrics: metrics}
}

func (operationLogger *OperationLogger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	code := "ok"
	if entry.Error != nil {
		code = booking.CodeOf(entry.Error)
	}
	if operationLogger.metrics != nil {
		operationLogger.metrics.operationsTotal.WithLabelValues(entry.Operation, entry.Status, code).Inc()
		if entry.Error == nil && entry.Points > 0 && awardsPoints(entry.Operation) {
			operationLogger.metrics.pointsAwardedTotal.Add(float64(entry.Points.Int64()))
		}
	}

	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.ActorID.String()))
	}
	if !entry.EventID.IsZero() {
		fields = append(fields, zap.String("event_id", entry.EventID.String()))
	}
	if !entry.BookingID.IsZero() {
		fields = append(fields, zap.String("booking_id", entry.BookingID.String()))
	}
	if entry.PayoutID.String() != "" {
		fields = append(fields, zap.String("payout_id", entry.PayoutID.String()))
	}
	if entry.Points != 0 {
		fields = append(fields, zap.Int64("points", entry.Points.Int64()))
	}
	if entry.Error == nil {
		operationLogger.logger.Info("operation", fields...)
		return
	}
	fields = append(fields, zap.String("code", code), zap.Error(entry.Error))
	if booking.KindOf(entry.Error) == booking.KindInternal {
		operationLogger.logger.Error("operation", fields...)
		return
	}
	operationLogger.logger.Warn("operation", fields...)
}

// Operations whose Points field is a credit rather than a reversal or adjustment.
const (
	operationCreateBooking   = "create_booking"
	operationPromoteWaitlist = "promote_waitlist"
)

func awardsPoints(operation string) bool {
	return operation == operationCreateBooking || operation == operationPromoteWaitlist
}
