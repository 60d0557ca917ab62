package booking

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a booking engine operation and its outcome.
type OperationLog struct {
	Operation string
	ActorID   UserID
	EventID   EventID
	BookingID BookingID
	PayoutID  PayoutID
	Points    Points
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithTierTable replaces the default loyalty tiers.
func WithTierTable(tiers TierTable) ServiceOption {
	return func(service *Service) {
		service.tiers = tiers
	}
}

// WithCancellationWindow overrides how long before the start attendees may still cancel.
func WithCancellationWindow(window time.Duration) ServiceOption {
	return func(service *Service) {
		service.cancellationWindow = window
	}
}

// WithIDGenerator overrides how row ids and check-in tokens are minted.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		service.newID = generate
	}
}
