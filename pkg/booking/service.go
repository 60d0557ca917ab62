package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service contains the booking, waitlist, loyalty and payout rules over a Store.
type Service struct {
	store              Store
	nowFn              func() time.Time
	logger             OperationLogger
	tiers              TierTable
	cancellationWindow time.Duration
	newID              func() string
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:              store,
		nowFn:              now,
		tiers:              DefaultTierTable(),
		cancellationWindow: DefaultCancellationWindow,
		newID:              uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if len(service.tiers.tiers) == 0 {
		return nil, fmt.Errorf("%w: tier table is empty", ErrInvalidServiceConfig)
	}
	if service.cancellationWindow < 0 {
		return nil, fmt.Errorf("%w: negative cancellation window", ErrInvalidServiceConfig)
	}
	if service.newID == nil {
		return nil, fmt.Errorf("%w: id generator is nil", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Tiers exposes the loyalty configuration in use.
func (service *Service) Tiers() TierTable {
	return service.tiers
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// requireAdmin loads the actor and rejects non-admins.
func requireAdmin(ctx context.Context, store Store, actorID UserID) (User, error) {
	actor, err := store.GetUser(ctx, actorID)
	if err != nil {
		return User{}, err
	}
	if !actor.Role.IsAdmin() {
		return User{}, ErrForbidden
	}
	return actor, nil
}
