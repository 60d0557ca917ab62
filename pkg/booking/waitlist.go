package booking

import (
	"context"
	"errors"
)

// JoinWaitlist queues actorID for a full event and returns the 1-based position.
func (service *Service) JoinWaitlist(ctx context.Context, actorID UserID, eventID EventID) (int, error) {
	var position int
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		event, err := transactionStore.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		user, err := transactionStore.GetUser(ctx, actorID)
		if err != nil {
			return err
		}
		if user.IsSuspended {
			return ErrUserSuspended
		}
		if !isOpenForBooking(event) {
			return ErrEventNotBookable
		}
		if _, err := transactionStore.GetWaitlistEntry(ctx, eventID, actorID); err == nil {
			return ErrAlreadyWaitlisted
		} else if !errors.Is(err, ErrNotWaitlisted) {
			return err
		}
		existing, hasExisting, err := findLatestBooking(ctx, transactionStore, eventID, actorID)
		if err != nil {
			return err
		}
		if hasExisting && existing.Status == BookingStatusConfirmed {
			return ErrAlreadyBooked
		}
		confirmed, err := transactionStore.CountConfirmedBookings(ctx, eventID)
		if err != nil {
			return err
		}
		if confirmed < event.Capacity {
			return ErrEventNotFull
		}
		entry, err := transactionStore.InsertWaitlistEntry(ctx, WaitlistEntry{
			EventID:  eventID,
			UserID:   actorID,
			JoinedAt: service.now(),
		})
		if err != nil {
			return err
		}
		position, err = transactionStore.WaitlistRank(ctx, entry)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationJoinWaitlist,
		ActorID:   actorID,
		EventID:   eventID,
		Error:     operationError,
	})
	return position, operationError
}

// WaitlistPosition returns the 1-based position of actorID in the event's waitlist.
func (service *Service) WaitlistPosition(ctx context.Context, actorID UserID, eventID EventID) (int, error) {
	entry, err := service.store.GetWaitlistEntry(ctx, eventID, actorID)
	if err != nil {
		return 0, err
	}
	return service.store.WaitlistRank(ctx, entry)
}

// LeaveWaitlist removes the actor's entry. A second call reports ErrNotWaitlisted.
func (service *Service) LeaveWaitlist(ctx context.Context, actorID UserID, eventID EventID) error {
	operationError := service.store.DeleteWaitlistEntry(ctx, eventID, actorID)
	service.logOperation(ctx, OperationLog{
		Operation: operationLeaveWaitlist,
		ActorID:   actorID,
		EventID:   eventID,
		Error:     operationError,
	})
	return operationError
}

// PromoteNext fills a free seat of eventID from the head of its waitlist. It reports false
// when nobody was promoted (empty queue, no free seat, or the event is not open).
func (service *Service) PromoteNext(ctx context.Context, eventID EventID) (Booking, bool, error) {
	var promoted Booking
	var didPromote bool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		event, err := transactionStore.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		promoted, didPromote, err = service.promoteNext(ctx, transactionStore, event)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationPromoteWaitlist,
		EventID:   eventID,
		BookingID: promoted.ID,
		Points:    promoted.PointsEarned,
		Error:     operationError,
	})
	return promoted, didPromote, operationError
}

// promoteNext pops waitlist entries until one can be confirmed. Entries whose holder can no
// longer be promoted (suspended, removed, already confirmed) are discarded. The caller holds
// the event lock.
func (service *Service) promoteNext(ctx context.Context, store Store, event Event) (Booking, bool, error) {
	if !isOpenForBooking(event) {
		return Booking{}, false, nil
	}
	for {
		confirmed, err := store.CountConfirmedBookings(ctx, event.ID)
		if err != nil {
			return Booking{}, false, err
		}
		if confirmed >= event.Capacity {
			return Booking{}, false, nil
		}
		head, err := store.WaitlistHead(ctx, event.ID)
		if errors.Is(err, ErrNotWaitlisted) {
			return Booking{}, false, nil
		}
		if err != nil {
			return Booking{}, false, err
		}
		if err := store.DeleteWaitlistEntry(ctx, head.EventID, head.UserID); err != nil {
			return Booking{}, false, err
		}
		user, err := store.LockUser(ctx, head.UserID)
		if errors.Is(err, ErrUnknownUser) {
			continue
		}
		if err != nil {
			return Booking{}, false, err
		}
		if user.IsSuspended {
			continue
		}
		existing, hasExisting, err := findLatestBooking(ctx, store, event.ID, user.ID)
		if err != nil {
			return Booking{}, false, err
		}
		if hasExisting && existing.Status == BookingStatusConfirmed {
			continue
		}
		var previous *Booking
		if hasExisting {
			previous = &existing
		}
		booking, err := service.confirmBooking(ctx, store, user, event, previous, DomainEventBookingPromoted)
		if err != nil {
			return Booking{}, false, err
		}
		return booking, true, nil
	}
}
