package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BookingResult is the outcome of a successful booking request.
type BookingResult struct {
	Booking Booking
	// Reactivated is true when a previously cancelled row was confirmed again.
	Reactivated bool
}

// CreateBooking confirms a seat for actorID at eventID. The admission check, the write and a
// re-count run in one transaction holding the event row lock.
func (service *Service) CreateBooking(ctx context.Context, actorID UserID, eventID EventID) (BookingResult, error) {
	var result BookingResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		event, err := transactionStore.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		user, err := transactionStore.LockUser(ctx, actorID)
		if err != nil {
			return err
		}
		if user.IsSuspended {
			return ErrUserSuspended
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
		if err := AdmitBooking(event, confirmed); err != nil {
			return err
		}
		var previous *Booking
		if hasExisting {
			previous = &existing
		}
		booking, err := service.confirmBooking(ctx, transactionStore, user, event, previous, DomainEventBookingConfirmed)
		if err != nil {
			return err
		}
		result = BookingResult{Booking: booking, Reactivated: previous != nil}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateBooking,
		ActorID:   actorID,
		EventID:   eventID,
		BookingID: result.Booking.ID,
		Points:    result.Booking.PointsEarned,
		Error:     operationError,
	})
	return result, operationError
}

// CancelBooking cancels a confirmed booking on behalf of its holder, the event organizer or an
// admin, then backfills the seat from the waitlist. Holders cannot cancel inside the
// cancellation window unless the event itself was cancelled.
func (service *Service) CancelBooking(ctx context.Context, actorID UserID, bookingID BookingID) (Booking, error) {
	var cancelled Booking
	var eventID EventID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actor, booking, event, err := loadBookingForUpdate(ctx, transactionStore, actorID, bookingID)
		if err != nil {
			return err
		}
		eventID = event.ID
		if !CanCancelBooking(actor, booking, event) {
			return ErrForbidden
		}
		if booking.Status == BookingStatusCancelled {
			return ErrBookingCancelled
		}
		if actor.ID == booking.UserID && !CanManageEvent(actor, event) && !service.cancellationAllowed(event) {
			return ErrCancellationWindowClosed
		}
		cancelled, err = service.cancelAndBackfill(ctx, transactionStore, booking, event)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelBooking,
		ActorID:   actorID,
		EventID:   eventID,
		BookingID: bookingID,
		Points:    cancelled.PointsEarned,
		Error:     operationError,
	})
	return cancelled, operationError
}

// RefundBooking is the organizer-initiated cancellation. The cancellation window does not apply.
func (service *Service) RefundBooking(ctx context.Context, actorID UserID, bookingID BookingID) (Booking, error) {
	var refunded Booking
	var eventID EventID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actor, booking, event, err := loadBookingForUpdate(ctx, transactionStore, actorID, bookingID)
		if err != nil {
			return err
		}
		eventID = event.ID
		if !CanManageEvent(actor, event) {
			return ErrForbidden
		}
		if booking.Status == BookingStatusCancelled {
			return ErrBookingCancelled
		}
		refunded, err = service.cancelAndBackfill(ctx, transactionStore, booking, event)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRefundBooking,
		ActorID:   actorID,
		EventID:   eventID,
		BookingID: bookingID,
		Points:    refunded.PointsEarned,
		Error:     operationError,
	})
	return refunded, operationError
}

// CheckInBooking marks a confirmed booking as attended. Only the event organizer or an admin
// may check attendees in, and a booking can be checked in once.
func (service *Service) CheckInBooking(ctx context.Context, actorID UserID, bookingID BookingID) (Booking, error) {
	return service.checkIn(ctx, actorID, func(ctx context.Context, transactionStore Store) (BookingID, error) {
		return bookingID, nil
	})
}

// CheckInByToken resolves the booking from the opaque token presented at the door.
func (service *Service) CheckInByToken(ctx context.Context, actorID UserID, token string) (Booking, error) {
	normalized := strings.TrimSpace(token)
	if normalized == "" {
		return Booking{}, fmt.Errorf("%w: empty value", ErrInvalidCheckInToken)
	}
	return service.checkIn(ctx, actorID, func(ctx context.Context, transactionStore Store) (BookingID, error) {
		booking, err := transactionStore.FindBookingByCheckInToken(ctx, normalized)
		if err != nil {
			return BookingID{}, err
		}
		return booking.ID, nil
	})
}

func (service *Service) checkIn(ctx context.Context, actorID UserID, resolve func(ctx context.Context, transactionStore Store) (BookingID, error)) (Booking, error) {
	var checkedIn Booking
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		bookingID, err := resolve(ctx, transactionStore)
		if err != nil {
			return err
		}
		actor, booking, event, err := loadBookingForUpdate(ctx, transactionStore, actorID, bookingID)
		if err != nil {
			return err
		}
		if !CanManageEvent(actor, event) {
			return ErrForbidden
		}
		if booking.Status != BookingStatusConfirmed {
			return ErrBookingNotConfirmed
		}
		if booking.IsCheckedIn {
			return ErrAlreadyCheckedIn
		}
		now := service.now()
		booking.IsCheckedIn = true
		booking.CheckedInAt = &now
		booking.UpdatedAt = now
		if err := transactionStore.UpdateBooking(ctx, booking, BookingStatusConfirmed); err != nil {
			return err
		}
		checkedIn = booking
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCheckIn,
		ActorID:   actorID,
		EventID:   checkedIn.EventID,
		BookingID: checkedIn.ID,
		Error:     operationError,
	})
	return checkedIn, operationError
}

// ListEventBookings lists an event's bookings for its organizer or an admin.
func (service *Service) ListEventBookings(ctx context.Context, actorID UserID, eventID EventID, status BookingStatus) ([]Booking, error) {
	actor, err := service.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	event, err := service.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !CanManageEvent(actor, event) {
		return nil, ErrForbidden
	}
	return service.store.ListBookings(ctx, BookingFilter{EventID: eventID, Status: status})
}

// ListUserBookings lists the actor's own bookings.
func (service *Service) ListUserBookings(ctx context.Context, actorID UserID) ([]Booking, error) {
	if _, err := service.store.GetUser(ctx, actorID); err != nil {
		return nil, err
	}
	return service.store.ListBookings(ctx, BookingFilter{UserID: actorID})
}

// cancellationAllowed applies the holder-side window rule.
func (service *Service) cancellationAllowed(event Event) bool {
	if event.Status == EventStatusCancelled {
		return true
	}
	return event.StartsAt.Sub(service.now()) >= service.cancellationWindow
}

// confirmBooking writes a confirmed booking for user, reactivating previous when it is a
// cancelled row, and credits the points earned at the user's current tier.
func (service *Service) confirmBooking(ctx context.Context, store Store, user User, event Event, previous *Booking, eventType DomainEventType) (Booking, error) {
	now := service.now()
	tier := service.tiers.TierFor(user.LoyaltyPoints)
	booking := Booking{
		EventID:   event.ID,
		UserID:    user.ID,
		CreatedAt: now,
	}
	if previous != nil {
		booking = *previous
	}
	booking.Status = BookingStatusConfirmed
	booking.PointsEarned = tier.PointsFor(event.PriceCents)
	booking.PointsState = PointsStateAwarded
	booking.AmountChargedCents = tier.ApplyDiscount(event.PriceCents)
	booking.IsCheckedIn = false
	booking.CheckedInAt = nil
	booking.CancelledAt = nil
	booking.CheckInToken = service.newID()
	booking.UpdatedAt = now

	if previous != nil {
		if err := store.UpdateBooking(ctx, booking, BookingStatusCancelled); err != nil {
			return Booking{}, err
		}
	} else {
		bookingID, err := NewBookingID(service.newID())
		if err != nil {
			return Booking{}, err
		}
		booking.ID = bookingID
		if err := store.InsertBooking(ctx, booking); err != nil {
			return Booking{}, err
		}
	}
	if err := ensureWithinCapacity(ctx, store, event); err != nil {
		return Booking{}, err
	}

	user.LoyaltyPoints = user.LoyaltyPoints.Add(booking.PointsEarned)
	if err := store.UpdateUser(ctx, user); err != nil {
		return Booking{}, err
	}
	if err := store.AppendDomainEvent(ctx, DomainEvent{
		Type:       eventType,
		EventID:    event.ID,
		UserID:     user.ID,
		BookingID:  booking.ID,
		OccurredAt: now,
	}); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// cancelAndBackfill cancels booking, reverses its points and promotes the waitlist head.
func (service *Service) cancelAndBackfill(ctx context.Context, store Store, booking Booking, event Event) (Booking, error) {
	now := service.now()
	if booking.PointsState == PointsStateAwarded {
		holder, err := store.LockUser(ctx, booking.UserID)
		if err != nil {
			return Booking{}, err
		}
		holder.LoyaltyPoints = holder.LoyaltyPoints.Add(-booking.PointsEarned)
		if err := store.UpdateUser(ctx, holder); err != nil {
			return Booking{}, err
		}
		booking.PointsState = PointsStateReversed
	}
	booking.Status = BookingStatusCancelled
	booking.CheckInToken = ""
	booking.CancelledAt = &now
	booking.UpdatedAt = now
	if err := store.UpdateBooking(ctx, booking, BookingStatusConfirmed); err != nil {
		return Booking{}, err
	}
	if err := store.AppendDomainEvent(ctx, DomainEvent{
		Type:       DomainEventBookingCancelled,
		EventID:    event.ID,
		UserID:     booking.UserID,
		BookingID:  booking.ID,
		OccurredAt: now,
	}); err != nil {
		return Booking{}, err
	}
	if _, _, err := service.promoteNext(ctx, store, event); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// loadBookingForUpdate locks the event before the booking so every writer takes locks in the
// same order.
func loadBookingForUpdate(ctx context.Context, store Store, actorID UserID, bookingID BookingID) (User, Booking, Event, error) {
	actor, err := store.GetUser(ctx, actorID)
	if err != nil {
		return User{}, Booking{}, Event{}, err
	}
	unlocked, err := store.GetBooking(ctx, bookingID)
	if err != nil {
		return User{}, Booking{}, Event{}, err
	}
	event, err := store.LockEvent(ctx, unlocked.EventID)
	if err != nil {
		return User{}, Booking{}, Event{}, err
	}
	booking, err := store.LockBooking(ctx, bookingID)
	if err != nil {
		return User{}, Booking{}, Event{}, err
	}
	return actor, booking, event, nil
}

func findLatestBooking(ctx context.Context, store Store, eventID EventID, userID UserID) (Booking, bool, error) {
	booking, err := store.FindLatestBooking(ctx, eventID, userID)
	if errors.Is(err, ErrUnknownBooking) {
		return Booking{}, false, nil
	}
	if err != nil {
		return Booking{}, false, err
	}
	return booking, true, nil
}
