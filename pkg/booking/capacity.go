package booking

import (
	"context"
	"fmt"
)

// CanConfirm is the admission predicate: the event is published, not suspended, and has a
// free seat given confirmedCount.
func CanConfirm(event Event, confirmedCount int) bool {
	return AdmitBooking(event, confirmedCount) == nil
}

// AdmitBooking explains why a booking attempt cannot be confirmed, or returns nil.
// ErrEventFull signals the caller to try the waitlist instead.
func AdmitBooking(event Event, confirmedCount int) error {
	if !isOpenForBooking(event) {
		return ErrEventNotBookable
	}
	if confirmedCount >= event.Capacity {
		return ErrEventFull
	}
	return nil
}

func isOpenForBooking(event Event) bool {
	return event.Status == EventStatusPublished && !event.IsSuspended
}

// ensureWithinCapacity re-reads the confirmed count after a write in the same transaction so
// that the transaction aborts rather than commit an overbooking.
func ensureWithinCapacity(ctx context.Context, store Store, event Event) error {
	confirmed, err := store.CountConfirmedBookings(ctx, event.ID)
	if err != nil {
		return err
	}
	if confirmed > event.Capacity {
		return fmt.Errorf("%w: %d confirmed for %d seats", ErrEventFull, confirmed, event.Capacity)
	}
	return nil
}
