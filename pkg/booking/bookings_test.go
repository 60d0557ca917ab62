package booking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateBookingRoundTripRestoresBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	event := seedEvent(test, store, "concert", organizer, eventSeed{capacity: 10, priceCents: 10_000})

	result, err := service.CreateBooking(context.Background(), attendee.ID, event.ID)
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if result.Reactivated {
		test.Fatalf("expected a fresh booking")
	}
	booking := result.Booking
	if booking.Status != BookingStatusConfirmed || booking.PointsEarned != 1000 || booking.AmountChargedCents != 10_000 {
		test.Fatalf("unexpected booking: %+v", booking)
	}
	if booking.PointsState != PointsStateAwarded || booking.CheckInToken == "" {
		test.Fatalf("expected awarded points and a check-in token, got %+v", booking)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 1000 {
		test.Fatalf("expected balance 1000, got %d", balance)
	}

	cancelled, err := service.CancelBooking(context.Background(), attendee.ID, booking.ID)
	if err != nil {
		test.Fatalf("cancel booking: %v", err)
	}
	if cancelled.Status != BookingStatusCancelled || cancelled.PointsState != PointsStateReversed || cancelled.CheckInToken != "" {
		test.Fatalf("unexpected cancelled booking: %+v", cancelled)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 0 {
		test.Fatalf("expected balance restored to 0, got %d", balance)
	}
	expectedTypes := []DomainEventType{DomainEventBookingConfirmed, DomainEventBookingCancelled}
	if got := store.outboxTypes(); len(got) != 2 || got[0] != expectedTypes[0] || got[1] != expectedTypes[1] {
		test.Fatalf("unexpected outbox %v", got)
	}
}

func TestCreateBookingAppliesTierDiscount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "bronze", RoleAttendee, 1000)
	event := seedEvent(test, store, "gala", organizer, eventSeed{capacity: 5, priceCents: 10_000})

	booking := mustBook(test, service, attendee.ID, event.ID)
	if booking.PointsEarned != 950 {
		test.Fatalf("expected 950 points at Bronze, got %d", booking.PointsEarned)
	}
	if booking.AmountChargedCents != 9_500 {
		test.Fatalf("expected 9500 cents charged, got %d", booking.AmountChargedCents)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 1950 {
		test.Fatalf("expected balance 1950, got %d", balance)
	}
}

func TestCreateBookingRejections(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name         string
		seed         eventSeed
		suspended    bool
		unknownEvent bool
		expected     error
		kind         Kind
	}{
		{name: "draft", seed: eventSeed{capacity: 2, status: EventStatusDraft}, expected: ErrEventNotBookable, kind: KindInvalidState},
		{name: "cancelled", seed: eventSeed{capacity: 2, status: EventStatusCancelled}, expected: ErrEventNotBookable, kind: KindInvalidState},
		{name: "postponed", seed: eventSeed{capacity: 2, status: EventStatusPostponed}, expected: ErrEventNotBookable, kind: KindInvalidState},
		{name: "suspended event", seed: eventSeed{capacity: 2, suspended: true}, expected: ErrEventNotBookable, kind: KindInvalidState},
		{name: "suspended user", seed: eventSeed{capacity: 2}, suspended: true, expected: ErrUserSuspended, kind: KindInvalidState},
		{name: "unknown event", seed: eventSeed{capacity: 2}, unknownEvent: true, expected: ErrUnknownEvent, kind: KindNotFound},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			service := mustNewService(test, store)
			organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
			attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
			if testCase.suspended {
				attendee.IsSuspended = true
				store.users[attendee.ID] = attendee
			}
			event := seedEvent(test, store, "event", organizer, testCase.seed)
			eventID := event.ID
			if testCase.unknownEvent {
				eventID, _ = NewEventID("missing")
			}

			_, err := service.CreateBooking(context.Background(), attendee.ID, eventID)
			if !errors.Is(err, testCase.expected) {
				test.Fatalf("expected %v, got %v", testCase.expected, err)
			}
			if KindOf(err) != testCase.kind {
				test.Fatalf("expected kind %s, got %s", testCase.kind, KindOf(err))
			}
			if len(store.bookings) != 0 || len(store.outbox) != 0 {
				test.Fatalf("expected no side effects")
			}
		})
	}
}

func TestCreateBookingRejectsFullEvent(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	first := seedUser(test, store, "first", RoleAttendee, 0)
	second := seedUser(test, store, "second", RoleAttendee, 0)
	event := seedEvent(test, store, "tiny", organizer, eventSeed{capacity: 1, priceCents: 500})

	mustBook(test, service, first.ID, event.ID)
	_, err := service.CreateBooking(context.Background(), second.ID, event.ID)
	if !errors.Is(err, ErrEventFull) {
		test.Fatalf("expected ErrEventFull, got %v", err)
	}
	if count := store.confirmedCount(event.ID); count != 1 {
		test.Fatalf("expected 1 confirmed booking, got %d", count)
	}
}

func TestCreateBookingRejectsDuplicateConfirmed(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	event := seedEvent(test, store, "event", organizer, eventSeed{capacity: 3, priceCents: 100})

	mustBook(test, service, attendee.ID, event.ID)
	_, err := service.CreateBooking(context.Background(), attendee.ID, event.ID)
	if !errors.Is(err, ErrAlreadyBooked) || KindOf(err) != KindConflict {
		test.Fatalf("expected ErrAlreadyBooked conflict, got %v", err)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 10 {
		test.Fatalf("expected one award of 10 points, got %d", balance)
	}
}

func TestCreateBookingReactivatesCancelledRow(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	event := seedEvent(test, store, "event", organizer, eventSeed{capacity: 3, priceCents: 2_000})

	original := mustBook(test, service, attendee.ID, event.ID)
	if _, err := service.CancelBooking(context.Background(), attendee.ID, original.ID); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	result, err := service.CreateBooking(context.Background(), attendee.ID, event.ID)
	if err != nil {
		test.Fatalf("rebook: %v", err)
	}
	if !result.Reactivated || result.Booking.ID != original.ID {
		test.Fatalf("expected reactivation of %s, got %+v", original.ID, result)
	}
	if result.Booking.CheckInToken == original.CheckInToken || result.Booking.CancelledAt != nil {
		test.Fatalf("expected a fresh token and cleared cancellation, got %+v", result.Booking)
	}
	if len(store.bookings) != 1 {
		test.Fatalf("expected the row to be reused, got %d rows", len(store.bookings))
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 200 {
		test.Fatalf("expected balance 200, got %d", balance)
	}
}

func TestCancelBookingAlreadyCancelledHasNoSideEffects(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 500)
	event := seedEvent(test, store, "event", organizer, eventSeed{capacity: 3, priceCents: 10_000})

	booking := mustBook(test, service, attendee.ID, event.ID)
	if _, err := service.CancelBooking(context.Background(), attendee.ID, booking.ID); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	balanceBefore := store.mustUser(test, attendee.ID).LoyaltyPoints
	outboxBefore := len(store.outbox)

	_, err := service.CancelBooking(context.Background(), attendee.ID, booking.ID)
	if !errors.Is(err, ErrBookingCancelled) || KindOf(err) != KindInvalidState {
		test.Fatalf("expected ErrBookingCancelled, got %v", err)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != balanceBefore {
		test.Fatalf("expected balance %d, got %d", balanceBefore, balance)
	}
	if len(store.outbox) != outboxBefore || store.confirmedCount(event.ID) != 0 {
		test.Fatalf("expected no side effects on second cancel")
	}
}

func TestCancelBookingFloorsBalanceAtZero(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	admin := seedUser(test, store, "admin", RoleAdmin, 0)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	event := seedEvent(test, store, "event", organizer, eventSeed{capacity: 3, priceCents: 10_000})

	booking := mustBook(test, service, attendee.ID, event.ID)
	if _, err := service.AdjustPoints(context.Background(), admin.ID, attendee.ID, -600); err != nil {
		test.Fatalf("adjust: %v", err)
	}
	if _, err := service.CancelBooking(context.Background(), attendee.ID, booking.ID); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 0 {
		test.Fatalf("expected balance floored at 0, got %d", balance)
	}
}

func TestCancelBookingSkipsDeductionForReversedPoints(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 700)
	event := seedEvent(test, store, "event", organizer, eventSeed{capacity: 3, priceCents: 10_000})
	bookingID, _ := NewBookingID("legacy")
	store.bookings[bookingID] = Booking{
		ID:           bookingID,
		EventID:      event.ID,
		UserID:       attendee.ID,
		Status:       BookingStatusConfirmed,
		PointsEarned: 1000,
		PointsState:  PointsStateReversed,
	}
	store.bookingOrder = append(store.bookingOrder, bookingID)

	if _, err := service.CancelBooking(context.Background(), attendee.ID, bookingID); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 700 {
		test.Fatalf("expected untouched balance 700, got %d", balance)
	}
}

func TestCancelBookingWindowWaivedAfterEventCancelled(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	event := seedEvent(test, store, "soon", organizer, eventSeed{capacity: 3, priceCents: 1_000, startsIn: 3 * 24 * time.Hour})

	booking := mustBook(test, service, attendee.ID, event.ID)
	_, err := service.CancelBooking(context.Background(), attendee.ID, booking.ID)
	if !errors.Is(err, ErrCancellationWindowClosed) || KindOf(err) != KindInvalidState {
		test.Fatalf("expected ErrCancellationWindowClosed, got %v", err)
	}
	if store.mustBooking(test, booking.ID).Status != BookingStatusConfirmed {
		test.Fatalf("expected booking to stay confirmed")
	}

	if _, err := service.CancelEvent(context.Background(), organizer.ID, event.ID); err != nil {
		test.Fatalf("cancel event: %v", err)
	}
	if _, err := service.CancelBooking(context.Background(), attendee.ID, booking.ID); err != nil {
		test.Fatalf("expected cancellation after event cancel, got %v", err)
	}
}

func TestCancelBookingPermissions(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	stranger := seedUser(test, store, "stranger", RoleOrganizer, 0)
	event := seedEvent(test, store, "soon", organizer, eventSeed{capacity: 3, priceCents: 1_000, startsIn: 24 * time.Hour})

	booking := mustBook(test, service, attendee.ID, event.ID)
	if _, err := service.CancelBooking(context.Background(), stranger.ID, booking.ID); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	missingID, _ := NewBookingID("missing")
	if _, err := service.CancelBooking(context.Background(), attendee.ID, missingID); !errors.Is(err, ErrUnknownBooking) {
		test.Fatalf("expected ErrUnknownBooking, got %v", err)
	}
	if _, err := service.CancelBooking(context.Background(), organizer.ID, booking.ID); err != nil {
		test.Fatalf("expected organizer cancellation inside the window, got %v", err)
	}
}

func TestRefundBooking(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	event := seedEvent(test, store, "soon", organizer, eventSeed{capacity: 3, priceCents: 3_000, startsIn: time.Hour})

	booking := mustBook(test, service, attendee.ID, event.ID)
	if _, err := service.RefundBooking(context.Background(), attendee.ID, booking.ID); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden for attendee refund, got %v", err)
	}
	refunded, err := service.RefundBooking(context.Background(), organizer.ID, booking.ID)
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if refunded.Status != BookingStatusCancelled {
		test.Fatalf("expected cancelled booking, got %s", refunded.Status)
	}
	if balance := store.mustUser(test, attendee.ID).LoyaltyPoints; balance != 0 {
		test.Fatalf("expected points reversed, got %d", balance)
	}
	if _, err := service.RefundBooking(context.Background(), organizer.ID, booking.ID); !errors.Is(err, ErrBookingCancelled) {
		test.Fatalf("expected ErrBookingCancelled, got %v", err)
	}
}

func TestCheckIn(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	other := seedUser(test, store, "other", RoleAttendee, 0)
	event := seedEvent(test, store, "event", organizer, eventSeed{capacity: 3, priceCents: 1_000})

	booking := mustBook(test, service, attendee.ID, event.ID)
	if _, err := service.CheckInByToken(context.Background(), attendee.ID, booking.CheckInToken); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden for holder, got %v", err)
	}
	checkedIn, err := service.CheckInByToken(context.Background(), organizer.ID, " "+booking.CheckInToken+" ")
	if err != nil {
		test.Fatalf("check in: %v", err)
	}
	if !checkedIn.IsCheckedIn || checkedIn.CheckedInAt == nil || !checkedIn.CheckedInAt.Equal(testNow) {
		test.Fatalf("unexpected checked-in booking: %+v", checkedIn)
	}
	if _, err := service.CheckInBooking(context.Background(), organizer.ID, booking.ID); !errors.Is(err, ErrAlreadyCheckedIn) {
		test.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	if _, err := service.CheckInByToken(context.Background(), organizer.ID, "  "); !errors.Is(err, ErrInvalidCheckInToken) {
		test.Fatalf("expected ErrInvalidCheckInToken, got %v", err)
	}
	if _, err := service.CheckInByToken(context.Background(), organizer.ID, "unknown"); !errors.Is(err, ErrUnknownCheckInToken) {
		test.Fatalf("expected ErrUnknownCheckInToken, got %v", err)
	}

	otherBooking := mustBook(test, service, other.ID, event.ID)
	if _, err := service.CancelBooking(context.Background(), other.ID, otherBooking.ID); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if _, err := service.CheckInBooking(context.Background(), organizer.ID, otherBooking.ID); !errors.Is(err, ErrBookingNotConfirmed) {
		test.Fatalf("expected ErrBookingNotConfirmed, got %v", err)
	}
	if _, err := service.CheckInByToken(context.Background(), organizer.ID, otherBooking.CheckInToken); !errors.Is(err, ErrUnknownCheckInToken) {
		test.Fatalf("expected cleared token to be unknown, got %v", err)
	}
}

func TestListBookings(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	organizer := seedUser(test, store, "organizer", RoleOrganizer, 0)
	attendee := seedUser(test, store, "attendee", RoleAttendee, 0)
	first := seedEvent(test, store, "first", organizer, eventSeed{capacity: 3, priceCents: 100})
	second := seedEvent(test, store, "second", organizer, eventSeed{capacity: 3, priceCents: 100})
	mustBook(test, service, attendee.ID, first.ID)
	mustBook(test, service, attendee.ID, second.ID)

	mine, err := service.ListUserBookings(context.Background(), attendee.ID)
	if err != nil || len(mine) != 2 {
		test.Fatalf("expected 2 bookings, got %d (%v)", len(mine), err)
	}
	if _, err := service.ListEventBookings(context.Background(), attendee.ID, first.ID, ""); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
	forEvent, err := service.ListEventBookings(context.Background(), organizer.ID, first.ID, BookingStatusConfirmed)
	if err != nil || len(forEvent) != 1 {
		test.Fatalf("expected 1 event booking, got %d (%v)", len(forEvent), err)
	}
}

func TestCanConfirm(test *testing.T) {
	test.Parallel()
	published := Event{Capacity: 2, Status: EventStatusPublished}
	testCases := []struct {
		name      string
		event     Event
		confirmed int
		expected  bool
	}{
		{name: "free seat", event: published, confirmed: 1, expected: true},
		{name: "full", event: published, confirmed: 2, expected: false},
		{name: "draft", event: Event{Capacity: 2, Status: EventStatusDraft}, confirmed: 0, expected: false},
		{name: "suspended", event: Event{Capacity: 2, Status: EventStatusPublished, IsSuspended: true}, confirmed: 0, expected: false},
	}
	for _, testCase := range testCases {
		if got := CanConfirm(testCase.event, testCase.confirmed); got != testCase.expected {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, got)
		}
	}
}
