package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
)

func mapUser(record UserRecord) (booking.User, error) {
	userID, err := booking.NewUserID(record.UserID)
	if err != nil {
		return booking.User{}, err
	}
	role, err := booking.ParseRole(record.Role)
	if err != nil {
		return booking.User{}, err
	}
	return booking.User{
		ID:            userID,
		DisplayName:   record.DisplayName,
		Role:          role,
		IsSuspended:   record.IsSuspended,
		LoyaltyPoints: booking.Points(record.LoyaltyPoints),
	}, nil
}

func mapEvent(record EventRecord) (booking.Event, error) {
	eventID, err := booking.NewEventID(record.EventID)
	if err != nil {
		return booking.Event{}, err
	}
	organizerID, err := booking.NewUserID(record.OrganizerID)
	if err != nil {
		return booking.Event{}, err
	}
	status, err := booking.ParseEventStatus(record.Status)
	if err != nil {
		return booking.Event{}, err
	}
	price, err := booking.NewAmountCents(record.PriceCents)
	if err != nil {
		return booking.Event{}, err
	}
	return booking.Event{
		ID:          eventID,
		OrganizerID: organizerID,
		Title:       record.Title,
		Capacity:    record.Capacity,
		PriceCents:  price,
		Status:      status,
		IsSuspended: record.IsSuspended,
		StartsAt:    record.StartsAt.UTC(),
		CreatedAt:   record.CreatedAt.UTC(),
	}, nil
}

func mapBooking(record BookingRecord) (booking.Booking, error) {
	bookingID, err := booking.NewBookingID(record.BookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	eventID, err := booking.NewEventID(record.EventID)
	if err != nil {
		return booking.Booking{}, err
	}
	userID, err := booking.NewUserID(record.UserID)
	if err != nil {
		return booking.Booking{}, err
	}
	status, err := booking.ParseBookingStatus(record.Status)
	if err != nil {
		return booking.Booking{}, err
	}
	charged, err := booking.NewAmountCents(record.AmountChargedCents)
	if err != nil {
		return booking.Booking{}, err
	}
	// Rows written before points were tracked carry no state and count as settled.
	pointsState := booking.PointsStateAwarded
	if record.PointsState == booking.PointsStateReversed.String() {
		pointsState = booking.PointsStateReversed
	}
	token := ""
	if record.CheckInToken != nil {
		token = *record.CheckInToken
	}
	return booking.Booking{
		ID:                 bookingID,
		EventID:            eventID,
		UserID:             userID,
		Status:             status,
		PointsEarned:       booking.Points(record.PointsEarned),
		PointsState:        pointsState,
		AmountChargedCents: charged,
		IsCheckedIn:        record.IsCheckedIn,
		CheckedInAt:        utcOrNil(record.CheckedInAt),
		CheckInToken:       token,
		CreatedAt:          record.CreatedAt.UTC(),
		UpdatedAt:          record.UpdatedAt.UTC(),
		CancelledAt:        utcOrNil(record.CancelledAt),
	}, nil
}

func bookingRecordFrom(value booking.Booking) BookingRecord {
	var token *string
	if value.CheckInToken != "" {
		stored := value.CheckInToken
		token = &stored
	}
	return BookingRecord{
		BookingID:          value.ID.String(),
		EventID:            value.EventID.String(),
		UserID:             value.UserID.String(),
		Status:             value.Status.String(),
		PointsEarned:       value.PointsEarned.Int64(),
		PointsState:        value.PointsState.String(),
		AmountChargedCents: value.AmountChargedCents.Int64(),
		IsCheckedIn:        value.IsCheckedIn,
		CheckedInAt:        utcOrNil(value.CheckedInAt),
		CheckInToken:       token,
		CreatedAt:          value.CreatedAt.UTC(),
		UpdatedAt:          value.UpdatedAt.UTC(),
		CancelledAt:        utcOrNil(value.CancelledAt),
	}
}

func mapWaitlistEntry(record WaitlistRecord) (booking.WaitlistEntry, error) {
	eventID, err := booking.NewEventID(record.EventID)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	userID, err := booking.NewUserID(record.UserID)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	return booking.WaitlistEntry{
		EventID:  eventID,
		UserID:   userID,
		JoinedAt: time.Unix(0, record.JoinedAtUnixNano).UTC(),
		Sequence: record.Sequence,
	}, nil
}

func mapPayout(record PayoutRecord) (booking.PayoutRequest, error) {
	payoutID, err := booking.NewPayoutID(record.PayoutID)
	if err != nil {
		return booking.PayoutRequest{}, err
	}
	organizerID, err := booking.NewUserID(record.OrganizerID)
	if err != nil {
		return booking.PayoutRequest{}, err
	}
	amount, err := booking.NewPositiveAmountCents(record.AmountCents)
	if err != nil {
		return booking.PayoutRequest{}, err
	}
	status, err := booking.ParsePayoutStatus(record.Status)
	if err != nil {
		return booking.PayoutRequest{}, err
	}
	return booking.PayoutRequest{
		ID:          payoutID,
		OrganizerID: organizerID,
		AmountCents: amount,
		BankDetails: record.BankDetails,
		Status:      status,
		AdminNotes:  record.AdminNotes,
		RequestedAt: record.RequestedAt.UTC(),
		ProcessedAt: utcOrNil(record.ProcessedAt),
	}, nil
}
