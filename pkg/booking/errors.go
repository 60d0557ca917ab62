package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownEvent        = errors.New("unknown event")
	ErrUnknownBooking      = errors.New("unknown booking")
	ErrUnknownCheckInToken = errors.New("unknown check-in token")
	ErrUnknownPayout       = errors.New("unknown payout request")
	ErrNotWaitlisted       = errors.New("no active waitlist entry")

	ErrForbidden = errors.New("forbidden")

	ErrEventNotBookable         = errors.New("event cannot be booked")
	ErrEventFull                = errors.New("event is full")
	ErrEventNotFull             = errors.New("event still has free seats")
	ErrUserSuspended            = errors.New("user is suspended")
	ErrBookingCancelled         = errors.New("booking already cancelled")
	ErrBookingNotConfirmed      = errors.New("booking is not confirmed")
	ErrAlreadyCheckedIn         = errors.New("booking already checked in")
	ErrCancellationWindowClosed = errors.New("cancellation window closed")
	ErrInvalidEventTransition   = errors.New("invalid event status transition")
	ErrInsufficientPoints       = errors.New("insufficient loyalty points")

	ErrAlreadyBooked       = errors.New("user already holds a confirmed booking for this event")
	ErrAlreadyWaitlisted   = errors.New("user already on waitlist")
	ErrPendingPayoutExists = errors.New("organizer already has a pending payout request")
	ErrPayoutProcessed     = errors.New("payout request already processed")
	ErrUserExists          = errors.New("user already exists")
	ErrConcurrentUpdate    = errors.New("record changed concurrently")

	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidEventID       = errors.New("invalid event id")
	ErrInvalidBookingID     = errors.New("invalid booking id")
	ErrInvalidPayoutID      = errors.New("invalid payout id")
	ErrInvalidAmountCents   = errors.New("invalid amount cents")
	ErrInvalidCapacity      = errors.New("invalid capacity")
	ErrInvalidTitle         = errors.New("invalid title")
	ErrInvalidStartTime     = errors.New("invalid start time")
	ErrInvalidBankDetails   = errors.New("invalid bank details")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidEventStatus   = errors.New("invalid event status")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrInvalidPayoutStatus  = errors.New("invalid payout status")
	ErrInvalidPayoutTarget  = errors.New("invalid payout target status")
	ErrInvalidAdminNotes    = errors.New("invalid admin notes")
	ErrInvalidPoints        = errors.New("invalid points")
	ErrInvalidAnnouncement  = errors.New("invalid announcement")
	ErrInvalidCheckInToken  = errors.New("invalid check-in token")
	ErrInvalidTierTable     = errors.New("invalid tier table")
	ErrSelfModeration       = errors.New("cannot moderate own account")

	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Kind classifies an error into the stable outcome families callers branch on.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindInternal     Kind = "internal"
)

type errorClass struct {
	err  error
	kind Kind
	code string
}

var errorClasses = []errorClass{
	{ErrUnknownUser, KindNotFound, "unknown_user"},
	{ErrUnknownEvent, KindNotFound, "unknown_event"},
	{ErrUnknownBooking, KindNotFound, "unknown_booking"},
	{ErrUnknownCheckInToken, KindNotFound, "unknown_check_in_token"},
	{ErrUnknownPayout, KindNotFound, "unknown_payout"},
	{ErrNotWaitlisted, KindNotFound, "not_waitlisted"},

	{ErrForbidden, KindForbidden, "forbidden"},

	{ErrEventNotBookable, KindInvalidState, "event_not_bookable"},
	{ErrEventFull, KindInvalidState, "event_full"},
	{ErrEventNotFull, KindInvalidState, "event_not_full"},
	{ErrUserSuspended, KindInvalidState, "user_suspended"},
	{ErrBookingCancelled, KindInvalidState, "booking_cancelled"},
	{ErrBookingNotConfirmed, KindInvalidState, "booking_not_confirmed"},
	{ErrAlreadyCheckedIn, KindInvalidState, "already_checked_in"},
	{ErrCancellationWindowClosed, KindInvalidState, "cancellation_window_closed"},
	{ErrInvalidEventTransition, KindInvalidState, "invalid_event_transition"},
	{ErrInsufficientPoints, KindInvalidState, "insufficient_points"},

	{ErrAlreadyBooked, KindConflict, "already_booked"},
	{ErrAlreadyWaitlisted, KindConflict, "already_waitlisted"},
	{ErrPendingPayoutExists, KindConflict, "pending_payout_exists"},
	{ErrPayoutProcessed, KindConflict, "payout_processed"},
	{ErrUserExists, KindConflict, "user_exists"},
	{ErrConcurrentUpdate, KindConflict, "concurrent_update"},

	{ErrInvalidUserID, KindValidation, "invalid_user_id"},
	{ErrInvalidEventID, KindValidation, "invalid_event_id"},
	{ErrInvalidBookingID, KindValidation, "invalid_booking_id"},
	{ErrInvalidPayoutID, KindValidation, "invalid_payout_id"},
	{ErrInvalidAmountCents, KindValidation, "invalid_amount_cents"},
	{ErrInvalidCapacity, KindValidation, "invalid_capacity"},
	{ErrInvalidTitle, KindValidation, "invalid_title"},
	{ErrInvalidStartTime, KindValidation, "invalid_start_time"},
	{ErrInvalidBankDetails, KindValidation, "invalid_bank_details"},
	{ErrInvalidRole, KindValidation, "invalid_role"},
	{ErrInvalidEventStatus, KindValidation, "invalid_event_status"},
	{ErrInvalidBookingStatus, KindValidation, "invalid_booking_status"},
	{ErrInvalidPayoutStatus, KindValidation, "invalid_payout_status"},
	{ErrInvalidPayoutTarget, KindValidation, "invalid_payout_target"},
	{ErrInvalidAdminNotes, KindValidation, "invalid_admin_notes"},
	{ErrInvalidPoints, KindValidation, "invalid_points"},
	{ErrInvalidAnnouncement, KindValidation, "invalid_announcement"},
	{ErrInvalidCheckInToken, KindValidation, "invalid_check_in_token"},
	{ErrSelfModeration, KindValidation, "self_moderation"},
}

// KindOf reports the outcome family of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	class, ok := classify(err)
	if !ok {
		return KindInternal
	}
	return class.kind
}

// CodeOf returns the stable machine-readable code of err, or "internal".
func CodeOf(err error) string {
	class, ok := classify(err)
	if !ok {
		return string(KindInternal)
	}
	return class.code
}

func classify(err error) (errorClass, bool) {
	if err == nil {
		return errorClass{}, false
	}
	for _, class := range errorClasses {
		if errors.Is(err, class.err) {
			return class, true
		}
	}
	return errorClass{}, false
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
