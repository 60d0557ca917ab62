package booking

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// UserID identifies a platform account.
type UserID struct {
	value string
}

// EventID identifies an event.
type EventID struct {
	value string
}

// BookingID identifies a booking row.
type BookingID struct {
	value string
}

// PayoutID identifies a payout request.
type PayoutID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewEventID validates and normalizes an event id.
func NewEventID(raw string) (EventID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EventID{}, fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	return EventID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EventID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id EventID) IsZero() bool {
	return id.value == ""
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id BookingID) IsZero() bool {
	return id.value == ""
}

// NewPayoutID validates and normalizes a payout id.
func NewPayoutID(raw string) (PayoutID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PayoutID{}, fmt.Errorf("%w: empty value", ErrInvalidPayoutID)
	}
	return PayoutID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PayoutID) String() string {
	return id.value
}

// AmountCents is an integer currency in cents.
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// NewPositiveAmountCents validates an amount and ensures it is strictly positive.
func NewPositiveAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// Int64 exposes the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Points is a loyalty point quantity.
type Points int64

// Int64 exposes the raw value.
func (points Points) Int64() int64 {
	return int64(points)
}

// Add applies delta, floors the result at zero and saturates at math.MaxInt64.
func (points Points) Add(delta Points) Points {
	sum := points + delta
	if delta > 0 && sum < points {
		return math.MaxInt64
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// Role is the closed set of platform roles.
type Role string

const (
	RoleAttendee   Role = "attendee"
	RoleOrganizer  Role = "organizer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ParseRole normalizes a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAttendee:
		return RoleAttendee, nil
	case RoleOrganizer:
		return RoleOrganizer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperAdmin:
		return RoleSuperAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// String returns the stored representation.
func (role Role) String() string {
	return string(role)
}

// IsAdmin reports whether the role passes admin gates.
func (role Role) IsAdmin() bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// CanOrganize reports whether the role may create events and request payouts.
func (role Role) CanOrganize() bool {
	return role == RoleOrganizer || role.IsAdmin()
}

// EventStatus defines the event lifecycle.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusPostponed EventStatus = "postponed"
)

// ParseEventStatus validates a stored event status.
func ParseEventStatus(raw string) (EventStatus, error) {
	switch EventStatus(strings.TrimSpace(raw)) {
	case EventStatusDraft:
		return EventStatusDraft, nil
	case EventStatusPublished:
		return EventStatusPublished, nil
	case EventStatusCancelled:
		return EventStatusCancelled, nil
	case EventStatusPostponed:
		return EventStatusPostponed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventStatus, raw)
	}
}

// String returns the stored representation.
func (status EventStatus) String() string {
	return string(status)
}

// BookingStatus defines the booking lifecycle. Admission is synchronous, so no pending state exists.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ParseBookingStatus validates a stored booking status.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case BookingStatusConfirmed:
		return BookingStatusConfirmed, nil
	case BookingStatusCancelled:
		return BookingStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
	}
}

// String returns the stored representation.
func (status BookingStatus) String() string {
	return string(status)
}

// PointsState records whether the points of a booking are credited to the holder.
type PointsState string

const (
	PointsStateAwarded  PointsState = "awarded"
	PointsStateReversed PointsState = "reversed"
)

// String returns the stored representation.
func (state PointsState) String() string {
	return string(state)
}

// PayoutStatus defines the payout request lifecycle.
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusRejected PayoutStatus = "rejected"
)

// ParsePayoutStatus normalizes a payout status string.
func ParsePayoutStatus(raw string) (PayoutStatus, error) {
	switch PayoutStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case PayoutStatusPending:
		return PayoutStatusPending, nil
	case PayoutStatusApproved:
		return PayoutStatusApproved, nil
	case PayoutStatusRejected:
		return PayoutStatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPayoutStatus, raw)
	}
}

// String returns the stored representation.
func (status PayoutStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is allowed.
func (status PayoutStatus) IsTerminal() bool {
	return status == PayoutStatusApproved || status == PayoutStatusRejected
}

// User is an account with its embedded loyalty balance.
type User struct {
	ID            UserID
	DisplayName   string
	Role          Role
	IsSuspended   bool
	LoyaltyPoints Points
}

// Event is a bookable occurrence owned by one organizer.
type Event struct {
	ID          EventID
	OrganizerID UserID
	Title       string
	Capacity    int
	PriceCents  AmountCents
	Status      EventStatus
	IsSuspended bool
	StartsAt    time.Time
	CreatedAt   time.Time
}

// Booking is a seat reservation of one user for one event.
type Booking struct {
	ID                 BookingID
	EventID            EventID
	UserID             UserID
	Status             BookingStatus
	PointsEarned       Points
	PointsState        PointsState
	AmountChargedCents AmountCents
	IsCheckedIn        bool
	CheckedInAt        *time.Time
	CheckInToken       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CancelledAt        *time.Time
}

// WaitlistEntry is an active place in an event's waitlist. Sequence is assigned by the store
// and breaks ties between entries that joined at the same instant.
type WaitlistEntry struct {
	EventID  EventID
	UserID   UserID
	JoinedAt time.Time
	Sequence int64
}

// PayoutRequest is an organizer's request to withdraw earnings.
type PayoutRequest struct {
	ID          PayoutID
	OrganizerID UserID
	AmountCents AmountCents
	BankDetails string
	Status      PayoutStatus
	AdminNotes  *string
	RequestedAt time.Time
	ProcessedAt *time.Time
}

// BookingFilter narrows booking listings. Zero fields are ignored.
type BookingFilter struct {
	EventID EventID
	UserID  UserID
	Status  BookingStatus
}

// PayoutFilter narrows payout listings. Zero fields are ignored.
type PayoutFilter struct {
	OrganizerID UserID
	Status      PayoutStatus
}
