package booking

import "context"

// Store is the persistence contract used by Service. Every invariant that must hold across
// server instances (one confirmed booking per user and event, one waitlist entry per user and
// event, one pending payout per organizer) is enforced by the store as a unique constraint, and
// the Lock* methods take row locks that serialize writers for the remainder of the transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID UserID) (User, error)
	LockUser(ctx context.Context, userID UserID) (User, error)
	UpdateUser(ctx context.Context, user User) error

	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID EventID) (Event, error)
	LockEvent(ctx context.Context, eventID EventID) (Event, error)
	UpdateEvent(ctx context.Context, event Event) error

	CountConfirmedBookings(ctx context.Context, eventID EventID) (int, error)
	GetBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	LockBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	FindBookingByCheckInToken(ctx context.Context, token string) (Booking, error)
	// FindLatestBooking returns the most recent booking row of userID for eventID.
	FindLatestBooking(ctx context.Context, eventID EventID, userID UserID) (Booking, error)
	// InsertBooking returns ErrAlreadyBooked when a confirmed row already exists for the pair.
	InsertBooking(ctx context.Context, booking Booking) error
	// UpdateBooking writes booking only if the stored status still equals expected.
	UpdateBooking(ctx context.Context, booking Booking, expected BookingStatus) error
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)

	// InsertWaitlistEntry returns the stored entry with its sequence, or ErrAlreadyWaitlisted.
	InsertWaitlistEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error)
	GetWaitlistEntry(ctx context.Context, eventID EventID, userID UserID) (WaitlistEntry, error)
	// WaitlistRank counts entries of the same event ordered at or before entry.
	WaitlistRank(ctx context.Context, entry WaitlistEntry) (int, error)
	// WaitlistHead returns the earliest entry, or ErrNotWaitlisted when the queue is empty.
	WaitlistHead(ctx context.Context, eventID EventID) (WaitlistEntry, error)
	DeleteWaitlistEntry(ctx context.Context, eventID EventID, userID UserID) error
	CountWaitlist(ctx context.Context, eventID EventID) (int, error)

	// InsertPayout returns ErrPendingPayoutExists when the organizer already has a pending row.
	InsertPayout(ctx context.Context, payout PayoutRequest) error
	HasPendingPayout(ctx context.Context, organizerID UserID) (bool, error)
	LockPayout(ctx context.Context, payoutID PayoutID) (PayoutRequest, error)
	UpdatePayout(ctx context.Context, payout PayoutRequest, expected PayoutStatus) error
	ListPayouts(ctx context.Context, filter PayoutFilter) ([]PayoutRequest, error)

	// AppendDomainEvent records event in the outbox within the current transaction.
	AppendDomainEvent(ctx context.Context, event DomainEvent) error
}
