package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type waitlistKey struct {
	eventID EventID
	userID  UserID
}

// stubStore is an in-memory Store. WithTx serializes transactions and restores the previous
// state when the closure fails.
type stubStore struct {
	test *testing.T

	transactionMutex sync.Mutex

	users            map[UserID]User
	events           map[EventID]Event
	bookings         map[BookingID]Booking
	bookingOrder     []BookingID
	waitlist         map[waitlistKey]WaitlistEntry
	waitlistSequence int64
	payouts          map[PayoutID]PayoutRequest
	payoutOrder      []PayoutID
	outbox           []DomainEvent

	failWith error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		test:     test,
		users:    make(map[UserID]User),
		events:   make(map[EventID]Event),
		bookings: make(map[BookingID]Booking),
		waitlist: make(map[waitlistKey]WaitlistEntry),
		payouts:  make(map[PayoutID]PayoutRequest),
	}
}

type stubSnapshot struct {
	users            map[UserID]User
	events           map[EventID]Event
	bookings         map[BookingID]Booking
	bookingOrder     []BookingID
	waitlist         map[waitlistKey]WaitlistEntry
	waitlistSequence int64
	payouts          map[PayoutID]PayoutRequest
	payoutOrder      []PayoutID
	outbox           []DomainEvent
}

func (store *stubStore) snapshot() stubSnapshot {
	snapshot := stubSnapshot{
		users:            make(map[UserID]User, len(store.users)),
		events:           make(map[EventID]Event, len(store.events)),
		bookings:         make(map[BookingID]Booking, len(store.bookings)),
		bookingOrder:     append([]BookingID(nil), store.bookingOrder...),
		waitlist:         make(map[waitlistKey]WaitlistEntry, len(store.waitlist)),
		waitlistSequence: store.waitlistSequence,
		payouts:          make(map[PayoutID]PayoutRequest, len(store.payouts)),
		payoutOrder:      append([]PayoutID(nil), store.payoutOrder...),
		outbox:           append([]DomainEvent(nil), store.outbox...),
	}
	for key, value := range store.users {
		snapshot.users[key] = value
	}
	for key, value := range store.events {
		snapshot.events[key] = value
	}
	for key, value := range store.bookings {
		snapshot.bookings[key] = value
	}
	for key, value := range store.waitlist {
		snapshot.waitlist[key] = value
	}
	for key, value := range store.payouts {
		snapshot.payouts[key] = value
	}
	return snapshot
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.users = snapshot.users
	store.events = snapshot.events
	store.bookings = snapshot.bookings
	store.bookingOrder = snapshot.bookingOrder
	store.waitlist = snapshot.waitlist
	store.waitlistSequence = snapshot.waitlistSequence
	store.payouts = snapshot.payouts
	store.payoutOrder = snapshot.payoutOrder
	store.outbox = snapshot.outbox
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.transactionMutex.Lock()
	defer store.transactionMutex.Unlock()
	if store.failWith != nil {
		return store.failWith
	}
	saved := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(saved)
		return err
	}
	return nil
}

func (store *stubStore) CreateUser(_ context.Context, user User) error {
	if store.failWith != nil {
		return store.failWith
	}
	if _, exists := store.users[user.ID]; exists {
		return ErrUserExists
	}
	store.users[user.ID] = user
	return nil
}

func (store *stubStore) GetUser(_ context.Context, userID UserID) (User, error) {
	if store.failWith != nil {
		return User{}, store.failWith
	}
	user, ok := store.users[userID]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return user, nil
}

func (store *stubStore) LockUser(ctx context.Context, userID UserID) (User, error) {
	return store.GetUser(ctx, userID)
}

func (store *stubStore) UpdateUser(_ context.Context, user User) error {
	if _, ok := store.users[user.ID]; !ok {
		return ErrUnknownUser
	}
	store.users[user.ID] = user
	return nil
}

func (store *stubStore) CreateEvent(_ context.Context, event Event) error {
	if _, exists := store.events[event.ID]; exists {
		return fmt.Errorf("duplicate event %s", event.ID)
	}
	store.events[event.ID] = event
	return nil
}

func (store *stubStore) GetEvent(_ context.Context, eventID EventID) (Event, error) {
	if store.failWith != nil {
		return Event{}, store.failWith
	}
	event, ok := store.events[eventID]
	if !ok {
		return Event{}, ErrUnknownEvent
	}
	return event, nil
}

func (store *stubStore) LockEvent(ctx context.Context, eventID EventID) (Event, error) {
	return store.GetEvent(ctx, eventID)
}

func (store *stubStore) UpdateEvent(_ context.Context, event Event) error {
	if _, ok := store.events[event.ID]; !ok {
		return ErrUnknownEvent
	}
	store.events[event.ID] = event
	return nil
}

func (store *stubStore) CountConfirmedBookings(_ context.Context, eventID EventID) (int, error) {
	count := 0
	for _, booking := range store.bookings {
		if booking.EventID == eventID && booking.Status == BookingStatusConfirmed {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) GetBooking(_ context.Context, bookingID BookingID) (Booking, error) {
	booking, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrUnknownBooking
	}
	return booking, nil
}

func (store *stubStore) LockBooking(ctx context.Context, bookingID BookingID) (Booking, error) {
	return store.GetBooking(ctx, bookingID)
}

func (store *stubStore) FindBookingByCheckInToken(_ context.Context, token string) (Booking, error) {
	for _, booking := range store.bookings {
		if token != "" && booking.CheckInToken == token {
			return booking, nil
		}
	}
	return Booking{}, ErrUnknownCheckInToken
}

func (store *stubStore) FindLatestBooking(_ context.Context, eventID EventID, userID UserID) (Booking, error) {
	for index := len(store.bookingOrder) - 1; index >= 0; index-- {
		booking := store.bookings[store.bookingOrder[index]]
		if booking.EventID == eventID && booking.UserID == userID {
			return booking, nil
		}
	}
	return Booking{}, ErrUnknownBooking
}

func (store *stubStore) InsertBooking(_ context.Context, booking Booking) error {
	for _, existing := range store.bookings {
		if existing.EventID == booking.EventID && existing.UserID == booking.UserID && existing.Status == BookingStatusConfirmed {
			return ErrAlreadyBooked
		}
	}
	if _, exists := store.bookings[booking.ID]; exists {
		return fmt.Errorf("duplicate booking %s", booking.ID)
	}
	store.bookings[booking.ID] = booking
	store.bookingOrder = append(store.bookingOrder, booking.ID)
	return nil
}

func (store *stubStore) UpdateBooking(_ context.Context, booking Booking, expected BookingStatus) error {
	stored, ok := store.bookings[booking.ID]
	if !ok {
		return ErrUnknownBooking
	}
	if stored.Status != expected {
		return ErrConcurrentUpdate
	}
	store.bookings[booking.ID] = booking
	return nil
}

func (store *stubStore) ListBookings(_ context.Context, filter BookingFilter) ([]Booking, error) {
	var bookings []Booking
	for _, bookingID := range store.bookingOrder {
		booking := store.bookings[bookingID]
		if !filter.EventID.IsZero() && booking.EventID != filter.EventID {
			continue
		}
		if !filter.UserID.IsZero() && booking.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

func (store *stubStore) InsertWaitlistEntry(_ context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	key := waitlistKey{eventID: entry.EventID, userID: entry.UserID}
	if _, exists := store.waitlist[key]; exists {
		return WaitlistEntry{}, ErrAlreadyWaitlisted
	}
	store.waitlistSequence++
	entry.Sequence = store.waitlistSequence
	store.waitlist[key] = entry
	return entry, nil
}

func (store *stubStore) GetWaitlistEntry(_ context.Context, eventID EventID, userID UserID) (WaitlistEntry, error) {
	entry, ok := store.waitlist[waitlistKey{eventID: eventID, userID: userID}]
	if !ok {
		return WaitlistEntry{}, ErrNotWaitlisted
	}
	return entry, nil
}

func (store *stubStore) WaitlistRank(_ context.Context, entry WaitlistEntry) (int, error) {
	rank := 0
	for _, candidate := range store.waitlist {
		if candidate.EventID == entry.EventID && !waitlistBefore(entry, candidate) {
			rank++
		}
	}
	return rank, nil
}

func (store *stubStore) WaitlistHead(_ context.Context, eventID EventID) (WaitlistEntry, error) {
	var head WaitlistEntry
	found := false
	for _, candidate := range store.waitlist {
		if candidate.EventID != eventID {
			continue
		}
		if !found || waitlistBefore(candidate, head) {
			head = candidate
			found = true
		}
	}
	if !found {
		return WaitlistEntry{}, ErrNotWaitlisted
	}
	return head, nil
}

func (store *stubStore) DeleteWaitlistEntry(_ context.Context, eventID EventID, userID UserID) error {
	key := waitlistKey{eventID: eventID, userID: userID}
	if _, ok := store.waitlist[key]; !ok {
		return ErrNotWaitlisted
	}
	delete(store.waitlist, key)
	return nil
}

func (store *stubStore) CountWaitlist(_ context.Context, eventID EventID) (int, error) {
	count := 0
	for _, entry := range store.waitlist {
		if entry.EventID == eventID {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) InsertPayout(_ context.Context, payout PayoutRequest) error {
	for _, existing := range store.payouts {
		if existing.OrganizerID == payout.OrganizerID && existing.Status == PayoutStatusPending {
			return ErrPendingPayoutExists
		}
	}
	store.payouts[payout.ID] = payout
	store.payoutOrder = append(store.payoutOrder, payout.ID)
	return nil
}

func (store *stubStore) HasPendingPayout(_ context.Context, organizerID UserID) (bool, error) {
	for _, existing := range store.payouts {
		if existing.OrganizerID == organizerID && existing.Status == PayoutStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) LockPayout(_ context.Context, payoutID PayoutID) (PayoutRequest, error) {
	payout, ok := store.payouts[payoutID]
	if !ok {
		return PayoutRequest{}, ErrUnknownPayout
	}
	return payout, nil
}

func (store *stubStore) UpdatePayout(_ context.Context, payout PayoutRequest, expected PayoutStatus) error {
	stored, ok := store.payouts[payout.ID]
	if !ok {
		return ErrUnknownPayout
	}
	if stored.Status != expected {
		return ErrConcurrentUpdate
	}
	store.payouts[payout.ID] = payout
	return nil
}

func (store *stubStore) ListPayouts(_ context.Context, filter PayoutFilter) ([]PayoutRequest, error) {
	var payouts []PayoutRequest
	for _, payoutID := range store.payoutOrder {
		payout := store.payouts[payoutID]
		if !filter.OrganizerID.IsZero() && payout.OrganizerID != filter.OrganizerID {
			continue
		}
		if filter.Status != "" && payout.Status != filter.Status {
			continue
		}
		payouts = append(payouts, payout)
	}
	return payouts, nil
}

func (store *stubStore) AppendDomainEvent(_ context.Context, event DomainEvent) error {
	store.outbox = append(store.outbox, event)
	return nil
}

func (store *stubStore) mustUser(test *testing.T, userID UserID) User {
	test.Helper()
	user, ok := store.users[userID]
	if !ok {
		test.Fatalf("user %s not stored", userID)
	}
	return user
}

func (store *stubStore) mustBooking(test *testing.T, bookingID BookingID) Booking {
	test.Helper()
	booking, ok := store.bookings[bookingID]
	if !ok {
		test.Fatalf("booking %s not stored", bookingID)
	}
	return booking
}

func (store *stubStore) confirmedCount(eventID EventID) int {
	count, _ := store.CountConfirmedBookings(context.Background(), eventID)
	return count
}

func (store *stubStore) outboxTypes() []DomainEventType {
	types := make([]DomainEventType, 0, len(store.outbox))
	for _, event := range store.outbox {
		types = append(types, event.Type)
	}
	return types
}

func waitlistBefore(left WaitlistEntry, right WaitlistEntry) bool {
	if !left.JoinedAt.Equal(right.JoinedAt) {
		return left.JoinedAt.Before(right.JoinedAt)
	}
	return left.Sequence < right.Sequence
}

var testNow = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var mutex sync.Mutex
	counter := 0
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	defaults := []ServiceOption{WithIDGenerator(sequentialIDs("id"))}
	service, err := NewService(store, func() time.Time { return testNow }, append(defaults, options...)...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func seedUser(test *testing.T, store *stubStore, raw string, role Role, points Points) User {
	test.Helper()
	user := User{ID: mustUserID(test, raw), DisplayName: raw, Role: role, LoyaltyPoints: points}
	if err := store.CreateUser(context.Background(), user); err != nil {
		test.Fatalf("seed user: %v", err)
	}
	return user
}

type eventSeed struct {
	capacity   int
	priceCents AmountCents
	status     EventStatus
	startsIn   time.Duration
	suspended  bool
}

func seedEvent(test *testing.T, store *stubStore, raw string, organizer User, seed eventSeed) Event {
	test.Helper()
	eventID, err := NewEventID(raw)
	if err != nil {
		test.Fatalf("event id: %v", err)
	}
	status := seed.status
	if status == "" {
		status = EventStatusPublished
	}
	startsIn := seed.startsIn
	if startsIn == 0 {
		startsIn = 30 * 24 * time.Hour
	}
	event := Event{
		ID:          eventID,
		OrganizerID: organizer.ID,
		Title:       raw,
		Capacity:    seed.capacity,
		PriceCents:  seed.priceCents,
		Status:      status,
		IsSuspended: seed.suspended,
		StartsAt:    testNow.Add(startsIn),
		CreatedAt:   testNow,
	}
	if err := store.CreateEvent(context.Background(), event); err != nil {
		test.Fatalf("seed event: %v", err)
	}
	return event
}

func mustBook(test *testing.T, service *Service, userID UserID, eventID EventID) Booking {
	test.Helper()
	result, err := service.CreateBooking(context.Background(), userID, eventID)
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	return result.Booking
}
