package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintConfirmedBooking = "uniq_bookings_confirmed_user_event"
	constraintWaitlistEntry    = "uniq_waitlist_event_user"
	constraintPendingPayout    = "uniq_payouts_pending_organizer"
	constraintUserPrimary      = "users_pkey"
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	lockStrengthUpdate         = "UPDATE"
	errorOperationStore        = "store"
	errorSubjectUser           = "user"
	errorSubjectEvent          = "event"
	errorSubjectBooking        = "booking"
	errorSubjectWaitlist       = "waitlist"
	errorSubjectPayout         = "payout"
	errorSubjectOutbox         = "outbox"
	errorCodeCount             = "count"
	errorCodeCreate            = "create"
	errorCodeDelete            = "delete"
	errorCodeDuplicate         = "duplicate"
	errorCodeEncode            = "encode"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeLock              = "lock"
	errorCodeLookup            = "lookup"
	errorCodeUpdate            = "update"
	errorCodeUpdateStatus      = "update_status"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateUser(ctx context.Context, user booking.User) error {
	now := time.Now().UTC()
	record := UserRecord{
		UserID:        user.ID.String(),
		DisplayName:   user.DisplayName,
		Role:          user.Role.String(),
		IsSuspended:   user.IsSuspended,
		LoyaltyPoints: user.LoyaltyPoints.Int64(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err, constraintUserPrimary) {
		return wrapStoreError(errorSubjectUser, errorCodeDuplicate, booking.ErrUserExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetUser(ctx context.Context, userID booking.UserID) (booking.User, error) {
	return store.loadUser(store.db.WithContext(ctx), userID, errorCodeGet)
}

func (store *Store) LockUser(ctx context.Context, userID booking.UserID) (booking.User, error) {
	return store.loadUser(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), userID, errorCodeLock)
}

func (store *Store) loadUser(query *gorm.DB, userID booking.UserID, code string) (booking.User, error) {
	var record UserRecord
	err := query.Where("user_id = ?", userID.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.User{}, wrapStoreError(errorSubjectUser, code, booking.ErrUnknownUser)
	}
	if err != nil {
		return booking.User{}, wrapStoreError(errorSubjectUser, code, err)
	}
	user, err := mapUser(record)
	if err != nil {
		return booking.User{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return user, nil
}

func (store *Store) UpdateUser(ctx context.Context, user booking.User) error {
	result := store.db.WithContext(ctx).
		Model(&UserRecord{}).
		Where("user_id = ?", user.ID.String()).
		Updates(map[string]any{
			"display_name":   user.DisplayName,
			"role":           user.Role.String(),
			"is_suspended":   user.IsSuspended,
			"loyalty_points": user.LoyaltyPoints.Int64(),
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, booking.ErrUnknownUser)
	}
	return nil
}

func (store *Store) CreateEvent(ctx context.Context, event booking.Event) error {
	record := EventRecord{
		EventID:     event.ID.String(),
		OrganizerID: event.OrganizerID.String(),
		Title:       event.Title,
		Capacity:    event.Capacity,
		PriceCents:  event.PriceCents.Int64(),
		Status:      event.Status.String(),
		IsSuspended: event.IsSuspended,
		StartsAt:    event.StartsAt.UTC(),
		CreatedAt:   event.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetEvent(ctx context.Context, eventID booking.EventID) (booking.Event, error) {
	return store.loadEvent(store.db.WithContext(ctx), eventID, errorCodeGet)
}

func (store *Store) LockEvent(ctx context.Context, eventID booking.EventID) (booking.Event, error) {
	return store.loadEvent(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), eventID, errorCodeLock)
}

func (store *Store) loadEvent(query *gorm.DB, eventID booking.EventID, code string) (booking.Event, error) {
	var record EventRecord
	err := query.Where("event_id = ?", eventID.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Event{}, wrapStoreError(errorSubjectEvent, code, booking.ErrUnknownEvent)
	}
	if err != nil {
		return booking.Event{}, wrapStoreError(errorSubjectEvent, code, err)
	}
	event, err := mapEvent(record)
	if err != nil {
		return booking.Event{}, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
	}
	return event, nil
}

func (store *Store) UpdateEvent(ctx context.Context, event booking.Event) error {
	result := store.db.WithContext(ctx).
		Model(&EventRecord{}).
		Where("event_id = ?", event.ID.String()).
		Updates(map[string]any{
			"title":        event.Title,
			"status":       event.Status.String(),
			"is_suspended": event.IsSuspended,
			"starts_at":    event.StartsAt.UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEvent, errorCodeUpdate, booking.ErrUnknownEvent)
	}
	return nil
}

func (store *Store) CountConfirmedBookings(ctx context.Context, eventID booking.EventID) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("event_id = ? AND status = ?", eventID.String(), booking.BookingStatusConfirmed.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID booking.BookingID) (booking.Booking, error) {
	return store.loadBooking(store.db.WithContext(ctx).Where("booking_id = ?", bookingID.String()), errorCodeGet, booking.ErrUnknownBooking)
}

func (store *Store) LockBooking(ctx context.Context, bookingID booking.BookingID) (booking.Booking, error) {
	query := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: lockStrengthUpdate}).
		Where("booking_id = ?", bookingID.String())
	return store.loadBooking(query, errorCodeLock, booking.ErrUnknownBooking)
}

func (store *Store) FindBookingByCheckInToken(ctx context.Context, token string) (booking.Booking, error) {
	if token == "" {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeLookup, booking.ErrUnknownCheckInToken)
	}
	return store.loadBooking(store.db.WithContext(ctx).Where("check_in_token = ?", token), errorCodeLookup, booking.ErrUnknownCheckInToken)
}

func (store *Store) FindLatestBooking(ctx context.Context, eventID booking.EventID, userID booking.UserID) (booking.Booking, error) {
	query := store.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID.String(), userID.String()).
		Order("created_at DESC").
		Order("booking_id DESC")
	return store.loadBooking(query, errorCodeLookup, booking.ErrUnknownBooking)
}

func (store *Store) loadBooking(query *gorm.DB, code string, notFound error) (booking.Booking, error) {
	var record BookingRecord
	err := query.Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, code, notFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, code, err)
	}
	mapped, err := mapBooking(record)
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return mapped, nil
}

func (store *Store) InsertBooking(ctx context.Context, value booking.Booking) error {
	record := bookingRecordFrom(value)
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err, constraintConfirmedBooking) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrAlreadyBooked)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UpdateBooking(ctx context.Context, value booking.Booking, expected booking.BookingStatus) error {
	record := bookingRecordFrom(value)
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ? AND status = ?", record.BookingID, expected.String()).
		Updates(map[string]any{
			"status":               record.Status,
			"points_earned":        record.PointsEarned,
			"points_state":         record.PointsState,
			"amount_charged_cents": record.AmountChargedCents,
			"is_checked_in":        record.IsCheckedIn,
			"checked_in_at":        record.CheckedInAt,
			"check_in_token":       record.CheckInToken,
			"updated_at":           record.UpdatedAt,
			"cancelled_at":         record.CancelledAt,
		})
	if isUniqueViolation(result.Error, constraintConfirmedBooking) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrAlreadyBooked)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).Model(&BookingRecord{}).Where("booking_id = ?", record.BookingID).Count(&count).Error; err != nil {
			return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, err)
		}
		if count == 0 {
			return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrUnknownBooking)
		}
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrConcurrentUpdate)
	}
	return nil
}

func (store *Store) ListBookings(ctx context.Context, filter booking.BookingFilter) ([]booking.Booking, error) {
	query := store.db.WithContext(ctx).Model(&BookingRecord{})
	if !filter.EventID.IsZero() {
		query = query.Where("event_id = ?", filter.EventID.String())
	}
	if !filter.UserID.IsZero() {
		query = query.Where("user_id = ?", filter.UserID.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	var rows []BookingRecord
	if err := query.Order("created_at ASC").Order("booking_id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	bookings := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapBooking(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, mapped)
	}
	return bookings, nil
}

func (store *Store) InsertWaitlistEntry(ctx context.Context, entry booking.WaitlistEntry) (booking.WaitlistEntry, error) {
	record := WaitlistRecord{
		EventID:          entry.EventID.String(),
		UserID:           entry.UserID.String(),
		JoinedAtUnixNano: entry.JoinedAt.UTC().UnixNano(),
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err, constraintWaitlistEntry) {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeDuplicate, booking.ErrAlreadyWaitlisted)
	}
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeInsert, err)
	}
	entry.Sequence = record.Sequence
	return entry, nil
}

func (store *Store) GetWaitlistEntry(ctx context.Context, eventID booking.EventID, userID booking.UserID) (booking.WaitlistEntry, error) {
	var record WaitlistRecord
	err := store.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID.String(), userID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, booking.ErrNotWaitlisted)
	}
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, err)
	}
	entry, err := mapWaitlistEntry(record)
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) WaitlistRank(ctx context.Context, entry booking.WaitlistEntry) (int, error) {
	joinedAt := entry.JoinedAt.UTC().UnixNano()
	var count int64
	err := store.db.WithContext(ctx).
		Model(&WaitlistRecord{}).
		Where("event_id = ?", entry.EventID.String()).
		Where("(joined_at_unix_nano < ? OR (joined_at_unix_nano = ? AND sequence <= ?))", joinedAt, joinedAt, entry.Sequence).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectWaitlist, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) WaitlistHead(ctx context.Context, eventID booking.EventID) (booking.WaitlistEntry, error) {
	var record WaitlistRecord
	err := store.db.WithContext(ctx).
		Where("event_id = ?", eventID.String()).
		Order("joined_at_unix_nano ASC").
		Order("sequence ASC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeLookup, booking.ErrNotWaitlisted)
	}
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeLookup, err)
	}
	entry, err := mapWaitlistEntry(record)
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) DeleteWaitlistEntry(ctx context.Context, eventID booking.EventID, userID booking.UserID) error {
	result := store.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID.String(), userID.String()).
		Delete(&WaitlistRecord{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWaitlist, errorCodeDelete, booking.ErrNotWaitlisted)
	}
	return nil
}

func (store *Store) CountWaitlist(ctx context.Context, eventID booking.EventID) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&WaitlistRecord{}).
		Where("event_id = ?", eventID.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectWaitlist, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) InsertPayout(ctx context.Context, payout booking.PayoutRequest) error {
	record := PayoutRecord{
		PayoutID:    payout.ID.String(),
		OrganizerID: payout.OrganizerID.String(),
		AmountCents: payout.AmountCents.Int64(),
		BankDetails: payout.BankDetails,
		Status:      payout.Status.String(),
		AdminNotes:  payout.AdminNotes,
		RequestedAt: payout.RequestedAt.UTC(),
		ProcessedAt: utcOrNil(payout.ProcessedAt),
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err, constraintPendingPayout) {
		return wrapStoreError(errorSubjectPayout, errorCodeDuplicate, booking.ErrPendingPayoutExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) HasPendingPayout(ctx context.Context, organizerID booking.UserID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&PayoutRecord{}).
		Where("organizer_id = ? AND status = ?", organizerID.String(), booking.PayoutStatusPending.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectPayout, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) LockPayout(ctx context.Context, payoutID booking.PayoutID) (booking.PayoutRequest, error) {
	var record PayoutRecord
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: lockStrengthUpdate}).
		Where("payout_id = ?", payoutID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.PayoutRequest{}, wrapStoreError(errorSubjectPayout, errorCodeLock, booking.ErrUnknownPayout)
	}
	if err != nil {
		return booking.PayoutRequest{}, wrapStoreError(errorSubjectPayout, errorCodeLock, err)
	}
	payout, err := mapPayout(record)
	if err != nil {
		return booking.PayoutRequest{}, wrapStoreError(errorSubjectPayout, errorCodeInvalid, err)
	}
	return payout, nil
}

func (store *Store) UpdatePayout(ctx context.Context, payout booking.PayoutRequest, expected booking.PayoutStatus) error {
	result := store.db.WithContext(ctx).
		Model(&PayoutRecord{}).
		Where("payout_id = ? AND status = ?", payout.ID.String(), expected.String()).
		Updates(map[string]any{
			"status":       payout.Status.String(),
			"admin_notes":  payout.AdminNotes,
			"processed_at": utcOrNil(payout.ProcessedAt),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, booking.ErrConcurrentUpdate)
	}
	return nil
}

func (store *Store) ListPayouts(ctx context.Context, filter booking.PayoutFilter) ([]booking.PayoutRequest, error) {
	query := store.db.WithContext(ctx).Model(&PayoutRecord{})
	if !filter.OrganizerID.IsZero() {
		query = query.Where("organizer_id = ?", filter.OrganizerID.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	var rows []PayoutRecord
	if err := query.Order("requested_at DESC").Order("payout_id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectPayout, errorCodeList, err)
	}
	payouts := make([]booking.PayoutRequest, 0, len(rows))
	for _, row := range rows {
		payout, err := mapPayout(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPayout, errorCodeInvalid, err)
		}
		payouts = append(payouts, payout)
	}
	return payouts, nil
}

func (store *Store) AppendDomainEvent(ctx context.Context, event booking.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeEncode, err)
	}
	occurredAt := event.OccurredAt.UTC()
	record := OutboxRecord{
		EventType:       event.Type.String(),
		Payload:         datatypes.JSON(payload),
		Status:          outboxStatusPending,
		NextAttemptUnix: occurredAt.Unix(),
		CreatedAt:       occurredAt,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func utcOrNil(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

// isUniqueViolation reports whether err is a unique constraint failure. Postgres reports the
// constraint name; SQLite only reports the constraint class.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
