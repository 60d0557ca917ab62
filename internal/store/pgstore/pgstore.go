package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore   = "store"
	errorSubjectOutbox    = "outbox"
	errorCodeClaim        = "claim"
	errorCodeInvalid      = "invalid"
	errorCodeUpdate       = "update"
	errorCodeUpdateStatus = "update_status"
	outboxStatusPending   = "pending"
	outboxStatusDelivered = "delivered"
	maxLastErrorLength    = 500
	defaultClaimLease     = time.Minute

	// sqlClaimDue pushes next_attempt_unix past the lease so a concurrent claimer skips the rows
	// until this dispatcher reports back or the lease runs out.
	sqlClaimDue = `
		update outbox_messages
		set next_attempt_unix = $3
		where message_id in (
			select message_id from outbox_messages
			where status = $4 and next_attempt_unix <= $1
			order by created_at, message_id
			limit $2
			for update skip locked
		)
		returning message_id, payload, attempts, created_at
	`

	sqlMarkDelivered = `
		update outbox_messages
		set status = $2, delivered_at = $3, last_error = ''
		where message_id = $1
	`

	sqlMarkFailed = `
		update outbox_messages
		set attempts = $2, next_attempt_unix = $3, last_error = $4
		where message_id = $1
	`
)

// OutboxStore drains outbox_messages over a pgx pool. Claims use row locks with SKIP LOCKED, so
// several dispatchers may share one database.
type OutboxStore struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

// OutboxOption configures an OutboxStore.
type OutboxOption func(*OutboxStore)

// WithClaimLease sets how long a claimed row stays hidden from other dispatchers.
func WithClaimLease(lease time.Duration) OutboxOption {
	return func(store *OutboxStore) {
		if lease > 0 {
			store.lease = lease
		}
	}
}

// Open connects a pgx pool and verifies it.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewOutboxStore returns an OutboxStore backed by pool.
func NewOutboxStore(pool *pgxpool.Pool, options ...OutboxOption) *OutboxStore {
	store := &OutboxStore{pool: pool, lease: defaultClaimLease}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

type claimedRow struct {
	messageID string
	payload   []byte
	attempts  int
	createdAt time.Time
}

// PendingMessages claims up to limit due rows, oldest first.
func (store *OutboxStore) PendingMessages(ctx context.Context, now time.Time, limit int) ([]booking.OutboxMessage, error) {
	nowUnix := now.UTC().Unix()
	leaseUntil := now.UTC().Add(store.lease).Unix()
	var claimed []claimedRow
	err := pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sqlClaimDue, nowUnix, limit, leaseUntil, outboxStatusPending)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row claimedRow
			if err := rows.Scan(&row.messageID, &row.payload, &row.attempts, &row.createdAt); err != nil {
				return err
			}
			claimed = append(claimed, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapStoreError(errorCodeClaim, err)
	}
	return decodeClaimed(claimed)
}

func decodeClaimed(claimed []claimedRow) ([]booking.OutboxMessage, error) {
	sort.Slice(claimed, func(left, right int) bool {
		if claimed[left].createdAt.Equal(claimed[right].createdAt) {
			return claimed[left].messageID < claimed[right].messageID
		}
		return claimed[left].createdAt.Before(claimed[right].createdAt)
	})
	messages := make([]booking.OutboxMessage, 0, len(claimed))
	for _, row := range claimed {
		var event booking.DomainEvent
		if err := json.Unmarshal(row.payload, &event); err != nil {
			return nil, wrapStoreError(errorCodeInvalid, err)
		}
		messages = append(messages, booking.OutboxMessage{
			MessageID: row.messageID,
			Event:     event,
			Attempts:  row.attempts,
		})
	}
	return messages, nil
}

// MarkDelivered records a successful publish.
func (store *OutboxStore) MarkDelivered(ctx context.Context, messageID string, deliveredAt time.Time) error {
	tag, err := store.pool.Exec(ctx, sqlMarkDelivered, messageID, outboxStatusDelivered, deliveredAt.UTC())
	if err != nil {
		return wrapStoreError(errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorCodeUpdateStatus, errUnknownMessage)
	}
	return nil
}

// MarkFailed stores the attempt count and reschedules the row, releasing the claim.
func (store *OutboxStore) MarkFailed(ctx context.Context, messageID string, attempts int, nextAttempt time.Time, reason string) error {
	_, err := store.pool.Exec(ctx, sqlMarkFailed, messageID, attempts, nextAttempt.UTC().Unix(), truncateReason(reason))
	if err != nil {
		return wrapStoreError(errorCodeUpdate, err)
	}
	return nil
}

var errUnknownMessage = errors.New("unknown outbox message")

func truncateReason(reason string) string {
	if len(reason) > maxLastErrorLength {
		return reason[:maxLastErrorLength]
	}
	return reason
}

func wrapStoreError(code string, err error) error {
	return booking.WrapError(errorOperationStore, errorSubjectOutbox, code, err)
}
