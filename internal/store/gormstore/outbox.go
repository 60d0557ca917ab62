package gormstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
)

const maxLastErrorLength = 500

// PendingMessages returns undelivered outbox rows due at or before now, oldest first.
// The store assumes a single dispatcher; concurrent dispatchers may deliver a row twice.
func (store *Store) PendingMessages(ctx context.Context, now time.Time, limit int) ([]booking.OutboxMessage, error) {
	var rows []OutboxRecord
	err := store.db.WithContext(ctx).
		Where("status = ? AND next_attempt_unix <= ?", outboxStatusPending, now.UTC().Unix()).
		Order("created_at ASC").
		Order("message_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectOutbox, errorCodeList, err)
	}
	messages := make([]booking.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		var event booking.DomainEvent
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			return nil, wrapStoreError(errorSubjectOutbox, errorCodeInvalid, err)
		}
		messages = append(messages, booking.OutboxMessage{
			MessageID: row.MessageID,
			Event:     event,
			Attempts:  row.Attempts,
		})
	}
	return messages, nil
}

// MarkDelivered records a successful publish.
func (store *Store) MarkDelivered(ctx context.Context, messageID string, deliveredAt time.Time) error {
	delivered := deliveredAt.UTC()
	err := store.db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Where("message_id = ?", messageID).
		Updates(map[string]any{
			"status":       outboxStatusDelivered,
			"delivered_at": &delivered,
			"last_error":   "",
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdateStatus, err)
	}
	return nil
}

// MarkFailed increments the attempt count and reschedules the row.
func (store *Store) MarkFailed(ctx context.Context, messageID string, attempts int, nextAttempt time.Time, reason string) error {
	if len(reason) > maxLastErrorLength {
		reason = reason[:maxLastErrorLength]
	}
	err := store.db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Where("message_id = ?", messageID).
		Updates(map[string]any{
			"attempts":          attempts,
			"next_attempt_unix": nextAttempt.UTC().Unix(),
			"last_error":        reason,
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdate, err)
	}
	return nil
}
