package booking

import (
	"encoding/json"
	"fmt"
	"time"
)

// DomainEventType names a fact the notification fan-out reacts to.
type DomainEventType string

const (
	DomainEventBookingConfirmed   DomainEventType = "booking.confirmed"
	DomainEventBookingCancelled   DomainEventType = "booking.cancelled"
	DomainEventBookingPromoted    DomainEventType = "booking.promoted"
	DomainEventEventCancelled     DomainEventType = "event.cancelled"
	DomainEventEventPostponed     DomainEventType = "event.postponed"
	DomainEventAnnouncementPosted DomainEventType = "event.announcement_posted"
)

// String returns the routing representation.
func (eventType DomainEventType) String() string {
	return string(eventType)
}

// DomainEvent is a state change recorded atomically with the change itself.
type DomainEvent struct {
	Type       DomainEventType
	EventID    EventID
	UserID     UserID
	BookingID  BookingID
	Message    string
	OccurredAt time.Time
}

// OutboxMessage is a stored domain event awaiting delivery.
type OutboxMessage struct {
	MessageID string
	Event     DomainEvent
	Attempts  int
}

type domainEventPayload struct {
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id,omitempty"`
	BookingID  string    `json:"booking_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MarshalJSON renders the event as a flat JSON object.
func (event DomainEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(domainEventPayload{
		Type:       event.Type.String(),
		EventID:    event.EventID.String(),
		UserID:     event.UserID.String(),
		BookingID:  event.BookingID.String(),
		Message:    event.Message,
		OccurredAt: event.OccurredAt.UTC(),
	})
}

// UnmarshalJSON restores an event written by MarshalJSON.
func (event *DomainEvent) UnmarshalJSON(raw []byte) error {
	var payload domainEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Type == "" {
		return fmt.Errorf("domain event: missing type")
	}
	*event = DomainEvent{
		Type:       DomainEventType(payload.Type),
		EventID:    EventID{value: payload.EventID},
		UserID:     UserID{value: payload.UserID},
		BookingID:  BookingID{value: payload.BookingID},
		Message:    payload.Message,
		OccurredAt: payload.OccurredAt,
	}
	return nil
}
