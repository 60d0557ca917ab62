package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventDraft carries the organizer-supplied fields of a new event.
type EventDraft struct {
	Title      string
	Capacity   int
	PriceCents AmountCents
	StartsAt   time.Time
}

// EventOverview is an event with its live seat accounting.
type EventOverview struct {
	Event          Event
	ConfirmedCount int
	WaitlistLength int
	SeatsLeft      int
}

// CreateEvent stores a Draft event owned by actorID.
func (service *Service) CreateEvent(ctx context.Context, actorID UserID, draft EventDraft) (Event, error) {
	var created Event
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		organizer, err := transactionStore.GetUser(ctx, actorID)
		if err != nil {
			return err
		}
		if !organizer.Role.CanOrganize() || organizer.IsSuspended {
			return ErrForbidden
		}
		title, err := normalizeTitle(draft.Title)
		if err != nil {
			return err
		}
		if draft.Capacity <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidCapacity)
		}
		if draft.PriceCents < 0 {
			return fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
		}
		if draft.PriceCents > MaxPriceCents {
			return fmt.Errorf("%w: must not exceed %d", ErrInvalidAmountCents, MaxPriceCents)
		}
		if draft.StartsAt.IsZero() {
			return fmt.Errorf("%w: missing value", ErrInvalidStartTime)
		}
		eventID, err := NewEventID(service.newID())
		if err != nil {
			return err
		}
		created = Event{
			ID:          eventID,
			OrganizerID: organizer.ID,
			Title:       title,
			Capacity:    draft.Capacity,
			PriceCents:  draft.PriceCents,
			Status:      EventStatusDraft,
			StartsAt:    draft.StartsAt.UTC(),
			CreatedAt:   service.now(),
		}
		return transactionStore.CreateEvent(ctx, created)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateEvent,
		ActorID:   actorID,
		EventID:   created.ID,
		Error:     operationError,
	})
	return created, operationError
}

// PublishEvent opens a Draft or Postponed event for booking.
func (service *Service) PublishEvent(ctx context.Context, actorID UserID, eventID EventID) (Event, error) {
	return service.transitionEvent(ctx, operationPublishEvent, actorID, eventID, func(event *Event) (*DomainEvent, error) {
		if event.Status != EventStatusDraft && event.Status != EventStatusPostponed {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidEventTransition, event.Status, EventStatusPublished)
		}
		event.Status = EventStatusPublished
		return nil, nil
	})
}

// CancelEvent cancels the whole event. Existing bookings stay confirmed; their holders may then
// cancel regardless of the cancellation window.
func (service *Service) CancelEvent(ctx context.Context, actorID UserID, eventID EventID) (Event, error) {
	return service.transitionEvent(ctx, operationCancelEvent, actorID, eventID, func(event *Event) (*DomainEvent, error) {
		if event.Status == EventStatusCancelled {
			return nil, fmt.Errorf("%w: event already cancelled", ErrInvalidEventTransition)
		}
		event.Status = EventStatusCancelled
		return &DomainEvent{Type: DomainEventEventCancelled}, nil
	})
}

// PostponeEvent moves a Published event to a later start and closes it for booking until it is
// published again.
func (service *Service) PostponeEvent(ctx context.Context, actorID UserID, eventID EventID, newStart time.Time) (Event, error) {
	return service.transitionEvent(ctx, operationPostponeEvent, actorID, eventID, func(event *Event) (*DomainEvent, error) {
		if event.Status != EventStatusPublished && event.Status != EventStatusPostponed {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidEventTransition, event.Status, EventStatusPostponed)
		}
		if newStart.IsZero() || !newStart.After(event.StartsAt) {
			return nil, fmt.Errorf("%w: new start must be after %s", ErrInvalidStartTime, event.StartsAt.Format(time.RFC3339))
		}
		event.Status = EventStatusPostponed
		event.StartsAt = newStart.UTC()
		return &DomainEvent{
			Type:    DomainEventEventPostponed,
			Message: fmt.Sprintf("new start %s", event.StartsAt.Format(time.RFC3339)),
		}, nil
	})
}

// PostAnnouncement fans a message out to the event's attendees.
func (service *Service) PostAnnouncement(ctx context.Context, actorID UserID, eventID EventID, message string) error {
	normalized := strings.TrimSpace(message)
	_, err := service.transitionEvent(ctx, operationPostAnnouncement, actorID, eventID, func(event *Event) (*DomainEvent, error) {
		if normalized == "" {
			return nil, fmt.Errorf("%w: empty message", ErrInvalidAnnouncement)
		}
		if len(normalized) > maxAnnouncementLength {
			return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidAnnouncement, maxAnnouncementLength)
		}
		return &DomainEvent{Type: DomainEventAnnouncementPosted, Message: normalized}, nil
	})
	return err
}

// SuspendEvent sets the admin suspension flag. Suspended events reject bookings and promotions.
func (service *Service) SuspendEvent(ctx context.Context, actorID UserID, eventID EventID, suspended bool) (Event, error) {
	var updated Event
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := requireAdmin(ctx, transactionStore, actorID); err != nil {
			return err
		}
		event, err := transactionStore.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		event.IsSuspended = suspended
		if err := transactionStore.UpdateEvent(ctx, event); err != nil {
			return err
		}
		updated = event
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSuspendEvent,
		ActorID:   actorID,
		EventID:   eventID,
		Error:     operationError,
	})
	return updated, operationError
}

// GetEvent returns the event with its seat accounting. Drafts are only visible to their managers.
func (service *Service) GetEvent(ctx context.Context, actorID UserID, eventID EventID) (EventOverview, error) {
	event, err := service.store.GetEvent(ctx, eventID)
	if err != nil {
		return EventOverview{}, err
	}
	if event.Status == EventStatusDraft {
		actor, err := service.store.GetUser(ctx, actorID)
		if err != nil {
			return EventOverview{}, err
		}
		if !CanManageEvent(actor, event) {
			return EventOverview{}, ErrUnknownEvent
		}
	}
	confirmed, err := service.store.CountConfirmedBookings(ctx, eventID)
	if err != nil {
		return EventOverview{}, err
	}
	waiting, err := service.store.CountWaitlist(ctx, eventID)
	if err != nil {
		return EventOverview{}, err
	}
	seatsLeft := event.Capacity - confirmed
	if seatsLeft < 0 {
		seatsLeft = 0
	}
	return EventOverview{
		Event:          event,
		ConfirmedCount: confirmed,
		WaitlistLength: waiting,
		SeatsLeft:      seatsLeft,
	}, nil
}

// transitionEvent runs mutate on the locked event for its manager, persists the result and
// records the domain event mutate returns, if any.
func (service *Service) transitionEvent(ctx context.Context, operation string, actorID UserID, eventID EventID, mutate func(event *Event) (*DomainEvent, error)) (Event, error) {
	var updated Event
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actor, err := transactionStore.GetUser(ctx, actorID)
		if err != nil {
			return err
		}
		event, err := transactionStore.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !CanManageEvent(actor, event) {
			return ErrForbidden
		}
		before := event
		domainEvent, err := mutate(&event)
		if err != nil {
			return err
		}
		if event != before {
			if err := transactionStore.UpdateEvent(ctx, event); err != nil {
				return err
			}
		}
		if domainEvent != nil {
			domainEvent.EventID = event.ID
			domainEvent.UserID = actor.ID
			domainEvent.OccurredAt = service.now()
			if err := transactionStore.AppendDomainEvent(ctx, *domainEvent); err != nil {
				return err
			}
		}
		updated = event
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		ActorID:   actorID,
		EventID:   eventID,
		Error:     operationError,
	})
	return updated, operationError
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidTitle)
	}
	if len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidTitle, maxTitleLength)
	}
	return title, nil
}
