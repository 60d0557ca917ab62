package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
)

type createEventRequest struct {
	Title      string    `json:"title"`
	Capacity   int       `json:"capacity"`
	PriceCents int64     `json:"price_cents"`
	StartsAt   time.Time `json:"starts_at"`
}

type postponeRequest struct {
	StartsAt time.Time `json:"starts_at"`
}

type announcementRequest struct {
	Message string `json:"message"`
}

type checkInRequest struct {
	Token string `json:"token"`
}

type redeemRequest struct {
	Points int64 `json:"points"`
}

type adjustPointsRequest struct {
	Delta int64 `json:"delta"`
}

type suspendRequest struct {
	Suspended *bool `json:"suspended"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type payoutCreateRequest struct {
	AmountCents int64  `json:"amount_cents"`
	BankDetails string `json:"bank_details"`
}

type payoutProcessRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes"`
}

type userPayload struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Role          string `json:"role"`
	IsSuspended   bool   `json:"is_suspended"`
	LoyaltyPoints int64  `json:"loyalty_points"`
}

type eventPayload struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	Title       string    `json:"title"`
	Capacity    int       `json:"capacity"`
	PriceCents  int64     `json:"price_cents"`
	Status      string    `json:"status"`
	IsSuspended bool      `json:"is_suspended"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type eventOverviewPayload struct {
	Event          eventPayload `json:"event"`
	ConfirmedCount int          `json:"confirmed_count"`
	WaitlistLength int          `json:"waitlist_length"`
	SeatsLeft      int          `json:"seats_left"`
}

type bookingPayload struct {
	ID                 string     `json:"id"`
	EventID            string     `json:"event_id"`
	UserID             string     `json:"user_id"`
	Status             string     `json:"status"`
	PointsEarned       int64      `json:"points_earned"`
	PointsState        string     `json:"points_state"`
	AmountChargedCents int64      `json:"amount_charged_cents"`
	IsCheckedIn        bool       `json:"is_checked_in"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	CheckInToken       string     `json:"check_in_token,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

type tierPayload struct {
	Name                string `json:"name"`
	MinPoints           int64  `json:"min_points"`
	DiscountBasisPoints int64  `json:"discount_basis_points"`
}

type loyaltyPayload struct {
	UserID              string       `json:"user_id"`
	Points              int64        `json:"points"`
	Tier                tierPayload  `json:"tier"`
	DiscountBasisPoints int64        `json:"discount_basis_points"`
	NextTier            *tierPayload `json:"next_tier,omitempty"`
	PointsToNextTier    int64        `json:"points_to_next_tier"`
}

type payoutPayload struct {
	ID          string     `json:"id"`
	OrganizerID string     `json:"organizer_id"`
	AmountCents int64      `json:"amount_cents"`
	BankDetails string     `json:"bank_details"`
	Status      string     `json:"status"`
	AdminNotes  *string    `json:"admin_notes,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func userPayloadFrom(user booking.User) userPayload {
	return userPayload{
		ID:            user.ID.String(),
		DisplayName:   user.DisplayName,
		Role:          user.Role.String(),
		IsSuspended:   user.IsSuspended,
		LoyaltyPoints: user.LoyaltyPoints.Int64(),
	}
}

func eventPayloadFrom(event booking.Event) eventPayload {
	return eventPayload{
		ID:          event.ID.String(),
		OrganizerID: event.OrganizerID.String(),
		Title:       event.Title,
		Capacity:    event.Capacity,
		PriceCents:  event.PriceCents.Int64(),
		Status:      event.Status.String(),
		IsSuspended: event.IsSuspended,
		StartsAt:    event.StartsAt,
		CreatedAt:   event.CreatedAt,
	}
}

func eventOverviewPayloadFrom(overview booking.EventOverview) eventOverviewPayload {
	return eventOverviewPayload{
		Event:          eventPayloadFrom(overview.Event),
		ConfirmedCount: overview.ConfirmedCount,
		WaitlistLength: overview.WaitlistLength,
		SeatsLeft:      overview.SeatsLeft,
	}
}

// bookingPayloadFrom renders value. The check-in token is only shown to the booking holder.
func bookingPayloadFrom(value booking.Booking, viewer booking.UserID) bookingPayload {
	payload := bookingPayload{
		ID:                 value.ID.String(),
		EventID:            value.EventID.String(),
		UserID:             value.UserID.String(),
		Status:             value.Status.String(),
		PointsEarned:       value.PointsEarned.Int64(),
		PointsState:        value.PointsState.String(),
		AmountChargedCents: value.AmountChargedCents.Int64(),
		IsCheckedIn:        value.IsCheckedIn,
		CheckedInAt:        value.CheckedInAt,
		CreatedAt:          value.CreatedAt,
		UpdatedAt:          value.UpdatedAt,
		CancelledAt:        value.CancelledAt,
	}
	if value.UserID == viewer {
		payload.CheckInToken = value.CheckInToken
	}
	return payload
}

func bookingPayloads(values []booking.Booking, viewer booking.UserID) []bookingPayload {
	payloads := make([]bookingPayload, 0, len(values))
	for _, value := range values {
		payloads = append(payloads, bookingPayloadFrom(value, viewer))
	}
	return payloads
}

func tierPayloadFrom(tier booking.Tier) tierPayload {
	return tierPayload{
		Name:                tier.Name,
		MinPoints:           tier.MinPoints.Int64(),
		DiscountBasisPoints: tier.DiscountBasisPoints,
	}
}

func loyaltyPayloadFrom(summary booking.LoyaltySummary) loyaltyPayload {
	payload := loyaltyPayload{
		UserID:              summary.UserID.String(),
		Points:              summary.Points.Int64(),
		Tier:                tierPayloadFrom(summary.Tier),
		DiscountBasisPoints: summary.DiscountBasisPoints,
		PointsToNextTier:    summary.PointsToNextTier.Int64(),
	}
	if summary.NextTier != nil {
		next := tierPayloadFrom(*summary.NextTier)
		payload.NextTier = &next
	}
	return payload
}

func payoutPayloadFrom(payout booking.PayoutRequest) payoutPayload {
	return payoutPayload{
		ID:          payout.ID.String(),
		OrganizerID: payout.OrganizerID.String(),
		AmountCents: payout.AmountCents.Int64(),
		BankDetails: payout.BankDetails,
		Status:      payout.Status.String(),
		AdminNotes:  payout.AdminNotes,
		RequestedAt: payout.RequestedAt,
		ProcessedAt: payout.ProcessedAt,
	}
}

func payoutPayloads(payouts []booking.PayoutRequest) []payoutPayload {
	payloads := make([]payoutPayload, 0, len(payouts))
	for _, payout := range payouts {
		payloads = append(payloads, payoutPayloadFrom(payout))
	}
	return payloads
}
