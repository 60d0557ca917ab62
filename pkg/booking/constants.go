package booking

import "time"

const (
	operationEnsureUser        = "ensure_user"
	operationAssignRole        = "assign_role"
	operationChangeRole        = "change_role"
	operationSuspendUser       = "suspend_user"
	operationCreateEvent       = "create_event"
	operationPublishEvent      = "publish_event"
	operationCancelEvent       = "cancel_event"
	operationPostponeEvent     = "postpone_event"
	operationSuspendEvent      = "suspend_event"
	operationPostAnnouncement  = "post_announcement"
	operationCreateBooking     = "create_booking"
	operationCancelBooking     = "cancel_booking"
	operationRefundBooking     = "refund_booking"
	operationCheckIn           = "check_in"
	operationJoinWaitlist      = "join_waitlist"
	operationLeaveWaitlist     = "leave_waitlist"
	operationPromoteWaitlist   = "promote_waitlist"
	operationAdjustPoints      = "adjust_points"
	operationRedeemPoints      = "redeem_points"
	operationRequestPayout     = "request_payout"
	operationProcessPayout     = "process_payout"
	operationStatusOK          = "ok"
	operationStatusError       = "error"
	maxAnnouncementLength      = 2000
	maxTitleLength             = 200
	maxBankDetailsLength       = 500
	maxAdminNotesLength        = 1000
	defaultDisplayNameFallback = "member"
)

// DefaultCancellationWindow is how long before the start a holder may still cancel.
const DefaultCancellationWindow = 7 * 24 * time.Hour

const (
	// MaxPriceCents caps an event ticket price.
	MaxPriceCents AmountCents = 100_000_000_000
	// MaxPointsAdjustment caps the magnitude of a single admin points adjustment.
	MaxPointsAdjustment Points = 1_000_000_000_000
)
