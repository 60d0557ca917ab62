package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger  *zap.Logger
	service *booking.Service
	cfg     Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("route", ctx.FullPath()),
			zap.Error(err),
		)
	}
	ctx.JSON(status, body)
}

func (handler *httpHandler) respondInvalidPayload(ctx *gin.Context) {
	ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
}

// bind decodes the JSON body into request and answers 400 on failure.
func (handler *httpHandler) bind(ctx *gin.Context, request any) bool {
	if err := ctx.ShouldBindJSON(request); err != nil {
		handler.respondInvalidPayload(ctx)
		return false
	}
	return true
}

// actor returns the authenticated caller. The middleware guarantees presence on /api routes.
func (handler *httpHandler) actor(ctx *gin.Context) (booking.User, bool) {
	actor, ok := actorFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return booking.User{}, false
	}
	return actor, true
}

func (handler *httpHandler) eventParam(ctx *gin.Context) (booking.EventID, bool) {
	eventID, err := booking.NewEventID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return booking.EventID{}, false
	}
	return eventID, true
}

func (handler *httpHandler) bookingParam(ctx *gin.Context) (booking.BookingID, bool) {
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return booking.BookingID{}, false
	}
	return bookingID, true
}

func (handler *httpHandler) userParam(ctx *gin.Context) (booking.UserID, bool) {
	userID, err := booking.NewUserID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return booking.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) handleProfile(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": userPayloadFrom(actor)})
}

func (handler *httpHandler) handleCreateEvent(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request createEventRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	event, err := handler.service.CreateEvent(requestCtx, actor.ID, booking.EventDraft{
		Title:      request.Title,
		Capacity:   request.Capacity,
		PriceCents: booking.AmountCents(request.PriceCents),
		StartsAt:   request.StartsAt,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"event": eventPayloadFrom(event)})
}

func (handler *httpHandler) handleGetEvent(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	overview, err := handler.service.GetEvent(requestCtx, actor.ID, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, eventOverviewPayloadFrom(overview))
}

func (handler *httpHandler) handlePublishEvent(ctx *gin.Context) {
	handler.eventTransition(ctx, func(requestCtx context.Context, actorID booking.UserID, eventID booking.EventID) error {
		_, err := handler.service.PublishEvent(requestCtx, actorID, eventID)
		return err
	})
}

func (handler *httpHandler) handleCancelEvent(ctx *gin.Context) {
	handler.eventTransition(ctx, func(requestCtx context.Context, actorID booking.UserID, eventID booking.EventID) error {
		_, err := handler.service.CancelEvent(requestCtx, actorID, eventID)
		return err
	})
}

func (handler *httpHandler) handlePostponeEvent(ctx *gin.Context) {
	var request postponeRequest
	if !handler.bind(ctx, &request) {
		return
	}
	handler.eventTransition(ctx, func(requestCtx context.Context, actorID booking.UserID, eventID booking.EventID) error {
		_, err := handler.service.PostponeEvent(requestCtx, actorID, eventID, request.StartsAt)
		return err
	})
}

func (handler *httpHandler) handleAnnouncement(ctx *gin.Context) {
	var request announcementRequest
	if !handler.bind(ctx, &request) {
		return
	}
	handler.eventTransition(ctx, func(requestCtx context.Context, actorID booking.UserID, eventID booking.EventID) error {
		return handler.service.PostAnnouncement(requestCtx, actorID, eventID, request.Message)
	})
}

// eventTransition runs an event-scoped command and answers 204 on success.
func (handler *httpHandler) eventTransition(ctx *gin.Context, run func(requestCtx context.Context, actorID booking.UserID, eventID booking.EventID) error) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := run(requestCtx, actor.ID, eventID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleCreateBooking(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.CreateBooking(requestCtx, actor.ID, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	status := http.StatusCreated
	if result.Reactivated {
		status = http.StatusOK
	}
	ctx.JSON(status, gin.H{"booking": bookingPayloadFrom(result.Booking, actor.ID)})
}

func (handler *httpHandler) handleListEventBookings(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	var status booking.BookingStatus
	if raw := strings.TrimSpace(ctx.Query("status")); raw != "" {
		parsed, err := booking.ParseBookingStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		status = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	bookings, err := handler.service.ListEventBookings(requestCtx, actor.ID, eventID, status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": bookingPayloads(bookings, actor.ID)})
}

func (handler *httpHandler) handleListMyBookings(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	bookings, err := handler.service.ListUserBookings(requestCtx, actor.ID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": bookingPayloads(bookings, actor.ID)})
}

func (handler *httpHandler) handleCancelBooking(ctx *gin.Context) {
	handler.bookingCommand(ctx, handler.service.CancelBooking)
}

func (handler *httpHandler) handleRefundBooking(ctx *gin.Context) {
	handler.bookingCommand(ctx, handler.service.RefundBooking)
}

func (handler *httpHandler) handleCheckInBooking(ctx *gin.Context) {
	handler.bookingCommand(ctx, handler.service.CheckInBooking)
}

// bookingCommand runs a booking-scoped command and answers 204 on success.
func (handler *httpHandler) bookingCommand(ctx *gin.Context, run func(ctx context.Context, actorID booking.UserID, bookingID booking.BookingID) (booking.Booking, error)) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	bookingID, ok := handler.bookingParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if _, err := run(requestCtx, actor.ID, bookingID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleCheckInByToken(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request checkInRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	checkedIn, err := handler.service.CheckInByToken(requestCtx, actor.ID, request.Token)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": bookingPayloadFrom(checkedIn, actor.ID)})
}

func (handler *httpHandler) handleJoinWaitlist(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	position, err := handler.service.JoinWaitlist(requestCtx, actor.ID, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"position": position})
}

func (handler *httpHandler) handleLeaveWaitlist(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.LeaveWaitlist(requestCtx, actor.ID, eventID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleWaitlistPosition(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	position, err := handler.service.WaitlistPosition(requestCtx, actor.ID, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"position": position})
}

func (handler *httpHandler) handleLoyalty(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	summary, err := handler.service.LoyaltySummary(requestCtx, actor.ID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"loyalty": loyaltyPayloadFrom(summary)})
}

func (handler *httpHandler) handleRedeem(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request redeemRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	summary, err := handler.service.RedeemPoints(requestCtx, actor.ID, booking.Points(request.Points))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"loyalty": loyaltyPayloadFrom(summary)})
}

func (handler *httpHandler) handleRequestPayout(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request payoutCreateRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payout, err := handler.service.RequestPayout(requestCtx, actor.ID, booking.AmountCents(request.AmountCents), request.BankDetails)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"payout": payoutPayloadFrom(payout)})
}

func (handler *httpHandler) handleListPayouts(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	handler.listPayouts(ctx, actor, booking.PayoutFilter{OrganizerID: actor.ID})
}

func (handler *httpHandler) handleAdminListPayouts(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	if !actor.Role.IsAdmin() {
		handler.respondError(ctx, booking.ErrForbidden)
		return
	}
	var filter booking.PayoutFilter
	if raw := strings.TrimSpace(ctx.Query("organizer_id")); raw != "" {
		organizerID, err := booking.NewUserID(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.OrganizerID = organizerID
	}
	handler.listPayouts(ctx, actor, filter)
}

func (handler *httpHandler) listPayouts(ctx *gin.Context, actor booking.User, filter booking.PayoutFilter) {
	if raw := strings.TrimSpace(ctx.Query("status")); raw != "" {
		status, err := booking.ParsePayoutStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = status
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payouts, err := handler.service.ListPayouts(requestCtx, actor.ID, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"payouts": payoutPayloads(payouts)})
}

func (handler *httpHandler) handleProcessPayout(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	payoutID, err := booking.NewPayoutID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request payoutProcessRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	// The engine validates the target after its permission and existence checks.
	target := booking.PayoutStatus(strings.ToLower(strings.TrimSpace(request.Status)))
	if _, err := handler.service.ProcessPayout(requestCtx, actor.ID, payoutID, target, request.AdminNotes); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleAdjustPoints(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	targetID, ok := handler.userParam(ctx)
	if !ok {
		return
	}
	var request adjustPointsRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	summary, err := handler.service.AdjustPoints(requestCtx, actor.ID, targetID, booking.Points(request.Delta))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"loyalty": loyaltyPayloadFrom(summary)})
}

func (handler *httpHandler) handleSuspendUser(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	targetID, ok := handler.userParam(ctx)
	if !ok {
		return
	}
	var request suspendRequest
	if !handler.bind(ctx, &request) {
		return
	}
	if request.Suspended == nil {
		handler.respondInvalidPayload(ctx)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, err := handler.service.SetUserSuspended(requestCtx, actor.ID, targetID, *request.Suspended)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": userPayloadFrom(user)})
}

func (handler *httpHandler) handleChangeRole(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	targetID, ok := handler.userParam(ctx)
	if !ok {
		return
	}
	var request roleRequest
	if !handler.bind(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	role := booking.Role(strings.ToLower(strings.TrimSpace(request.Role)))
	user, err := handler.service.ChangeUserRole(requestCtx, actor.ID, targetID, role)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": userPayloadFrom(user)})
}

func (handler *httpHandler) handleSuspendEvent(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	var request suspendRequest
	if !handler.bind(ctx, &request) {
		return
	}
	if request.Suspended == nil {
		handler.respondInvalidPayload(ctx)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	event, err := handler.service.SuspendEvent(requestCtx, actor.ID, eventID, *request.Suspended)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": eventPayloadFrom(event)})
}

func (handler *httpHandler) handlePromoteWaitlist(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	if !actor.Role.IsAdmin() {
		handler.respondError(ctx, booking.ErrForbidden)
		return
	}
	eventID, ok := handler.eventParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	promoted, didPromote, err := handler.service.PromoteNext(requestCtx, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !didPromote {
		ctx.JSON(http.StatusOK, gin.H{"promoted": false})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"promoted": true, "booking": bookingPayloadFrom(promoted, actor.ID)})
}
