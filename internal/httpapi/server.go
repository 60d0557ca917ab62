package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/booking/internal/telemetry"
	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Run serves handler on cfg.ListenAddr until ctx is cancelled.
func Run(ctx context.Context, cfg Config, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bookingd listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires the gin engine. metrics may be nil, in which case /metrics is not served.
func NewRouter(cfg Config, service *booking.Service, metrics *telemetry.Metrics, logger *zap.Logger) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("booking service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	authority, err := NewTokenAuthority(cfg.JWTSigningKey, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if metrics != nil {
		router.Use(metrics.GinMiddleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}

	api := router.Group("/api")
	api.Use(authority.GinMiddleware(service, logger))

	api.GET("/me", handler.handleProfile)
	api.GET("/me/bookings", handler.handleListMyBookings)
	api.GET("/me/loyalty", handler.handleLoyalty)
	api.POST("/me/loyalty/redeem", handler.handleRedeem)

	api.POST("/events", handler.handleCreateEvent)
	api.GET("/events/:id", handler.handleGetEvent)
	api.POST("/events/:id/publish", handler.handlePublishEvent)
	api.POST("/events/:id/cancel", handler.handleCancelEvent)
	api.POST("/events/:id/postpone", handler.handlePostponeEvent)
	api.POST("/events/:id/announcements", handler.handleAnnouncement)
	api.POST("/events/:id/bookings", handler.handleCreateBooking)
	api.GET("/events/:id/bookings", handler.handleListEventBookings)
	api.POST("/events/:id/waitlist", handler.handleJoinWaitlist)
	api.DELETE("/events/:id/waitlist", handler.handleLeaveWaitlist)
	api.GET("/events/:id/waitlist/position", handler.handleWaitlistPosition)

	api.DELETE("/bookings/:id", handler.handleCancelBooking)
	api.POST("/bookings/:id/refund", handler.handleRefundBooking)
	api.POST("/bookings/:id/check-in", handler.handleCheckInBooking)
	api.POST("/check-in", handler.handleCheckInByToken)

	api.POST("/payouts", handler.handleRequestPayout)
	api.GET("/payouts", handler.handleListPayouts)

	admin := api.Group("/admin")
	admin.GET("/payouts", handler.handleAdminListPayouts)
	admin.POST("/payouts/:id/process", handler.handleProcessPayout)
	admin.POST("/users/:id/points", handler.handleAdjustPoints)
	admin.POST("/users/:id/suspend", handler.handleSuspendUser)
	admin.POST("/users/:id/role", handler.handleChangeRole)
	admin.POST("/events/:id/suspend", handler.handleSuspendEvent)
	admin.POST("/events/:id/promote", handler.handlePromoteWaitlist)

	return router, nil
}
