package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/booking/internal/httpapi"
	"github.com/MarkoPoloResearchLab/booking/internal/notify"
	"github.com/MarkoPoloResearchLab/booking/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/booking/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/booking/internal/telemetry"
	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Event booking, waitlist, loyalty and payout service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "database URL (postgres:// or sqlite://)")
	cmd.PersistentFlags().Bool(flagAutoMigrate, true, "migrate the postgres schema on start (sqlite is always migrated)")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, defaultAllowedOrigin, "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 key used to verify bearer tokens (required)")
	cmd.Flags().String(flagJWTIssuer, defaultJWTIssuer, "expected bearer token issuer")
	cmd.Flags().Duration(flagRequestTimeout, defaultRequestTimeout, "per-request engine timeout")
	cmd.Flags().Duration(flagCancellationWindow, booking.DefaultCancellationWindow, "how long before the start attendees may still cancel")
	cmd.Flags().String(flagNotifyBackend, notify.BackendLog, "notification sink: log, amqp or redis")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL for the amqp backend")
	cmd.Flags().String(flagAMQPExchange, defaultAMQPExchange, "topic exchange for the amqp backend")
	cmd.Flags().String(flagRedisAddr, "", "Redis address for the redis backend")
	cmd.Flags().String(flagRedisChannel, defaultRedisChannel, "pub/sub channel for the redis backend")
	cmd.Flags().Duration(flagOutboxInterval, defaultOutboxInterval, "outbox poll interval")

	cmd.AddCommand(newGrantRoleCommand(), newIssueTokenCommand())
	return cmd
}

func newGrantRoleCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:   "grant-role <user-id> <role>",
		Short: "Assign a role to an account, creating it when missing",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDatabaseConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := booking.NewUserID(args[0])
			if err != nil {
				return err
			}
			role, err := booking.ParseRole(args[1])
			if err != nil {
				return err
			}
			gormDB, cleanup, driver, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if _, err := prepareSchema(gormDB, driver, cfg.AutoMigrate); err != nil {
				return err
			}
			service, err := booking.NewService(gormstore.New(gormDB), utcNow)
			if err != nil {
				return err
			}
			user, err := service.AssignRole(cmd.Context(), userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.ID, user.Role)
			return nil
		},
	}
	return cmd
}

func newIssueTokenCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:   "issue-token <user-id> [display-name]",
		Short: "Mint a bearer token for local testing",
		Args:  cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadTokenConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, err := httpapi.NewTokenAuthority(cfg.HTTP.JWTSigningKey, cfg.HTTP.JWTIssuer)
			if err != nil {
				return err
			}
			displayName := ""
			if len(args) == 2 {
				displayName = args[1]
			}
			token, err := authority.Issue(args[0], displayName, utcNow(), cfg.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 signing key (required)")
	cmd.Flags().String(flagJWTIssuer, defaultJWTIssuer, "token issuer")
	cmd.Flags().Duration(flagTokenTTL, defaultTokenTTL, "token lifetime")
	return cmd
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	migrated, err := prepareSchema(gormDB, driver, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	logger.Info("database ready", zap.String("driver", driver), zap.Bool("migrated", migrated))

	store := gormstore.New(gormDB)
	metrics := telemetry.NewMetrics()
	bookingService, err := booking.NewService(store, utcNow,
		booking.WithOperationLogger(telemetry.NewOperationLogger(logger.Named("booking"), metrics)),
		booking.WithCancellationWindow(cfg.CancellationWindow),
	)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	router, err := httpapi.NewRouter(cfg.HTTP, bookingService, metrics, logger.Named("http"))
	if err != nil {
		return err
	}

	var outbox notify.OutboxStore = store
	if driver == driverPostgres {
		pool, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("outbox pool: %w", err)
		}
		defer pool.Close()
		outbox = pgstore.NewOutboxStore(pool)
	}

	sink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("notification sink: %w", err)
	}
	defer func() { _ = sink.Close() }()
	dispatcher, err := notify.NewDispatcher(outbox, sink, logger.Named("outbox"),
		notify.WithPollInterval(cfg.OutboxInterval),
		notify.WithDeliveryRecorder(metrics),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- dispatcher.Run(ctx)
	}()

	serveErr := httpapi.Run(ctx, cfg.HTTP, router, logger)
	cancel()
	if dispatchErr := <-dispatchDone; dispatchErr != nil && !errors.Is(dispatchErr, context.Canceled) {
		logger.Warn("outbox dispatcher stopped", zap.Error(dispatchErr))
	}
	return serveErr
}

func openSink(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger) (notify.Sink, error) {
	switch cfg.NotifyBackend {
	case notify.BackendAMQP:
		return notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	case notify.BackendRedis:
		return notify.DialRedis(ctx, cfg.RedisAddr, cfg.RedisChannel)
	case notify.BackendLog:
		return notify.NewLogSink(logger.Named("notify")), nil
	default:
		return nil, fmt.Errorf("unsupported notify backend %q", cfg.NotifyBackend)
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
