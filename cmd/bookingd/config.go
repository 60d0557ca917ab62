package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/booking/internal/httpapi"
	"github.com/MarkoPoloResearchLab/booking/internal/notify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL        = "database-url"
	flagAutoMigrate        = "auto-migrate"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagJWTSigningKey      = "jwt-signing-key"
	flagJWTIssuer          = "jwt-issuer"
	flagRequestTimeout     = "request-timeout"
	flagCancellationWindow = "cancellation-window"
	flagNotifyBackend      = "notify-backend"
	flagAMQPURL            = "amqp-url"
	flagAMQPExchange       = "amqp-exchange"
	flagRedisAddr          = "redis-addr"
	flagRedisChannel       = "redis-channel"
	flagOutboxInterval     = "outbox-interval"
	flagTokenTTL           = "token-ttl"
	envPrefix              = "BOOKINGD"

	defaultDatabaseURL    = "sqlite:///tmp/booking.db"
	defaultListenAddr     = ":8080"
	defaultAllowedOrigin  = "http://localhost:8000"
	defaultJWTIssuer      = "bookingd"
	defaultRequestTimeout = 5 * time.Second
	defaultAMQPExchange   = "booking.events"
	defaultRedisChannel   = "booking.notifications"
	defaultOutboxInterval = time.Second
	defaultTokenTTL       = 24 * time.Hour
)

type runtimeConfig struct {
	DatabaseURL        string
	AutoMigrate        bool
	HTTP               httpapi.Config
	CancellationWindow time.Duration
	NotifyBackend      string
	AMQPURL            string
	AMQPExchange       string
	RedisAddr          string
	RedisChannel       string
	OutboxInterval     time.Duration
	TokenTTL           time.Duration
}

// newViper binds every flag visible to cmd under BOOKINGD_* environment variables. A .env file in
// the working directory is loaded first when present.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	_ = godotenv.Load()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}
	return v, nil
}

func databaseURL(v *viper.Viper) string {
	dsn := strings.TrimSpace(v.GetString(flagDatabaseURL))
	if dsn == "" {
		return defaultDatabaseURL
	}
	return dsn
}

func loadDatabaseConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg.DatabaseURL = databaseURL(v)
	cfg.AutoMigrate = v.GetBool(flagAutoMigrate)
	return nil
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg.DatabaseURL = databaseURL(v)
	cfg.AutoMigrate = v.GetBool(flagAutoMigrate)
	cfg.HTTP = httpapi.Config{
		ListenAddr:     v.GetString(flagListenAddr),
		AllowedOrigins: httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		JWTSigningKey:  v.GetString(flagJWTSigningKey),
		JWTIssuer:      v.GetString(flagJWTIssuer),
		RequestTimeout: v.GetDuration(flagRequestTimeout),
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}
	cfg.CancellationWindow = v.GetDuration(flagCancellationWindow)
	if cfg.CancellationWindow < 0 {
		return fmt.Errorf("%s must not be negative", flagCancellationWindow)
	}
	cfg.OutboxInterval = v.GetDuration(flagOutboxInterval)
	if cfg.OutboxInterval <= 0 {
		return fmt.Errorf("%s must be positive", flagOutboxInterval)
	}

	cfg.NotifyBackend = strings.ToLower(strings.TrimSpace(v.GetString(flagNotifyBackend)))
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString(flagAMQPExchange))
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.RedisChannel = strings.TrimSpace(v.GetString(flagRedisChannel))
	switch cfg.NotifyBackend {
	case notify.BackendLog:
	case notify.BackendAMQP:
		if cfg.AMQPURL == "" {
			return fmt.Errorf("%s is required for the amqp backend", flagAMQPURL)
		}
	case notify.BackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("%s is required for the redis backend", flagRedisAddr)
		}
	default:
		return fmt.Errorf("unsupported %s %q", flagNotifyBackend, cfg.NotifyBackend)
	}
	return nil
}

func loadTokenConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg.HTTP.JWTSigningKey = v.GetString(flagJWTSigningKey)
	cfg.HTTP.JWTIssuer = v.GetString(flagJWTIssuer)
	cfg.TokenTTL = v.GetDuration(flagTokenTTL)
	if cfg.HTTP.JWTSigningKey == "" {
		return fmt.Errorf("%s is required", flagJWTSigningKey)
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("%s must be positive", flagTokenTTL)
	}
	return nil
}
