package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/redis/go-redis/v9"
)

const (
	redisDeliveredKeyPrefix = "booking:notify:delivered:"
	redisDeliveredTTL       = 24 * time.Hour
)

// RedisSink fans notifications out over Redis pub/sub. A delivered marker per MessageID keeps a
// retried message from being published twice once a publish has succeeded.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, channel string) (*RedisSink, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	return &RedisSink{client: client, channel: channel}, nil
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string, channel string) (*RedisSink, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisSink(client, channel)
}

func (sink *RedisSink) Publish(ctx context.Context, message booking.OutboxMessage) error {
	markerKey := redisDeliveredKeyPrefix + message.MessageID
	delivered, err := sink.client.Exists(ctx, markerKey).Result()
	if err != nil {
		return fmt.Errorf("redis marker lookup %s: %w", message.MessageID, err)
	}
	if delivered > 0 {
		return nil
	}
	body, err := encodeEnvelope(message)
	if err != nil {
		return err
	}
	if err := sink.client.Publish(ctx, sink.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", message.MessageID, err)
	}
	if err := sink.client.Set(ctx, markerKey, message.Event.Type.String(), redisDeliveredTTL).Err(); err != nil {
		return fmt.Errorf("redis marker write %s: %w", message.MessageID, err)
	}
	return nil
}

func (sink *RedisSink) Close() error {
	return sink.client.Close()
}
