package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	amqpExchangeKind = "topic"
	amqpAppID        = "bookingd"
)

// AMQPSink publishes notifications to a durable topic exchange. The routing key is the domain
// event type, e.g. booking.confirmed, so consumers can bind to booking.* or event.*.
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url string, exchange string) (*AMQPSink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, fmt.Errorf("amqp exchange is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, amqpExchangeKind, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare %q: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, channel: channel, exchange: exchange}, nil
}

func (sink *AMQPSink) Publish(ctx context.Context, message booking.OutboxMessage) error {
	publishing, err := amqpPublishing(message)
	if err != nil {
		return err
	}
	if err := sink.channel.PublishWithContext(ctx, sink.exchange, message.Event.Type.String(), false, false, publishing); err != nil {
		return fmt.Errorf("amqp publish %s: %w", message.MessageID, err)
	}
	return nil
}

func (sink *AMQPSink) Close() error {
	channelErr := sink.channel.Close()
	connErr := sink.conn.Close()
	if channelErr != nil {
		return channelErr
	}
	return connErr
}

func amqpPublishing(message booking.OutboxMessage) (amqp.Publishing, error) {
	body, err := encodeEnvelope(message)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    message.MessageID,
		Type:         message.Event.Type.String(),
		Timestamp:    time.Now().UTC(),
		AppId:        amqpAppID,
		Headers:      amqp.Table{"x-attempt": int32(message.Attempts + 1)},
		Body:         body,
	}, nil
}
