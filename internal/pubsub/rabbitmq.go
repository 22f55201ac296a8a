package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventsExchange is the topic exchange lifecycle events are forwarded to.
const EventsExchange = "bounty.events"

// RabbitForwarder publishes events to a durable topic exchange. The routing
// key is "<channel kind>.<event type>", e.g. "bounty.submission.approved".
type RabbitForwarder struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewRabbitForwarder(amqpURL string, log *zap.Logger) (*RabbitForwarder, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	f := &RabbitForwarder{conn: conn, channel: ch, exchange: EventsExchange, log: log}
	if err := f.declare(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (f *RabbitForwarder) declare() error {
	if err := f.channel.ExchangeDeclare(f.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", f.exchange, err)
	}
	return nil
}

// Forward publishes event, reopening the channel once if the publish fails.
func (f *RabbitForwarder) Forward(ctx context.Context, channel string, event map[string]interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"channel": channel},
		Body:         body,
	}
	key := RoutingKey(channel, event)

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.channel.PublishWithContext(ctx, f.exchange, key, false, false, msg)
	if err == nil {
		return nil
	}
	f.log.Warn("Publish failed; reopening channel", zap.String("routing_key", key), zap.Error(err))

	ch, chErr := f.conn.Channel()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	f.channel = ch
	if err := f.declare(); err != nil {
		return err
	}
	return f.channel.PublishWithContext(ctx, f.exchange, key, false, false, msg)
}

func (f *RabbitForwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channel != nil {
		f.channel.Close()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}

// RoutingKey derives the topic routing key for an event on channel.
func RoutingKey(channel string, event map[string]interface{}) string {
	kind := channel
	if i := strings.IndexByte(channel, ':'); i >= 0 {
		kind = channel[:i]
	}
	typ, _ := event["type"].(string)
	if typ == "" {
		typ = "event"
	}
	return kind + "." + typ
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
