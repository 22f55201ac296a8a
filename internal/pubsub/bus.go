package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// SupportChannel receives incidents that need manual reconciliation.
	SupportChannel = "support:incidents"

	publishTimeout = 2 * time.Second
)

// Bus fans lifecycle events out to Redis pub/sub, Redis Streams, the
// websocket hub and an optional broker. Every sink is best effort.
type Bus struct {
	rdb       *redis.Client
	log       *zap.Logger
	wsHub     WSHub
	streams   *Streams
	forwarder Forwarder
}

type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

// Forwarder relays events to an external broker.
type Forwarder interface {
	Forward(ctx context.Context, channel string, event map[string]interface{}) error
}

// New creates a bus. A nil client disables Redis delivery and replay.
func New(rdb *redis.Client, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{rdb: rdb, log: log}
	if rdb != nil {
		b.streams = NewStreams(rdb, log)
	}
	return b
}

// SetWSHub sets the WebSocket hub for event broadcasting
func (b *Bus) SetWSHub(hub WSHub) {
	b.wsHub = hub
}

// SetForwarder sets the broker that receives a copy of every event
func (b *Bus) SetForwarder(f Forwarder) {
	b.forwarder = f
}

// GetStreams returns the streams provider, or nil without Redis
func (b *Bus) GetStreams() *Streams {
	return b.streams
}

// PublishBounty publishes an event to a bounty's channel
func (b *Bus) PublishBounty(bountyID string, event map[string]interface{}) error {
	return b.Publish("bounty:"+bountyID, event)
}

// PublishUser publishes an event to a user's channel
func (b *Bus) PublishUser(userID string, event map[string]interface{}) error {
	return b.Publish("user:"+userID, event)
}

// PublishSupport publishes an event to the support escalation channel
func (b *Bus) PublishSupport(event map[string]interface{}) error {
	return b.Publish(SupportChannel, event)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(channel string, event map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var seq int64
	var publishErr error
	if b.rdb != nil {
		if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
			b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
			publishErr = err
		}
		if seq, err = b.streams.PublishEvent(ctx, channel, event); err != nil {
			b.log.Warn("Failed to publish to stream", zap.String("channel", channel), zap.Error(err))
		}
	}

	if b.wsHub != nil {
		eventWithSeq := make(map[string]interface{}, len(event)+1)
		for k, v := range event {
			eventWithSeq[k] = v
		}
		eventWithSeq["seq"] = seq
		b.wsHub.Publish(channel, eventWithSeq)
	}

	if b.forwarder != nil {
		if err := b.forwarder.Forward(ctx, channel, event); err != nil {
			b.log.Warn("Failed to forward event", zap.String("channel", channel), zap.Error(err))
		}
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.Int64("seq", seq), zap.ByteString("event", data))
	return publishErr
}
