package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamEvent is an event read back from a channel's stream.
type StreamEvent struct {
	Channel   string
	Sequence  int64
	Event     map[string]interface{}
	Timestamp time.Time
}

// Streams keeps a capped, sequenced copy of each channel for replay.
type Streams struct {
	rdb    *redis.Client
	log    *zap.Logger
	maxLen int64
}

func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	return &Streams{
		rdb:    rdb,
		log:    log,
		maxLen: 1000,
	}
}

// PublishEvent appends event to the channel's stream and returns its sequence.
func (s *Streams) PublishEvent(ctx context.Context, channel string, event map[string]interface{}) (int64, error) {
	seq, err := s.rdb.Incr(ctx, "seq:"+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "stream:" + channel,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":  seq,
			"ts":   time.Now().UTC().Format(time.RFC3339Nano),
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return 0, fmt.Errorf("failed to add to stream: %w", err)
	}
	return seq, nil
}

// GetLastSequence returns the last sequence a connection acknowledged on channel.
func (s *Streams) GetLastSequence(channel, connectionID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	val, err := s.rdb.Get(ctx, ackKey(channel, connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last sequence: %w", err)
	}
	seq, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sequence: %w", err)
	}
	return seq, nil
}

// AcknowledgeSequence records an acknowledgment for a sequence number
func (s *Streams) AcknowledgeSequence(channel, connectionID string, sequence int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, ackKey(channel, connectionID), sequence, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge sequence: %w", err)
	}
	return nil
}

// ReplayEvents returns up to limit events with a sequence above sinceSeq.
func (s *Streams) ReplayEvents(channel string, sinceSeq int64, limit int64) ([]StreamEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msgs, err := s.rdb.XRange(ctx, "stream:"+channel, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := []StreamEvent{}
	for _, msg := range msgs {
		ev, ok := decodeMessage(channel, msg.Values)
		if !ok {
			s.log.Warn("Skipping malformed stream entry", zap.String("channel", channel), zap.String("id", msg.ID))
			continue
		}
		if ev.Sequence <= sinceSeq {
			continue
		}
		events = append(events, ev)
		if limit > 0 && int64(len(events)) >= limit {
			break
		}
	}
	return events, nil
}

func decodeMessage(channel string, values map[string]interface{}) (StreamEvent, bool) {
	data, _ := values["data"].(string)
	seqStr, _ := values["seq"].(string)
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if data == "" || err != nil {
		return StreamEvent{}, false
	}
	var event map[string]interface{}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return StreamEvent{}, false
	}
	ts, _ := values["ts"].(string)
	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		timestamp = time.Now().UTC()
	}
	return StreamEvent{Channel: channel, Sequence: seq, Event: event, Timestamp: timestamp}, true
}

func ackKey(channel, connectionID string) string {
	return "ack:" + channel + ":" + connectionID
}
