package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of *redis.Client used by Consumer.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XPendingExt(ctx context.Context, args *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, args *redis.XClaimArgs) *redis.XMessageSliceCmd
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// Message is one event read back from a stream written by the outbox relay.
type Message struct {
	ID          string
	EventType   string
	AggregateID string
	Payload     []byte
}

// Handler processes a message. Messages whose handler fails stay pending in
// the consumer group until Reclaim redelivers them.
type Handler func(ctx context.Context, msg Message) error

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration

	// MinIdle is how long a message must sit unacknowledged before it is
	// claimed for another attempt.
	MinIdle time.Duration

	// MaxDeliveries caps the attempts per message. Messages past the cap go
	// to DeadLetterStream and are acknowledged.
	MaxDeliveries    int64
	DeadLetterStream string
}

// Consumer reads a Redis stream through a consumer group.
type Consumer struct {
	client StreamClient
	cfg    ConsumerConfig
	logger *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 30 * time.Second
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if cfg.DeadLetterStream == "" {
		cfg.DeadLetterStream = cfg.Stream + ":dead_letter"
	}

	return &Consumer{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run creates the consumer group if needed and handles messages until ctx
// is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "consumer", c.cfg.Consumer)

	var lastReclaim time.Time
	for {
		if time.Since(lastReclaim) >= c.cfg.MinIdle {
			if _, err := c.Reclaim(ctx, handle); err != nil && ctx.Err() == nil {
				c.logger.Error("failed to reclaim pending messages", "error", err)
			}
			lastReclaim = time.Now()
		}

		if _, err := c.ReadOnce(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ReadOnce reads one batch and returns how many messages were acknowledged.
func (c *Consumer) ReadOnce(ctx context.Context, handle Handler) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			if c.process(ctx, handle, xmsg) {
				acked++
			}
		}
	}

	return acked, nil
}

// Reclaim claims messages that have been pending for at least MinIdle,
// including those left behind by other consumers, and hands them to handle
// again. Messages that reached MaxDeliveries are moved to the dead letter
// stream instead. It returns how many messages were acknowledged.
func (c *Consumer) Reclaim(ctx context.Context, handle Handler) (int, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.Count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list pending messages: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	deliveries := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to claim pending messages: %w", err)
	}

	acked := 0
	for _, xmsg := range claimed {
		if deliveries[xmsg.ID] >= c.cfg.MaxDeliveries {
			if c.deadLetter(ctx, xmsg, deliveries[xmsg.ID]) {
				acked++
			}
			continue
		}

		if c.process(ctx, handle, xmsg) {
			acked++
		}
	}

	return acked, nil
}

func (c *Consumer) process(ctx context.Context, handle Handler, xmsg redis.XMessage) bool {
	msg := toMessage(xmsg)

	if err := handle(ctx, msg); err != nil {
		c.logger.Error("failed to process message", "id", msg.ID, "event_type", msg.EventType, "error", err)
		return false
	}

	return c.ack(ctx, msg.ID)
}

func (c *Consumer) deadLetter(ctx context.Context, xmsg redis.XMessage, deliveries int64) bool {
	values := make(map[string]interface{}, len(xmsg.Values)+2)
	for k, v := range xmsg.Values {
		values[k] = v
	}
	values["original_id"] = xmsg.ID
	values["deliveries"] = deliveries

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DeadLetterStream,
		Values: values,
	}).Err(); err != nil {
		c.logger.Error("failed to dead-letter message", "id", xmsg.ID, "error", err)
		return false
	}

	c.logger.Warn("message dead-lettered", "id", xmsg.ID, "deliveries", deliveries, "dead_letter_stream", c.cfg.DeadLetterStream)
	return c.ack(ctx, xmsg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) bool {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", id, "error", err)
		return false
	}
	return true
}

func toMessage(xmsg redis.XMessage) Message {
	msg := Message{ID: xmsg.ID}
	if v, ok := xmsg.Values["event_type"].(string); ok {
		msg.EventType = v
	}
	if v, ok := xmsg.Values["aggregate_id"].(string); ok {
		msg.AggregateID = v
	}
	if v, ok := xmsg.Values["payload"].(string); ok {
		msg.Payload = []byte(v)
	}
	return msg
}
