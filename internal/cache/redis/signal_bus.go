package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// eventBuffer is how many engine events a slow subscriber may lag behind
// before delivery blocks on it.
const eventBuffer = 128

// SignalBus carries engine events (domain.ChannelOpportunity,
// domain.ChannelTrade and domain.ChannelRisk) over Redis Pub/Sub so an
// API-only replica can stream what a trading replica detects and executes.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a bus on the shared connection pool.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish broadcasts one encoded event. Events published while nobody is
// subscribed are dropped by Redis.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: signal bus publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams events for channel until ctx ends. A glob such as
// "arb:*" subscribes to every engine channel at once.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var sub *redis.PubSub
	if isGlob(channel) {
		sub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		sub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: signal bus subscribe to %s: %w", channel, err)
	}

	events := make(chan []byte, eventBuffer)
	go forwardEvents(ctx, sub, events)
	return events, nil
}

func forwardEvents(ctx context.Context, sub *redis.PubSub, events chan<- []byte) {
	defer close(events)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case events <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func isGlob(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.SignalBus = (*SignalBus)(nil)
