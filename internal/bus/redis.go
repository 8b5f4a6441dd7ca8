package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-renderer/pkg/schema"
)

// DefaultChannel is the channel scene producers and workers share.
const DefaultChannel = "manim_code_notifications"

var _ Bus = (*Redis)(nil)

// Redis carries status events over PUBLISH/SUBSCRIBE. Every subscriber
// receives every event.
type Redis struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

func NewRedis(client redis.UniversalClient, channel string, logger *slog.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

func (b *Redis) Publish(ctx context.Context, evt schema.StatusEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("bus/redis: encode: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("bus/redis: publish %s: %w", b.channel, err)
	}
	return nil
}

func (b *Redis) Subscribe(ctx context.Context) (<-chan schema.StatusEvent, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	// wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("bus/redis: subscribe %s: %w", b.channel, err)
	}

	msgs := ps.Channel()
	out := make(chan schema.StatusEvent, feedBuffer)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					b.logger.Warn("redis subscription closed", "channel", b.channel)
					return
				}
				forward(ctx, out, []byte(msg.Payload), b.logger)
			}
		}
	}()
	return out, nil
}

func (b *Redis) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
