package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/carepulse/pkg/logging"
)

// DefaultChannel is the pub/sub channel used for admin appointment events.
const DefaultChannel = "carepulse:admin:appointments"

// RedisBroker publishes envelopes over Redis pub/sub so every API replica's
// stream clients see every change.
type RedisBroker struct {
	redis   *redis.Client
	channel string
	logger  *logging.Logger
}

// NewRedisBroker creates a broker on channel (DefaultChannel when empty).
func NewRedisBroker(client *redis.Client, channel string, logger *logging.Logger) *RedisBroker {
	if client == nil {
		panic("events: redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroker{redis: client, channel: channel, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := b.redis.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}

	out := make(chan Envelope, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("dropping malformed event", "channel", b.channel, "error", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
