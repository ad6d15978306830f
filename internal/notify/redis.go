package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-core/internal/domain"
)

// Publisher is the part of *redis.Client the channel needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisChannel publishes notifications on a per-recipient pub/sub channel
// named "<prefix>:<recipientId>".
type RedisChannel struct {
	client Publisher
	prefix string
}

// NewRedisChannel returns nil when client is nil so callers can pass it
// straight to NewMulti.
func NewRedisChannel(client Publisher, prefix string) Channel {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "notifications"
	}
	return &RedisChannel{client: client, prefix: prefix}
}

func (c *RedisChannel) Name() string { return "redis" }

// Topic returns the pub/sub channel for a recipient.
func (c *RedisChannel) Topic(recipientID string) string {
	return c.prefix + ":" + recipientID
}

func (c *RedisChannel) Deliver(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(NewPayload(n))
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.Topic(n.RecipientID), body).Err()
}
