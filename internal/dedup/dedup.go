// Package dedup drops inbound events the transport delivers more than once.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "incidence-bot:seen:"

// Deduplicator remembers inbound message ids for a TTL.
type Deduplicator struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New returns a deduplicator. A nil client disables it.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduplicator{client: client, ttl: ttl, logger: logger}
}

// Seen reports whether the message was already claimed. Redis errors fail
// open: the message is treated as new and the error is returned for logging.
func (d *Deduplicator) Seen(ctx context.Context, conversationID, messageID string) (bool, error) {
	if d == nil || d.client == nil || messageID == "" {
		return false, nil
	}
	claimed, err := d.client.SetNX(ctx, keyPrefix+conversationID+":"+messageID, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("dedup unavailable; processing message",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", messageID),
			zap.Error(err))
		return false, err
	}
	return !claimed, nil
}
