package order

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	retryKeyPrefix = "order:retry:"
	retryKeyTTL    = 24 * time.Hour
)

// RetryLedger counts delivery attempts per message id so poison messages can
// be dead-lettered after a bounded number of redeliveries. The count must
// survive process restarts, which is why it lives outside process memory.
type RetryLedger interface {
	Bump(ctx context.Context, messageID string) (int64, error)

	// Clear drops the attempt count once the message reaches a terminal
	// outcome, so stale counts never linger until the TTL.
	Clear(ctx context.Context, messageID string) error
}

// RedisRetryLedger implements RetryLedger on Redis.
type RedisRetryLedger struct {
	client *redis.Client
}

// NewRedisRetryLedger creates a new RedisRetryLedger instance.
func NewRedisRetryLedger(client *redis.Client) *RedisRetryLedger {
	return &RedisRetryLedger{client: client}
}

func (l *RedisRetryLedger) Bump(ctx context.Context, messageID string) (int64, error) {
	key := retryKeyPrefix + messageID
	attempts, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("order: bump retry count: %w", err)
	}
	if attempts == 1 {
		// Best effort; an unexpired key only delays dead-lettering.
		_ = l.client.Expire(ctx, key, retryKeyTTL).Err()
	}
	return attempts, nil
}

func (l *RedisRetryLedger) Clear(ctx context.Context, messageID string) error {
	if err := l.client.Del(ctx, retryKeyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("order: clear retry count: %w", err)
	}
	return nil
}
