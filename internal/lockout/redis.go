package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lockout:"

// RedisStore counts failures in a per-identifier key whose TTL is the lock
// window. Every failure refreshes the TTL, so key expiry implements the
// lazy counter reset: once the window since the last failure elapses the
// key is simply gone. INCR is atomic, so concurrent failures never lose an
// increment.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(identifier string) string {
	return redisKeyPrefix + identifier
}

func (s *RedisStore) IsLocked(ctx context.Context, identifier string) (bool, error) {
	count, err := s.client.Get(ctx, s.key(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get lockout counter: %w", err)
	}
	return count >= Threshold, nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, identifier string) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, s.key(identifier))
	pipe.Expire(ctx, s.key(identifier), Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment lockout counter: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordSuccess(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("clear lockout counter: %w", err)
	}
	return nil
}

func (s *RedisStore) Unlock(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("unlock lockout counter: %w", err)
	}
	return nil
}

// DeleteOlderThan is satisfied by key TTLs; Redis prunes expired counters
// on its own, so a sweep has nothing to delete.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
