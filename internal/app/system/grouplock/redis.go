package grouplock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a group.
	DefaultTTL = 2 * time.Minute

	minRetry = 25 * time.Millisecond
	maxRetry = 500 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every process using the same Redis server. Each
// acquisition stores a random token with a TTL; release removes the key only
// when the token still matches.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewRedis returns a Redis lock. ttl <= 0 selects DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, prefix: "buddyhub:lock:", log: logger}
}

// Lock retries SET NX with exponential backoff until it succeeds or ctx ends.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()
	wait := minRetry

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-t.C:
		}
		if wait *= 2; wait > maxRetry {
			wait = maxRetry
		}
	}

	return func() {
		// The caller's context may already be done; release on our own clock.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.log.Warn("release group lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
