// Package grouplock provides the per-group mutual exclusion shared by buddy
// cycle runs and mid-cycle repairs.
//
// Local serializes callers within one process. Redis serializes callers across
// processes sharing a Redis server.
package grouplock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// caller's context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Connect initializes a Redis client from a redis:// URL or a host:port
// address and verifies it with a PING.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
