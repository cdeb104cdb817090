package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when this instance still owns it, so
// an expired lease re-acquired by another instance is never released from
// under it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLeaser provides per-domain mutual exclusion across engine instances:
// a SET NX lease with a TTL bounding how long a crashed holder can block a
// domain.
type RedisLeaser struct {
	client   *redis.Client
	instance string
	ttl      time.Duration
}

// NewRedisLeaser creates a leaser from a Redis URL, verifying connectivity.
func NewRedisLeaser(url string, ttl time.Duration) (*RedisLeaser, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLeaser{
		client:   client,
		instance: uuid.NewString(),
		ttl:      ttl,
	}, nil
}

// Acquire attempts to take the distribution lease for a domain. Returns
// false when another instance currently holds it.
func (l *RedisLeaser) Acquire(ctx context.Context, domainID uuid.UUID) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKey(domainID), l.instance, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return ok, nil
}

// Release gives the lease back if this instance still holds it.
func (l *RedisLeaser) Release(ctx context.Context, domainID uuid.UUID) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(domainID)}, l.instance).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (l *RedisLeaser) Close() error {
	return l.client.Close()
}

func leaseKey(domainID uuid.UUID) string {
	return "lease:distribution:" + domainID.String()
}
