// Package locker provides a Redis-backed advisory lock used to serialize
// concurrent runs against the same resource (e.g., one quote).
// This is part of the platform layer and contains no business logic.
package locker

import (
	"context"
	"crypto/tls"
	"time"

	"salesops_backend/platform/apperr"
	"salesops_backend/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds our token, so an
// expired lease re-acquired by another run is never released by the old owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires and releases advisory leases in Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Locker from the Redis configuration. The ttl bounds how long
// a crashed holder can block other runs.
func New(cfg config.RedisConfig, ttl time.Duration) (*Locker, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Locker{
		client: redis.NewClient(opt),
		ttl:    ttl,
	}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests and by callers
// that share one client across concerns.
func NewWithClient(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lease for the given key. On success it returns a release
// function that must be called when the protected work finishes. If the lease
// is already held, a KindConflict error is returned.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("another update is already running for this quote")
	}

	release := func() {
		// Release runs in defer paths after the request context may be gone.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Result()
	}
	return release, nil
}

// Close releases the underlying Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}
