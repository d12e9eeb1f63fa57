package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis lock defaults
const (
	DefaultTTL        = 5 * time.Minute
	DefaultRetryEvery = 50 * time.Millisecond
	keyPrefix         = "workforce:lock:"
)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript resets the lease TTL only if the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared across processes through a Redis SET NX lease.
// The lease is renewed every ttl/3 while held. A holder that dies releases
// the key when the TTL expires.
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryEvery time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis locker. Zero durations use the defaults.
func NewRedis(client redis.UniversalClient, ttl, retryEvery time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if retryEvery <= 0 {
		retryEvery = DefaultRetryEvery
	}
	return &Redis{client: client, ttl: ttl, retryEvery: retryEvery}
}

// NewRedisFromURL parses a redis:// URL, pings the server and returns a locker
// whose lease lasts ttl (DefaultTTL when zero).
func NewRedisFromURL(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedis(client, ttl, 0), nil
}

// Lock polls until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go r.renew(redisKey, token, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed

			// Release even when the caller's context is already cancelled.
			// A failed release expires with the TTL.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = unlockScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// renew extends the lease until stop is closed or the key no longer holds token.
// Transient errors are retried on the next tick.
func (r *Redis) renew(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		n, err := renewScript.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int()
		cancel()
		if err == nil && n == 0 {
			return
		}
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
