// Package keylock serialises work per key, either inside one process or across
// processes sharing a Redis instance.
package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-risk-engine/pkg/cache"
)

// Locker acquires an exclusive hold on a key. The returned func releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type localEntry struct {
	slot chan struct{}
	refs int
}

// Local is an in-process Locker backed by one single-slot channel per active key.
// Entries are reference counted and dropped once no goroutine holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocal constructs an empty in-process locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.slot
				l.release(key, entry)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Local) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ErrLockLost is logged by callers when a Redis lease expired before release.
var ErrLockLost = errors.New("keylock: lease expired before release")

// Redis is a Locker using SET NX PX leases. A lease that outlives TTL is
// released by Redis, so callers must keep critical sections shorter than TTL
// and rely on storage constraints for the remaining window.
type Redis struct {
	client   redis.UniversalClient
	ttl      time.Duration
	interval time.Duration
	onLost   func(key string, err error)
}

// RedisOption customises the Redis locker.
type RedisOption func(*Redis)

// WithRetryInterval overrides the poll interval used while waiting for a held key.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLostHandler registers a callback invoked when releasing finds the lease already gone.
func WithLostHandler(fn func(key string, err error)) RedisOption {
	return func(r *Redis) {
		r.onLost = fn
	}
}

// NewRedis constructs a Redis-backed locker.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r := &Redis{client: client, ttl: ttl, interval: 25 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lock polls SET NX until the lease is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := cache.Key("lock", key)
	token := uuid.NewString()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		acquired, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			deleted, err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Int()
			if r.onLost == nil {
				return
			}
			if err != nil {
				r.onLost(key, err)
			} else if deleted == 0 {
				r.onLost(key, ErrLockLost)
			}
		})
	}, nil
}
