// Package matchcache remembers selfie/event pairs that recently produced no
// face match, so a repeated request does not reach the search host again.
// Callers scope entries to a state of the event's media; a new scope starts
// with no remembered misses.
package matchcache

import (
	"context"
	"fmt"
	"time"

	"photomatch/src/app"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultTTL  = 24 * time.Hour
	defaultSize = 4096
	keyPrefix   = "photomatch:miss:"
)

// MissCache records misses for a bounded time.
type MissCache interface {
	Seen(ctx context.Context, selfieKey, scope string) (bool, error)
	Record(ctx context.Context, selfieKey, scope string) error
}

// Scope names an event at one revision. Any write to the event, an upload
// or delete included, moves it to a new scope.
func Scope(eventID string, version int64) string {
	return fmt.Sprintf("%s@%d", eventID, version)
}

// Key is the cache key of a (selfie, scope) pair.
func Key(selfieKey, scope string) string {
	return keyPrefix + scope + ":" + selfieKey
}

// LRUCache is a process-local MissCache.
type LRUCache struct {
	cache *expirable.LRU[string, struct{}]
}

var _ MissCache = (*LRUCache)(nil)

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LRUCache{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (c *LRUCache) Seen(_ context.Context, selfieKey, scope string) (bool, error) {
	_, ok := c.cache.Get(Key(selfieKey, scope))
	return ok, nil
}

func (c *LRUCache) Record(_ context.Context, selfieKey, scope string) error {
	c.cache.Add(Key(selfieKey, scope), struct{}{})
	return nil
}

func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// RedisCache shares misses between instances through Redis key expiry.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ MissCache = (*RedisCache)(nil)

// NewRedisCache connects to url (redis://[:password@]host:port/db) and
// checks the connection.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, app.External("redis", err)
	}
	return NewRedisCacheWith(client, ttl), nil
}

func NewRedisCacheWith(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Seen(ctx context.Context, selfieKey, scope string) (bool, error) {
	n, err := c.client.Exists(ctx, Key(selfieKey, scope)).Result()
	if err != nil {
		return false, app.External("redis", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Record(ctx context.Context, selfieKey, scope string) error {
	if err := c.client.Set(ctx, Key(selfieKey, scope), time.Now().UTC().Format(time.RFC3339), c.ttl).Err(); err != nil {
		return app.External("redis", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
