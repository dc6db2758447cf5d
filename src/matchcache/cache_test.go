package matchcache

import (
	"context"
	"testing"
	"time"

	"photomatch/src/app"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, time.Hour)

	seen, err := c.Seen(ctx, "selfie.jpg", "100001")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.Record(ctx, "selfie.jpg", "100001"))
	seen, _ = c.Seen(ctx, "selfie.jpg", "100001")
	assert.True(t, seen)

	seen, _ = c.Seen(ctx, "selfie.jpg", "100002")
	assert.False(t, seen, "misses are per event")
}

func TestScopeChangesWithVersion(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(8, time.Hour)
	require.NoError(t, c.Record(ctx, "selfie.jpg", Scope("100001", 3)))

	seen, _ := c.Seen(ctx, "selfie.jpg", Scope("100001", 3))
	assert.True(t, seen)
	seen, _ = c.Seen(ctx, "selfie.jpg", Scope("100001", 4))
	assert.False(t, seen, "a newer revision has no remembered misses")
}

func TestLRUCacheBounded(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, time.Hour)
	for _, e := range []string{"1", "2", "3"} {
		require.NoError(t, c.Record(ctx, "s", e))
	}
	assert.Equal(t, 2, c.Len())
	seen, _ := c.Seen(ctx, "s", "1")
	assert.False(t, seen, "oldest evicted")
}

func TestLRUCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(8, 20*time.Millisecond)
	require.NoError(t, c.Record(ctx, "s", "1"))
	assert.Eventually(t, func() bool {
		seen, _ := c.Seen(ctx, "s", "1")
		return !seen
	}, time.Second, 10*time.Millisecond)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "photomatch:miss:100001@2:users/u/selfies/a.jpg", Key("users/u/selfies/a.jpg", Scope("100001", 2)))
}

func TestRedisCacheUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, "not a url", time.Minute)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	c := NewRedisCacheWith(client, time.Minute)
	defer c.Close()
	_, err = c.Seen(ctx, "s", "1")
	var ext *app.ExternalServiceError
	assert.ErrorAs(t, err, &ext)
}
