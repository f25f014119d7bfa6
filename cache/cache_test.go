package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromRedis(rdb, zap.NewNop()), mr
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("miss on absent key", func(t *testing.T) {
		client, _ := newTestClient(t)
		raw, found := client.Get(ctx, "nope", nil)
		assert.False(t, found)
		assert.Empty(t, raw)
	})

	t.Run("json round trip", func(t *testing.T) {
		client, _ := newTestClient(t)
		require.True(t, client.Set(ctx, "snap", map[string]any{"id": 7}, time.Minute))

		var dest map[string]any
		_, found := client.Get(ctx, "snap", &dest)
		require.True(t, found)
		assert.Equal(t, float64(7), dest["id"])
	})

	t.Run("tolerant of non-json values", func(t *testing.T) {
		client, mr := newTestClient(t)
		mr.Set("raw", "nicht json {")

		var dest map[string]any
		raw, found := client.Get(ctx, "raw", &dest)
		assert.True(t, found)
		assert.Equal(t, "nicht json {", raw)
		assert.Nil(t, dest)
	})
}

func TestSet(t *testing.T) {
	ctx := context.Background()

	t.Run("applies ttl", func(t *testing.T) {
		client, mr := newTestClient(t)
		require.True(t, client.Set(ctx, "k", "v", time.Minute))
		assert.Equal(t, time.Minute, mr.TTL("k"))
	})

	t.Run("set string without expiry", func(t *testing.T) {
		client, mr := newTestClient(t)
		require.True(t, client.SetString(ctx, "version", "3", 0))
		assert.Equal(t, time.Duration(0), mr.TTL("version"))

		got, found := client.GetString(ctx, "version")
		require.True(t, found)
		assert.Equal(t, "3", got)
	})
}

func TestIncr(t *testing.T) {
	ctx := context.Background()

	t.Run("creates at one", func(t *testing.T) {
		client, _ := newTestClient(t)
		assert.Equal(t, int64(1), client.Incr(ctx, "counter"))
		assert.Equal(t, int64(2), client.Incr(ctx, "counter"))
	})

	t.Run("no lost update under concurrency", func(t *testing.T) {
		client, _ := newTestClient(t)
		require.True(t, client.SeedCounter(ctx, "views", 10))

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				client.Incr(ctx, "views")
			}()
		}
		wg.Wait()

		got, found := client.GetString(ctx, "views")
		require.True(t, found)
		assert.Equal(t, "12", got)
	})
}

func TestSeedCounter(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.True(t, client.SeedCounter(ctx, "views", 10))
	require.True(t, client.SeedCounter(ctx, "views", 99))

	got, _ := client.GetString(ctx, "views")
	assert.Equal(t, "10", got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	mr.Set("a", "1")
	mr.Set("b", "2")

	require.True(t, client.Delete(ctx, "a", "b"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	mr.Set("article:1:views", "5")
	mr.Set("article:7:views", "42")
	mr.Set("article:1", "{}")
	mr.Set("resources:list:version", "3")

	keys, err := client.Scan(ctx, ViewsKeyPattern)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"article:1:views", "article:7:views"}, keys)
}

func TestParseArticleViewsKey(t *testing.T) {
	id, ok := ParseArticleViewsKey("article:42:views")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, key := range []string{"article:abc:views", "article:1", "other:1:views", "article:1:views:extra", ""} {
		_, ok := ParseArticleViewsKey(key)
		assert.False(t, ok, key)
	}
}

func TestResourceListKey(t *testing.T) {
	assert.Equal(t, "resources:list:v3:1:10:image", ResourceListKey("3", 1, 10, "image"))
	assert.Equal(t, "resources:list:v0:2:20:all", ResourceListKey("0", 2, 20, ""))
}
