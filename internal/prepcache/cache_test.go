package prepcache

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyField(t *testing.T) {
	assert.Equal(t, "12:en", Key{UserID: 1, DocumentID: 12, Language: " EN "}.field())
	assert.Equal(t, "prep_cache:5", userHash(5))
}

func TestValidate(t *testing.T) {
	c := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	_, _, err := c.Get(context.Background(), Key{UserID: 1, Language: "en"})
	require.ErrorIs(t, err, ErrInvalidKey)
	require.ErrorIs(t, c.Put(context.Background(), Key{UserID: 1, DocumentID: 2}, "x"), ErrInvalidKey)
}

// 需要真实 Redis：REDIS_TEST_ADDR=localhost:6379 go test ./internal/prepcache
func TestCache_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	c := New(rdb)
	const user = 424242
	require.NoError(t, c.Clear(ctx, user))

	_, ok, err := c.Get(ctx, Key{UserID: user, DocumentID: 1, Language: "en"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, Key{UserID: user, DocumentID: 1, Language: "en"}, "hello"))
	require.NoError(t, c.Put(ctx, Key{UserID: user, DocumentID: 1, Language: "de"}, "hallo"))
	require.NoError(t, c.Put(ctx, Key{UserID: user, DocumentID: 2, Language: "en"}, "other"))

	v, ok, err := c.Get(ctx, Key{UserID: user, DocumentID: 1, Language: "EN"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	require.NoError(t, c.ClearDocument(ctx, user, 1))
	_, ok, _ = c.Get(ctx, Key{UserID: user, DocumentID: 1, Language: "de"})
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, Key{UserID: user, DocumentID: 2, Language: "en"})
	assert.True(t, ok)

	require.NoError(t, c.Clear(ctx, user))
	_, ok, _ = c.Get(ctx, Key{UserID: user, DocumentID: 2, Language: "en"})
	assert.False(t, ok)
}
