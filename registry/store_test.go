package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	testCases := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{
			name:  "memory",
			store: func(t *testing.T) Store { return NewMemoryStore(0) },
		},
		{
			name: "redis",
			store: func(t *testing.T) Store {
				server := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return NewRedisStore(rdb, "test:", 0)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := tc.store(t)

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Touch(ctx, "missing", time.Now()), ErrNotFound)

			record := &Record{ID: "1", Key: "b", BaseURL: "http://localhost:5678", Endpoint: "/mcp/abc123", State: "ready"}
			require.NoError(t, store.Put(ctx, record))
			require.NoError(t, store.Put(ctx, &Record{ID: "2", Key: "a", BaseURL: "http://localhost:5679", Endpoint: "/mcp/def456"}))
			assert.False(t, record.CreatedAt.IsZero())

			actual, err := store.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, "/mcp/abc123", actual.Endpoint)
			assert.Equal(t, "ready", actual.State)
			assert.True(t, record.CreatedAt.Equal(actual.CreatedAt))

			at := record.LastUsedAt.Add(time.Minute)
			require.NoError(t, store.Touch(ctx, "b", at))
			actual, err = store.Get(ctx, "b")
			require.NoError(t, err)
			assert.True(t, at.Equal(actual.LastUsedAt))

			records, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "a", records[0].Key)
			assert.Equal(t, "b", records[1].Key)

			require.NoError(t, store.Delete(ctx, "b"))
			require.NoError(t, store.Delete(ctx, "b"))
			_, err = store.Get(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)
			records, err = store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, records, 1)
		})
	}
}

func TestRedisStore_TTL(t *testing.T) {
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer rdb.Close()
	ctx := context.Background()
	store := NewRedisStore(rdb, "", time.Minute)

	require.NoError(t, store.Put(ctx, &Record{Key: "a", Endpoint: "/mcp/abc123"}))
	assert.Equal(t, time.Minute, server.TTL("mcpsession:session:a"))

	server.FastForward(45 * time.Second)
	require.NoError(t, store.Touch(ctx, "a", time.Now()))
	server.FastForward(45 * time.Second)
	_, err := store.Get(ctx, "a")
	require.NoError(t, err, "touch extends the expiry")

	server.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.False(t, server.Exists("mcpsession:sessions"), "stale index entries are pruned")
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	require.NoError(t, store.Put(ctx, &Record{Key: "fresh"}))
	require.NoError(t, store.Put(ctx, &Record{Key: "idle", LastUsedAt: time.Now().Add(-time.Hour)}))

	_, err := store.Get(ctx, "idle")
	assert.ErrorIs(t, err, ErrNotFound)
	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Key)
}
