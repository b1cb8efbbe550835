package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*RedisStore, func()) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cleanup := func() {
		client.Close()
		s.Close()
	}
	return NewRedisStore(client), cleanup
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	body := []byte(`{"orders":[]}`)
	require.NoError(t, store.Put(ctx, "symbol_results/BTCUSDT_1.json", body, "application/json"))

	got, err := store.Get(ctx, "symbol_results/BTCUSDT_1.json")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "nope.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ListByPrefix(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "symbol_results/BTCUSDT_1.json", []byte("abc"), ""))
	require.NoError(t, store.Put(ctx, "symbol_results/ETHUSDT_1.json", []byte("defg"), ""))
	require.NoError(t, store.Put(ctx, "results/1_run.json", []byte("x"), ""))

	objects, err := store.List(ctx, "symbol_results/")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	byKey := make(map[string]ObjectInfo)
	for _, obj := range objects {
		byKey[obj.Key] = obj
	}
	info, ok := byKey["symbol_results/BTCUSDT_1.json"]
	require.True(t, ok)
	assert.Equal(t, int64(3), info.Size)
	assert.False(t, info.LastModified.IsZero())

	_, hasOther := byKey["results/1_run.json"]
	assert.False(t, hasOther)
}

func TestRedisStore_ListEmptyPrefix(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	objects, err := store.List(context.Background(), "missing/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestRedisStore_Delete(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a.json", []byte("1"), ""))
	require.NoError(t, store.Put(ctx, "b.json", []byte("2"), ""))

	deleted, err := store.Delete(ctx, []string{"a.json", "b.json", "ghost.json"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.Get(ctx, "a.json")
	assert.ErrorIs(t, err, ErrNotFound)

	objects, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestRedisStore_DeleteNothing(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	deleted, err := store.Delete(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRedisStore_OverwriteUpdatesMtime(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a.json", []byte("v1"), ""))
	objects, err := store.List(ctx, "a.json")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	first := objects[0].LastModified

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Put(ctx, "a.json", []byte("v2"), ""))
	objects, err = store.List(ctx, "a.json")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.True(t, objects[0].LastModified.After(first))

	got, err := store.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestRedisStore_PresignUnsupported(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.Presign(context.Background(), "a.json", time.Hour)
	assert.Error(t, err)
}
