package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpnl/bitget-orders-go/internal/config"
)

// RedisStore implements ObjectStore on Redis for local deployments and
// tests. Object bodies live under namespaced string keys; modification
// times are tracked in a single hash so List can report them without a
// per-key round trip.
type RedisStore struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

// NewRedisClient opens a Redis connection from configuration and verifies
// it with a ping.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing Redis client as an object store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: "objects:",
		now:       time.Now,
	}
}

func (r *RedisStore) dataKey(key string) string {
	return r.namespace + key
}

func (r *RedisStore) mtimeKey() string {
	return r.namespace + "!mtime"
}

// Put stores body under key and records the modification time.
func (r *RedisStore) Put(ctx context.Context, key string, body []byte, _ string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.dataKey(key), body, 0)
	pipe.HSet(ctx, r.mtimeKey(), key, r.now().UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Get returns the body stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := r.client.Get(ctx, r.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return body, nil
}

// List scans all keys under prefix.
func (r *RedisStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	mtimes, err := r.client.HGetAll(ctx, r.mtimeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list mtimes: %w", err)
	}

	var objects []ObjectInfo
	pattern := r.dataKey(prefix) + "*"
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()[len(r.namespace):]
		if key == "!mtime" {
			continue
		}
		info := ObjectInfo{Key: key}
		if raw, ok := mtimes[key]; ok {
			if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				info.LastModified = time.UnixMilli(ms).UTC()
			}
		}
		if size, serr := r.client.StrLen(ctx, iter.Val()).Result(); serr == nil {
			info.Size = size
		}
		objects = append(objects, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	return objects, nil
}

// Delete removes the given keys and their modification records.
func (r *RedisStore) Delete(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	dataKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		dataKeys = append(dataKeys, r.dataKey(key))
	}
	deleted, err := r.client.Del(ctx, dataKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete: %w", err)
	}
	if err := r.client.HDel(ctx, r.mtimeKey(), keys...).Err(); err != nil {
		return int(deleted), fmt.Errorf("redis delete mtimes: %w", err)
	}
	return int(deleted), nil
}

// Presign is unsupported for the Redis backend; callers fall back to
// serving artifact bytes directly.
func (r *RedisStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "", fmt.Errorf("presign not supported by redis store for %s", key)
}
