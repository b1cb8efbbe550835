package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SymbolCacheEntry represents a cached symbol list with metadata.
type SymbolCacheEntry struct {
	Symbols   []string  `json:"symbols"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SymbolCacheStats tracks cache performance counters.
type SymbolCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisSymbolCache caches discovered symbol lists per product type so
// repeated extraction requests skip the contract-listing round trip.
type RedisSymbolCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *SymbolCacheStats
	prefix string
	logger *logrus.Logger
}

// NewRedisSymbolCache creates a new Redis-backed symbol cache.
func NewRedisSymbolCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSymbolCache {
	return &RedisSymbolCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &SymbolCacheStats{},
		prefix: "symbol_cache:",
		logger: logger,
	}
}

// Get retrieves the cached symbol list for a product type.
func (c *RedisSymbolCache) Get(ctx context.Context, productType string) ([]string, bool) {
	cacheKey := c.prefix + productType

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("product_type", productType).Warn("Redis error getting cached symbols")
		c.miss()
		return nil, false
	}

	var entry SymbolCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).WithField("product_type", productType).Warn("Error deserializing cached symbols")
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()

	return entry.Symbols, true
}

// Set stores a symbol list for a product type with the configured TTL.
func (c *RedisSymbolCache) Set(ctx context.Context, productType string, symbols []string) {
	cacheKey := c.prefix + productType

	now := time.Now()
	entry := SymbolCacheEntry{
		Symbols:   symbols,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).WithField("product_type", productType).Warn("Error serializing symbols")
		return
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("product_type", productType).Warn("Redis error setting cached symbols")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"product_type": productType,
		"symbols":      len(symbols),
		"ttl":          c.ttl,
	}).Debug("Cached symbol list")
}

// Clear removes all cached symbol lists.
func (c *RedisSymbolCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}
	return nil
}

// GetStats returns current cache statistics.
func (c *RedisSymbolCache) GetStats() SymbolCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return SymbolCacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

func (c *RedisSymbolCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
