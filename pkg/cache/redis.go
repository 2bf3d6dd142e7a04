package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/restakelabs/restakex/pkg/utils"
	"go.uber.org/zap"
)

// RedisCache is the shared-deployment alternative to the disk cache: same
// Store contract, expiry delegated to Redis. Selected with CACHE_BACKEND=redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to Redis using environment variables:
//   - REDIS_HOST: Redis host (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_DB: Redis database number (default: "0")
func NewRedisCache(ctx context.Context, logger *zap.Logger) (*RedisCache, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)

	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Redis cache connected", zap.String("addr", addr), zap.Int("db", db))
	return &RedisCache{
		client: rdb,
		logger: logger.With(zap.String("component", "redis_cache")),
	}, nil
}

func redisKey(ns Namespace, key string) string {
	return "cache:" + string(ns) + ":" + key
}

// Get implements Store.
func (c *RedisCache) Get(ctx context.Context, ns Namespace, key string, out any) bool {
	if !ns.Valid() {
		return false
	}
	raw, err := c.client.Get(ctx, redisKey(ns, key)).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("Cache payload corrupt, treating as miss",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, redisKey(ns, key)).Err()
		return false
	}
	return true
}

// Put implements Store.
func (c *RedisCache) Put(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) {
	if !ns.Valid() {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Unable to encode cache payload",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKey(ns, key), raw, ttl).Err(); err != nil {
		c.logger.Warn("Unable to persist cache entry",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
	}
}

// Stats implements Store by scanning each namespace prefix.
func (c *RedisCache) Stats(ctx context.Context) (map[Namespace]NamespaceStats, error) {
	out := make(map[Namespace]NamespaceStats, len(Namespaces))
	for _, ns := range Namespaces {
		var stats NamespaceStats
		iter := c.client.Scan(ctx, 0, redisKey(ns, "*"), 0).Iterator()
		for iter.Next(ctx) {
			size, err := c.client.StrLen(ctx, iter.Val()).Result()
			if err != nil {
				continue
			}
			stats.Count++
			stats.TotalSizeBytes += size
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("scan namespace %s: %w", ns, err)
		}
		out[ns] = stats
	}
	return out, nil
}

// Clear implements Store.
func (c *RedisCache) Clear(ctx context.Context, ns Namespace) error {
	targets := Namespaces
	if ns != "" {
		if !ns.Valid() {
			return fmt.Errorf("unknown cache namespace %q", ns)
		}
		targets = []Namespace{ns}
	}
	for _, target := range targets {
		iter := c.client.Scan(ctx, 0, redisKey(target, "*"), 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("clear namespace %s: %w", target, err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("clear namespace %s: %w", target, err)
		}
	}
	return nil
}

// Sweep implements Store. Redis expires entries natively; nothing to do.
func (c *RedisCache) Sweep(context.Context) int { return 0 }

// Close implements Store.
func (c *RedisCache) Close() error { return c.client.Close() }
