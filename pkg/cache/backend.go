package cache

import (
	"context"

	"github.com/restakelabs/restakex/pkg/utils"
	"go.uber.org/zap"
)

// NewStore selects the cache backend: disk by default, Redis when
// CACHE_BACKEND=redis. A failed Redis connection falls back to disk - the
// cache is an optimization, never a reason not to start.
func NewStore(ctx context.Context, logger *zap.Logger) (Store, error) {
	if utils.Env("CACHE_BACKEND", "disk") == "redis" {
		redisCache, err := NewRedisCache(ctx, logger)
		if err == nil {
			return redisCache, nil
		}
		logger.Warn("Redis cache unavailable, falling back to disk", zap.Error(err))
	}

	return NewDiskCache(logger, "")
}
