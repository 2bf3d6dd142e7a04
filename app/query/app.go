package query

import (
	"context"

	"github.com/restakelabs/restakex/app/query/types"
	"github.com/restakelabs/restakex/pkg/aggregate"
	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/logging"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/restakelabs/restakex/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	store, storeErr := snapshot.Open(ctx, logger, utils.Env("SNAPSHOT_DB", "restakex.db"))
	if storeErr != nil {
		logger.Fatal("Unable to open snapshot store", zap.Error(storeErr))
	}

	cacheStore, cacheErr := cache.NewStore(ctx, logger)
	if cacheErr != nil {
		logger.Fatal("Unable to open cache", zap.Error(cacheErr))
	}

	app := &types.App{
		Store:  store,
		Engine: aggregate.New(logger, store),
		Cache:  cacheStore,
		Logger: logger,
	}

	return app
}
