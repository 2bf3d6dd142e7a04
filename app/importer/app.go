package importer

import (
	"context"
	"time"

	"github.com/restakelabs/restakex/app/importer/types"
	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/gateway"
	"github.com/restakelabs/restakex/pkg/ingest"
	"github.com/restakelabs/restakex/pkg/logging"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/restakelabs/restakex/pkg/utils"
	"github.com/robfig/cron/v3"
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
		Store:   store,
		Cache:   cacheStore,
		Batcher: ingest.NewBatcher(logger, store),
		Gateway: gateway.New(logger, cacheStore),
		Logger:  logger,
	}

	if scheduleErr := SetupScheduler(ctx, app); scheduleErr != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(scheduleErr))
	}

	return app
}

// SetupScheduler schedules cache maintenance and price warmup. The sweep
// removes expired cache entries; the warmup keeps the price namespace hot so
// imports do not stall on the external API.
func SetupScheduler(ctx context.Context, app *types.App) error {
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	sweepSpec := utils.Env("CACHE_SWEEP_CRON", "0 */10 * * * *")
	if _, err := app.Cron.AddFunc(sweepSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		removed := app.Cache.Sweep(rctx)
		if removed > 0 {
			app.Logger.Info("[importer] cache sweep", zap.Int("removed", removed))
		}
	}); err != nil {
		return err
	}

	warmupSpec := utils.Env("PRICE_WARMUP_CRON", "30 */30 * * * *")
	if _, err := app.Cron.AddFunc(warmupSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := app.WarmPrices(rctx); err != nil {
			app.Logger.Warn("[importer] price warmup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	return nil
}
