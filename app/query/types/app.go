package types

import (
	"context"
	"net/http"
	"time"

	"github.com/restakelabs/restakex/pkg/aggregate"
	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"go.uber.org/zap"
)

type App struct {
	// Store is the snapshot fact store; the single handle is opened at process
	// start and released on shutdown.
	Store *snapshot.Store
	// Engine derives rankings, totals, concentration and distributions from
	// the store's resolved facts.
	Engine *aggregate.Engine
	// Cache backs the /cache/stats surface; queries never read through it.
	Cache cache.Store
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start starts the application and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close snapshot store", zap.Error(err))
	}
	if err := a.Cache.Close(); err != nil {
		a.Logger.Error("Failed to close cache", zap.Error(err))
	}

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("Query service stopped")
}
