package types

import (
	"context"
	"net/http"
	"time"

	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/gateway"
	"github.com/restakelabs/restakex/pkg/ingest"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// User is one admin account loaded from the environment.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

type App struct {
	// Snapshot store (single writer)
	Store *snapshot.Store

	// TTL cache backing the gateway
	Cache cache.Store

	// Batch ingestion pipeline
	Batcher *ingest.Batcher

	// External data gateway (eth RPC + price API)
	Gateway *gateway.Gateway

	// Scheduled maintenance (cache sweep, price warmup)
	Cron *cron.Cron

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server
}

// WarmPrices refreshes the USD price of every seeded strategy's underlying
// token through the gateway, filling the prices cache namespace.
func (a *App) WarmPrices(ctx context.Context) error {
	strategies, err := a.Store.Strategies(ctx)
	if err != nil {
		return err
	}

	coinIDs := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if s.CoingeckoID != "" {
			coinIDs = append(coinIDs, s.CoingeckoID)
		}
	}
	if len(coinIDs) == 0 {
		return nil
	}

	prices, err := a.Gateway.USDPrices(ctx, coinIDs)
	if err != nil {
		return err
	}
	a.Logger.Info("price warmup complete", zap.Int("coins", len(prices)))
	return nil
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
	}

	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	if a.Cron != nil {
		a.Logger.Info("stopping scheduler")
		<-a.Cron.Stop().Done()
	}

	if a.Batcher != nil {
		a.Batcher.Close()
	}

	if a.Store != nil {
		a.Logger.Info("closing snapshot store")
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("Failed to close snapshot store", zap.Error(err))
		}
	}

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Error("Failed to close cache", zap.Error(err))
		}
	}

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
