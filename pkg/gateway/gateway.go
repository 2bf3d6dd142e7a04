// Package gateway wraps the slow external data sources: Ethereum JSON-RPC
// and the CoinGecko price API. Every outbound call is checked against the
// cache first; the wire is only touched on a miss, and results are written
// back with a namespace TTL. Callers control timeouts here, at the gateway
// boundary; the cache and the store never block on network I/O.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/retry"
	"github.com/restakelabs/restakex/pkg/utils"
	"go.uber.org/zap"
)

// Core protocol contracts on mainnet.
const (
	DelegationManagerAddress = "0x39053d51b77dc0d36036fc1fcc8cb819df8ef37a"
	StrategyManagerAddress   = "0x858646372cc42e1a627fce94aa7a7033e7cf075a"
	AllocationManagerAddress = "0xa44151489861fe9e3055d95adc98fbd462b948e7"
	AVSDirectoryAddress      = "0x135dda560e946695d6f155dacafc6f1f25c1f5af"
)

// Gateway is the external data gateway. All reads go through the cache.
type Gateway struct {
	Logger *zap.Logger

	cache    cache.Store
	rpc      *HTTPClient
	prices   *HTTPClient
	retryCfg retry.Config

	rpcTTL       time.Duration
	pricesTTL    time.Duration
	contractsTTL time.Duration
}

// New builds a Gateway from environment configuration:
//   - ETH_RPC_URL: JSON-RPC endpoint (default "https://eth.llamarpc.com")
//   - COINGECKO_BASE_URL: price API base (default "https://api.coingecko.com/api/v3")
//   - COINGECKO_API_KEY: optional demo/pro key header
//   - RPC_CACHE_TTL, PRICES_CACHE_TTL, CONTRACTS_CACHE_TTL: per-namespace TTLs
//     (defaults 5m / 1h / 168h)
func New(logger *zap.Logger, store cache.Store) *Gateway {
	rpcURL := utils.Env("ETH_RPC_URL", "https://eth.llamarpc.com")
	priceURL := utils.Env("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3")

	priceHeaders := map[string]string{}
	if key := utils.Env("COINGECKO_API_KEY", ""); key != "" {
		priceHeaders["x-cg-demo-api-key"] = key
	}

	return &Gateway{
		Logger: logger.With(zap.String("component", "gateway")),
		cache:  store,
		rpc: NewHTTPWithOpts(Opts{
			Endpoints: []string{rpcURL},
			RPS:       utils.EnvInt("RPC_RPS", 10),
			Timeout:   utils.EnvDuration("RPC_TIMEOUT", 30*time.Second),
		}),
		prices: NewHTTPWithOpts(Opts{
			Endpoints: []string{priceURL},
			Headers:   priceHeaders,
			RPS:       utils.EnvInt("PRICES_RPS", 2),
			Timeout:   utils.EnvDuration("PRICES_TIMEOUT", 10*time.Second),
		}),
		retryCfg:     retry.DefaultConfig(),
		rpcTTL:       utils.EnvDuration("RPC_CACHE_TTL", 5*time.Minute),
		pricesTTL:    utils.EnvDuration("PRICES_CACHE_TTL", time.Hour),
		contractsTTL: utils.EnvDuration("CONTRACTS_CACHE_TTL", 168*time.Hour),
	}
}

// cached runs fetch through the (namespace, key) cache: hit decodes into out,
// miss fetches with retry and writes back with the namespace TTL.
func (g *Gateway) cached(ctx context.Context, ns cache.Namespace, key string, ttl time.Duration, out any, fetch func() (any, error)) error {
	if g.cache.Get(ctx, ns, key, out) {
		return nil
	}

	var fresh any
	err := retry.Do(ctx, g.retryCfg, g.Logger, string(ns)+":"+key, func() error {
		var fetchErr error
		fresh, fetchErr = fetch()
		return fetchErr
	})
	if err != nil {
		return err
	}

	g.cache.Put(ctx, ns, key, fresh, ttl)

	// Round-trip through the cache so hits and misses decode identically.
	if g.cache.Get(ctx, ns, key, out) {
		return nil
	}
	return decode(fresh, out)
}

// setTransport points the gateway at a stub server. Tests only.
func (g *Gateway) setTransport(client *http.Client, rpcURL, priceURL string) {
	g.rpc = NewHTTPWithOpts(Opts{Endpoints: []string{rpcURL}, HTTPClient: client, RPS: 1000, Burst: 1000})
	g.prices = NewHTTPWithOpts(Opts{Endpoints: []string{priceURL}, HTTPClient: client, RPS: 1000, Burst: 1000})
}
