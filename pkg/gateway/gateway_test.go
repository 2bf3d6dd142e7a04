package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcStub struct {
	calls  atomic.Int64
	result func(method string) (any, *rpcError)
}

func (s *rpcStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	var req rpcRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, rpcErr := s.result(req.Method)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestGateway(t *testing.T, rpcURL, priceURL string) *Gateway {
	t.Helper()
	store, err := cache.NewDiskCache(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	g := New(zap.NewNop(), store)
	g.setTransport(http.DefaultClient, rpcURL, priceURL)
	// No backoff sleeps in tests
	g.retryCfg = retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return g
}

func TestBlockNumberCachesResult(t *testing.T) {
	ctx := context.Background()
	stub := &rpcStub{result: func(string) (any, *rpcError) { return "0x1499f0a", nil }}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	g := newTestGateway(t, srv.URL, srv.URL)

	head, err := g.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1499f0a), head)
	assert.Equal(t, int64(1), stub.calls.Load())

	// Second read is a cache hit: the wire is not touched
	head, err = g.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1499f0a), head)
	assert.Equal(t, int64(1), stub.calls.Load())
}

func TestChainID(t *testing.T) {
	ctx := context.Background()
	stub := &rpcStub{result: func(method string) (any, *rpcError) {
		require.Equal(t, "eth_chainId", method)
		return "0x1", nil
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	g := newTestGateway(t, srv.URL, srv.URL)

	id, err := g.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestTokenDecimals(t *testing.T) {
	ctx := context.Background()
	stub := &rpcStub{result: func(method string) (any, *rpcError) {
		require.Equal(t, "eth_call", method)
		return "0x0000000000000000000000000000000000000000000000000000000000000012", nil
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	g := newTestGateway(t, srv.URL, srv.URL)

	dec, err := g.TokenDecimals(ctx, "0xAE7ab96520DE3A18E5e111B5EaAb095312D7fE84")
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)

	// Metadata is cached under the contracts namespace
	dec, err = g.TokenDecimals(ctx, "0xae7ab96520de3a18e5e111b5eaab095312d7fe84")
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)
	assert.Equal(t, int64(1), stub.calls.Load(), "case-insensitive key should hit the cache")
}

func TestRPCErrorIsReturned(t *testing.T) {
	ctx := context.Background()
	stub := &rpcStub{result: func(string) (any, *rpcError) {
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	g := newTestGateway(t, srv.URL, srv.URL)

	_, err := g.BlockNumber(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestUSDPricesBatchesMissesOnly(t *testing.T) {
	ctx := context.Background()

	var priceCalls atomic.Int64
	priceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		priceCalls.Add(1)
		ids := r.URL.Query().Get("ids")
		body := map[string]map[string]float64{}
		for _, id := range []string{"staked-ether", "eigenlayer"} {
			if containsID(ids, id) {
				body[id] = map[string]float64{"usd": 3200.55}
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer priceSrv.Close()

	g := newTestGateway(t, priceSrv.URL, priceSrv.URL)

	prices, err := g.USDPrices(ctx, []string{"staked-ether", "eigenlayer"})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.True(t, prices["staked-ether"].Equal(decimal.RequireFromString("3200.55")))
	assert.Equal(t, int64(1), priceCalls.Load(), "one batched call for all misses")

	// Fully cached: no second wire call
	prices, err = g.USDPrices(ctx, []string{"staked-ether", "eigenlayer"})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, int64(1), priceCalls.Load())
}

func TestUSDPriceUnknownCoin(t *testing.T) {
	ctx := context.Background()
	priceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{})
	}))
	defer priceSrv.Close()

	g := newTestGateway(t, priceSrv.URL, priceSrv.URL)

	_, err := g.USDPrice(ctx, "no-such-coin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no price")
}

func TestParseHexUint(t *testing.T) {
	n, err := parseHexUint("0xff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), n)

	_, err = parseHexUint("0x")
	assert.Error(t, err)
	_, err = parseHexUint("0xzz")
	assert.Error(t, err)
}

func containsID(ids, id string) bool {
	for _, candidate := range strings.Split(ids, ",") {
		if candidate == id {
			return true
		}
	}
	return false
}
