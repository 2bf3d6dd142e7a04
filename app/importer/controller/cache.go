package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/restakelabs/restakex/pkg/cache"
	"go.uber.org/zap"
)

// HandleCacheStats reports per-namespace entry counts and byte sizes.
// Endpoint: GET /api/cache/stats
func (c *Controller) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := c.App.Cache.Stats(ctx)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "cache stats failed"})
		return
	}

	_ = json.NewEncoder(w).Encode(stats)
}

// HandleCacheSweep removes expired entries across all namespaces.
// Endpoint: POST /api/cache/sweep
func (c *Controller) HandleCacheSweep(w http.ResponseWriter, r *http.Request) {
	removed := c.App.Cache.Sweep(r.Context())
	_ = json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

// HandleCacheClear empties one namespace, or every namespace when none is
// named in the path.
// Endpoint: DELETE /api/cache/{namespace}, DELETE /api/cache
func (c *Controller) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ns cache.Namespace
	if raw := mux.Vars(r)["namespace"]; raw != "" {
		parsed, err := cache.ParseNamespace(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		ns = parsed
	}

	if err := c.App.Cache.Clear(ctx, ns); err != nil {
		c.App.Logger.Error("cache clear failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "cache clear failed"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandlePriceWarmup refreshes strategy token prices through the gateway.
// Endpoint: POST /api/prices/warmup
func (c *Controller) HandlePriceWarmup(w http.ResponseWriter, r *http.Request) {
	if err := c.App.WarmPrices(r.Context()); err != nil {
		c.App.Logger.Error("price warmup failed", zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "price warmup failed"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"ok": "1"})
}

// HandleReset wipes every snapshot table and reseeds the strategy registry.
// Endpoint: POST /api/reset
func (c *Controller) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := c.App.Store.Reset(r.Context()); err != nil {
		c.App.Logger.Error("store reset failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "reset failed"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"ok": "1"})
}
