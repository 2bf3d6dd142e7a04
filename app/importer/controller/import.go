package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/restakelabs/restakex/pkg/ingest"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"go.uber.org/zap"
)

// HandleImport ingests a batch of snapshot records. Invalid records are
// skipped and reported; a storage failure aborts the batch.
// Endpoint: POST /api/import
func (c *Controller) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in struct {
		Records []ingest.Record `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad json"})
		return
	}
	if len(in.Records) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "empty batch"})
		return
	}

	report, err := c.App.Batcher.Run(ctx, in.Records)
	if err != nil {
		c.App.Logger.Error("import batch aborted", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "storage failure, batch aborted"})
		return
	}

	_ = json.NewEncoder(w).Encode(report)
}

// HandleRegistrations upserts operator-to-service registration edges.
// Endpoint: POST /api/registrations
func (c *Controller) HandleRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in struct {
		Edges []snapshot.RegistrationEdge `json:"edges"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad json"})
		return
	}

	upserted := 0
	for _, edge := range in.Edges {
		if err := c.App.Store.UpsertRegistration(ctx, edge); err != nil {
			if snapshot.IsValidation(err) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			c.App.Logger.Error("registration upsert failed", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "storage failure"})
			return
		}
		upserted++
	}

	_ = json.NewEncoder(w).Encode(map[string]int{"upserted": upserted})
}

// HandleEntityInfo upserts descriptive metadata for an operator or service.
// Endpoint: POST /api/entities
func (c *Controller) HandleEntityInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in struct {
		Kind snapshot.EntityKind `json:"kind"`
		Info snapshot.EntityInfo `json:"info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad json"})
		return
	}
	if in.Kind != snapshot.KindOperator && in.Kind != snapshot.KindAVS {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "kind must be operator or avs"})
		return
	}
	if err := c.App.Store.UpsertEntityInfo(ctx, in.Kind, in.Info); err != nil {
		if snapshot.IsValidation(err) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		c.App.Logger.Error("entity info upsert failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "storage failure"})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"ok": "1"})
}

// HandleStrategyUpsert registers or updates a restaking strategy.
// Endpoint: POST /api/strategies
func (c *Controller) HandleStrategyUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in snapshot.Strategy
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad json"})
		return
	}
	if err := c.App.Store.UpsertStrategy(ctx, in); err != nil {
		if snapshot.IsValidation(err) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		c.App.Logger.Error("strategy upsert failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "storage failure"})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"ok": "1"})
}
