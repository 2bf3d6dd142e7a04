package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/restakelabs/restakex/pkg/utils"
)

// ListOperators returns every operator's snapshot resolved as-of the
// reference time.
// Endpoint: GET /operators?at=<rfc3339|unix>&limit=<n>
func (c *Controller) ListOperators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	facts, err := c.App.Store.ResolveAll(ctx, snapshot.KindOperator, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(facts) > limit {
		facts = facts[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of": at,
		"data":  facts,
	})
}

// RankOperators orders operators by one attribute at the reference time.
// Endpoint: GET /operators/rank?by=total_tvl_usd&at=<t>&limit=<n>
func (c *Controller) RankOperators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	by := r.URL.Query().Get("by")
	if by == "" {
		by = snapshot.AttrTotalTVLUSD
	}

	ranked, err := c.App.Engine.RankBy(ctx, snapshot.KindOperator, by, at, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of": at,
		"by":    by,
		"data":  ranked,
	})
}

// SearchOperators matches operator names and descriptions case-insensitively.
// Endpoint: GET /operators/search?q=<term>&limit=<n>
func (c *Controller) SearchOperators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	infos, err := c.App.Store.SearchEntities(ctx, snapshot.KindOperator, q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": infos})
}

// GetOperator returns one operator's metadata, its resolved snapshot, and its
// per-strategy breakdown at the reference time.
// Endpoint: GET /operators/{address}?at=<t>
func (c *Controller) GetOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address, addrErr := utils.NormalizeAddress(mux.Vars(r)["address"])
	if addrErr != nil {
		writeError(w, http.StatusBadRequest, "invalid operator address")
		return
	}

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fact, err := c.App.Store.Resolve(ctx, address, snapshot.KindOperator, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if fact == nil {
		writeError(w, http.StatusNotFound, "operator not found")
		return
	}

	info, err := c.App.Store.EntityInfo(ctx, snapshot.KindOperator, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	strategies, err := c.App.Store.ResolveAll(ctx, snapshot.KindOperatorStrategy, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	own := make([]snapshot.SnapshotFact, 0, 8)
	for _, s := range strategies {
		if s.EntityID == address {
			own = append(own, s)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":      at,
		"snapshot":   fact,
		"info":       info,
		"strategies": own,
	})
}
