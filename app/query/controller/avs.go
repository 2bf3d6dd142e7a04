package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/restakelabs/restakex/pkg/utils"
)

// ListAVS returns every service's snapshot resolved as-of the reference time.
// Endpoint: GET /avs?at=<rfc3339|unix>&limit=<n>
func (c *Controller) ListAVS(w http.ResponseWriter, r *http.Request) {
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

	facts, err := c.App.Store.ResolveAll(ctx, snapshot.KindAVS, at)
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

// GetAVS returns one service's metadata, its resolved snapshot, and its
// active operator set at the reference time.
// Endpoint: GET /avs/{address}?at=<t>
func (c *Controller) GetAVS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address, addrErr := utils.NormalizeAddress(mux.Vars(r)["address"])
	if addrErr != nil {
		writeError(w, http.StatusBadRequest, "invalid avs address")
		return
	}

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fact, err := c.App.Store.Resolve(ctx, address, snapshot.KindAVS, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if fact == nil {
		writeError(w, http.StatusNotFound, "avs not found")
		return
	}

	info, err := c.App.Store.EntityInfo(ctx, snapshot.KindAVS, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	edges, err := c.App.Store.ActiveRegistrations(ctx, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	operators := make([]string, 0, 16)
	for _, e := range edges {
		if e.ServiceID == address {
			operators = append(operators, e.OperatorID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":     at,
		"snapshot":  fact,
		"info":      info,
		"operators": operators,
	})
}
