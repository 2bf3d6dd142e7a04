package controller

import (
	"net/http"
)

// NetworkOverlap returns shared-operator counts for each service pair.
// Endpoint: GET /network/overlap?at=<rfc3339|unix>&limit=<n>
func (c *Controller) NetworkOverlap(w http.ResponseWriter, r *http.Request) {
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

	pairs, err := c.App.Engine.NetworkOverlapAt(ctx, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of": at,
		"data":  pairs,
	})
}
