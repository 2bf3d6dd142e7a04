package controller

import (
	"net/http"
)

// StrategyDistribution returns per-strategy delegation totals at the
// reference time.
// Endpoint: GET /strategies/distribution?at=<rfc3339|unix>
func (c *Controller) StrategyDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := c.App.Engine.StrategyDistributionAt(ctx, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of": at,
		"data":  stats,
	})
}
