package controller

import (
	"net/http"
)

// CacheStats reports entry counts and byte sizes per cache namespace. The
// figures are physical occupancy: expired entries that have not been swept
// yet are counted.
// Endpoint: GET /cache/stats
func (c *Controller) CacheStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := c.App.Cache.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": stats})
}
