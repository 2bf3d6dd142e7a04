package controller

import (
	"net/http"
	"strconv"

	"github.com/restakelabs/restakex/pkg/aggregate"
)

// SystemTotals returns protocol-wide operator sums at the reference time.
// Endpoint: GET /system/totals?at=<rfc3339|unix>
func (c *Controller) SystemTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	totals, err := c.App.Engine.SystemTotalsAt(ctx, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of": at,
		"data":  totals,
	})
}

// Concentration returns the top-k TVL share and Herfindahl index.
// Endpoint: GET /system/concentration?at=<t>&top_k=<n>
func (c *Controller) Concentration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	topK := 0
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errInvalidTopK.Error())
			return
		}
		topK = n
	}

	conc, err := c.App.Engine.ConcentrationAt(ctx, at, topK)
	if err != nil {
		if aggregate.IsDataInsufficient(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of": at,
		"data":  conc,
	})
}
