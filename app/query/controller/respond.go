package controller

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4/json"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseAt reads the "at" query parameter, accepting either RFC 3339 or unix
// seconds. A missing parameter resolves to the current time.
func parseAt(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return time.Now().UTC(), nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errInvalidAt
	}
	return t.UTC(), nil
}

func parseLimit(r *http.Request) (int, error) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, errInvalidLimit
		}
		limit = int(math.Min(float64(n), maxLimit))
	}
	return limit, nil
}

var (
	errInvalidAt    = &parseError{msg: "invalid at, must be RFC 3339 or unix seconds"}
	errInvalidLimit = &parseError{msg: "invalid limit"}
	errInvalidTopK  = &parseError{msg: "invalid top_k"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
