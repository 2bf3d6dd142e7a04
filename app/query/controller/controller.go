package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/restakelabs/restakex/app/query/types"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods("GET")

	r.HandleFunc("/operators", c.ListOperators).Methods("GET")
	r.HandleFunc("/operators/rank", c.RankOperators).Methods("GET")
	r.HandleFunc("/operators/search", c.SearchOperators).Methods("GET")
	r.HandleFunc("/operators/{address}", c.GetOperator).Methods("GET")

	r.HandleFunc("/avs", c.ListAVS).Methods("GET")
	r.HandleFunc("/avs/{address}", c.GetAVS).Methods("GET")

	r.HandleFunc("/system/totals", c.SystemTotals).Methods("GET")
	r.HandleFunc("/system/concentration", c.Concentration).Methods("GET")

	r.HandleFunc("/strategies/distribution", c.StrategyDistribution).Methods("GET")
	r.HandleFunc("/network/overlap", c.NetworkOverlap).Methods("GET")

	r.HandleFunc("/cache/stats", c.CacheStats).Methods("GET")

	return r, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
