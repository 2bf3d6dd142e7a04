package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/restakelabs/restakex/app/importer/types"
	"github.com/restakelabs/restakex/pkg/utils"
)

type Controller struct {
	App        *types.App
	AdminToken string
	AuthUser   string
	Users      map[string]types.User
	AuthHash   []byte
	JWTSecret  []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "devtoken")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminUsersJSON := utils.Env("ADMIN_USERS", "")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, _ := utils.HashOrRead(adminPass)
	users := map[string]types.User{}
	users[adminUser] = types.User{Username: adminUser, Hash: phash, Role: "admin"}
	if adminUsersJSON != "" {
		_ = json.Unmarshal([]byte(adminUsersJSON), &users)
	}

	return &Controller{
		App:        app,
		AdminToken: adminToken,
		AuthUser:   adminUser,
		Users:      users,
		AuthHash:   phash,
		JWTSecret:  jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Development: Echo back the origin to allow credentials with any origin
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodDelete+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", c.HandleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleAdminLogout).Methods(http.MethodPost)

	r.Handle("/api/import", c.RequireAuth(http.HandlerFunc(c.HandleImport))).Methods(http.MethodPost)
	r.Handle("/api/registrations", c.RequireAuth(http.HandlerFunc(c.HandleRegistrations))).Methods(http.MethodPost)
	r.Handle("/api/entities", c.RequireAuth(http.HandlerFunc(c.HandleEntityInfo))).Methods(http.MethodPost)
	r.Handle("/api/strategies", c.RequireAuth(http.HandlerFunc(c.HandleStrategyUpsert))).Methods(http.MethodPost)

	r.Handle("/api/cache/stats", c.RequireAuth(http.HandlerFunc(c.HandleCacheStats))).Methods(http.MethodGet)
	r.Handle("/api/cache/sweep", c.RequireAuth(http.HandlerFunc(c.HandleCacheSweep))).Methods(http.MethodPost)
	r.Handle("/api/cache/{namespace}", c.RequireAuth(http.HandlerFunc(c.HandleCacheClear))).Methods(http.MethodDelete)
	r.Handle("/api/cache", c.RequireAuth(http.HandlerFunc(c.HandleCacheClear))).Methods(http.MethodDelete)

	r.Handle("/api/prices/warmup", c.RequireAuth(http.HandlerFunc(c.HandlePriceWarmup))).Methods(http.MethodPost)

	r.Handle("/api/reset", c.RequireAdmin(http.HandlerFunc(c.HandleReset))).Methods(http.MethodPost)

	return r, nil
}
