package api

import (
	"github.com/gorilla/mux"

	"github.com/sdiallo/browserpilot/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Mutating endpoints are rate limited; reads are not, they are
	// cheap and polled frequently by dashboards.
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))

	limited.HandleFunc("/scan", h.Scan).Methods("POST")
	limited.HandleFunc("/contexts/activate", h.SwitchTo).Methods("POST", "OPTIONS")
	limited.HandleFunc("/select", h.SelectMode).Methods("POST", "OPTIONS")
	limited.HandleFunc("/capabilities/cache", h.ClearCapabilityCache).Methods("DELETE")

	api.HandleFunc("/contexts", h.ListContexts).Methods("GET")
	api.HandleFunc("/contexts/current", h.GetCurrent).Methods("GET")
	api.HandleFunc("/contexts/{id}", h.GetContext).Methods("GET")
	api.HandleFunc("/contexts/{id}/capabilities", h.DetectCapabilities).Methods("GET")
	api.HandleFunc("/capabilities/cache", h.CacheStats).Methods("GET")

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}
