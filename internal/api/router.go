package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/sujun1972/stock-analysis-go/internal/api/handlers"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *handlers.Handler, limiter *rate.Limiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Strategy catalog
	api.HandleFunc("/strategies/selectors", h.ListSelectors).Methods("GET")
	api.HandleFunc("/strategies/entries", h.ListEntries).Methods("GET")
	api.HandleFunc("/strategies/exits", h.ListExits).Methods("GET")
	api.HandleFunc("/strategies", h.CreateStrategy).Methods("POST")
	api.HandleFunc("/strategies/{id:[0-9]+}/validate", h.RevalidateStrategy).Methods("POST")

	// Combination validation
	api.HandleFunc("/combinations/validate", h.ValidateCombination).Methods("POST")

	// Backtest runs
	backtest := api.PathPrefix("/backtest").Subrouter()
	backtest.HandleFunc("/run", h.StartBacktest).Methods("POST")
	backtest.HandleFunc("/runs", h.ListRuns).Methods("GET")
	backtest.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	backtest.HandleFunc("/runs/{id}/cancel", h.CancelRun).Methods("POST")
	backtest.HandleFunc("/runs/{id}/stream", h.StreamRun).Methods("GET")

	// Audit trail
	api.HandleFunc("/audit/recent", h.RecentAudit).Methods("GET")
	api.HandleFunc("/audit/strategies/{id:[0-9]+}", h.StrategyAudit).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	backtest.Use(rateLimitMiddleware(limiter))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "quant-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware throttles backtest submissions with a shared token
// bucket. Reads share the same bucket; a run sweep is the expensive path.
func rateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Too many requests",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
