package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const checkTimeout = 3 * time.Second

// RunChecks probes every dependency in name order. The result maps each
// name to "ok" or the probe error.
func RunChecks(ctx context.Context, checks map[string]HealthCheck) (map[string]string, bool) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checks[name](checkCtx)
		cancel()
		if err != nil {
			healthy = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// NewHealthRouter serves /health and /ready for processes without a REST
// API (worker, scheduler).
func NewHealthRouter(service string, checks map[string]HealthCheck, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		results, healthy := RunChecks(r.Context(), checks)
		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		err := json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"service":   service,
			"checks":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			logger.Warn("Failed to encode health response", zap.Error(err))
		}
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}).Methods("GET")

	return router
}
