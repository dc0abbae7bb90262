// api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"wildfire-analytics/internal/cache"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/domain"
)

type TaskReader interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, limit int) ([]domain.Task, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, jobType domain.JobType, args domain.Arguments) (string, error)
}

type IncidentStore interface {
	CreateIncident(ctx context.Context, incident *domain.FireIncident) error
	ListIncidents(ctx context.Context, filter domain.IncidentFilter, offset, limit int) ([]domain.FireIncident, error)
	CountIncidents(ctx context.Context, filter domain.IncidentFilter) (int, error)
	Summary(ctx context.Context) (*domain.SummaryStats, error)
}

type AnalysisReader interface {
	ListAnalysisResults(ctx context.Context, analysisType domain.AnalysisType, limit int) ([]domain.AnalysisResult, error)
}

type RiskReader interface {
	CurrentAssessments(ctx context.Context, state string, asOf time.Time) ([]domain.RiskAssessment, error)
}

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Tasks     TaskReader
	Queue     Enqueuer
	Incidents IncidentStore
	Analysis  AnalysisReader
	Risk      RiskReader
	Cache     cache.Cache
	Checks    map[string]HealthCheck
}

type Server struct {
	router    *mux.Router
	deps      Dependencies
	config    *config.Config
	validator *validator.Validate
	logger    *zap.Logger
	server    *http.Server
	now       func() time.Time
}

func NewServer(deps Dependencies, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		deps:      deps,
		config:    cfg,
		validator: validator.New(),
		logger:    logger.Named("api"),
		now:       time.Now,
	}

	s.setupRoutes()
	s.setupMiddleware()

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	apiRouter := s.router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/tasks", s.createTask).Methods("POST")
	apiRouter.HandleFunc("/tasks", s.listTasks).Methods("GET")
	apiRouter.HandleFunc("/tasks/{id}", s.getTask).Methods("GET")

	apiRouter.HandleFunc("/fires", s.listFires).Methods("GET")
	apiRouter.HandleFunc("/fires", s.createFire).Methods("POST")
	apiRouter.HandleFunc("/analytics/clusters", s.fireClusters).Methods("GET")
	apiRouter.HandleFunc("/analytics/pca", s.pcaAnalysis).Methods("GET")
	apiRouter.HandleFunc("/analytics/results/{type}", s.analysisResults).Methods("GET")
	apiRouter.HandleFunc("/stats/summary", s.summaryStats).Methods("GET")
	apiRouter.HandleFunc("/risk/current", s.currentRisk).Methods("GET")

	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")
	s.router.HandleFunc("/ready", s.readyCheck).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// health probes are too chatty to log
		if r.URL.Path == "/health" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered", zap.Any("panic", err), zap.String("path", r.URL.Path))
				s.respondWithError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	checks, healthy := RunChecks(r.Context(), s.deps.Checks)

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	s.respondWithJSON(w, code, map[string]any{
		"status":    status,
		"service":   "wildfire-api",
		"checks":    checks,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithError(w, http.StatusNotFound, "Endpoint not found")
}

func (s *Server) respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, message string) {
	s.respondWithJSON(w, status, map[string]string{"error": message})
}

// queryInt returns the integer query parameter name, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.ServerPort,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting REST API server", zap.String("addr", s.config.ServerPort))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Shutting down API server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
