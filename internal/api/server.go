package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rehabmohamed2/CodeGuard-project/internal/config"
	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
	"github.com/rehabmohamed2/CodeGuard-project/internal/pipeline"
)

// Predictor runs the synchronous classifiers.
type Predictor interface {
	Predict(ctx context.Context, code []string, dev model.Device) (*inference.PredictResult, error)
	PredictStatements(ctx context.Context, code []string, dev model.Device) (*inference.StatementResult, error)
	PredictCWE(ctx context.Context, code []string, dev model.Device) (*inference.CWEResult, error)
	PredictSeverity(ctx context.Context, code []string, dev model.Device) (*inference.SeverityResult, error)
}

// Server is the HTTP API server for codeguard.
type Server struct {
	router       chi.Router
	predictor    Predictor
	orchestrator *pipeline.Orchestrator
	stats        *model.Stats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(predictor Predictor, orch *pipeline.Orchestrator, stats *model.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		predictor:    predictor,
		orchestrator: orch,
		stats:        stats,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.cfg.JWTSecret, s.log))

		r.Route("/api/v1/{device}", func(r chi.Router) {
			r.Post("/predict", s.handlePredict)
			r.Post("/statements", s.handleStatements)
			r.Post("/cwe", s.handleCWE)
			r.Post("/sev", s.handleSeverity)
		})

		r.Post("/api/analysis", s.handleAnalysis)
		r.Post("/api/analysis/batch", s.handleBatchAnalysis)
		r.Get("/api/analysis/{jobID}/status", s.handleAnalysisStatus)
		r.Delete("/api/analysis/{jobID}", s.handleCancelAnalysis)
		r.Get("/api/stats/model", s.handleModelStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
