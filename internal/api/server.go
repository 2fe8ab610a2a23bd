package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/history"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/patterns"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/predict"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/risk"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/timeline"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, tracker *timeline.Tracker, predictor *predict.Engine, feedback *predict.Tracker, riskEngine *risk.Engine, library *patterns.Library, store *history.Store, repo domain.Repository, cache domain.Cache, version string) *Server {
	handler := NewHandler(tracker, predictor, feedback, riskEngine, library, store, repo, cache, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/api/v1", func(r chi.Router) {
		// Instruction intake and timeline
		r.Post("/instructions", handler.CreateInstruction)
		r.Get("/instructions/{id}", handler.GetInstruction)
		r.Get("/instructions/{id}/milestones", handler.GetMilestones)
		r.Put("/instructions/{id}/milestones/{type}", handler.UpdateMilestone)
		r.Get("/instructions/{id}/delays", handler.GetDelays)

		// Failure prediction
		r.Post("/instructions/{id}/predict", handler.Predict)
		r.Get("/instructions/{id}/prediction", handler.GetLatestPrediction)
		r.Get("/instructions/{id}/predictions", handler.GetPredictionHistory)
		r.Post("/instructions/{id}/outcome", handler.RecordOutcome)
		r.Get("/predictions/high-risk", handler.HighRiskPredictions)

		// Risk assessment
		r.Post("/instructions/{id}/assess", handler.Assess)
		r.Get("/instructions/{id}/assessment", handler.GetAssessment)
		r.Get("/instructions/{id}/assessments", handler.GetAssessmentHistory)
		r.Put("/market-conditions", handler.UpdateMarketConditions)
		r.Get("/market-conditions", handler.GetMarketConditions)
		r.Put("/counterparties/{id}/profile", handler.UpsertProfile)
		r.Get("/counterparties/{id}/profile", handler.GetProfile)

		// Failure pattern library
		r.Get("/patterns", handler.ListPatterns)
		r.Post("/patterns", handler.CreatePattern)
		r.Post("/patterns/detect", handler.DetectPatterns)

		// Alerts
		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts/{id}/acknowledge", handler.AcknowledgeAlert)
		r.Post("/alerts/{id}/resolve", handler.ResolveAlert)

		// Reporting and model introspection
		r.Get("/reports/performance", handler.PerformanceReport)
		r.Get("/models/metrics", handler.ModelMetrics)
		r.Get("/models/active", handler.ActiveModel)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
