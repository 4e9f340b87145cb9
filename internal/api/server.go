// Package api assembles the HTTP surface: the /api/v1 router, health probes,
// and the Prometheus endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/analytics"
	"github.com/mutqin/backend/internal/assessment"
	"github.com/mutqin/backend/internal/auth"
	"github.com/mutqin/backend/internal/config"
	"github.com/mutqin/backend/internal/fluency"
	"github.com/mutqin/backend/internal/handlers"
	"github.com/mutqin/backend/internal/ingest"
	"github.com/mutqin/backend/internal/middleware"
	"github.com/mutqin/backend/internal/planner"
	"github.com/mutqin/backend/internal/session"
)

// Pinger reports storage liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router serves.
type Services struct {
	Assessment *assessment.Service
	Fluency    *fluency.Service
	Planner    *planner.Service
	Session    *session.Service
	Ingest     *ingest.Service
	Analytics  *analytics.Service
}

// Server is the HTTP front of the backend.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the router and wraps it in an http.Server with the
// configured timeouts.
func NewServer(cfg config.ServerConfig, svcs Services, verifier auth.Verifier, users middleware.UserStore, pinger Pinger, logger *zap.Logger) *Server {
	r := mux.NewRouter()
	r.Use(middleware.Correlation)
	r.Use(middleware.Logging(logger))

	r.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	}).Methods(http.MethodGet)

	r.HandleFunc("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := pinger.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unavailable"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.Auth(verifier, users, logger))

	v1.HandleFunc("/assessment/submit", handlers.HandleAssessmentSubmit(svcs.Assessment, logger)).Methods(http.MethodPost)

	v1.HandleFunc("/fluency-gate/start", handlers.HandleFluencyStart(svcs.Fluency, logger)).Methods(http.MethodPost)
	v1.HandleFunc("/fluency-gate/submit", handlers.HandleFluencySubmit(svcs.Fluency, logger)).Methods(http.MethodPost)
	v1.HandleFunc("/fluency-gate/status", handlers.HandleFluencyStatus(svcs.Fluency, logger)).Methods(http.MethodGet)

	v1.HandleFunc("/queue/today", handlers.HandleQueueToday(svcs.Planner, logger)).Methods(http.MethodGet)

	v1.HandleFunc("/session/start", handlers.HandleSessionStart(svcs.Session, logger)).Methods(http.MethodPost)
	v1.HandleFunc("/session/step-complete", handlers.HandleSessionStep(svcs.Session, logger)).Methods(http.MethodPost)
	v1.HandleFunc("/session/complete", handlers.HandleSessionComplete(svcs.Session, logger)).Methods(http.MethodPost)

	v1.HandleFunc("/review/event", handlers.HandleReviewEvent(svcs.Ingest, logger)).Methods(http.MethodPost)

	v1.HandleFunc("/user/stats", handlers.HandleUserStats(svcs.Analytics, logger)).Methods(http.MethodGet)
	v1.HandleFunc("/user/calendar", handlers.HandleUserCalendar(svcs.Analytics, logger)).Methods(http.MethodGet)
	v1.HandleFunc("/user/achievements", handlers.HandleUserAchievements(svcs.Analytics, logger)).Methods(http.MethodGet)
	v1.HandleFunc("/user/progress", handlers.HandleUserProgress(svcs.Analytics, logger)).Methods(http.MethodGet)

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
