// Package server exposes the orchestrator over HTTP: the chat endpoint,
// read-only views of state and audit logs, health checks, and Prometheus
// metrics. The server performs no journey decisions itself; every outcome
// comes from the orchestrator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/logging"
	"github.com/mason-sapiens/sapiens-mvp/orchestrator"
)

// Pinger is implemented by stores that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure server construction.
type Options struct {
	Logger  logging.Logger
	Metrics *Metrics
}

// Server wires the HTTP routes over the orchestrator and the read-only
// store surface.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   core.Store
	logger  logging.Logger
	metrics *Metrics
	router  chi.Router
}

// New constructs the server and its routes.
func New(orch *orchestrator.Orchestrator, st core.Store, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	s := &Server{
		orch:    orch,
		store:   st,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/healthz", s.instrument("/healthz", s.handleHealthz))
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.instrument("/api/chat", s.handleChat))
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/state", s.instrument("/api/users/state", s.handleState))
			r.Get("/history", s.instrument("/api/users/history", s.handleHistory))
			r.Get("/transitions", s.instrument("/api/users/transitions", s.handleTransitions))
			r.Get("/artifacts", s.instrument("/api/users/artifacts", s.handleArtifacts))
			r.Get("/artifacts/{artifactID}", s.instrument("/api/users/artifact", s.handleArtifact))
		})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// statusRecorder captures the written status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.observe(route, rec.status, time.Since(start))
	}
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, core.ErrValidation, "request body must be JSON with user_id and message")
		return
	}

	reply, err := s.orch.Process(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}

	s.metrics.replyPhase(reply.CurrentState.String())
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state, err := s.store.GetState(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	entries, err := s.store.ListEntries(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "entries": entries})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	transitions, err := s.store.ListTransitions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "transitions": transitions})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	artifacts, err := s.store.ListArtifacts(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "artifacts": artifacts})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	artifactID := chi.URLParam(r, "artifactID")
	art, err := s.store.GetArtifact(r.Context(), userID, artifactID)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, art)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps domain errors to HTTP status codes. Internal detail never
// reaches the wire for server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, core.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failure"
	case errors.Is(err, core.ErrUnknownUser), errors.Is(err, core.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrBusy):
		status, code = http.StatusConflict, "busy"
	case errors.Is(err, core.ErrAgentFailure):
		status, code = http.StatusBadGateway, "agent_failure"
	case errors.Is(err, core.ErrPersistence):
		status, code = http.StatusInternalServerError, "persistence_failure"
	}

	if message == "" {
		if status >= 500 {
			message = "internal error"
			s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		} else {
			message = err.Error()
		}
	}
	s.writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
