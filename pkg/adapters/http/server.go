package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/aretw0/sqlgraph"
	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/runner"
	"github.com/aretw0/sqlgraph/pkg/session"
)

// DefaultHeartbeat is the SSE keep-alive interval.
const DefaultHeartbeat = 15 * time.Second

// Engine is the part of *sqlgraph.Engine the server exposes.
type Engine interface {
	Start(ctx context.Context, req sqlgraph.StartRequest, sink domain.EventSink) (*sqlgraph.Result, error)
	Resume(ctx context.Context, req sqlgraph.ResumeRequest, sink domain.EventSink) (*sqlgraph.Result, error)
	Cancel(ctx context.Context, sessionID string) error
	Checkpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error)
	Sessions(ctx context.Context) ([]sqlgraph.SessionInfo, error)
}

// Server serves the engine over HTTP. Runs stream as server-sent events.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	metrics   http.Handler
	graph     string
	origins   []string
	heartbeat time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithGraph serves a Mermaid diagram of the workflow on /v1/graph.
func WithGraph(mermaid string) Option {
	return func(s *Server) {
		s.graph = mermaid
	}
}

// WithAllowedOrigins restricts CORS. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithHeartbeat sets the SSE keep-alive interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// NewHandler validates the embedded OpenAPI document and builds the router.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		origins:   []string{"*"},
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	v, err := newValidator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Last-Event-ID"},
	}).Handler)

	r.Get("/healthz", s.getHealth)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(v.middleware)
		r.Get("/info", s.getInfo)
		r.Get("/graph", s.getGraph)
		r.Post("/query", s.startQuery)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.getSession)
		r.Delete("/sessions/{id}", s.cancelSession)
		r.Post("/sessions/{id}/resume", s.resumeSession)
	})
	return r, nil
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "sqlgraph",
		"version": strings.TrimSpace(sqlgraph.Version),
	})
}

func (s *Server) getGraph(w http.ResponseWriter, _ *http.Request) {
	if s.graph == "" {
		writeError(w, http.StatusNotFound, "graph not available")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.graph))
}

func (s *Server) startQuery(w http.ResponseWriter, r *http.Request) {
	var req sqlgraph.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query, err := runner.SanitizeQuery(req.Query)
	if err != nil {
		s.logger.Warn("query rejected", "err", err, "size", len(req.Query))
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	req.Query = query

	s.run(w, r, func(ctx context.Context, sink domain.EventSink) (*sqlgraph.Result, error) {
		return s.engine.Start(ctx, req, sink)
	})
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approved     bool   `json:"approved"`
		FeedbackText string `json:"feedback_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	feedback, err := runner.SanitizeInput(body.FeedbackText)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feedback: "+err.Error())
		return
	}
	req := sqlgraph.ResumeRequest{SessionID: chi.URLParam(r, "id"), Approved: body.Approved, FeedbackText: feedback}

	s.run(w, r, func(ctx context.Context, sink domain.EventSink) (*sqlgraph.Result, error) {
		return s.engine.Resume(ctx, req, sink)
	})
}

// run streams a request when the client accepts SSE and returns the final
// Result otherwise. A client disconnect cancels the run.
func (s *Server) run(w http.ResponseWriter, r *http.Request, call func(context.Context, domain.EventSink) (*sqlgraph.Result, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok || !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		res, err := call(r.Context(), nil)
		if status := errorStatus(err); status != 0 {
			writeError(w, status, err.Error())
			return
		}
		if err != nil {
			s.logger.Error("run failed", "session_id", res.SessionID, "err", err)
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	stream := newEventStream(w, flusher)
	stream.heartbeat(s.heartbeat)
	res, err := call(r.Context(), stream.sink)
	status := errorStatus(err)
	if stream.finish(status != 0) {
		writeError(w, status, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("run failed", "session_id", res.SessionID, "err", err)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Sessions(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if list == nil {
		list = []sqlgraph.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	cp, err := s.engine.Checkpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == 0 {
		status = http.StatusInternalServerError
		s.logger.Error("request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

// errorStatus maps request errors to HTTP statuses. Zero means the error
// belongs to the run itself and has already been reported as an event.
func errorStatus(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, sqlgraph.ErrSessionExists),
		errors.Is(err, session.ErrSessionRunning),
		errors.Is(err, domain.ErrNotSuspended):
		return http.StatusConflict
	case errors.Is(err, sqlgraph.ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return 0
}
