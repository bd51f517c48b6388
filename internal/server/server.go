// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeranaias/rigrun-agent/internal/chat"
	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/storage"
	"github.com/jeranaias/rigrun-agent/internal/tools"
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// ============================================================================
// COLLABORATORS
// ============================================================================

// ToolRunner dispatches tool invocations. *tools.Dispatcher satisfies it.
type ToolRunner interface {
	Dispatch(ctx context.Context, name string, params map[string]any) (any, error)
	List() []*tools.Tool
}

// Chatter runs conversational turns. *chat.Service satisfies it.
type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Options holds everything the server needs.
type Options struct {
	Config  config.ServerConfig
	BaseDir string

	Tools ToolRunner
	Chat  Chatter
	Store storage.Store

	// Registry receives the HTTP metrics and is served on /metrics.
	// A fresh registry is created when nil.
	Registry *prometheus.Registry

	// WriteTimeout bounds a whole response. It must outlast the longest
	// tool timeout (default: 11 minutes).
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the agent HTTP API.
type Server struct {
	opts     Options
	router   *mux.Router
	handler  http.Handler
	logger   *slog.Logger
	requests *prometheus.CounterVec

	server *http.Server
}

// New creates a Server. Tools, Chat and Store must be set.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 11 * time.Minute
	}

	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		logger: opts.Logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent",
			Name:      "http_requests_total",
			Help:      "HTTP responses by route template and status code.",
		}, []string{"route", "code"}),
	}
	opts.Registry.MustRegister(s.requests)

	s.setupRoutes()

	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger, s.routeName, s.requests),
		RateLimitMiddleware(NewRateLimiter(opts.Config.RateLimit, opts.Config.RateBurst), s.logger),
		AuthMiddleware(opts.Config.AuthToken, s.logger, "/health"),
		MaxBodyMiddleware(opts.Config.MaxBodyBytes),
	)(s.router)

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)

	s.router.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}", s.handleSessionHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}/clear", s.handleClearSession).Methods(http.MethodPost)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// routeName returns the path template of the route r matches.
func (s *Server) routeName(r *http.Request) string {
	var match mux.RouteMatch
	if !s.router.Match(r, &match) || match.Route == nil {
		return unmatchedRoute
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tpl
}

// ============================================================================
// TOOL HANDLERS
// ============================================================================

// RunRequest is the body of POST /run.
type RunRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// handleRun handles POST /run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Tool == "" {
		writeFailure(w, tools.Failf(tools.KindInvalidRequest, "tool is required"))
		return
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	result, err := s.opts.Tools.Dispatch(r.Context(), req.Tool, req.Params)
	if err != nil {
		writeFailure(w, tools.AsFailure(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleTools handles GET /tools.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.opts.Tools.List()})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	BaseDir string `json:"base_dir"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", BaseDir: s.opts.BaseDir})
}

// ============================================================================
// CHAT AND SESSION HANDLERS
// ============================================================================

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !s.decodeBody(w, r, &req) {
		return
	}

	resp, err := s.opts.Chat.Chat(r.Context(), req)
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrEmptySessionID):
		writeError(w, http.StatusBadRequest, storage.ErrEmptySessionID.Error())
	case err != nil:
		s.logger.Error("CHAT_FAILED", "session", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleListSessions handles GET /sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.opts.Store.ListSessions(r.Context())
	if err != nil {
		s.storeError(w, "list", "", err)
		return
	}
	if sessions == nil {
		sessions = []storage.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSessionHistory handles GET /sessions/{id}. An unknown id has an
// empty history.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	history, err := s.opts.Store.History(r.Context(), id)
	if err != nil {
		s.storeError(w, "history", id, err)
		return
	}
	if history == nil {
		history = []storage.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "history": history})
}

// handleClearSession handles POST /sessions/{id}/clear.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.opts.Store.ClearSession(r.Context(), id); err != nil {
		s.storeError(w, "clear", id, err)
		return
	}
	s.logger.Info("SESSION_CLEARED", "session", id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": id})
}

func (s *Server) storeError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, storage.ErrEmptySessionID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("STORE_FAILED", "op", op, "session", id, "error", err)
	writeError(w, http.StatusInternalServerError, "storage error")
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Config.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("SERVER_START", "addr", ln.Addr().String(), "base_dir", s.opts.BaseDir)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("SERVER_SHUTDOWN", "msg", "starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeBody decodes a JSON request body into v. It writes the error
// response itself and reports false when decoding failed.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is empty")
	default:
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	return false
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure writes a tool failure as {"error": reason, "kind": kind}.
func writeFailure(w http.ResponseWriter, f *tools.Failure) {
	writeJSON(w, f.HTTPStatus(), map[string]string{
		"error": f.Reason,
		"kind":  string(f.Kind),
	})
}
