// Package health serves the operational HTTP endpoints: liveness, readiness
// (provider connectivity), Prometheus metrics, and the last reconciliation
// status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Readiness status values.
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Checker reports whether a dependency (provider API, document source) is
// reachable.
type Checker func(ctx context.Context) error

// ComponentStatus is one dependency's readiness.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ReadyResponse is the /ready payload.
type ReadyResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// RunStatus summarizes the most recent reconciliation for /status.
type RunStatus struct {
	Time     time.Time `json:"time"`
	Duration string    `json:"duration"`
	DryRun   bool      `json:"dry_run"`
	Zones    int       `json:"zones"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Deleted  int       `json:"deleted"`
	Failed   int       `json:"failed"`
}

// Server provides /health, /ready, /metrics, and /status endpoints.
type Server struct {
	port    int
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	lastRun  *RunStatus
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout bounds each readiness check.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// New creates a health server listening on port.
func New(port int, opts ...Option) *Server {
	s := &Server{
		port:     port,
		mux:      http.NewServeMux(),
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		checkers: make(map[string]Checker),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// RegisterChecker adds a readiness checker for a named dependency.
func (s *Server) RegisterChecker(name string, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
	s.logger.Debug("registered readiness checker", slog.String("name", name))
}

// SetLastRun records the most recent reconciliation outcome for /status.
func (s *Server) SetLastRun(status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &status
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checkers))
	for name := range s.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]Checker, len(s.checkers))
	for name, checker := range s.checkers {
		checkers[name] = checker
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp := ReadyResponse{Status: StatusReady}
	allHealthy := true
	for _, name := range names {
		status := ComponentStatus{Name: name, Healthy: true}
		if err := checkers[name](ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			allHealthy = false
			s.logger.Warn("readiness check failed",
				slog.String("component", name),
				slog.String("error", err.Error()))
		}
		resp.Components = append(resp.Components, status)
	}

	w.Header().Set("Content-Type", "application/json")
	if !allHealthy {
		resp.Status = StatusNotReady
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	last := s.lastRun
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if last == nil {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "no reconciliation yet"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(last)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("health server starting", slog.Int("port", s.port))
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("health server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
