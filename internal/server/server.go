// Package server implements the HTTP server that exposes the docq document
// Q&A API: registration and login, document upload and listing, semantic
// search, and the single-shot and agent query pipelines.
// The server is started by the `docq serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docq-ai/docq-go/internal/logging"
)

// New constructs a Server from the provided application services and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("server: token manager must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full LLM generation round-trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.NewRegistry()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	mux := http.NewServeMux()

	// Credential endpoints are rate limited but unauthenticated.
	mux.Handle("POST /api/auth/register", rl.middleware(s.instrument("auth_register", http.HandlerFunc(s.handleRegister))))
	mux.Handle("POST /api/auth/login", rl.middleware(s.instrument("auth_login", http.HandlerFunc(s.handleLogin))))

	// Everything else under /api requires a valid bearer token.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.authMiddleware(s.instrument(name, h))
	}
	mux.Handle("GET /api/auth/me", protected("auth_me", s.handleMe))
	mux.Handle("POST /api/documents", protected("documents_upload", s.handleUpload))
	mux.Handle("GET /api/documents", protected("documents_list", s.handleListDocuments))
	mux.Handle("DELETE /api/documents/{id}", protected("documents_delete", s.handleDeleteDocument))
	mux.Handle("GET /api/search", protected("search", s.handleSearch))
	mux.Handle("POST /api/query", protected("query", s.handleQuery))
	mux.Handle("POST /api/query/agent", protected("query_agent", s.handleAgentQuery))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)

	if cfg.MetricsGatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encode error", slog.Any("error", err))
	}
}

// writeError sends a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// instrument wraps h so every request increments the HTTP counters and
// records latency under the given logical handler name.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		h.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, fmt.Sprintf("%d", rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	})
}

// ownerLog returns the request-scoped logger annotated with the owner ID.
func ownerLog(r *http.Request, ownerID string) *slog.Logger {
	return logging.FromContext(r.Context()).With(slog.String("owner_id", ownerID))
}
