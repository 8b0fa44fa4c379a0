// Package server implements the HTTP server that exposes the answering and
// translation pipelines via a REST/SSE API. The server is started by the
// `readai serve` CLI command.
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

	"github.com/readai-labs/readai-go/internal/logging"
)

// New constructs a Server from the provided pipeline dependencies and config.
// invalidate may be nil when no index cache is in use.
func New(ask asker, tr bookTranslator, lib library, invalidate func(bookID string), cfg *Config) (*Server, error) {
	if ask == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if tr == nil {
		return nil, fmt.Errorf("server: translator must not be nil")
	}
	if lib == nil {
		return nil, fmt.Errorf("server: library must not be nil")
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
		// WriteTimeout must cover the longest translation stream.
		cfg.WriteTimeout = 30 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		reg := prometheus.NewRegistry()
		cfg.MetricsRegistry = reg
		cfg.MetricsGatherer = reg
	}

	s := &Server{
		asker:      ask,
		translator: tr,
		lib:        lib,
		invalidate: invalidate,
		cfg:        cfg,
		log:        cfg.Logger,
		pingers:    cfg.Pingers,
		metrics:    newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: no API key configured, authentication disabled")
	}
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", protect(s.handleAsk))
	mux.Handle("POST /api/translate", protect(s.handleTranslate))
	mux.Handle("GET /api/books", protect(s.handleListBooks))
	mux.Handle("GET /api/books/{id}", protect(s.handleGetBook))
	mux.Handle("DELETE /api/books/{id}", protect(s.handleDeleteBook))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, s.metrics, mux),
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
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.stopRL()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// sseStream writes Server-Sent Events to one HTTP response. All writes for a
// single request happen from serialized callbacks, so no locking is needed.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	log     *slog.Logger
}

// newSSEStream sets the SSE response headers and returns a stream writer.
// Returns nil when the underlying writer cannot flush, in which case an HTTP
// error has already been sent.
func newSSEStream(w http.ResponseWriter, r *http.Request) *sseStream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &sseStream{w: w, flusher: flusher, log: logging.FromContext(r.Context())}
}

// event emits one named SSE event with a JSON-encoded payload and flushes.
func (s *sseStream) event(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("sse encode failed", slog.String("event", name), slog.Any("error", err))
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}

// done emits the terminal done event. Every SSE handler ends with exactly one.
func (s *sseStream) done() {
	fmt.Fprint(s.w, "event: done\ndata: [DONE]\n\n")
	s.flusher.Flush()
}

// errorEvent delivers a failure in-band. SSE errors never change the HTTP
// status because headers are already on the wire.
func (s *sseStream) errorEvent(msg string) {
	s.event("error", map[string]string{"error": msg})
}
