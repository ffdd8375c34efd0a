// ABOUTME: HTTP front end: simple GET and JSON POST update endpoints.
// ABOUTME: Uses Go 1.22+ method routing; disabled endpoints are simply not routed.

package httpfront

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mauromedda/dnsupd/internal/backend"
	"github.com/mauromedda/dnsupd/internal/engine"
	"github.com/mauromedda/dnsupd/internal/metrics"
)

// PathPrefix is the URL prefix both update endpoints live under.
const PathPrefix = "/dnsup"

// Config controls which endpoints the HTTP front end exposes.
type Config struct {
	Addr       string
	Simple     bool // GET /dnsup/v1/simple
	Updates    bool // POST /dnsup/v1/update
	Welcome    bool // GET /
	DefaultTTL uint32
}

// Server serves the HTTP update API.
type Server struct {
	engine *engine.Engine
	cfg    Config
	logger *slog.Logger
	server *http.Server
}

// New creates an HTTP front end (not yet started).
func New(eng *engine.Engine, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: eng, cfg: cfg, logger: logger}
}

// Handler builds the http.Handler with routing and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.cfg.Simple {
		mux.HandleFunc("GET "+PathPrefix+"/v1/simple", s.handleSimple)
	}
	if s.cfg.Updates {
		mux.HandleFunc("POST "+PathPrefix+"/v1/update", s.handleUpdate)
	}
	if s.cfg.Welcome {
		mux.HandleFunc("GET /{$}", s.handleWelcome)
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withLogging(mux)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("http listener starting", "addr", s.cfg.Addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http listener stopped", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	if s.server == nil {
		return
	}
	_ = s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

// withLogging tags each request with an ID and records outcome metrics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sw, r)

		metrics.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(sw.status)).Inc()
		s.logger.Info("http request",
			"id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// statusFor maps an engine result onto an HTTP status. deniedStatus lets the
// simple endpoint answer 401 (dyndns convention) while the JSON API uses 403.
func statusFor(res engine.Result, deniedStatus int) int {
	switch res.Kind {
	case engine.Applied:
		return http.StatusOK
	case engine.Denied:
		return deniedStatus
	case engine.Invalid:
		return http.StatusBadRequest
	default:
		switch res.Reject {
		case backend.ReasonConflict:
			return http.StatusConflict
		case backend.ReasonTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
