// Package api exposes the HTTP interface for the spider service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/extract"
	"github.com/zhidu-qidian/Spiders/internal/feed"
	"github.com/zhidu-qidian/Spiders/internal/metrics"
	"github.com/zhidu-qidian/Spiders/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	readyTimeout          = 2 * time.Second
	maxBodyBytes          = 8 << 20
)

// Extractor parses article pages.
type Extractor interface {
	Parse(ctx context.Context, url, document string, check ...string) (extract.Result, error)
}

// Lister parses listing pages.
type Lister interface {
	Supports(crawler string) bool
	Parse(ctx context.Context, crawler, document, url string) ([]feed.Item, error)
}

// Reloader re-reads a config directory.
type Reloader interface {
	Reload() error
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server routes to. Nil fields disable the
// matching endpoints (they answer 503).
type Deps struct {
	Extractor Extractor
	Lister    Lister
	// Reloaders are keyed by config set name (detail, feed, pagination).
	Reloaders map[string]Reloader
	// Ready are probed by /readyz.
	Ready  map[string]Pinger
	Audit  store.AuditRepository
	Logger *zap.Logger
}

// Options tune the HTTP surface.
type Options struct {
	// APIKey, when set, is required on every request via X-API-Key or api_key.
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the extraction engines and audit store.
type Server struct {
	router    chi.Router
	extractor Extractor
	lister    Lister
	reloaders map[string]Reloader
	ready     map[string]Pinger
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		extractor: deps.Extractor,
		lister:    deps.Lister,
		reloaders: deps.Reloaders,
		ready:     deps.Ready,
		logger:    logger,
	}
	failures := NewFailureHandler(deps.Audit, logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(timeout))
	if opts.APIKey != "" {
		r.Use(apiKeyMiddleware(opts.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", s.extract)
		r.Post("/list", s.list)
		r.Post("/configs/reload", s.reload)
		r.Get("/failures", failures.List)
		r.Get("/failures/summary", failures.Summary)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("backend", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type extractRequest struct {
	URL   string   `json:"url"`
	HTML  string   `json:"html"`
	Check []string `json:"check"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extractor unavailable")
		return
	}
	var req extractRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	result, err := s.extractor.Parse(r.Context(), req.URL, req.HTML, req.Check...)
	if err != nil {
		s.logger.Warn("extract failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type listRequest struct {
	Crawler string `json:"crawler"`
	URL     string `json:"url"`
	HTML    string `json:"html"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		writeError(w, http.StatusServiceUnavailable, "lister unavailable")
		return
	}
	var req listRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Crawler == "" || req.HTML == "" {
		writeError(w, http.StatusBadRequest, "crawler and html required")
		return
	}
	if !s.lister.Supports(req.Crawler) {
		writeError(w, http.StatusNotFound, "crawler not configured")
		return
	}
	items, err := s.lister.Parse(r.Context(), req.Crawler, req.HTML, req.URL)
	if err != nil {
		s.logger.Warn("list parse failed", zap.String("crawler", req.Crawler), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	if items == nil {
		items = []feed.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) reload(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.reloaders))
	for name := range s.reloaders {
		names = append(names, name)
	}
	sort.Strings(names)

	reloaded := make([]string, 0, len(names))
	failed := map[string]string{}
	for _, name := range names {
		if err := s.reloaders[name].Reload(); err != nil {
			s.logger.Error("config reload failed", zap.String("set", name), zap.Error(err))
			failed[name] = err.Error()
			continue
		}
		reloaded = append(reloaded, name)
	}
	s.logger.Info("configs reloaded", zap.Strings("sets", reloaded), zap.Int("failed", len(failed)))
	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]any{"reloaded": reloaded, "failed": failed})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
