package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/report"
)

// Source is the crawl state the server reports on.
type Source interface {
	Host() string
	Counters() crawler.Counters
	Finished() bool
	VisitedResults() map[string]*crawler.Result
}

// Config identifies the run being served.
type Config struct {
	RunID     string
	Start     string
	StartedAt time.Time
	// Timeout bounds each request. Zero uses 30s.
	Timeout time.Duration
}

// Server wires HTTP handlers to a running crawl.
type Server struct {
	router   chi.Router
	source   Source
	gatherer prometheus.Gatherer
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	RunID      string    `json:"run_id"`
	Host       string    `json:"host"`
	Start      string    `json:"start"`
	StartedAt  time.Time `json:"started_at"`
	UptimeMs   int64     `json:"uptime_ms"`
	Dispatched int       `json:"dispatched"`
	Retrieved  int       `json:"retrieved"`
	InFlight   int       `json:"in_flight"`
	Finished   bool      `json:"finished"`
}

// NewServer constructs a Server with middleware and routes. reg receives the server's own
// request metrics and gatherer is what /metrics exposes; both are usually one registry.
func NewServer(
	source Source,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		source:   source,
		gatherer: gatherer,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
	httpMetrics := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(httpMetrics.Middleware)
	r.Use(timeoutMiddleware(cfg.Timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/results", s.results)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	counters := s.source.Counters()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		RunID:      s.cfg.RunID,
		Host:       s.source.Host(),
		Start:      s.cfg.Start,
		StartedAt:  s.cfg.StartedAt,
		UptimeMs:   s.clock.Now().Sub(s.cfg.StartedAt).Milliseconds(),
		Dispatched: counters.Dispatched,
		Retrieved:  counters.Retrieved,
		InFlight:   counters.Dispatched - counters.Retrieved,
		Finished:   s.source.Finished(),
	})
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	failedOnly := false
	if raw := query.Get("failed"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed must be a boolean")
			return
		}
		failedOnly = parsed
	}

	visited := s.source.VisitedResults()
	if target := query.Get("url"); target != "" {
		res, ok := visited[crawler.StripSessionID(target)]
		if !ok {
			s.writeError(w, http.StatusNotFound, "url not visited")
			return
		}
		visited = map[string]*crawler.Result{res.URL: res}
	}

	rep := report.Build(report.Meta{RunID: s.cfg.RunID, Host: s.source.Host()}, visited, s.source.Counters())
	entries := rep.Results
	if failedOnly {
		entries = make([]report.Entry, 0, rep.Failures)
		for _, e := range rep.Results {
			if e.Error != "" {
				entries = append(entries, e)
			}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"results": entries,
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
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

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
