// Package api exposes the HTTP interface for the release crawler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/metrics"
	"github.com/booktrail/release-crawler/internal/release"
	"github.com/booktrail/release-crawler/internal/scheduler"
	"github.com/booktrail/release-crawler/internal/scrape"
)

// Scraper is the orchestrator surface the API exposes.
type Scraper interface {
	ScrapeAuthor(ctx context.Context, authorID int64) release.ScrapeOutcome
	ScrapeFavoriteAuthors(ctx context.Context) (release.BatchOutcome, error)
	ScrapeSpecificAuthors(ctx context.Context, authorIDs []int64) release.BatchOutcome
	DetectAndValidateFeeds(ctx context.Context, authorID int64) (detected, valid []string, err error)
	SetupAuthorFeeds(ctx context.Context, authorID int64) (scrape.FeedSetup, error)
}

// SchedulerControl is the scheduler surface the API exposes.
type SchedulerControl interface {
	Start()
	Stop()
	Status() scheduler.Status
	UpdateConfig(patch scheduler.ConfigPatch) scheduler.Config
	RunManual(ctx context.Context, kind string) error
}

// Config tunes server-level behavior.
type Config struct {
	RequestTimeout time.Duration
	AuthEnabled    bool
	APIKey         string
}

// Server wires HTTP handlers to the orchestrator and scheduler.
type Server struct {
	router    chi.Router
	scraper   Scraper
	scheduler SchedulerControl
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The scheduler
// may be nil; its routes then report 503.
func NewServer(cfg Config, scraper Scraper, sched SchedulerControl, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		// Batch scrapes run jittered and sequential; give them room.
		cfg.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		scraper:   scraper,
		scheduler: sched,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/authors/{author_id}", func(r chi.Router) {
			r.Post("/scrape", s.scrapeAuthor)
			r.Post("/feeds/detect", s.detectFeeds)
			r.Post("/feeds/setup", s.setupFeeds)
		})
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/favorites", s.scrapeFavorites)
			r.Post("/authors", s.scrapeAuthors)
		})
		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", s.schedulerStatus)
			r.Post("/start", s.schedulerStart)
			r.Post("/stop", s.schedulerStop)
			r.Patch("/config", s.schedulerConfig)
			r.Post("/run", s.schedulerRun)
		})
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

func (s *Server) scrapeAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, ok := authorIDParam(w, r)
	if !ok {
		return
	}
	outcome := s.scraper.ScrapeAuthor(r.Context(), authorID)
	status := http.StatusOK
	switch outcome.Kind {
	case release.OutcomeNotFound:
		status = http.StatusNotFound
	case release.OutcomeRateLimited:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, outcome)
}

func (s *Server) scrapeFavorites(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.scraper.ScrapeFavoriteAuthors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) scrapeAuthors(w http.ResponseWriter, r *http.Request) {
	var req scrapeAuthorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	writeJSON(w, http.StatusOK, s.scraper.ScrapeSpecificAuthors(r.Context(), req.IDs))
}

func (s *Server) detectFeeds(w http.ResponseWriter, r *http.Request) {
	authorID, ok := authorIDParam(w, r)
	if !ok {
		return
	}
	detected, valid, err := s.scraper.DetectAndValidateFeeds(r.Context(), authorID)
	if err != nil {
		if errors.Is(err, release.ErrAuthorNotFound) {
			writeError(w, http.StatusNotFound, "author not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, feedDetectResponse{Detected: detected, Valid: valid})
}

func (s *Server) setupFeeds(w http.ResponseWriter, r *http.Request) {
	authorID, ok := authorIDParam(w, r)
	if !ok {
		return
	}
	setup, err := s.scraper.SetupAuthorFeeds(r.Context(), authorID)
	if err != nil {
		if errors.Is(err, release.ErrAuthorNotFound) {
			writeError(w, http.StatusNotFound, "author not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) schedulerStart(w http.ResponseWriter, _ *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	s.scheduler.Start()
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) schedulerStop(w http.ResponseWriter, _ *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	s.scheduler.Stop()
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) schedulerConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	var patch scheduler.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.UpdateConfig(patch))
}

func (s *Server) schedulerRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	var req schedulerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		writeError(w, http.StatusBadRequest, "type required")
		return
	}
	if err := s.scheduler.RunManual(r.Context(), req.Type); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "type": req.Type})
}

func (s *Server) requireScheduler(w http.ResponseWriter) bool {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return false
	}
	return true
}

type scrapeAuthorsRequest struct {
	IDs []int64 `json:"ids"`
}

type schedulerRunRequest struct {
	Type string `json:"type"`
}

type feedDetectResponse struct {
	Detected []string `json:"detected"`
	Valid    []string `json:"valid"`
}

func authorIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "author_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid author id")
		return 0, false
	}
	return id, true
}

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
		s.logger.Info("request completed",
			zap.String("request_id", requestIDFromContext(r.Context())),
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
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
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
