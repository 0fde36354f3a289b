package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/metrics"
	"github.com/JakeFAU/carbuzz/internal/pipeline"
)

// Runner executes a full daily run.
type Runner interface {
	Run(ctx context.Context, date time.Time, opts pipeline.RunOptions) (pipeline.RunStats, error)
	Platforms(only string) ([]string, error)
}

// Config controls server behavior.
type Config struct {
	// APIKey guards /v1 when non-empty.
	APIKey   string
	Location *time.Location
	// RequestTimeout bounds each request; runs themselves continue in the background.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the pipeline runner and the run store.
type Server struct {
	router chi.Router
	runs   crawler.RunStore
	runner Runner
	idGen  crawler.IDGenerator
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger

	// base outlives requests so background runs are not canceled when the response is written.
	base   context.Context
	active atomic.Bool
	wg     sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes. Runs started through it use ctx
// as their parent.
func NewServer(
	ctx context.Context,
	runs crawler.RunStore,
	runner Runner,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		runs:   runs,
		runner: runner,
		idGen:  idGen,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("api"),
		base:   ctx,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until every background run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.base.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type runRequest struct {
	// Date is YYYY-MM-DD; empty means today in the run timezone.
	Date     string `json:"date"`
	Platform string `json:"platform"`
	Force    bool   `json:"force"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	date := pipeline.Midnight(s.clock.Now(), s.cfg.Location)
	if req.Date != "" {
		parsed, err := pipeline.ParseDate(req.Date, s.cfg.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = parsed
	}
	if _, err := s.runner.Platforms(req.Platform); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.active.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	run, err := s.createRun(r.Context(), date, req)
	if err != nil {
		s.active.Store(false)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.wg.Add(1)
	go s.execute(run, date, pipeline.RunOptions{Platform: req.Platform, Force: req.Force})

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "date": run.Date})
}

func (s *Server) createRun(ctx context.Context, date time.Time, req runRequest) (crawler.Run, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return crawler.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := crawler.Run{
		ID:        runID,
		Date:      pipeline.DateKey(date),
		Platform:  req.Platform,
		Force:     req.Force,
		Status:    crawler.RunStatusQueued,
		Submitted: s.clock.Now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return crawler.Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (s *Server) execute(run crawler.Run, date time.Time, opts pipeline.RunOptions) {
	defer s.wg.Done()
	defer s.active.Store(false)

	ctx := s.base
	logger := s.logger.With(zap.String("run_id", run.ID), zap.String("date", run.Date))
	if err := s.runs.UpdateRun(ctx, run.ID, crawler.RunStatusRunning, "", nil); err != nil {
		logger.Warn("failed to mark run as running", zap.Error(err))
	}
	logger.Info("run started")

	stats, err := s.runner.Run(ctx, date, opts)
	status, errText := crawler.RunStatusSucceeded, ""
	if err != nil {
		status, errText = crawler.RunStatusFailed, err.Error()
		logger.Error("run failed", zap.Error(err))
	} else {
		logger.Info("run finished")
	}
	// The run may have been canceled with the server; its record is still updated.
	if err := s.runs.UpdateRun(context.WithoutCancel(ctx), run.ID, status, errText, stats); err != nil {
		logger.Warn("failed to record run result", zap.Error(err))
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, crawler.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
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

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
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
