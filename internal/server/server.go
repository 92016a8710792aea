// Package server exposes the workflow behind a browser form: upload a workbook, run it,
// read the summary and download the updated file.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/async"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/journal"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

// History lists past runs. *journal.Journal satisfies it.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]journal.Run, error)
	Ping(ctx context.Context) error
}

type Config struct {
	MaxUploadBytes int64
	WorkDir        string
	// RunTTL and MaxRuns bound how long finished uploads stay downloadable.
	// Evicted runs lose their workbook on disk.
	RunTTL  time.Duration
	MaxRuns int
}

// Server tracks every upload from the moment it is queued, so the updated workbook can
// be downloaded even when the browser left before the run ended.
type Server struct {
	cfg     Config
	queue   async.Queue
	history History
	logger  *slog.Logger
	tmpl    *template.Template

	mu   sync.RWMutex
	runs map[uuid.UUID]*uploadRun
}

type uploadRun struct {
	ID       uuid.UUID
	Filename string
	Path     string
	ReqID    string

	done chan struct{}
	// set before done is closed
	Report     *workflow.Report
	Err        error
	FinishedAt time.Time
}

func (u *uploadRun) finished() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// New builds a Server. history may be nil when the journal is disabled.
func New(cfg Config, queue async.Queue, history History, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 24 * time.Hour
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = 100
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"ms": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		queue:   queue,
		history: history,
		logger:  logger,
		tmpl:    tmpl,
		runs:    make(map[uuid.UUID]*uploadRun),
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.indexHandler)
	r.Get("/healthz", s.healthHandler)
	r.Post("/runs", s.createRunHandler)
	r.Get("/runs", s.listRunsHandler)
	r.Get("/runs/{run_id}/download", s.downloadHandler)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http.request",
			"req_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// track registers a queued run and evicts old finished ones.
func (s *Server) track(run *uploadRun) {
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	s.sweep()
}

// collect waits for the queue's result whether or not anyone is still waiting on the page.
func (s *Server) collect(run *uploadRun, results <-chan async.Result) {
	res := <-results
	run.Report, run.Err, run.FinishedAt = res.Report, res.Err, time.Now()
	s.sweep()
	close(run.done)
	s.logger.Info("server.run.finished", "req_id", run.ReqID, "run_id", run.ID, "ok", res.Err == nil)
}

// sweep drops finished runs past RunTTL, then the oldest finished ones while more than
// MaxRuns are tracked. Runs still in the queue are never dropped.
func (s *Server) sweep() {
	now := time.Now()

	s.mu.Lock()
	var finished []*uploadRun
	for _, r := range s.runs {
		if r.finished() {
			finished = append(finished, r)
		}
	}
	slices.SortFunc(finished, func(a, b *uploadRun) int { return a.FinishedAt.Compare(b.FinishedAt) })

	excess := len(s.runs) - s.cfg.MaxRuns
	var evicted []*uploadRun
	for _, r := range finished {
		if excess <= 0 && now.Sub(r.FinishedAt) < s.cfg.RunTTL {
			break
		}
		delete(s.runs, r.ID)
		evicted = append(evicted, r)
		excess--
	}
	s.mu.Unlock()

	for _, r := range evicted {
		if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("server.run.evict_failed", "run_id", r.ID, "path", r.Path, "error", err)
			continue
		}
		s.logger.Info("server.run.evicted", "run_id", r.ID, "finished_at", r.FinishedAt)
	}
}

func (s *Server) lookup(id uuid.UUID) (*uploadRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}
