// Package httpapi serves a read-only JSON status API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"airwatch/internal/domain"
	"airwatch/internal/task/engine"
	"airwatch/internal/task/scheduler"
	"airwatch/internal/timeline"
	"airwatch/pkg/logx"
)

const defaultRequestTimeout = 15 * time.Second

type TimelineView interface {
	Snapshot() timeline.SchedulerState
}

type CatalogView interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	Generation() uint64
}

type EngineView interface {
	Snapshot() engine.Snapshot
}

type TimersView interface {
	Snapshot() []scheduler.ScheduleInfo
}

type Deps struct {
	Timeline TimelineView
	Catalog  CatalogView
	Engine   EngineView
	Timers   TimersView
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool
}

type Server struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	started time.Time
	srv     *http.Server
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	return &Server{cfg: cfg, deps: deps, log: log, started: time.Now()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))
	r.Use(hlog.NewHandler(s.log.Zerolog()))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.AccessHandler(accessLog))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/tasks", s.handleTasks)
	})
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func accessLog(r *http.Request, status, size int, dur time.Duration) {
	var ev *zerolog.Event
	if status >= 500 {
		ev = hlog.FromRequest(r).Warn()
	} else {
		ev = hlog.FromRequest(r).Debug()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("dur", dur).
		Msg("http request")
}

// Run listens until ctx ends, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()
	s.log.Info("status api listening", logx.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Timeline != nil {
		st := s.deps.Timeline.Snapshot()
		out["timeline_phase"] = st.Phase
		if st.FetchFailures > 0 {
			out["status"] = "degraded"
			out["fetch_failures"] = st.FetchFailures
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if s.deps.Timeline == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline not running")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Timeline.Snapshot())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not available")
		return
	}
	items, err := s.deps.Catalog.ListItems(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("list catalog")
		writeError(w, http.StatusInternalServerError, "catalog read failed")
		return
	}
	if day := r.URL.Query().Get("day"); day != "" {
		filtered := items[:0]
		for _, it := range items {
			if it.Day == day {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []domain.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": s.deps.Catalog.Generation(),
		"items":      items,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if s.deps.Engine != nil {
		out["engine"] = s.deps.Engine.Snapshot()
	}
	if s.deps.Timers != nil {
		out["timers"] = s.deps.Timers.Snapshot()
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
