// Package server exposes analysis sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elonfeng/sentradar/internal/logging"
	"github.com/elonfeng/sentradar/internal/store"
	"github.com/elonfeng/sentradar/pkg/pipeline"
	"github.com/elonfeng/sentradar/pkg/report"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

// SourceFactory builds the adapter for a source type.
type SourceFactory func(st source.SourceType) (source.Source, error)

// Options wires the server's collaborators. Archive, Generator and Gatherer are
// optional.
type Options struct {
	Port          int
	Sessions      *session.Store
	Runner        *pipeline.Runner
	Sources       SourceFactory
	Generator     *report.Generator
	Archive       store.Store
	Gatherer      prometheus.Gatherer
	DefaultFilter session.Filter
	Target        int
	Log           logging.Logger
}

// Server provides the HTTP API.
type Server struct {
	opts   Options
	router chi.Router
	server *http.Server
	log    logging.Logger
}

// New creates a new HTTP server.
func New(opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Target <= 0 {
		opts.Target = 100
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewStore(0)
	}
	if opts.Runner == nil {
		opts.Runner = &pipeline.Runner{}
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	s := &Server{opts: opts, log: opts.Log}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", s.handleSources)
		r.Get("/steam/{appid}/events", s.handleSteamEvents)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/fetch", s.handleFetch)
			r.Post("/clear", s.handleClear)
			r.Get("/summaries", s.handleSummaries)
			r.Get("/records", s.handleRecords)
			r.Get("/keywords", s.handleKeywords)
			r.Get("/timeline", s.handleTimeline)
			r.Get("/split", s.handleSplit)
			r.Put("/filter", s.handleSetFilter)
			r.Get("/export.csv", s.handleExportCSV)
			r.Post("/report", s.handleReport)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}/summaries", s.handleRunSummaries)
		})
	})
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.server.Addr).Info("sentradar server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logging.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed":    time.Since(start).Round(time.Millisecond),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.opts.Sessions.Len(),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	type sourceInfo struct {
		Name    string   `json:"name"`
		Metrics []string `json:"metrics"`
	}
	var infos []sourceInfo
	for _, st := range source.AllSourceTypes() {
		infos = append(infos, sourceInfo{Name: string(st), Metrics: source.MetricKeys(st)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
