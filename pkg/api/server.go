// Package api exposes the search, research, and agent flows over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lancerhq/lancer/pkg/agent"
	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/observability"
	"github.com/lancerhq/lancer/pkg/research"
	"github.com/lancerhq/lancer/pkg/sources"
)

// Server hosts the HTTP API.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *observability.StructuredLogger
}

// Deps are the wired flows the handlers dispatch to.
type Deps struct {
	Search      *research.Service
	Research    *research.Orchestrator
	Agent       *agent.Runner
	SimpleAgent *agent.SimpleAgent
	Aggregator  *sources.Aggregator
}

// NewServer builds the router and HTTP server.
func NewServer(cfg config.APIConfig, deps Deps) *Server {
	s := &Server{
		logger: observability.NewStructuredLogger("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	requestTimeout := config.GetDuration(cfg.Timeout, 3*time.Minute)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sources", s.handleSources(deps.Aggregator))

		// Routes that can stream manage their own deadlines; the timeout
		// middleware only wraps the buffered ones.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Post("/search", s.handleSearch(deps.Search))
		})

		r.Post("/search/heavy", s.handleHeavySearch(deps.Search, requestTimeout))
		r.Post("/search/stream", s.handleSearchStream(deps.Search, requestTimeout))
		r.Post("/research/deep", s.handleDeepResearch(deps.Research, requestTimeout))
		r.Post("/agent/run", s.handleAgentRun(deps.Agent, deps.SimpleAgent, requestTimeout))
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "api server starting", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request with latency and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info(r.Context(), "request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": float64(time.Since(start).Milliseconds()),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
