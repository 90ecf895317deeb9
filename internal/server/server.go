// Package server exposes the evidence pipeline over an HTTP JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/agent"
	"github.com/sells-group/evidence-cli/internal/attribution"
	"github.com/sells-group/evidence-cli/internal/contradiction"
	"github.com/sells-group/evidence-cli/internal/decision"
	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/ingest"
	"github.com/sells-group/evidence-cli/internal/monitoring"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/presence"
	"github.com/sells-group/evidence-cli/internal/proposal"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/synthesis"
)

// Services are the domain components the API delegates to. Synthesis and
// Agents may be nil when no text-generation key is configured. A nil
// Monitoring disables background alerting and the monitoring endpoint.
type Services struct {
	Store          store.Store
	Scheduler      *ingest.Scheduler
	Ingest         *ingest.Worker
	Synthesis      *synthesis.Service
	Digests        *digest.Generator
	Contradictions *contradiction.Detector
	Proposals      *proposal.Generator
	Pilots         *pilot.Manager
	Metrics        *pilot.StoreMetrics
	Attribution    *attribution.Engine
	Decisions      *decision.Engine
	Agents         *agent.Executor
	Monitoring     *monitoring.Checker
}

// Options configures the HTTP server.
type Options struct {
	Addr        string
	CORSOrigins []string
	PresenceTTL time.Duration
}

// Server is the evidence pipeline HTTP API server.
type Server struct {
	svc      Services
	presence *presence.Tracker
	router   chi.Router
	addr     string
	srv      *http.Server
	now      func() time.Time
}

// New creates a server and registers its routes.
func New(svc Services, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		svc:      svc,
		presence: presence.NewTracker(opts.PresenceTTL),
		addr:     opts.Addr,
		now:      func() time.Time { return time.Now().UTC() },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", userHeader},
		MaxAge:         300,
	}))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Presence returns the reviewer presence tracker owned by this server.
func (s *Server) Presence() *presence.Tracker { return s.presence }

// Start serves HTTP requests until Stop is called. It also sweeps expired
// presence entries and runs the monitoring checks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go s.presence.Run(ctx, 0)
	if s.svc.Monitoring != nil {
		go s.svc.Monitoring.Run(ctx)
	}

	zap.L().Info("starting server", zap.String("addr", s.addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
