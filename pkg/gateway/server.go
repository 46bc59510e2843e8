// Package gateway exposes registered tools over HTTP. Every tool is reachable
// at POST <prefix>/<wireName>; read-only tools also answer GET with query
// arguments. Run completions and UI hints are pushed over SSE and websocket.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/toolrun/internal/metrics"
	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/runstore"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

const (
	DefaultPrefix              = "/api/tools"
	DefaultKeepalive           = 15 * time.Second
	DefaultMaxEventResultBytes = 64 * 1024
	DefaultShutdownTimeout     = 10 * time.Second
)

// ErrReservedWireName is returned when a tool's wire name shadows a gateway route
var ErrReservedWireName = errors.New("wire name is reserved")

// ErrRunToolMismatch is returned when a resume names a run of another tool
var ErrRunToolMismatch = errors.New("checkpoint does not belong to run")

// Config holds server configuration
type Config struct {
	Addr   string
	Prefix string
	Runner *toolexecutor.Runner
	Runs   *runstore.Store
	// Keepalive is the interval between hello events on push streams.
	Keepalive time.Duration
	// MaxEventResultBytes caps the encoded result inlined in run:finished.
	MaxEventResultBytes int
	AsyncByDefault      bool
	ShutdownTimeout     time.Duration
	Logger              zerolog.Logger
	Metrics             *metrics.Metrics
}

// Server is the HTTP wire layer
type Server struct {
	prefix          string
	runner          *toolexecutor.Runner
	registry        *toolexecutor.Registry
	bus             *eventbus.Bus
	runs            *runstore.Store
	keepalive       time.Duration
	maxResultBytes  int
	asyncByDefault  bool
	shutdownTimeout time.Duration
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	upgrader        websocket.Upgrader
	handler         http.Handler
	server          *http.Server

	baseCtx context.Context
	cancel  context.CancelFunc
	runsWG  sync.WaitGroup
}

// NewServer creates a new gateway server and its router
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Runner.Bus() == nil {
		return nil, fmt.Errorf("runner has no event bus")
	}
	if cfg.Runs == nil {
		cfg.Runs = runstore.New()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if !strings.HasPrefix(cfg.Prefix, "/") {
		return nil, fmt.Errorf("prefix %q must start with /", cfg.Prefix)
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	if cfg.MaxEventResultBytes <= 0 {
		cfg.MaxEventResultBytes = DefaultMaxEventResultBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	registry := cfg.Runner.Registry()
	for _, spec := range registry.List() {
		wire := toolexecutor.SanitizeWireName(spec.Name)
		if reservedWireNames[wire] {
			return nil, fmt.Errorf("%w: %s (tool %s)", ErrReservedWireName, wire, spec.Name)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		prefix:          strings.TrimRight(cfg.Prefix, "/"),
		runner:          cfg.Runner,
		registry:        registry,
		bus:             cfg.Runner.Bus(),
		runs:            cfg.Runs,
		keepalive:       cfg.Keepalive,
		maxResultBytes:  cfg.MaxEventResultBytes,
		asyncByDefault:  cfg.AsyncByDefault,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		baseCtx:         baseCtx,
		cancel:          cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.handler = s.routes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s, nil
}

// Handler returns the HTTP handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Prefix returns the normalized route prefix
func (s *Server) Prefix() string {
	return s.prefix
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	if s.prefix == "" {
		s.mountTools(r)
	} else {
		r.Route(s.prefix, s.mountTools)
	}
	return r
}

func (s *Server) mountTools(r chi.Router) {
	r.Get("/", s.handleDirectory)
	r.Get("/tools", s.handleManifest)
	r.Get("/events", s.handleEvents)
	r.Get("/ws", s.handleWebSocket)
	r.Post("/resume", s.handleResume)
	r.Get("/runs/{runId}", s.handleGetRun)
	r.Post("/runs/{runId}/signal", s.handleSignal)
	r.Post("/{wire}", s.handleInvoke)
	r.Get("/{wire}", s.handleQuery)
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Str("prefix", s.prefix).
		Int("tools", s.registry.Len()).
		Msg("Starting gateway")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Shutdown stops push streams, cancels background runs and closes the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down gateway")
	s.cancel()

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.runsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached with runs in flight")
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
