// Package server provides the HTTP front end for a canvas replica:
// health/readiness probes, Prometheus metrics, the full-canvas
// snapshot and single-pixel endpoints, and the websocket upgrade that
// ties a browser session into the session registry.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/config"
	"github.com/ar4mirez/pixring/internal/metrics"
	"github.com/ar4mirez/pixring/internal/replica"
	"github.com/ar4mirez/pixring/internal/session"
)

// Server is the HTTP front end for one replica process.
type Server struct {
	cfg      *config.Config
	store    canvas.Store
	manager  *replica.Manager
	sessions *session.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics

	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates an HTTP server wired to the given replica manager,
// canvas store, and session registry. mx may be nil, in which case
// metrics recording is skipped until SetMetrics attaches one; callers
// that want metrics must pass the same *metrics.Metrics instance they
// registered elsewhere, since promauto registration panics on
// duplicate collector names.
func New(cfg *config.Config, store canvas.Store, manager *replica.Manager, sessions *session.Registry, logger *zap.Logger, mx *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		manager:  manager,
		sessions: sessions,
		logger:   logger,
		metrics:  mx,
		router:   gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the router's middleware stack. Only
// concerns with a role in a single-tenant, unauthenticated canvas
// service are kept: recovery, security headers, request ID,
// structured logging, CORS, and a request timeout.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.securityHeadersMiddleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.timeoutMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/canvas", s.canvasHandler)
	s.router.POST("/pixel", s.pixelHandler)
	s.router.GET("/ws", s.wsHandler)
}

// Start runs the HTTP server on cfg.Address until it errors out or is
// shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// SetMetrics swaps the metrics sink after construction. Mirrors the
// nil-tolerant optional-setter idiom used by replica.Manager.SetMetrics.
func (s *Server) SetMetrics(mx *metrics.Metrics) {
	s.metrics = mx
}
