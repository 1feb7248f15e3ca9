package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/isdmx/codestream/config"
	"github.com/isdmx/codestream/session"
)

// LivenessMessage is served to plain HTTP requests on the root path.
const LivenessMessage = "Code editor backend is alive and well!"

// Server accepts editor connections and serves the liveness and metrics
// endpoints.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	hub      *session.Hub
	origins  *OriginPolicy
	upgrader websocket.Upgrader
	router   *gin.Engine
	http     *http.Server

	mu       sync.Mutex
	listener net.Listener
	conns    map[*websocket.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// New creates a Server
func New(cfg *config.Config, logger *zap.Logger, hub *session.Hub) *Server {
	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.addr", cfg.Addr()),
		zap.Strings("server.allowed_origins", cfg.Server.AllowedOrigins),
		zap.String("sandbox.runtime", cfg.Sandbox.Runtime),
		zap.String("sandbox.image", cfg.Sandbox.Image),
		zap.String("sandbox.language", cfg.Sandbox.Language),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Float64("sandbox.cpus", cfg.Sandbox.CPUs),
		zap.String("sandbox.workdir", cfg.Sandbox.Workdir),
		zap.String("sandbox.host_workdir", cfg.Sandbox.HostWorkdir),
	)

	if cfg.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		hub:     hub,
		origins: NewOriginPolicy(cfg.Server.AllowedOrigins),
		conns:   make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			if s.origins.check(r) {
				return true
			}
			s.logger.Warn("connection denied", zap.String("origin", r.Header.Get("Origin")))
			return false
		},
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.GET("/", s.handleRoot)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router = router

	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	return s
}

// Router returns the HTTP handler serving every endpoint.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start binds the listening port and serves in the background. A bind
// failure is returned so the process can exit.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting requests, closes every connection and waits for the
// sessions to reclaim their sandboxes.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")

	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for connections: %w", ctx.Err()))
	}

	s.hub.CloseAll()
	return err
}

func (s *Server) handleRoot(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusOK, LivenessMessage)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s.serveConn(conn)
}

// track registers a live connection; it fails once Stop has begun.
func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) writeTimeout() time.Duration {
	return time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second
}

func (s *Server) pingInterval() time.Duration {
	return time.Duration(s.cfg.Server.PingIntervalSec) * time.Second
}

// pongWait is how long a silent client is tolerated: two missed pings.
func (s *Server) pongWait() time.Duration {
	return 2 * s.pingInterval()
}
