package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Echo      bool    // write every text frame back verbatim instead of dispatching
	JWTSecret string  // empty disables auth
	RateLimit float64 // frames per second per connection, 0 means unlimited
	RateBurst int
}

// Server is a local method-dispatching WebSocket peer for the probe.
type Server struct {
	opts     Options
	registry *Registry
	log      *zap.Logger
	limit    rate.Limit
	burst    int
	upgrader websocket.Upgrader
	engine   *gin.Engine

	mu    sync.Mutex
	conns map[string]*connection

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewServer(opts Options, registry *Registry, log *zap.Logger) *Server {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Server{
		opts:     opts,
		registry: registry,
		log:      log,
		limit:    rate.Limit(opts.RateLimit),
		burst:    opts.RateBurst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local sandbox, any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:    make(map[string]*connection),
		shutdown: make(chan struct{}),
	}
	if opts.RateLimit <= 0 {
		s.limit = rate.Inf
	}
	if s.burst < 1 {
		s.burst = 1
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))
	engine.GET("/healthz", s.health)
	engine.GET("/", authMiddleware(opts.JWTSecret), s.upgrade)
	s.engine = engine

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then sends a close
// frame to every open socket and shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.log.Info("sandbox serving",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("echo", s.opts.Echo),
		zap.Bool("auth", s.opts.JWTSecret != ""),
		zap.Strings("methods", s.methods()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("sandbox stopped")
	return nil
}

// Close asks every open connection to go away. Safe to call more than once.
func (s *Server) Close() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})
}

func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) untrack(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
}

func (s *Server) methods() []string {
	methods := s.registry.Methods()
	sort.Strings(methods)
	return methods
}

func (s *Server) upgrade(c *gin.Context) {
	select {
	case <-s.shutdown:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
		return
	default:
	}

	// the upgrader writes the HTTP error itself on failure
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	s.serveConn(c.Request.Context(), ws, c.GetString(subjectKey))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.ConnectionCount(),
		"echo":        s.opts.Echo,
		"methods":     s.methods(),
	})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
