// Package server exposes the system over HTTP: a health check, the wire
// schema and the websocket clients use to follow events and send commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/broadcast"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const scopeName = "github.com/koscakluka/ema-sense/core/server"

var logger = otelslog.NewLogger(scopeName)

const (
	DefaultAddr = ":8000"

	defaultReadHeaderTimeout = 10 * time.Second
)

type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:              DefaultAddr,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
}

// Commander accepts commands typed by websocket clients.
type Commander interface {
	SendCommand(text string) error
}

type Server struct {
	config   Config
	router   *chi.Mux
	hub      *broadcast.Hub
	commands Commander
	upgrader websocket.Upgrader

	mu       sync.Mutex
	httpSrv  *http.Server
	shutdown bool
}

// New wires routes for hub and commands. Commands received over the
// websocket are handed to commands; a nil Commander ignores them.
func New(cfg Config, hub *broadcast.Hub, commands Commander) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		hub:      hub,
		commands: commands,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.health)
	s.router.Get("/schema", s.schema)
	s.router.Get("/ws", s.serveWebsocket)
}

// requestLogger logs every request once it has been served.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.DebugContext(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Handler is the instrumented router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "ema-sense",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return listener.Close()
	}
	s.httpSrv = httpSrv
	s.mu.Unlock()

	logger.InfoContext(ctx, "server listening", "addr", listener.Addr().String())
	if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpSrv := s.httpSrv
	s.shutdown = true
	s.mu.Unlock()

	var errs []error
	if httpSrv != nil {
		errs = append(errs, httpSrv.Shutdown(ctx))
	}
	if s.hub != nil {
		errs = append(errs, s.hub.Close())
	}
	return errors.Join(errs...)
}

// Router returns the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
