package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"creature-tree/internal/game"
	"creature-tree/internal/render"
)

// ServerOptions configures NewServer.
type ServerOptions struct {
	CORSOrigins []string
	Render      render.Config
	Metrics     *Metrics
	Logger      *zap.Logger
}

// Server is the HTTP debug API with WebSocket tick streaming.
type Server struct {
	engine      *game.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	logger      *zap.Logger
}

// NewServer creates the API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called, apart
// from the rate limiter cleanup loop which Shutdown stops.
func NewServer(engine *game.Engine, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(opts.CORSOrigins, opts.Metrics, logger),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig, opts.Metrics),
		logger:      logger,
	}
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Renderer:    render.New(opts.Render),
		RateLimiter: s.rateLimiter,
		CORSOrigins: opts.CORSOrigins,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})

	// Needs the wsHub instance, so it is not part of NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins the HTTP server AND starts background workers. It blocks
// until the server stops and returns nil after Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go s.wsHub.Run()
	s.engine.OnTick(func(stats game.TickStats) {
		s.wsHub.Broadcast("index:tick", stats)
	})

	s.logger.Info("API server starting",
		zap.String("addr", ln.Addr().String()),
		zap.String("overlay", "http://"+ln.Addr().String()+"/debug/index.png"))

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes WebSocket clients and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.engine.OnTick(nil)
	err := s.httpServer.Shutdown(ctx)
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}
