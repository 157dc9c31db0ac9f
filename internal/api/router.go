package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"creature-tree/internal/game"
	"creature-tree/internal/game/proximity"
	"creature-tree/internal/game/spatial"
	"creature-tree/internal/render"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the game loop.
type EngineInterface interface {
	// IndexInfo describes the proximity index after the last turn
	IndexInfo() game.IndexInfo
	// Nearby returns a creature and the others in its visual range
	Nearby(h proximity.Handle) (game.Creature, []proximity.Neighbor, error)
	// Nearest returns the handles indexed within radius of p
	Nearest(p spatial.Point, radius uint32) ([]proximity.Handle, error)
	// Creatures returns copies of every creature
	Creatures() []game.Creature
	// Snapshot returns the latest lock-free immutable snapshot (nil before the first turn)
	Snapshot() *game.Snapshot
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation (required)
	Engine EngineInterface

	// Renderer draws /debug/index.png. If nil, one with DefaultConfig is used.
	Renderer *render.Renderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultAllowedOrigins.
	CORSOrigins []string

	// Metrics records request metrics. Nil disables them.
	Metrics *Metrics

	// Logger receives one debug line per request. Nil disables request logging.
	Logger *zap.Logger
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine   EngineInterface
	renderer *render.Renderer
	metrics  *Metrics
	logger   *zap.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// The only goroutine it may start is the cleanup loop of a rate limiter it
// creates itself; pass RateLimiter to keep control of it.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	r.Use(requestLogger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg, cfg.Metrics)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.New(render.DefaultConfig())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &routerHandlers{
		engine:   cfg.Engine,
		renderer: renderer,
		metrics:  cfg.Metrics,
		logger:   logger,
	}

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/index", h.handleIndex)
		r.Get("/creatures", h.handleCreatures)
		r.Get("/nearby/{handle}", h.handleNearby)
		r.Get("/nearest", h.handleNearest)
		r.Get("/snapshot", h.handleSnapshot)
	})
	r.With(rateLimiter.RouteMiddleware(RouteRender)).Get("/debug/index.png", h.handleIndexPNG)

	return r
}

// requestLogger records per-route metrics and logs each request at debug
// level. Labels use the chi route pattern so cardinality stays bounded.
func requestLogger(logger *zap.Logger, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				endpoint = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.RecordRequest(r.Method, endpoint, status, elapsed)
			if logger != nil {
				logger.Debug("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Duration("duration", elapsed))
			}
		})
	}
}
