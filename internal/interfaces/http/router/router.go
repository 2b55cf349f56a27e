// Package router assembles the gin engine and mounts the report API.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/orchard/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// RouteRegistrar mounts a handler's routes on the versioned API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// EngineConfig holds the global middleware settings.
type EngineConfig struct {
	Logger       *zap.Logger
	CORS         middleware.CORSConfig
	Tracing      middleware.TracingConfig
	Metrics      gin.HandlerFunc // nil disables HTTP metrics
	MaxBodyBytes int64           // zero disables the limit
}

// NewEngine creates a gin engine with the global middleware chain. The
// request id comes first so tracing, recovery and access logs all carry it.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	chain := []gin.HandlerFunc{
		middleware.RequestID(),
		middleware.TracingWithConfig(cfg.Tracing),
		middleware.SpanErrorMarker(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
	}
	if cfg.Metrics != nil {
		chain = append(chain, cfg.Metrics)
	}
	chain = append(chain, middleware.Secure(), middleware.CORSWithConfig(cfg.CORS))
	if cfg.MaxBodyBytes > 0 {
		chain = append(chain, middleware.BodyLimit(cfg.MaxBodyBytes))
	}

	engine := gin.New()
	engine.Use(chain...)
	return engine
}

// Router collects API middleware and registrars until Setup.
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAPIVersion sets the path version, as in /api/v2.
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.apiVersion = version }
}

// NewRouter creates a Router for /api/v1 unless an option says otherwise.
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware to the versioned API group only.
func (r *Router) Use(handlers ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, handlers...)
	return r
}

// Register queues a registrar for Setup.
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Health mounts GET /health outside the versioned API.
func (r *Router) Health(h gin.HandlerFunc) *Router {
	r.engine.GET("/health", h)
	return r
}

// Metrics mounts GET /metrics outside the versioned API. A nil handler
// leaves the path unrouted.
func (r *Router) Metrics(h http.Handler) *Router {
	if h != nil {
		r.engine.GET("/metrics", gin.WrapH(h))
	}
	return r
}

// Setup creates the API group and mounts every registrar.
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}
