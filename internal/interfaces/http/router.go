package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molecule-search/internal/interfaces/http/handlers"
	"github.com/turtacn/molecule-search/internal/interfaces/http/middleware"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// RouterConfig lists the handlers to mount. Nil handlers are skipped, which
// is how the server runs chat-only when the database is unavailable.
type RouterConfig struct {
	HealthHandler   *handlers.HealthHandler
	ChatHandler     *handlers.ChatHandler
	NotebookHandler *handlers.NotebookHandler
	MoleculeHandler *handlers.MoleculeHandler
	DocumentHandler *handlers.DocumentHandler

	CORS      middleware.CORSConfig
	RateLimit *middleware.RateLimitConfig
	Logging   middleware.LoggingConfig
	// MaxBodySize caps request bodies; zero disables the cap.
	MaxBodySize int64

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
}

// NewRouter builds the gin engine. Middleware order is recovery, request
// id, CORS, logging, rate limit, body limit.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true

	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	log = log.Named("http")

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestLogging(log, cfg.Metrics, cfg.Logging))
	if cfg.RateLimit != nil {
		r.Use(middleware.RateLimit(*cfg.RateLimit))
	}
	r.Use(middleware.BodyLimit(cfg.MaxBodySize))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}
	if cfg.ChatHandler != nil {
		r.POST("/chat", cfg.ChatHandler.Stream)
	}

	api := r.Group("/api/v1")
	if cfg.ChatHandler != nil {
		cfg.ChatHandler.RegisterRoutes(api)
	}
	if cfg.NotebookHandler != nil {
		cfg.NotebookHandler.RegisterRoutes(api)
	}
	if cfg.MoleculeHandler != nil {
		cfg.MoleculeHandler.RegisterRoutes(api)
	}
	if cfg.DocumentHandler != nil {
		cfg.DocumentHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: errors.CodeNotFound, Detail: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ErrorResponse{Code: errors.CodeInvalidParam, Detail: "method not allowed"})
	})
	return r
}
