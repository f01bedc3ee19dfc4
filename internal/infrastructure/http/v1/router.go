// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"

	"commesse/internal/infrastructure/http/v1/handlers"
	"commesse/internal/infrastructure/http/v1/middleware"
	"commesse/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Issuer applies the business rules and generates (manual issue)
	Issuer handlers.Issuer

	// Counter serves previews and raw counter access
	Counter handlers.Counter

	// Trigger receives archival transitions
	Trigger handlers.ArchiveTrigger

	// Registry lists issued documents; nil when no database is configured
	Registry handlers.RegistryLister

	// DB is pinged by the readiness probe; nil when no database is configured
	DB handlers.Pinger

	// DataDir must be writable for the service to be ready
	DataDir string

	// CORSOrigins allowed to call the API; empty disables CORS headers
	CORSOrigins []string

	// Debug enables gin debug mode
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler(cfg.Logger))

	healthHandler := handlers.NewHealthHandler(cfg.DataDir, cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	{
		registryHandler := handlers.NewRegistryHandler(cfg.Registry)
		api.GET("/ddt/registry", registryHandler.List)

		RegisterDDTRoutes(api.Group("/ddt/:class"), handlers.NewDDTHandler(cfg.Issuer, cfg.Counter))

		archiveHandler := handlers.NewArchiveHandler(cfg.Trigger)
		api.POST("/commesse/archive", archiveHandler.Archive)
	}

	return router
}

// NewHandler returns the router wrapped with CORS handling.
func NewHandler(cfg RouterConfig) http.Handler {
	engine := NewRouter(cfg)
	if len(cfg.CORSOrigins) == 0 {
		return engine
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderRequestID, middleware.HeaderTraceID},
		ExposedHeaders:   []string{middleware.HeaderRequestID, middleware.HeaderTraceID, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	})(engine)
}
