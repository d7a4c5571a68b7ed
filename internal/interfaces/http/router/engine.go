package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/mikrosync/internal/infrastructure/logger"
	"github.com/erp/mikrosync/internal/interfaces/http/dto"
	"github.com/erp/mikrosync/internal/interfaces/http/handler"
	"github.com/erp/mikrosync/internal/interfaces/http/middleware"
)

// HealthPath is served outside the versioned API and logged quietly.
const HealthPath = "/health"

// EngineConfig configures the control surface engine
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	// Mode is the gin mode (debug, release, test)
	Mode string
}

// Handlers groups the handlers mounted on the engine
type Handlers struct {
	System *handler.SystemHandler
	Relay  *handler.RelayHandler
}

// NewEngine builds the gin engine for the control surface:
//
//	GET  /health
//	GET  /api/v1/system/info
//	GET  /api/v1/relay/status
//	POST /api/v1/relay/start
//	POST /api/v1/relay/stop
func NewEngine(cfg EngineConfig, h Handlers, log *zap.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(logger.GinMiddleware(log, HealthPath))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "route not found"))
	})

	engine.GET(HealthPath, h.System.Health)

	relayRoutes := NewDomainGroup("relay", "/relay").
		GET("/status", h.Relay.GetStatus).
		POST("/start", h.Relay.Start).
		POST("/stop", h.Relay.Stop)

	systemRoutes := NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo)

	NewRouter(engine, WithAPIVersion("v1")).
		Register(relayRoutes).
		Register(systemRoutes).
		Setup()

	return engine
}
