package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/mikrosync/internal/infrastructure/logger"
	"github.com/erp/mikrosync/internal/interfaces/http/dto"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves the health probe and build information
type SystemHandler struct {
	BaseHandler
	db        Pinger
	relay     RelayController
	version   string
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db Pinger, relay RelayController, version string) *SystemHandler {
	return &SystemHandler{
		db:        db,
		relay:     relay,
		version:   version,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns version and uptime
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      "mikrosync",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Health pings the shop database and reports the relay phase.
// The response is 503 only when the database is unreachable; a stopped relay is healthy.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	resp := dto.HealthResponse{
		Status:   "healthy",
		Time:     time.Now().UTC(),
		Database: "ok",
		Relay:    h.relay.Status().Phase,
	}

	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "error"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
