package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/mikrosync/internal/infrastructure/logger"
	"github.com/erp/mikrosync/internal/infrastructure/scheduler"
	"github.com/erp/mikrosync/internal/interfaces/http/dto"
)

const defaultHistoryLimit = 20

// RelayController is the part of the relay loop the control surface may touch.
type RelayController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() scheduler.Status
	History(limit int) []scheduler.CycleRecord
}

// RelayHandler starts, stops and reports on the relay loop.
type RelayHandler struct {
	BaseHandler
	relay       RelayController
	runCtx      context.Context
	stopTimeout time.Duration
}

// NewRelayHandler creates a RelayHandler. Loops started over HTTP live as
// long as runCtx, not as long as the request.
func NewRelayHandler(runCtx context.Context, relay RelayController, stopTimeout time.Duration) *RelayHandler {
	return &RelayHandler{
		relay:       relay,
		runCtx:      runCtx,
		stopTimeout: stopTimeout,
	}
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetStatus returns the loop state and the most recent cycles.
func (h *RelayHandler) GetStatus(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "limit must be between 1 and 100")
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultHistoryLimit
	}

	h.Success(c, dto.NewRelayStatusResponse(h.relay.Status(), h.relay.History(q.Limit)))
}

// Start launches the loop.
func (h *RelayHandler) Start(c *gin.Context) {
	if err := h.relay.Start(h.runCtx); err != nil {
		if errors.Is(err, scheduler.ErrSchedulerAlreadyRunning) {
			h.Conflict(c, dto.ErrCodeConflict, "relay is already running")
			return
		}
		logger.GetGinLogger(c).Error("Failed to start relay", zap.Error(err))
		h.InternalError(c, "failed to start relay")
		return
	}

	logger.GetGinLogger(c).Info("Relay started over HTTP")
	h.Success(c, dto.NewRelayStatusResponse(h.relay.Status(), nil))
}

// Stop asks the loop to exit and waits up to the stop timeout for the
// running cycle. When the wait times out the loop still exits after the cycle.
func (h *RelayHandler) Stop(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.stopTimeout)
	defer cancel()

	err := h.relay.Stop(ctx)
	switch {
	case err == nil:
		logger.GetGinLogger(c).Info("Relay stopped over HTTP")
		h.Success(c, dto.NewRelayStatusResponse(h.relay.Status(), nil))
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Conflict(c, dto.ErrCodeInvalidState, "relay is not running")
	case errors.Is(err, context.DeadlineExceeded):
		h.ErrorWithCode(c, dto.ErrCodeTimeout, "stop requested; the running cycle has not finished yet")
	default:
		logger.GetGinLogger(c).Error("Failed to stop relay", zap.Error(err))
		h.InternalError(c, "failed to stop relay")
	}
}
