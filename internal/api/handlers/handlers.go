// Package handlers carries the shared pieces of the caller-facing endpoint
// handlers: the base handler wiring and SSE framing helpers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/auth/antigravity"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/runtime/executor"
)

// BaseHandler bundles the dependencies every endpoint handler needs.
type BaseHandler struct {
	Executor *executor.Executor
	Pool     *antigravity.PoolManager
}

// NewBaseHandler builds the shared handler core.
func NewBaseHandler(exec *executor.Executor, pool *antigravity.PoolManager) *BaseHandler {
	return &BaseHandler{Executor: exec, Pool: pool}
}

// ErrorStatus maps an executor or pool error onto the caller-facing HTTP
// status.
func ErrorStatus(err error) int {
	var statusErr *executor.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	if errors.Is(err, antigravity.ErrPoolExhausted) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// SetSSEHeaders prepares the response for a server-sent-event stream.
func SetSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}
