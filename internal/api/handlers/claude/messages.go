// Package claude serves the Anthropic-compatible messages endpoint.
package claude

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/handlers"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/middleware"
	translator "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity"
	anthropic "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity/claude"
)

// Handler serves the Anthropic-style routes.
type Handler struct {
	*handlers.BaseHandler
}

// NewHandler builds the Anthropic handler.
func NewHandler(base *handlers.BaseHandler) *Handler {
	return &Handler{BaseHandler: base}
}

// Messages handles POST /v1/messages.
func (h *Handler) Messages(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		writeError(c, http.StatusBadRequest, "invalid_request_error", "empty or unreadable request body")
		return
	}
	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		writeError(c, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	upstream := anthropic.BuildRequest(body, model, "")

	if gjson.GetBytes(body, "stream").Bool() {
		h.streamMessage(c, model, upstream)
		return
	}
	h.message(c, model, upstream)
}

func (h *Handler) message(c *gin.Context, model string, upstream []byte) {
	doc, err := h.Executor.Execute(c.Request.Context(), upstream)
	if err != nil {
		middleware.RecordRequestError("upstream")
		writeError(c, handlers.ErrorStatus(err), "api_error", err.Error())
		return
	}
	acc := anthropic.NewAccumulator(model)
	tr := translator.NewTranscoder(acc.Add)
	tr.Feed(doc)
	tr.Close()
	c.Data(http.StatusOK, "application/json", acc.Document())
}

func (h *Handler) streamMessage(c *gin.Context, model string, upstream []byte) {
	adapter := anthropic.NewBlockAdapter(model)
	handlers.SetSSEHeaders(c)

	stream, err := h.Executor.ExecuteStream(c.Request.Context(), upstream)
	if err != nil {
		middleware.RecordRequestError("upstream")
		handlers.WriteSSEFrame(c.Writer, adapter.Start())
		h.streamError(c, adapter, err)
		return
	}

	handlers.WriteSSEFrame(c.Writer, adapter.Start())
	c.Writer.Flush()

	tr := translator.NewTranscoder(func(ev translator.Event) {
		for _, frame := range adapter.Render(ev) {
			handlers.WriteSSEFrame(c.Writer, frame)
		}
		c.Writer.Flush()
	})
	for chunk := range stream {
		if chunk.Err != nil {
			log.Warnf("upstream stream broke mid-response: %v", chunk.Err)
			middleware.RecordRequestError("stream")
			h.streamError(c, adapter, chunk.Err)
			return
		}
		tr.Feed(chunk.Payload)
	}
	tr.Close()
	for _, frame := range adapter.Finish() {
		handlers.WriteSSEFrame(c.Writer, frame)
	}
	c.Writer.Flush()
}

// streamError frames a failure as one text delta followed by the normal
// stream terminator so a consumer reading the event stream does not hang.
func (h *Handler) streamError(c *gin.Context, adapter *anthropic.BlockAdapter, err error) {
	for _, frame := range adapter.Render(translator.Event{
		Kind: translator.TextDelta,
		Text: "Error: " + err.Error(),
	}) {
		handlers.WriteSSEFrame(c.Writer, frame)
	}
	for _, frame := range adapter.Finish() {
		handlers.WriteSSEFrame(c.Writer, frame)
	}
	c.Writer.Flush()
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"type": "error",
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	})
}
