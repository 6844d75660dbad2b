// Package openai serves the OpenAI-compatible endpoints: chat completions
// and the models listing.
package openai

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/handlers"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/middleware"
	translator "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity"
	oai "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity/openai"
)

// Handler serves the OpenAI-style routes.
type Handler struct {
	*handlers.BaseHandler
}

// NewHandler builds the OpenAI handler.
func NewHandler(base *handlers.BaseHandler) *Handler {
	return &Handler{BaseHandler: base}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(c *gin.Context) {
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
	upstream := oai.BuildRequest(body, model, "")

	if gjson.GetBytes(body, "stream").Bool() {
		h.streamCompletion(c, model, upstream)
		return
	}
	h.completion(c, model, upstream)
}

func (h *Handler) completion(c *gin.Context, model string, upstream []byte) {
	doc, err := h.Executor.Execute(c.Request.Context(), upstream)
	if err != nil {
		middleware.RecordRequestError("upstream")
		writeError(c, handlers.ErrorStatus(err), "api_error", err.Error())
		return
	}
	acc := oai.NewAccumulator(model)
	tr := translator.NewTranscoder(acc.Add)
	tr.Feed(doc)
	tr.Close()
	c.Data(http.StatusOK, "application/json", acc.Document())
}

func (h *Handler) streamCompletion(c *gin.Context, model string, upstream []byte) {
	adapter := oai.NewChunkAdapter(model)
	handlers.SetSSEHeaders(c)

	stream, err := h.Executor.ExecuteStream(c.Request.Context(), upstream)
	if err != nil {
		middleware.RecordRequestError("upstream")
		h.streamError(c, adapter, err)
		return
	}

	tr := translator.NewTranscoder(func(ev translator.Event) {
		if chunk, ok := adapter.Render(ev); ok {
			handlers.WriteSSEData(c.Writer, chunk)
			c.Writer.Flush()
		}
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
	handlers.WriteSSEData(c.Writer, adapter.Finish())
	handlers.WriteSSEDone(c.Writer)
	c.Writer.Flush()
}

// streamError frames a failure as one content delta followed by the normal
// stream terminator so a consumer reading the event stream does not hang.
func (h *Handler) streamError(c *gin.Context, adapter *oai.ChunkAdapter, err error) {
	if chunk, ok := adapter.Render(translator.Event{
		Kind: translator.TextDelta,
		Text: "Error: " + err.Error(),
	}); ok {
		handlers.WriteSSEData(c.Writer, chunk)
	}
	handlers.WriteSSEData(c.Writer, adapter.Finish())
	handlers.WriteSSEDone(c.Writer)
	c.Writer.Flush()
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
			"code":    status,
		},
	})
}
