package openai

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/handlers"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/middleware"
)

// Models handles GET /v1/models by mapping the upstream model listing into
// the OpenAI list shape.
func (h *Handler) Models(c *gin.Context) {
	doc, err := h.Executor.FetchModels(c.Request.Context())
	if err != nil {
		middleware.RecordRequestError("upstream")
		writeError(c, handlers.ErrorStatus(err), "api_error", err.Error())
		return
	}

	out := []byte(`{"object":"list","data":[]}`)
	created := time.Now().Unix()
	idx := 0
	for _, model := range gjson.GetBytes(doc, "models").Array() {
		id := strings.TrimPrefix(model.Get("name").String(), "models/")
		if id == "" {
			continue
		}
		p := "data." + strconv.Itoa(idx)
		out, _ = sjson.SetBytes(out, p+".id", id)
		out, _ = sjson.SetBytes(out, p+".object", "model")
		out, _ = sjson.SetBytes(out, p+".created", created)
		out, _ = sjson.SetBytes(out, p+".owned_by", "google")
		idx++
	}
	c.Data(http.StatusOK, "application/json", out)
}
