package claude

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	translator "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity"
)

// Accumulator collects a full event sequence for the non-streaming message
// shape.
type Accumulator struct {
	model    string
	thinking strings.Builder
	text     strings.Builder
	tools    []translator.Event
}

// NewAccumulator builds an accumulator for one response.
func NewAccumulator(model string) *Accumulator {
	return &Accumulator{model: model}
}

// Add consumes one event.
func (a *Accumulator) Add(ev translator.Event) {
	switch ev.Kind {
	case translator.ThinkingDelta:
		a.thinking.WriteString(ev.Text)
	case translator.TextDelta:
		a.text.WriteString(ev.Text)
	case translator.ToolCall:
		a.tools = append(a.tools, ev)
	}
}

// Document renders the accumulated events as one message JSON body.
func (a *Accumulator) Document() []byte {
	out := []byte(`{"type":"message","role":"assistant","content":[],"stop_sequence":null}`)
	out, _ = sjson.SetBytes(out, "id", "msg_"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	out, _ = sjson.SetBytes(out, "model", a.model)

	idx := 0
	if a.thinking.Len() > 0 {
		p := "content." + strconv.Itoa(idx)
		out, _ = sjson.SetBytes(out, p+".type", "thinking")
		out, _ = sjson.SetBytes(out, p+".thinking", a.thinking.String())
		idx++
	}
	if a.text.Len() > 0 {
		p := "content." + strconv.Itoa(idx)
		out, _ = sjson.SetBytes(out, p+".type", "text")
		out, _ = sjson.SetBytes(out, p+".text", a.text.String())
		idx++
	}
	for _, call := range a.tools {
		p := "content." + strconv.Itoa(idx)
		out, _ = sjson.SetBytes(out, p+".type", "tool_use")
		out, _ = sjson.SetBytes(out, p+".id", call.ToolID)
		out, _ = sjson.SetBytes(out, p+".name", call.ToolName)
		out, _ = sjson.SetRawBytes(out, p+".input", []byte(call.ToolArgs))
		idx++
	}

	stopReason := "end_turn"
	if len(a.tools) > 0 {
		stopReason = "tool_use"
	}
	out, _ = sjson.SetBytes(out, "stop_reason", stopReason)
	out, _ = sjson.SetBytes(out, "usage.input_tokens", 0)
	out, _ = sjson.SetBytes(out, "usage.output_tokens", estimateTokens(a.text.Len()))
	return out
}
