package openai

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	translator "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity"
)

// ChunkAdapter frames semantic events as OpenAI chat-completion chunks. One
// event maps to at most one chunk; thinking boundaries have no chunk of
// their own since reasoning text is carried as a delta field.
type ChunkAdapter struct {
	id      string
	model   string
	created int64

	first     bool
	toolIndex int
	sawTool   bool
}

// NewChunkAdapter builds an adapter for one response stream.
func NewChunkAdapter(model string) *ChunkAdapter {
	return &ChunkAdapter{
		id:      "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		model:   model,
		created: time.Now().Unix(),
		first:   true,
	}
}

func (a *ChunkAdapter) envelope() []byte {
	out := []byte(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":null}]}`)
	out, _ = sjson.SetBytes(out, "id", a.id)
	out, _ = sjson.SetBytes(out, "created", a.created)
	out, _ = sjson.SetBytes(out, "model", a.model)
	if a.first {
		a.first = false
		out, _ = sjson.SetBytes(out, "choices.0.delta.role", "assistant")
	}
	return out
}

// Render converts one event into a chunk payload. The second return is
// false when the event produces no output.
func (a *ChunkAdapter) Render(ev translator.Event) ([]byte, bool) {
	switch ev.Kind {
	case translator.ThinkingDelta:
		out := a.envelope()
		out, _ = sjson.SetBytes(out, "choices.0.delta.reasoning_content", ev.Text)
		return out, true
	case translator.TextDelta:
		out := a.envelope()
		out, _ = sjson.SetBytes(out, "choices.0.delta.content", ev.Text)
		return out, true
	case translator.ToolCall:
		a.sawTool = true
		out := a.envelope()
		p := "choices.0.delta.tool_calls.0"
		out, _ = sjson.SetBytes(out, p+".index", a.toolIndex)
		out, _ = sjson.SetBytes(out, p+".id", ev.ToolID)
		out, _ = sjson.SetBytes(out, p+".type", "function")
		out, _ = sjson.SetBytes(out, p+".function.name", ev.ToolName)
		out, _ = sjson.SetBytes(out, p+".function.arguments", ev.ToolArgs)
		a.toolIndex++
		return out, true
	default:
		return nil, false
	}
}

// Finish returns the terminal chunk: an empty delta carrying the finish
// reason, tool_calls when any invocation was emitted, stop otherwise. The
// [DONE] sentinel is the transport's job.
func (a *ChunkAdapter) Finish() []byte {
	out := a.envelope()
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", a.finishReason())
	return out
}

func (a *ChunkAdapter) finishReason() string {
	if a.sawTool {
		return "tool_calls"
	}
	return "stop"
}

// Accumulator collects a full event sequence for the non-streaming response
// shape.
type Accumulator struct {
	model     string
	content   strings.Builder
	reasoning strings.Builder
	tools     []translator.Event
}

// NewAccumulator builds an accumulator for one response.
func NewAccumulator(model string) *Accumulator {
	return &Accumulator{model: model}
}

// Add consumes one event.
func (a *Accumulator) Add(ev translator.Event) {
	switch ev.Kind {
	case translator.ThinkingDelta:
		a.reasoning.WriteString(ev.Text)
	case translator.TextDelta:
		a.content.WriteString(ev.Text)
	case translator.ToolCall:
		a.tools = append(a.tools, ev)
	}
}

// Document renders the accumulated events as one chat.completion JSON body.
func (a *Accumulator) Document() []byte {
	out := []byte(`{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"}}]}`)
	out, _ = sjson.SetBytes(out, "id", "chatcmpl-"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	out, _ = sjson.SetBytes(out, "created", time.Now().Unix())
	out, _ = sjson.SetBytes(out, "model", a.model)
	out, _ = sjson.SetBytes(out, "choices.0.message.content", a.content.String())
	if a.reasoning.Len() > 0 {
		out, _ = sjson.SetBytes(out, "choices.0.message.reasoning_content", a.reasoning.String())
	}
	for i, call := range a.tools {
		p := "choices.0.message.tool_calls." + itoa(i)
		out, _ = sjson.SetBytes(out, p+".id", call.ToolID)
		out, _ = sjson.SetBytes(out, p+".type", "function")
		out, _ = sjson.SetBytes(out, p+".function.name", call.ToolName)
		out, _ = sjson.SetBytes(out, p+".function.arguments", call.ToolArgs)
	}
	reason := "stop"
	if len(a.tools) > 0 {
		reason = "tool_calls"
	}
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", reason)
	out, _ = sjson.SetBytes(out, "usage.completion_tokens", estimateTokens(a.content.Len()))
	out, _ = sjson.SetBytes(out, "usage.prompt_tokens", 0)
	out, _ = sjson.SetBytes(out, "usage.total_tokens", estimateTokens(a.content.Len()))
	return out
}

// estimateTokens approximates output tokens as characters divided by four,
// rounded up.
func estimateTokens(chars int) int {
	return (chars + 3) / 4
}
