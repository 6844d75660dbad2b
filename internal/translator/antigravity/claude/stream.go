package claude

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	translator "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity"
)

// formatFrame frames one named SSE event the Anthropic way.
func formatFrame(name string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

func buildMessageStart(messageID, model string) []byte {
	data := []byte(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":0,"output_tokens":0}}}`)
	data, _ = sjson.SetBytes(data, "message.id", messageID)
	data, _ = sjson.SetBytes(data, "message.model", model)
	return formatFrame("message_start", data)
}

func buildBlockStart(index int, blockJSON string) []byte {
	data := []byte(`{"type":"content_block_start"}`)
	data, _ = sjson.SetBytes(data, "index", index)
	data, _ = sjson.SetRawBytes(data, "content_block", []byte(blockJSON))
	return formatFrame("content_block_start", data)
}

func buildBlockDelta(index int, deltaType, field, value string) []byte {
	data := []byte(`{"type":"content_block_delta"}`)
	data, _ = sjson.SetBytes(data, "index", index)
	data, _ = sjson.SetBytes(data, "delta.type", deltaType)
	data, _ = sjson.SetBytes(data, "delta."+field, value)
	return formatFrame("content_block_delta", data)
}

func buildBlockStop(index int) []byte {
	data := []byte(`{"type":"content_block_stop"}`)
	data, _ = sjson.SetBytes(data, "index", index)
	return formatFrame("content_block_stop", data)
}

func buildMessageDelta(stopReason string, outputTokens int) []byte {
	data := []byte(`{"type":"message_delta","delta":{"stop_sequence":null}}`)
	data, _ = sjson.SetBytes(data, "delta.stop_reason", stopReason)
	data, _ = sjson.SetBytes(data, "usage.output_tokens", outputTokens)
	return formatFrame("message_delta", data)
}

func buildMessageStop() []byte {
	return formatFrame("message_stop", []byte(`{"type":"message_stop"}`))
}

// BlockAdapter frames semantic events as Anthropic streaming messages. It
// keeps a monotonically increasing content-block index; thinking and text
// segments each occupy one block, and every tool invocation opens, deltas
// and closes its own block with the whole argument document as a single
// input_json_delta.
type BlockAdapter struct {
	messageID string
	model     string

	index        int
	textOpen     bool
	thinkingOpen bool
	sawTool      bool
	textChars    int
}

// NewBlockAdapter builds an adapter for one response stream.
func NewBlockAdapter(model string) *BlockAdapter {
	return &BlockAdapter{
		messageID: "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		model:     model,
	}
}

// Start returns the opening message_start frame.
func (a *BlockAdapter) Start() []byte {
	return buildMessageStart(a.messageID, a.model)
}

// Render converts one event into zero or more SSE frames.
func (a *BlockAdapter) Render(ev translator.Event) [][]byte {
	switch ev.Kind {
	case translator.ThinkingStart:
		var frames [][]byte
		if a.textOpen {
			a.textOpen = false
			frames = append(frames, buildBlockStop(a.index))
			a.index++
		}
		a.thinkingOpen = true
		frames = append(frames, buildBlockStart(a.index, `{"type":"thinking","thinking":""}`))
		return frames
	case translator.ThinkingDelta:
		return [][]byte{buildBlockDelta(a.index, "thinking_delta", "thinking", ev.Text)}
	case translator.ThinkingEnd:
		a.thinkingOpen = false
		frame := buildBlockStop(a.index)
		a.index++
		return [][]byte{frame}
	case translator.TextDelta:
		a.textChars += len(ev.Text)
		var frames [][]byte
		if !a.textOpen {
			a.textOpen = true
			frames = append(frames, buildBlockStart(a.index, `{"type":"text","text":""}`))
		}
		frames = append(frames, buildBlockDelta(a.index, "text_delta", "text", ev.Text))
		return frames
	case translator.ToolCall:
		a.sawTool = true
		var frames [][]byte
		if a.textOpen {
			a.textOpen = false
			frames = append(frames, buildBlockStop(a.index))
			a.index++
		}
		block := []byte(`{"type":"tool_use","input":{}}`)
		block, _ = sjson.SetBytes(block, "id", ev.ToolID)
		block, _ = sjson.SetBytes(block, "name", ev.ToolName)
		frames = append(frames,
			buildBlockStart(a.index, string(block)),
			buildBlockDelta(a.index, "input_json_delta", "partial_json", ev.ToolArgs),
			buildBlockStop(a.index),
		)
		a.index++
		return frames
	default:
		return nil
	}
}

// Finish closes any open block and returns the trailing message_delta and
// message_stop frames. The output-token figure is estimated from the
// emitted answer text.
func (a *BlockAdapter) Finish() [][]byte {
	var frames [][]byte
	if a.thinkingOpen || a.textOpen {
		a.thinkingOpen = false
		a.textOpen = false
		frames = append(frames, buildBlockStop(a.index))
		a.index++
	}
	stopReason := "end_turn"
	if a.sawTool {
		stopReason = "tool_use"
	}
	frames = append(frames,
		buildMessageDelta(stopReason, estimateTokens(a.textChars)),
		buildMessageStop(),
	)
	return frames
}

func estimateTokens(chars int) int {
	return (chars + 3) / 4
}
