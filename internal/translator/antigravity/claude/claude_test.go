package claude

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	translator "github.com/1-Tawsif-1/Antigravity-great-2/internal/translator/antigravity"
)

// frameData parses one "event: X\ndata: {...}\n\n" frame and returns the
// event name and the parsed data payload.
func frameData(t *testing.T, frame []byte) (string, gjson.Result) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(string(frame)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "event: "))
	require.True(t, strings.HasPrefix(lines[1], "data: "))
	return strings.TrimPrefix(lines[0], "event: "), gjson.Parse(strings.TrimPrefix(lines[1], "data: "))
}

func TestBuildRequestSystemAndBlocks(t *testing.T) {
	body := []byte(`{
		"model": "gemini-3-pro",
		"max_tokens": 256,
		"system": [{"type": "text", "text": "be brief"}],
		"messages": [
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": [
				{"type": "text", "text": "let me check"},
				{"type": "tool_use", "id": "t1", "name": "search", "input": {"q": "go"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "t1", "content": "found"}
			]}
		],
		"tools": [{"name": "search", "description": "web search",
			"input_schema": {"type": "object", "properties": {"q": {"type": "string"}}}}]
	}`)
	out := gjson.ParseBytes(BuildRequest(body, "gemini-3-pro", "proj-1"))

	assert.Equal(t, "be brief", out.Get("request.systemInstruction.parts.0.text").String())
	assert.Equal(t, int64(256), out.Get("request.generationConfig.maxOutputTokens").Int())

	contents := out.Get("request.contents").Array()
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Get("role").String())
	assert.Equal(t, "let me check", contents[1].Get("parts.0.text").String())
	assert.Equal(t, "search", contents[1].Get("parts.1.functionCall.name").String())
	assert.Equal(t, "go", contents[1].Get("parts.1.functionCall.args.q").String())
	assert.Equal(t, "found", contents[2].Get("parts.0.functionResponse.response.result").String())

	decl := out.Get("request.tools.0.functionDeclarations.0")
	assert.Equal(t, "search", decl.Get("name").String())
	assert.Equal(t, "string", decl.Get("parameters.properties.q.type").String())
}

func TestBuildRequestThinkingConfig(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"hi"}],
		"thinking":{"type":"enabled","budget_tokens":2048}}`)
	out := gjson.ParseBytes(BuildRequest(body, "m", "p"))
	assert.True(t, out.Get("request.generationConfig.thinkingConfig.includeThoughts").Bool())
	assert.Equal(t, int64(2048), out.Get("request.generationConfig.thinkingConfig.thinkingBudget").Int())
}

func TestBlockAdapterThinkingThenText(t *testing.T) {
	adapter := NewBlockAdapter("gemini-3-pro")

	name, data := frameData(t, adapter.Start())
	assert.Equal(t, "message_start", name)
	assert.Equal(t, "assistant", data.Get("message.role").String())
	assert.True(t, strings.HasPrefix(data.Get("message.id").String(), "msg_"))

	events := []translator.Event{
		{Kind: translator.ThinkingStart},
		{Kind: translator.ThinkingDelta, Text: "plan"},
		{Kind: translator.ThinkingEnd},
		{Kind: translator.TextDelta, Text: "hel"},
		{Kind: translator.TextDelta, Text: "lo"},
	}
	var frames [][]byte
	for _, ev := range events {
		frames = append(frames, adapter.Render(ev)...)
	}
	frames = append(frames, adapter.Finish()...)

	var sequence []string
	var indices []int64
	for _, frame := range frames {
		name, data := frameData(t, frame)
		sequence = append(sequence, name)
		if data.Get("index").Exists() {
			indices = append(indices, data.Get("index").Int())
		}
	}
	assert.Equal(t, []string{
		"content_block_start", "content_block_delta", "content_block_stop",
		"content_block_start", "content_block_delta", "content_block_delta", "content_block_stop",
		"message_delta", "message_stop",
	}, sequence)
	assert.Equal(t, []int64{0, 0, 0, 1, 1, 1, 1}, indices, "block index increases monotonically")

	_, last := frameData(t, frames[len(frames)-2])
	assert.Equal(t, "end_turn", last.Get("delta.stop_reason").String())
	assert.Equal(t, int64(2), last.Get("usage.output_tokens").Int(), "5 chars round up to 2 tokens")
}

func TestBlockAdapterTextClosedByNextThinking(t *testing.T) {
	adapter := NewBlockAdapter("gemini-3-pro")

	events := []translator.Event{
		{Kind: translator.TextDelta, Text: "first"},
		{Kind: translator.ThinkingStart},
		{Kind: translator.ThinkingDelta, Text: "more"},
		{Kind: translator.ThinkingEnd},
	}
	var frames [][]byte
	for _, ev := range events {
		frames = append(frames, adapter.Render(ev)...)
	}

	var sequence []string
	var indices []int64
	for _, frame := range frames {
		name, data := frameData(t, frame)
		sequence = append(sequence, name)
		indices = append(indices, data.Get("index").Int())
	}
	assert.Equal(t, []string{
		"content_block_start", "content_block_delta", "content_block_stop",
		"content_block_start", "content_block_delta", "content_block_stop",
	}, sequence, "a thinking segment ends the open text block")
	assert.Equal(t, []int64{0, 0, 0, 1, 1, 1}, indices)

	frames = adapter.Finish()
	require.Len(t, frames, 2)
	name, _ := frameData(t, frames[0])
	assert.Equal(t, "message_delta", name, "no stray block stop after both blocks closed")
}

func TestBlockAdapterToolUse(t *testing.T) {
	adapter := NewBlockAdapter("gemini-3-pro")
	frames := adapter.Render(translator.Event{Kind: translator.TextDelta, Text: "checking"})
	frames = append(frames, adapter.Render(translator.Event{
		Kind: translator.ToolCall, ToolID: "t1", ToolName: "search", ToolArgs: `{"q":"go"}`,
	})...)
	frames = append(frames, adapter.Finish()...)

	var sequence []string
	for _, frame := range frames {
		name, _ := frameData(t, frame)
		sequence = append(sequence, name)
	}
	assert.Equal(t, []string{
		"content_block_start", "content_block_delta", "content_block_stop",
		"content_block_start", "content_block_delta", "content_block_stop",
		"message_delta", "message_stop",
	}, sequence)

	_, start := frameData(t, frames[3])
	assert.Equal(t, "tool_use", start.Get("content_block.type").String())
	assert.Equal(t, "t1", start.Get("content_block.id").String())
	assert.Equal(t, "search", start.Get("content_block.name").String())

	_, delta := frameData(t, frames[4])
	assert.Equal(t, "input_json_delta", delta.Get("delta.type").String())
	assert.JSONEq(t, `{"q":"go"}`, delta.Get("delta.partial_json").String(),
		"whole argument document in a single delta")

	_, md := frameData(t, frames[6])
	assert.Equal(t, "tool_use", md.Get("delta.stop_reason").String())
}

func TestAccumulatorDocument(t *testing.T) {
	acc := NewAccumulator("gemini-3-pro")
	acc.Add(translator.Event{Kind: translator.ThinkingDelta, Text: "plan"})
	acc.Add(translator.Event{Kind: translator.TextDelta, Text: "answer"})
	acc.Add(translator.Event{Kind: translator.ToolCall, ToolID: "t1", ToolName: "search", ToolArgs: `{"q":"go"}`})

	got := gjson.ParseBytes(acc.Document())
	assert.Equal(t, "message", got.Get("type").String())
	content := got.Get("content").Array()
	require.Len(t, content, 3)
	assert.Equal(t, "thinking", content[0].Get("type").String())
	assert.Equal(t, "text", content[1].Get("type").String())
	assert.Equal(t, "answer", content[1].Get("text").String())
	assert.Equal(t, "tool_use", content[2].Get("type").String())
	assert.Equal(t, "go", content[2].Get("input.q").String())
	assert.Equal(t, "tool_use", got.Get("stop_reason").String())
}
