package antigravity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Transcoder is a stateful parser over the upstream chunk stream. Feed it
// the JSON payload of each SSE data line in arrival order; it drives the
// sink with semantic events, opening and closing thinking segments at part
// boundaries and holding function invocations back until the upstream
// reports generation finish.
//
// Malformed or non-JSON payloads are skipped. A garbled frame must not
// abort an otherwise healthy stream.
type Transcoder struct {
	sink Sink

	thinking   bool
	buffered   []Event
	finish     string
	textChars  int
	sawToolUse bool
}

// NewTranscoder builds a transcoder feeding sink.
func NewTranscoder(sink Sink) *Transcoder {
	return &Transcoder{sink: sink}
}

// Feed consumes one upstream chunk payload.
func (t *Transcoder) Feed(payload []byte) {
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return
	}
	candidate := root.Get("response.candidates.0")
	if !candidate.Exists() {
		candidate = root.Get("candidates.0")
	}

	for _, part := range candidate.Get("content.parts").Array() {
		t.feedPart(part)
	}

	if reason := candidate.Get("finishReason").String(); reason != "" {
		t.finish = reason
		t.flushFinish()
	}
}

func (t *Transcoder) feedPart(part gjson.Result) {
	if fc := part.Get("functionCall"); fc.Exists() {
		t.bufferCall(fc)
		return
	}

	text := part.Get("text").String()
	if part.Get("thought").Bool() {
		if !t.thinking {
			t.thinking = true
			t.emit(Event{Kind: ThinkingStart})
		}
		t.emit(Event{Kind: ThinkingDelta, Text: text})
		return
	}

	t.closeThinking()
	signature := part.Get("thoughtSignature").String()
	if signature != "" {
		text += signatureAnnotation(signature)
	}
	if inline := part.Get("inlineData"); inline.Exists() {
		text += inlineImageMarkdown(inline)
	}
	if text == "" {
		return
	}
	t.textChars += len(text)
	t.emit(Event{
		Kind:      TextDelta,
		Text:      text,
		Signature: signature,
	})
}

func (t *Transcoder) bufferCall(fc gjson.Result) {
	args := fc.Get("args").Raw
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	id := fc.Get("id").String()
	if id == "" {
		id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	t.buffered = append(t.buffered, Event{
		Kind:     ToolCall,
		ToolID:   id,
		ToolName: fc.Get("name").String(),
		ToolArgs: args,
	})
}

// flushFinish releases buffered invocations in buffering order once the
// upstream has signalled completion.
func (t *Transcoder) flushFinish() {
	t.closeThinking()
	for _, call := range t.buffered {
		t.sawToolUse = true
		t.emit(call)
	}
	t.buffered = nil
}

// Close ends the stream. Text has no explicit end marker, so stream
// completion is one of its two boundaries; a still-open thinking segment is
// closed here as well.
func (t *Transcoder) Close() {
	t.closeThinking()
}

func (t *Transcoder) closeThinking() {
	if t.thinking {
		t.thinking = false
		t.emit(Event{Kind: ThinkingEnd})
	}
}

func (t *Transcoder) emit(ev Event) {
	if t.sink != nil {
		t.sink(ev)
	}
}

// FinishReason returns the upstream finish reason, empty until seen.
func (t *Transcoder) FinishReason() string { return t.finish }

// Finished reports whether the upstream signalled generation finish.
func (t *Transcoder) Finished() bool { return t.finish != "" }

// SawToolCalls reports whether any ToolCall event was emitted.
func (t *Transcoder) SawToolCalls() bool { return t.sawToolUse }

// TextChars returns the cumulative length of emitted answer text, the basis
// for the output-token estimate.
func (t *Transcoder) TextChars() int { return t.textChars }

// signatureAnnotation trails the visible text with the upstream thought
// signature inside a markdown comment, so renderers hide it while the raw
// stream still round-trips it.
func signatureAnnotation(sig string) string {
	return fmt.Sprintf("\n\n<!-- thoughtSignature: %s -->", sig)
}

func inlineImageMarkdown(inline gjson.Result) string {
	mime := inline.Get("mimeType").String()
	data := inline.Get("data").String()
	if mime == "" || data == "" {
		return ""
	}
	return fmt.Sprintf("\n\n![image](data:%s;base64,%s)\n\n", mime, data)
}
