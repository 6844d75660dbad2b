// Package antigravity turns the upstream generate-content SSE stream into a
// protocol-agnostic sequence of semantic events. The two wire adapters in
// the openai and claude subpackages consume that sequence; this package has
// no knowledge of the caller-facing format.
package antigravity

// EventKind tags the closed set of semantic event variants.
type EventKind int

const (
	// ThinkingStart opens a model reasoning segment.
	ThinkingStart EventKind = iota
	// ThinkingDelta carries a fragment of reasoning text.
	ThinkingDelta
	// ThinkingEnd closes the current reasoning segment.
	ThinkingEnd
	// TextDelta carries a fragment of answer text, possibly with a trailing
	// thought signature.
	TextDelta
	// ToolCall carries one complete buffered function invocation. Emitted
	// only once the upstream signals generation finish.
	ToolCall
)

func (k EventKind) String() string {
	switch k {
	case ThinkingStart:
		return "thinking_start"
	case ThinkingDelta:
		return "thinking_delta"
	case ThinkingEnd:
		return "thinking_end"
	case TextDelta:
		return "text_delta"
	case ToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// Event is one semantic unit of translated upstream output. Only the fields
// relevant to its Kind are set.
type Event struct {
	Kind EventKind

	// Text holds the delta for ThinkingDelta and TextDelta.
	Text string

	// Signature is the upstream thought signature attached to a TextDelta,
	// when present.
	Signature string

	// Tool invocation fields, set for ToolCall.
	ToolID   string
	ToolName string
	ToolArgs string
}

// Sink receives events in the exact order they complete upstream.
type Sink func(Event)
