// Package claude converts between the Anthropic messages wire format and
// the upstream generate-content API: a request builder on the way in and a
// content-block adapter over semantic events on the way out.
package claude

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BuildRequest converts an Anthropic messages request body into the
// upstream envelope.
func BuildRequest(body []byte, model, projectID string) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "project", projectID)
	out, _ = sjson.SetBytes(out, "request_id", uuid.NewString())
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "request.session_id", uuid.NewString())

	root := gjson.ParseBytes(body)

	if system := flattenSystem(root.Get("system")); system != "" {
		out, _ = sjson.SetBytes(out, "request.systemInstruction.role", "user")
		out, _ = sjson.SetBytes(out, "request.systemInstruction.parts.0.text", system)
	}

	idx := 0
	for _, msg := range root.Get("messages").Array() {
		out = appendMessage(out, &idx, msg)
	}

	out = setTools(out, root.Get("tools"))
	out = setGenerationConfig(out, root)
	return out
}

// flattenSystem folds the system prompt, which may be a string or an array
// of text blocks, into plain text.
func flattenSystem(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	var sb strings.Builder
	for _, block := range system.Array() {
		if block.Get("type").String() == "text" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(block.Get("text").String())
		}
	}
	return sb.String()
}

func appendMessage(out []byte, idx *int, msg gjson.Result) []byte {
	role := "user"
	if msg.Get("role").String() == "assistant" {
		role = "model"
	}
	prefix := "request.contents." + strconv.Itoa(*idx)
	out, _ = sjson.SetBytes(out, prefix+".role", role)

	part := 0
	content := msg.Get("content")
	if content.Type == gjson.String {
		out, _ = sjson.SetBytes(out, prefix+".parts.0.text", content.String())
		*idx++
		return out
	}
	for _, block := range content.Array() {
		p := prefix + ".parts." + strconv.Itoa(part)
		switch block.Get("type").String() {
		case "text":
			out, _ = sjson.SetBytes(out, p+".text", block.Get("text").String())
			part++
		case "image":
			src := block.Get("source")
			if src.Get("type").String() != "base64" {
				continue
			}
			out, _ = sjson.SetBytes(out, p+".inlineData.mimeType", src.Get("media_type").String())
			out, _ = sjson.SetBytes(out, p+".inlineData.data", src.Get("data").String())
			part++
		case "tool_use":
			out, _ = sjson.SetBytes(out, p+".functionCall.id", block.Get("id").String())
			out, _ = sjson.SetBytes(out, p+".functionCall.name", block.Get("name").String())
			input := block.Get("input").Raw
			if strings.TrimSpace(input) == "" {
				input = "{}"
			}
			out, _ = sjson.SetRawBytes(out, p+".functionCall.args", []byte(input))
			part++
		case "tool_result":
			out, _ = sjson.SetBytes(out, p+".functionResponse.id", block.Get("tool_use_id").String())
			out, _ = sjson.SetBytes(out, p+".functionResponse.name", block.Get("tool_use_id").String())
			out, _ = sjson.SetBytes(out, p+".functionResponse.response.result", flattenToolResult(block.Get("content")))
			part++
		}
	}
	if part == 0 {
		out, _ = sjson.SetBytes(out, prefix+".parts.0.text", "")
	}
	*idx++
	return out
}

func flattenToolResult(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var sb strings.Builder
	for _, block := range content.Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}
	return sb.String()
}

func setTools(out []byte, tools gjson.Result) []byte {
	decl := 0
	for _, tool := range tools.Array() {
		name := tool.Get("name").String()
		if name == "" {
			continue
		}
		p := "request.tools.0.functionDeclarations." + strconv.Itoa(decl)
		out, _ = sjson.SetBytes(out, p+".name", name)
		if desc := tool.Get("description").String(); desc != "" {
			out, _ = sjson.SetBytes(out, p+".description", desc)
		}
		if schema := tool.Get("input_schema"); schema.Exists() {
			out, _ = sjson.SetRawBytes(out, p+".parameters", []byte(schema.Raw))
		}
		decl++
	}
	return out
}

func setGenerationConfig(out []byte, root gjson.Result) []byte {
	if v := root.Get("max_tokens"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.maxOutputTokens", v.Int())
	}
	if v := root.Get("temperature"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.temperature", v.Float())
	}
	if v := root.Get("top_p"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.topP", v.Float())
	}
	if v := root.Get("top_k"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.topK", v.Int())
	}
	for i, s := range root.Get("stop_sequences").Array() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.stopSequences."+strconv.Itoa(i), s.String())
	}
	if root.Get("thinking.type").String() == "enabled" {
		out, _ = sjson.SetBytes(out, "request.generationConfig.thinkingConfig.includeThoughts", true)
		if budget := root.Get("thinking.budget_tokens"); budget.Exists() {
			out, _ = sjson.SetBytes(out, "request.generationConfig.thinkingConfig.thinkingBudget", budget.Int())
		}
	}
	return out
}
