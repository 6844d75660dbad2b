// Package openai converts between the OpenAI chat-completions wire format
// and the upstream generate-content API: a request builder on the way in
// and a chunk adapter over semantic events on the way out.
package openai

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BuildRequest converts an OpenAI chat-completions request body into the
// upstream envelope. model is the upstream model name, projectID the Google
// Cloud project attached to the selected credential.
func BuildRequest(body []byte, model, projectID string) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "project", projectID)
	out, _ = sjson.SetBytes(out, "request_id", uuid.NewString())
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "request.session_id", uuid.NewString())

	root := gjson.ParseBytes(body)

	var systemParts []string
	contentsPath := "request.contents"
	idx := 0
	for _, msg := range root.Get("messages").Array() {
		role := msg.Get("role").String()
		switch role {
		case "system", "developer":
			if text := flattenContent(msg.Get("content")); text != "" {
				systemParts = append(systemParts, text)
			}
			continue
		case "assistant":
			out = appendAssistant(out, contentsPath, &idx, msg)
			continue
		case "tool":
			out = appendToolResult(out, contentsPath, &idx, msg)
			continue
		}
		out = appendUser(out, contentsPath, &idx, msg)
	}
	if len(systemParts) > 0 {
		out, _ = sjson.SetBytes(out, "request.systemInstruction.role", "user")
		out, _ = sjson.SetBytes(out, "request.systemInstruction.parts.0.text", strings.Join(systemParts, "\n\n"))
	}

	out = setTools(out, root.Get("tools"))
	out = setGenerationConfig(out, root)
	return out
}

// flattenContent folds a string or multi-part content value into plain text.
func flattenContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var sb strings.Builder
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			sb.WriteString(part.Get("text").String())
		}
	}
	return sb.String()
}

func appendUser(out []byte, base string, idx *int, msg gjson.Result) []byte {
	prefix := base + "." + itoa(*idx)
	out, _ = sjson.SetBytes(out, prefix+".role", "user")
	part := 0
	content := msg.Get("content")
	if content.Type == gjson.String {
		out, _ = sjson.SetBytes(out, prefix+".parts.0.text", content.String())
		*idx++
		return out
	}
	for _, item := range content.Array() {
		switch item.Get("type").String() {
		case "text":
			out, _ = sjson.SetBytes(out, prefix+".parts."+itoa(part)+".text", item.Get("text").String())
			part++
		case "image_url":
			url := item.Get("image_url.url").String()
			if mime, data, ok := splitDataURI(url); ok {
				out, _ = sjson.SetBytes(out, prefix+".parts."+itoa(part)+".inlineData.mimeType", mime)
				out, _ = sjson.SetBytes(out, prefix+".parts."+itoa(part)+".inlineData.data", data)
				part++
			}
		}
	}
	if part == 0 {
		out, _ = sjson.SetBytes(out, prefix+".parts.0.text", "")
	}
	*idx++
	return out
}

func appendAssistant(out []byte, base string, idx *int, msg gjson.Result) []byte {
	prefix := base + "." + itoa(*idx)
	out, _ = sjson.SetBytes(out, prefix+".role", "model")
	part := 0
	if text := flattenContent(msg.Get("content")); text != "" {
		out, _ = sjson.SetBytes(out, prefix+".parts.0.text", text)
		part++
	}
	for _, call := range msg.Get("tool_calls").Array() {
		p := prefix + ".parts." + itoa(part)
		out, _ = sjson.SetBytes(out, p+".functionCall.id", call.Get("id").String())
		out, _ = sjson.SetBytes(out, p+".functionCall.name", call.Get("function.name").String())
		args := call.Get("function.arguments").String()
		if args == "" {
			args = "{}"
		}
		out, _ = sjson.SetRawBytes(out, p+".functionCall.args", []byte(args))
		part++
	}
	if part == 0 {
		out, _ = sjson.SetBytes(out, prefix+".parts.0.text", "")
	}
	*idx++
	return out
}

func appendToolResult(out []byte, base string, idx *int, msg gjson.Result) []byte {
	prefix := base + "." + itoa(*idx)
	out, _ = sjson.SetBytes(out, prefix+".role", "user")
	name := msg.Get("name").String()
	if name == "" {
		name = msg.Get("tool_call_id").String()
	}
	out, _ = sjson.SetBytes(out, prefix+".parts.0.functionResponse.id", msg.Get("tool_call_id").String())
	out, _ = sjson.SetBytes(out, prefix+".parts.0.functionResponse.name", name)
	out, _ = sjson.SetBytes(out, prefix+".parts.0.functionResponse.response.result", flattenContent(msg.Get("content")))
	*idx++
	return out
}

func setTools(out []byte, tools gjson.Result) []byte {
	decl := 0
	for _, tool := range tools.Array() {
		if tool.Get("type").String() != "function" {
			continue
		}
		fn := tool.Get("function")
		p := "request.tools.0.functionDeclarations." + itoa(decl)
		out, _ = sjson.SetBytes(out, p+".name", fn.Get("name").String())
		if desc := fn.Get("description").String(); desc != "" {
			out, _ = sjson.SetBytes(out, p+".description", desc)
		}
		if params := fn.Get("parameters"); params.Exists() {
			out, _ = sjson.SetRawBytes(out, p+".parameters", []byte(params.Raw))
		}
		decl++
	}
	return out
}

func setGenerationConfig(out []byte, root gjson.Result) []byte {
	if v := root.Get("temperature"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.temperature", v.Float())
	}
	if v := root.Get("top_p"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.topP", v.Float())
	}
	if v := root.Get("top_k"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.topK", v.Int())
	}
	if v := root.Get("max_completion_tokens"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.maxOutputTokens", v.Int())
	} else if v = root.Get("max_tokens"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.maxOutputTokens", v.Int())
	}
	if stop := root.Get("stop"); stop.Exists() {
		if stop.Type == gjson.String {
			out, _ = sjson.SetBytes(out, "request.generationConfig.stopSequences.0", stop.String())
		} else {
			for i, s := range stop.Array() {
				out, _ = sjson.SetBytes(out, "request.generationConfig.stopSequences."+itoa(i), s.String())
			}
		}
	}
	if v := root.Get("reasoning_effort"); v.Exists() {
		out, _ = sjson.SetBytes(out, "request.generationConfig.thinkingConfig.includeThoughts", true)
	}
	return out
}

func splitDataURI(url string) (mime, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	rest := url[len("data:"):]
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", "", false
	}
	return rest[:sep], rest[sep+len(";base64,"):], true
}

func itoa(i int) string { return strconv.Itoa(i) }
