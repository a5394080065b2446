package translator

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	Register(FormatOpenAI, FormatGLM, TranslatorConfig{
		RequestTransform: OpenAIToGLMRequest,
	})
	Register(FormatClaude, FormatGLM, TranslatorConfig{
		RequestTransform: ClaudeToGLMRequest,
	})
	Register(FormatGemini, FormatGLM, TranslatorConfig{
		RequestTransform: GeminiToGLMRequest,
	})
	Register(FormatGLM, FormatOpenAI, TranslatorConfig{
		StreamTransform: GLMToOpenAIStream,
	})
	Register(FormatGLM, FormatClaude, TranslatorConfig{
		ResponseTransform: OpenAIToClaudeResponse,
		StreamTransform:   GLMToClaudeStream,
	})
	Register(FormatGLM, FormatGemini, TranslatorConfig{
		ResponseTransform: OpenAIToGeminiResponse,
		StreamTransform:   GLMToGeminiStream,
	})
}

// ClaudeToGLMRequest routes an Anthropic request through the openai shape and
// then applies the GLM tool normalization.
func ClaudeToGLMRequest(model string, rawJSON []byte, stream bool) []byte {
	return OpenAIToGLMRequest(model, ClaudeToOpenAIRequest(model, rawJSON, stream), stream)
}

// GeminiToGLMRequest converts a generateContent request the same way.
func GeminiToGLMRequest(model string, rawJSON []byte, stream bool) []byte {
	return OpenAIToGLMRequest(model, GeminiToOpenAIRequest(model, rawJSON, stream), stream)
}

// GLMToClaudeStream folds reasoning_content into plain openai chunks first,
// then renders them as Anthropic SSE, so claude-dialect clients never see raw
// GLM deltas.
func GLMToClaudeStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	fixed, err := GLMToOpenAIStream(ctx, model, reader)
	if err != nil {
		return nil, err
	}
	return OpenAIToClaudeStream(ctx, model, fixed)
}

// GLMToGeminiStream is the same composition toward the Gemini dialect.
func GLMToGeminiStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	fixed, err := GLMToOpenAIStream(ctx, model, reader)
	if err != nil {
		return nil, err
	}
	return OpenAIToGeminiStream(ctx, model, fixed)
}

// OpenAIToGLMRequest normalizes an OpenAI request for the GLM API. The wire
// format is openai-compatible, but GLM rejects tool entries without a name and
// parameters, so malformed tools are dropped and missing descriptions default
// to the function name.
func OpenAIToGLMRequest(model string, rawJSON []byte, stream bool) []byte {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.Exists() {
		return rawJSON
	}

	var formatted []interface{}
	for _, tool := range tools.Array() {
		if tool.Get("type").String() != "function" {
			continue
		}
		fn := tool.Get("function")
		name := fn.Get("name").String()
		params := fn.Get("parameters")
		if name == "" || !params.Exists() {
			continue
		}
		description := fn.Get("description").String()
		if description == "" {
			description = name
		}
		formatted = append(formatted, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        name,
				"description": description,
				"parameters":  params.Value(),
			},
		})
	}

	out := string(rawJSON)
	if len(formatted) > 0 {
		out, _ = sjson.Set(out, "tools", formatted)
	} else {
		out, _ = sjson.Delete(out, "tools")
	}
	return []byte(out)
}

// GLMToOpenAIStream rewrites a GLM SSE stream into plain OpenAI chunks. GLM
// interleaves reasoning_content with content in its deltas; both are folded
// into a single content stream so openai clients see the full output.
func GLMToOpenAIStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		scanSSEData(reader, func(data []byte) bool {
			if string(data) == doneMarker {
				writeSSEDone(pw)
				return false
			}
			chunk := ConvertGLMChunk(data, model)
			if chunk != nil {
				pw.Write([]byte("data: "))
				pw.Write(chunk)
				pw.Write([]byte("\n\n"))
			}
			return true
		})
	}()

	return pr, nil
}

// ConvertGLMChunk converts a single GLM stream payload to an OpenAI chunk.
// Returns nil when the payload carries nothing a client needs.
func ConvertGLMChunk(data []byte, model string) []byte {
	parsed := gjson.ParseBytes(data)
	choice := parsed.Get("choices.0")
	if !choice.Exists() {
		return nil
	}
	delta := choice.Get("delta")

	combined := delta.Get("reasoning_content").String() + delta.Get("content").String()
	finishReason := choice.Get("finish_reason")
	hasToolCalls := delta.Get("tool_calls").Exists()

	if combined == "" && !hasToolCalls && !finishReason.Exists() {
		return nil
	}

	outDelta := map[string]interface{}{}
	if combined != "" {
		outDelta["content"] = combined
	} else if role := delta.Get("role"); role.Exists() {
		outDelta["role"] = role.String()
	}
	if hasToolCalls {
		outDelta["tool_calls"] = delta.Get("tool_calls").Value()
	}

	created := parsed.Get("created").Int()
	if created == 0 {
		created = time.Now().Unix()
	}

	out := map[string]interface{}{
		"id":      firstNonEmpty(parsed.Get("id").String(), "chatcmpl-stream"),
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   firstNonEmpty(parsed.Get("model").String(), model),
		"choices": []map[string]interface{}{{
			"index":         0,
			"delta":         outDelta,
			"finish_reason": finishReason.Value(),
		}},
	}
	if usage := parsed.Get("usage"); usage.Exists() {
		out["usage"] = usage.Value()
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return raw
}
