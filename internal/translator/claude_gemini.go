package translator

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

func init() {
	Register(FormatClaude, FormatGemini, TranslatorConfig{
		RequestTransform:  ClaudeToGeminiRequest,
		ResponseTransform: ClaudeToGeminiResponse,
		StreamTransform:   ClaudeToGeminiStream,
	})
	Register(FormatGemini, FormatClaude, TranslatorConfig{
		RequestTransform:  GeminiToClaudeRequest,
		ResponseTransform: GeminiToClaudeResponse,
		StreamTransform:   GeminiToClaudeStream,
	})
}

// ClaudeToGeminiRequest converts an Anthropic messages request into a Gemini
// generateContent request.
func ClaudeToGeminiRequest(model string, rawJSON []byte, stream bool) []byte {
	var contents []map[string]interface{}

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		role := "user"
		if msg.Get("role").String() == "assistant" {
			role = "model"
		}
		text := claudeContentText(msg.Get("content"))
		if text == "" {
			continue
		}
		contents = append(contents, map[string]interface{}{
			"role":  role,
			"parts": []interface{}{map[string]interface{}{"text": text}},
		})
	}

	genConfig := map[string]interface{}{"maxOutputTokens": defaultMaxTokens}
	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() {
		genConfig["maxOutputTokens"] = v.Int()
	}
	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		genConfig["temperature"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		genConfig["topP"] = v.Value()
	}

	out := map[string]interface{}{
		"contents":         contents,
		"generationConfig": genConfig,
	}
	if system := gjson.GetBytes(rawJSON, "system"); system.Exists() {
		if text := systemBlocksText(system); text != "" {
			out["systemInstruction"] = map[string]interface{}{
				"parts": []interface{}{map[string]interface{}{"text": text}},
			}
		}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

// GeminiToClaudeRequest converts a Gemini generateContent request into an
// Anthropic messages request.
func GeminiToClaudeRequest(model string, rawJSON []byte, stream bool) []byte {
	var messages []map[string]interface{}

	for _, content := range gjson.GetBytes(rawJSON, "contents").Array() {
		role := "user"
		if content.Get("role").String() == "model" {
			role = "assistant"
		}
		text := geminiPartsText(content.Get("parts"))
		if text == "" {
			continue
		}
		messages = append(messages, map[string]interface{}{"role": role, "content": text})
	}

	genConfig := gjson.GetBytes(rawJSON, "generationConfig")
	out := map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": defaultMaxTokens,
	}
	if v := genConfig.Get("maxOutputTokens"); v.Exists() {
		out["max_tokens"] = v.Int()
	}
	if v := genConfig.Get("temperature"); v.Exists() {
		out["temperature"] = v.Value()
	}
	if v := genConfig.Get("topP"); v.Exists() {
		out["top_p"] = v.Value()
	}
	if sys := gjson.GetBytes(rawJSON, "systemInstruction"); sys.Exists() {
		if text := geminiPartsText(sys.Get("parts")); text != "" {
			out["system"] = text
		}
	}
	if stream {
		out["stream"] = true
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

// GeminiToClaudeResponse converts a Gemini generateContent response into an
// Anthropic message.
func GeminiToClaudeResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)
	if result.Get("error").Exists() {
		return responseBody, nil
	}

	blocks := []map[string]interface{}{}
	for _, part := range result.Get("candidates.0.content.parts").Array() {
		if text := part.Get("text"); text.Exists() && text.String() != "" {
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": text.String()})
		}
	}

	response := map[string]interface{}{
		"id":          "msg_" + uuid.NewString()[:8],
		"type":        "message",
		"role":        "assistant",
		"model":       firstNonEmpty(model, result.Get("modelVersion").String()),
		"content":     blocks,
		"stop_reason": "end_turn",
		"usage": map[string]interface{}{
			"input_tokens":  result.Get("usageMetadata.promptTokenCount").Int(),
			"output_tokens": result.Get("usageMetadata.candidatesTokenCount").Int(),
		},
	}
	return json.Marshal(response)
}

// ClaudeToGeminiResponse converts an Anthropic message into a Gemini
// generateContent response.
func ClaudeToGeminiResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)
	if result.Get("error").Exists() {
		return responseBody, nil
	}

	var text strings.Builder
	for _, block := range result.Get("content").Array() {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
	}

	inputTokens := result.Get("usage.input_tokens").Int()
	outputTokens := result.Get("usage.output_tokens").Int()

	response := map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{
				"parts": []interface{}{map[string]interface{}{"text": text.String()}},
				"role":  "model",
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     inputTokens,
			"candidatesTokenCount": outputTokens,
			"totalTokenCount":      inputTokens + outputTokens,
		},
		"modelVersion": firstNonEmpty(model, result.Get("model").String()),
	}
	return json.Marshal(response)
}

// GeminiToClaudeStream converts a Gemini SSE stream into Anthropic events.
func GeminiToClaudeStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		messageID := "msg_" + uuid.NewString()[:8]
		sentStart := false
		sentBlockStart := false

		scanSSEData(reader, func(data []byte) bool {
			if string(data) == doneMarker {
				return false
			}
			chunk := gjson.ParseBytes(data)

			if !sentStart {
				sentStart = true
				writeSSEEvent(pw, "message_start", map[string]interface{}{
					"type": "message_start",
					"message": map[string]interface{}{
						"id":      messageID,
						"type":    "message",
						"role":    "assistant",
						"model":   firstNonEmpty(model, chunk.Get("modelVersion").String()),
						"content": []interface{}{},
						"usage":   map[string]interface{}{"input_tokens": 0, "output_tokens": 0},
					},
				})
			}

			for _, part := range chunk.Get("candidates.0.content.parts").Array() {
				text := part.Get("text").String()
				if text == "" {
					continue
				}
				if !sentBlockStart {
					sentBlockStart = true
					writeSSEEvent(pw, "content_block_start", map[string]interface{}{
						"type":          "content_block_start",
						"index":         0,
						"content_block": map[string]interface{}{"type": "text", "text": ""},
					})
				}
				writeSSEEvent(pw, "content_block_delta", map[string]interface{}{
					"type":  "content_block_delta",
					"index": 0,
					"delta": map[string]interface{}{"type": "text_delta", "text": text},
				})
			}

			if finish := chunk.Get("candidates.0.finishReason"); finish.Exists() {
				if sentBlockStart {
					writeSSEEvent(pw, "content_block_stop", map[string]interface{}{
						"type": "content_block_stop", "index": 0,
					})
				}
				inTok := chunk.Get("usageMetadata.promptTokenCount").Int()
				outTok := chunk.Get("usageMetadata.candidatesTokenCount").Int()
				writeSSEEvent(pw, "message_delta", map[string]interface{}{
					"type":  "message_delta",
					"delta": map[string]interface{}{"stop_reason": geminiFinishToClaudeStop(finish.String())},
					"usage": map[string]interface{}{"input_tokens": inTok, "output_tokens": outTok},
				})
				writeSSEEvent(pw, "message_stop", map[string]interface{}{"type": "message_stop"})
				return false
			}
			return true
		})
	}()

	return pr, nil
}

// ClaudeToGeminiStream converts Anthropic SSE events into Gemini stream chunks.
func ClaudeToGeminiStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		scanSSEData(reader, func(data []byte) bool {
			event := gjson.ParseBytes(data)
			switch event.Get("type").String() {
			case "content_block_delta":
				delta := event.Get("delta")
				if delta.Get("type").String() != "text_delta" {
					return true
				}
				writeSSEData(pw, map[string]interface{}{
					"candidates": []map[string]interface{}{{
						"content": map[string]interface{}{
							"parts": []interface{}{map[string]interface{}{"text": delta.Get("text").String()}},
							"role":  "model",
						},
					}},
				})
			case "message_delta":
				inTok := event.Get("usage.input_tokens").Int()
				outTok := event.Get("usage.output_tokens").Int()
				writeSSEData(pw, map[string]interface{}{
					"candidates": []map[string]interface{}{{
						"content":      map[string]interface{}{"parts": []interface{}{}, "role": "model"},
						"finishReason": claudeStopToGeminiFinish(event.Get("delta.stop_reason").String()),
					}},
					"usageMetadata": map[string]interface{}{
						"promptTokenCount":     inTok,
						"candidatesTokenCount": outTok,
						"totalTokenCount":      inTok + outTok,
					},
				})
			case "message_stop":
				return false
			}
			return true
		})
	}()

	return pr, nil
}

func geminiFinishToClaudeStop(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

func claudeStopToGeminiFinish(reason string) string {
	switch reason {
	case "max_tokens":
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}

func claudeContentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var parts []string
	for _, block := range content.Array() {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
	}
	return strings.Join(parts, " ")
}

func geminiPartsText(parts gjson.Result) string {
	var texts []string
	for _, part := range parts.Array() {
		if text := part.Get("text"); text.Exists() && text.String() != "" {
			texts = append(texts, text.String())
		}
	}
	return strings.Join(texts, " ")
}
