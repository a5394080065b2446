package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

func init() {
	// Register Gemini → OpenAI translators
	Register(FormatGemini, FormatOpenAI, TranslatorConfig{
		RequestTransform:  GeminiToOpenAIRequest,
		ResponseTransform: GeminiToOpenAIResponse,
		StreamTransform:   GeminiToOpenAIStream,
	})
}

// GeminiToOpenAIRequest converts a Gemini generateContent request into an
// OpenAI chat completions request.
func GeminiToOpenAIRequest(model string, rawJSON []byte, stream bool) []byte {
	var messages []map[string]interface{}

	if sys := gjson.GetBytes(rawJSON, "systemInstruction"); sys.Exists() {
		if text := geminiPartsText(sys.Get("parts")); text != "" {
			messages = append(messages, map[string]interface{}{"role": "system", "content": text})
		}
	}

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
	if stream {
		out["stream"] = true
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

// GeminiToOpenAIResponse converts a non-streaming Gemini response to OpenAI format.
func GeminiToOpenAIResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)

	// Pass upstream errors through untouched.
	if errMsg := result.Get("error"); errMsg.Exists() {
		return responseBody, nil
	}

	candidates := result.Get("candidates")
	if !candidates.Exists() {
		return responseBody, nil
	}

	var choices []map[string]interface{}
	var totalPromptTokens, totalCompletionTokens int64

	for idx, candidate := range candidates.Array() {
		content := candidate.Get("content")
		parts := content.Get("parts").Array()

		var messageContent strings.Builder
		var reasoningContent strings.Builder
		var toolCalls []map[string]interface{}
		hasThinking := false

		for _, part := range parts {
			if thought := part.Get("thought"); thought.Exists() {
				reasoningContent.WriteString(thought.String())
				hasThinking = true
				continue
			}

			if text := part.Get("text"); text.Exists() {
				textStr := text.String()
				if detectThinkingInText(textStr) {
					reasoningContent.WriteString(textStr)
					hasThinking = true
				} else {
					messageContent.WriteString(textStr)
				}
			}

			if fnCall := part.Get("functionCall"); fnCall.Exists() {
				fnName := fnCall.Get("name").String()
				fnArgs := fnCall.Get("args")

				var argsJSON []byte
				if fnArgs.Exists() {
					argsJSON, _ = json.Marshal(fnArgs.Value())
				} else {
					argsJSON = []byte("{}")
				}

				toolCalls = append(toolCalls, map[string]interface{}{
					"id":   fmt.Sprintf("call_%s_%d", fnName, len(toolCalls)),
					"type": "function",
					"function": map[string]interface{}{
						"name":      fnName,
						"arguments": string(argsJSON),
					},
				})
			}
		}

		message := map[string]interface{}{
			"role":    "assistant",
			"content": messageContent.String(),
		}
		if hasThinking && reasoningContent.Len() > 0 {
			message["reasoning_content"] = reasoningContent.String()
		}
		if len(toolCalls) > 0 {
			message["tool_calls"] = toolCalls
		}

		finishReason := "stop"
		if fr := candidate.Get("finishReason"); fr.Exists() {
			switch fr.String() {
			case "MAX_TOKENS":
				finishReason = "length"
			case "SAFETY", "RECITATION":
				finishReason = "content_filter"
			}
		}
		if len(toolCalls) > 0 {
			finishReason = "tool_calls"
		}

		choices = append(choices, map[string]interface{}{
			"index":         idx,
			"message":       message,
			"finish_reason": finishReason,
		})
	}

	if usage := result.Get("usageMetadata"); usage.Exists() {
		totalPromptTokens = usage.Get("promptTokenCount").Int()
		totalCompletionTokens = usage.Get("candidatesTokenCount").Int()
	}

	response := map[string]interface{}{
		"id":      fmt.Sprintf("chatcmpl-%d", time.Now().Unix()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": choices,
		"usage": map[string]interface{}{
			"prompt_tokens":     totalPromptTokens,
			"completion_tokens": totalCompletionTokens,
			"total_tokens":      totalPromptTokens + totalCompletionTokens,
		},
	}

	return json.Marshal(response)
}

// GeminiToOpenAIStream converts a streaming Gemini response to OpenAI SSE format.
func GeminiToOpenAIStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		chunkIndex := 0

		scanSSEData(reader, func(data []byte) bool {
			if string(data) == doneMarker {
				writeSSEDone(pw)
				return false
			}

			result := gjson.ParseBytes(data)

			if errMsg := result.Get("error"); errMsg.Exists() {
				writeSSEData(pw, map[string]interface{}{
					"error": map[string]interface{}{
						"message": errMsg.Get("message").String(),
						"type":    "server_error",
					},
				})
				return false
			}

			candidates := result.Get("candidates")
			if !candidates.Exists() {
				return true
			}

			for _, candidate := range candidates.Array() {
				parts := candidate.Get("content.parts").Array()

				delta := map[string]interface{}{}
				if chunkIndex == 0 {
					delta["role"] = "assistant"
				}
				var finishReason interface{}

				for _, part := range parts {
					if thought := part.Get("thought"); thought.Exists() {
						delta["reasoning_content"] = thought.String()
						continue
					}
					if text := part.Get("text"); text.Exists() {
						textContent := text.String()
						if detectThinkingInText(textContent) {
							delta["reasoning_content"] = textContent
						} else {
							delta["content"] = textContent
						}
					}
					if fnCall := part.Get("functionCall"); fnCall.Exists() {
						fnName := fnCall.Get("name").String()
						argsJSON := []byte("{}")
						if fnArgs := fnCall.Get("args"); fnArgs.Exists() {
							argsJSON, _ = json.Marshal(fnArgs.Value())
						}
						delta["tool_calls"] = []map[string]interface{}{{
							"index": 0,
							"id":    fmt.Sprintf("call_%s_%d", fnName, chunkIndex),
							"type":  "function",
							"function": map[string]interface{}{
								"name":      fnName,
								"arguments": string(argsJSON),
							},
						}}
					}
				}

				if fr := candidate.Get("finishReason"); fr.Exists() {
					switch fr.String() {
					case "STOP":
						finishReason = "stop"
					case "MAX_TOKENS":
						finishReason = "length"
					case "SAFETY", "RECITATION":
						finishReason = "content_filter"
					}
				}

				writeSSEData(pw, map[string]interface{}{
					"id":      fmt.Sprintf("chatcmpl-%d", time.Now().Unix()),
					"object":  "chat.completion.chunk",
					"created": time.Now().Unix(),
					"model":   model,
					"choices": []map[string]interface{}{{
						"index":         0,
						"delta":         delta,
						"finish_reason": finishReason,
					}},
				})

				chunkIndex++
			}
			return true
		})

		writeSSEDone(pw)
	}()

	return pr, nil
}

// detectThinkingInText detects if text contains thinking/reasoning markers.
func detectThinkingInText(text string) bool {
	thinkingMarkers := []string{
		"<think>",
		"</think>",
		"<thinking>",
		"</thinking>",
		"[THINKING]",
		"[/THINKING]",
	}

	lowerText := strings.ToLower(text)
	for _, marker := range thinkingMarkers {
		if strings.Contains(lowerText, strings.ToLower(marker)) {
			return true
		}
	}

	trimmed := strings.TrimSpace(lowerText)
	return strings.HasPrefix(trimmed, "thinking:") ||
		strings.HasPrefix(trimmed, "reasoning:") ||
		strings.HasPrefix(trimmed, "analysis:")
}
