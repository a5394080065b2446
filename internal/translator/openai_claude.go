package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

func init() {
	Register(FormatOpenAI, FormatClaude, TranslatorConfig{
		RequestTransform:  OpenAIToClaudeRequest,
		ResponseTransform: OpenAIToClaudeResponse,
		StreamTransform:   OpenAIToClaudeStream,
	})
	Register(FormatClaude, FormatOpenAI, TranslatorConfig{
		RequestTransform:  ClaudeToOpenAIRequest,
		ResponseTransform: ClaudeToOpenAIResponse,
		StreamTransform:   ClaudeToOpenAIStream,
	})
}

const defaultMaxTokens = 4096

// OpenAIToClaudeRequest converts an OpenAI chat completions request into an
// Anthropic messages request. The system message is lifted into the top-level
// system field and tool messages become tool_result content blocks.
func OpenAIToClaudeRequest(model string, rawJSON []byte, stream bool) []byte {
	var messages []map[string]interface{}
	systemContent := ""

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system":
			if content.Type == gjson.String {
				systemContent = content.String()
			} else {
				systemContent = content.Raw
			}
		case "assistant":
			entry := map[string]interface{}{"role": "assistant", "content": content.Value()}
			if toolCalls := msg.Get("tool_calls"); toolCalls.Exists() {
				var blocks []interface{}
				if content.Type == gjson.String && content.String() != "" {
					blocks = append(blocks, map[string]interface{}{"type": "text", "text": content.String()})
				}
				for _, tc := range toolCalls.Array() {
					args := map[string]interface{}{}
					json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args)
					blocks = append(blocks, map[string]interface{}{
						"type":  "tool_use",
						"id":    tc.Get("id").String(),
						"name":  tc.Get("function.name").String(),
						"input": args,
					})
				}
				entry["content"] = blocks
			}
			messages = append(messages, entry)
		case "tool":
			messages = append(messages, map[string]interface{}{
				"role": "user",
				"content": []interface{}{map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": msg.Get("tool_call_id").String(),
					"content":     content.String(),
				}},
			})
		default:
			messages = append(messages, map[string]interface{}{"role": "user", "content": content.Value()})
		}
	}

	out := map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": defaultMaxTokens,
	}
	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() {
		out["max_tokens"] = v.Int()
	}
	if systemContent != "" {
		out["system"] = systemContent
	}
	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		out["temperature"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		out["top_p"] = v.Value()
	}
	if stream {
		out["stream"] = true
	}
	if tools := gjson.GetBytes(rawJSON, "tools"); tools.Exists() {
		var claudeTools []interface{}
		for _, tool := range tools.Array() {
			if tool.Get("type").String() != "function" {
				continue
			}
			fn := tool.Get("function")
			claudeTools = append(claudeTools, map[string]interface{}{
				"name":         fn.Get("name").String(),
				"description":  fn.Get("description").String(),
				"input_schema": json.RawMessage(orObject(fn.Get("parameters").Raw)),
			})
		}
		if len(claudeTools) > 0 {
			out["tools"] = claudeTools
		}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

// ClaudeToOpenAIRequest converts an Anthropic messages request into an OpenAI
// chat completions request.
func ClaudeToOpenAIRequest(model string, rawJSON []byte, stream bool) []byte {
	var messages []map[string]interface{}

	if system := gjson.GetBytes(rawJSON, "system"); system.Exists() {
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": systemBlocksText(system),
		})
	}

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		role := msg.Get("role").String()
		content := msg.Get("content")

		if !content.IsArray() {
			messages = append(messages, map[string]interface{}{"role": role, "content": content.Value()})
			continue
		}
		var toolCalls []interface{}
		var textParts []string
		for _, item := range content.Array() {
			switch item.Get("type").String() {
			case "tool_result":
				messages = append(messages, map[string]interface{}{
					"role":         "tool",
					"tool_call_id": item.Get("tool_use_id").String(),
					"content":      item.Get("content").String(),
				})
			case "tool_use":
				args, _ := json.Marshal(item.Get("input").Value())
				toolCalls = append(toolCalls, map[string]interface{}{
					"id":   item.Get("id").String(),
					"type": "function",
					"function": map[string]interface{}{
						"name":      item.Get("name").String(),
						"arguments": string(args),
					},
				})
			case "text":
				textParts = append(textParts, item.Get("text").String())
			}
		}
		if len(toolCalls) > 0 {
			messages = append(messages, map[string]interface{}{
				"role":       role,
				"content":    strings.Join(textParts, ""),
				"tool_calls": toolCalls,
			})
		} else if len(textParts) > 0 {
			messages = append(messages, map[string]interface{}{
				"role":    role,
				"content": strings.Join(textParts, " "),
			})
		}
	}

	out := map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": defaultMaxTokens,
	}
	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() {
		out["max_tokens"] = v.Int()
	}
	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		out["temperature"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		out["top_p"] = v.Value()
	}
	if stream {
		out["stream"] = true
	}
	if tools := gjson.GetBytes(rawJSON, "tools"); tools.Exists() {
		var openaiTools []interface{}
		for _, tool := range tools.Array() {
			openaiTools = append(openaiTools, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        tool.Get("name").String(),
					"description": tool.Get("description").String(),
					"parameters":  json.RawMessage(orObject(tool.Get("input_schema").Raw)),
				},
			})
		}
		if len(openaiTools) > 0 {
			out["tools"] = openaiTools
		}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

// ClaudeToOpenAIResponse converts a full Anthropic message into an OpenAI chat
// completion response.
func ClaudeToOpenAIResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)
	if result.Get("error").Exists() {
		return responseBody, nil
	}

	var content strings.Builder
	var toolCalls []map[string]interface{}
	for _, block := range result.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			content.WriteString(block.Get("text").String())
		case "tool_use":
			args, _ := json.Marshal(block.Get("input").Value())
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   block.Get("id").String(),
				"type": "function",
				"function": map[string]interface{}{
					"name":      block.Get("name").String(),
					"arguments": string(args),
				},
			})
		}
	}

	message := map[string]interface{}{"role": "assistant", "content": content.String()}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
	}

	inputTokens := result.Get("usage.input_tokens").Int()
	outputTokens := result.Get("usage.output_tokens").Int()

	response := map[string]interface{}{
		"id":      "chatcmpl-" + result.Get("id").String(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   firstNonEmpty(model, result.Get("model").String()),
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       message,
			"finish_reason": claudeStopToFinishReason(result.Get("stop_reason").String()),
		}},
		"usage": map[string]interface{}{
			"prompt_tokens":     inputTokens,
			"completion_tokens": outputTokens,
			"total_tokens":      inputTokens + outputTokens,
		},
	}
	return json.Marshal(response)
}

// OpenAIToClaudeResponse converts an OpenAI chat completion into an Anthropic
// message response.
func OpenAIToClaudeResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)
	if result.Get("error").Exists() {
		return responseBody, nil
	}

	choice := result.Get("choices.0")
	message := choice.Get("message")

	var blocks []map[string]interface{}
	if text := message.Get("content").String(); text != "" {
		blocks = append(blocks, map[string]interface{}{"type": "text", "text": text})
	}
	for _, tc := range message.Get("tool_calls").Array() {
		args := map[string]interface{}{}
		json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args)
		blocks = append(blocks, map[string]interface{}{
			"type":  "tool_use",
			"id":    tc.Get("id").String(),
			"name":  tc.Get("function.name").String(),
			"input": args,
		})
	}
	if blocks == nil {
		blocks = []map[string]interface{}{}
	}

	id := result.Get("id").String()
	if id == "" {
		id = "msg_" + uuid.NewString()[:8]
	}

	response := map[string]interface{}{
		"id":          id,
		"type":        "message",
		"role":        "assistant",
		"model":       firstNonEmpty(model, result.Get("model").String()),
		"content":     blocks,
		"stop_reason": finishReasonToClaudeStop(choice.Get("finish_reason").String()),
		"usage": map[string]interface{}{
			"input_tokens":  result.Get("usage.prompt_tokens").Int(),
			"output_tokens": result.Get("usage.completion_tokens").Int(),
		},
	}
	return json.Marshal(response)
}

// OpenAIToClaudeStream converts an OpenAI SSE stream into the Anthropic event
// stream. Block bookkeeping is stateful: message_start goes out once before the
// first payload and the text block opens lazily on the first content delta.
func OpenAIToClaudeStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		messageID := "msg_" + uuid.NewString()[:8]
		sentStart := false
		sentBlockStart := false
		var inputTokens, outputTokens int64

		err := scanSSEData(reader, func(data []byte) bool {
			if string(data) == doneMarker {
				writeSSEEvent(pw, "message_stop", map[string]interface{}{"type": "message_stop"})
				return false
			}
			chunk := gjson.ParseBytes(data)
			if !chunk.Exists() {
				return true
			}

			if !sentStart {
				sentStart = true
				writeSSEEvent(pw, "message_start", map[string]interface{}{
					"type": "message_start",
					"message": map[string]interface{}{
						"id":      messageID,
						"type":    "message",
						"role":    "assistant",
						"model":   firstNonEmpty(model, chunk.Get("model").String()),
						"content": []interface{}{},
						"usage": map[string]interface{}{
							"input_tokens":                0,
							"output_tokens":               0,
							"cache_creation_input_tokens": 0,
							"cache_read_input_tokens":     0,
						},
					},
				})
			}

			choice := chunk.Get("choices.0")
			if !choice.Exists() {
				return true
			}

			if text := choice.Get("delta.content"); text.Exists() && text.String() != "" {
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
					"delta": map[string]interface{}{"type": "text_delta", "text": text.String()},
				})
				outputTokens++
			}

			if finish := choice.Get("finish_reason"); finish.Exists() && finish.String() != "" {
				if sentBlockStart {
					writeSSEEvent(pw, "content_block_stop", map[string]interface{}{
						"type":  "content_block_stop",
						"index": 0,
					})
				}
				if usage := chunk.Get("usage"); usage.Exists() {
					inputTokens = usage.Get("prompt_tokens").Int()
					if v := usage.Get("completion_tokens"); v.Exists() {
						outputTokens = v.Int()
					}
				}
				writeSSEEvent(pw, "message_delta", map[string]interface{}{
					"type":  "message_delta",
					"delta": map[string]interface{}{"stop_reason": finishReasonToClaudeStop(finish.String())},
					"usage": map[string]interface{}{
						"input_tokens":                inputTokens,
						"output_tokens":               outputTokens,
						"cache_creation_input_tokens": 0,
						"cache_read_input_tokens":     0,
					},
				})
			}
			return true
		})
		if err != nil {
			pw.CloseWithError(fmt.Errorf("openai stream read: %w", err))
		}
	}()

	return pr, nil
}

// ClaudeToOpenAIStream converts Anthropic SSE events into OpenAI chat
// completion chunks.
func ClaudeToOpenAIStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		chunkID := "chatcmpl-" + uuid.NewString()[:8]
		created := time.Now().Unix()
		var usage map[string]interface{}

		emit := func(delta map[string]interface{}, finishReason interface{}) {
			chunk := map[string]interface{}{
				"id":      chunkID,
				"object":  "chat.completion.chunk",
				"created": created,
				"model":   model,
				"choices": []map[string]interface{}{{
					"index":         0,
					"delta":         delta,
					"finish_reason": finishReason,
				}},
			}
			if finishReason != nil && usage != nil {
				chunk["usage"] = usage
			}
			writeSSEData(pw, chunk)
		}

		scanSSEData(reader, func(data []byte) bool {
			event := gjson.ParseBytes(data)
			switch event.Get("type").String() {
			case "content_block_delta":
				delta := event.Get("delta")
				switch delta.Get("type").String() {
				case "text_delta":
					emit(map[string]interface{}{"content": delta.Get("text").String()}, nil)
				case "thinking_delta":
					if thinking := delta.Get("thinking").String(); thinking != "" {
						emit(map[string]interface{}{"reasoning_content": thinking}, nil)
					}
				}
			case "content_block_start":
				block := event.Get("content_block")
				if block.Get("type").String() == "tool_use" {
					emit(map[string]interface{}{
						"tool_calls": []map[string]interface{}{{
							"index": 0,
							"id":    block.Get("id").String(),
							"type":  "function",
							"function": map[string]interface{}{
								"name":      block.Get("name").String(),
								"arguments": "",
							},
						}},
					}, nil)
				}
			case "message_delta":
				inTok := event.Get("usage.input_tokens").Int()
				outTok := event.Get("usage.output_tokens").Int()
				usage = map[string]interface{}{
					"prompt_tokens":     inTok,
					"completion_tokens": outTok,
					"total_tokens":      inTok + outTok,
				}
				if stop := event.Get("delta.stop_reason").String(); stop != "" {
					emit(map[string]interface{}{}, claudeStopToFinishReason(stop))
				}
			case "message_stop":
				writeSSEDone(pw)
				return false
			}
			return true
		})
	}()

	return pr, nil
}

func claudeStopToFinishReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}

func finishReasonToClaudeStop(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}

func systemBlocksText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	var parts []string
	for _, block := range system.Array() {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orObject(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}
