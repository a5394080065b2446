package translator

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestOpenAIToGeminiRequest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKeys []string
	}{
		{
			name: "simple chat request",
			input: `{
				"model": "gemini-2.5-pro",
				"messages": [
					{"role": "user", "content": "Hello"}
				]
			}`,
			wantKeys: []string{"contents", "generationConfig"},
		},
		{
			name: "request with thinking mode",
			input: `{
				"model": "gemini-2.5-pro",
				"messages": [
					{"role": "user", "content": "Solve this problem"}
				],
				"reasoning_effort": "high"
			}`,
			wantKeys: []string{"contents", "generationConfig"},
		},
		{
			name: "request with tools",
			input: `{
				"model": "gemini-2.5-pro",
				"messages": [
					{"role": "user", "content": "Call a function"}
				],
				"tools": [
					{
						"type": "function",
						"function": {
							"name": "get_weather",
							"description": "Get weather info",
							"parameters": {
								"type": "object",
								"properties": {
									"location": {"type": "string"}
								}
							}
						}
					}
				]
			}`,
			wantKeys: []string{"contents", "generationConfig", "tools"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := OpenAIToGeminiRequest("gemini-2.5-pro", []byte(tt.input), false)

			var parsed map[string]interface{}
			err := json.Unmarshal(result, &parsed)
			require.NoError(t, err)

			for _, key := range tt.wantKeys {
				assert.Contains(t, parsed, key, "Expected key %s in result", key)
			}
		})
	}
}

func TestGeminiToOpenAIResponse(t *testing.T) {
	t.Run("simple response", func(t *testing.T) {
		input := `{
			"candidates": [
				{
					"content": {
						"parts": [{"text": "Hello! How can I help you?"}],
						"role": "model"
					},
					"finishReason": "STOP"
				}
			],
			"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 20}
		}`
		result, err := GeminiToOpenAIResponse(context.Background(), "gemini-2.5-pro", []byte(input))
		require.NoError(t, err)

		parsed := gjson.ParseBytes(result)
		assert.Equal(t, "Hello! How can I help you?", parsed.Get("choices.0.message.content").String())
		assert.Equal(t, "stop", parsed.Get("choices.0.finish_reason").String())
		assert.Equal(t, int64(30), parsed.Get("usage.total_tokens").Int())
	})

	t.Run("response with tool calls", func(t *testing.T) {
		input := `{
			"candidates": [
				{
					"content": {
						"parts": [{"functionCall": {"name": "get_weather", "args": {"location": "Tokyo"}}}],
						"role": "model"
					},
					"finishReason": "STOP"
				}
			]
		}`
		result, err := GeminiToOpenAIResponse(context.Background(), "gemini-2.5-pro", []byte(input))
		require.NoError(t, err)

		parsed := gjson.ParseBytes(result)
		assert.Equal(t, "get_weather", parsed.Get("choices.0.message.tool_calls.0.function.name").String())
		assert.Equal(t, "tool_calls", parsed.Get("choices.0.finish_reason").String())
	})
}

func TestThinkingConfigConversion(t *testing.T) {
	tests := []struct {
		name            string
		reasoningEffort string
		expectBudget    int
	}{
		{"none", "none", 0},
		{"auto", "auto", -1},
		{"low", "low", 1024},
		{"medium", "medium", 8192},
		{"high", "high", 24576},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := map[string]interface{}{
				"model": "gemini-2.5-pro",
				"messages": []interface{}{
					map[string]interface{}{"role": "user", "content": "test"},
				},
				"reasoning_effort": tt.reasoningEffort,
			}

			inputJSON, _ := json.Marshal(input)
			result := OpenAIToGeminiRequest("gemini-2.5-pro", inputJSON, false)

			var parsed map[string]interface{}
			json.Unmarshal(result, &parsed)

			genConfig, ok := parsed["generationConfig"].(map[string]interface{})
			require.True(t, ok, "generationConfig should exist")

			if tt.expectBudget != 0 {
				thinkingConfig, ok := genConfig["thinkingConfig"].(map[string]interface{})
				require.True(t, ok, "thinkingConfig should exist")

				budget := int(thinkingConfig["thinkingBudget"].(float64))
				assert.Equal(t, tt.expectBudget, budget)
			}
		})
	}
}

func TestMergeConsecutiveMessages(t *testing.T) {
	input := []interface{}{
		map[string]interface{}{
			"role":  "user",
			"parts": []interface{}{map[string]interface{}{"text": "Part 1"}},
		},
		map[string]interface{}{
			"role":  "user",
			"parts": []interface{}{map[string]interface{}{"text": "Part 2"}},
		},
		map[string]interface{}{
			"role":  "model",
			"parts": []interface{}{map[string]interface{}{"text": "Response"}},
		},
	}

	result := mergeConsecutiveMessages(input)

	// Should merge the two user messages
	assert.Equal(t, 2, len(result))

	firstMsg := result[0].(map[string]interface{})
	assert.Equal(t, "user", firstMsg["role"])

	parts := firstMsg["parts"].([]interface{})
	assert.Equal(t, 2, len(parts), "Should have merged 2 parts")
}

func TestDetectThinkingInText(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"<think>Let me think</think>", true},
		{"[THINKING] Analyzing the problem", true},
		{"Thinking: First, we need to...", true},
		{"This is a normal response", false},
		{"Just a regular answer", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := detectThinkingInText(tt.text)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestOpenAIToClaudeRequest(t *testing.T) {
	input := `{
		"model": "claude-sonnet-4-5",
		"messages": [
			{"role": "system", "content": "Be terse."},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "c1", "type": "function", "function": {"name": "lookup", "arguments": "{\"k\":1}"}}
			]},
			{"role": "tool", "tool_call_id": "c1", "content": "found"}
		],
		"max_tokens": 512,
		"temperature": 0.3,
		"tools": [{"type":"function","function":{"name":"lookup","description":"d","parameters":{"type":"object"}}}]
	}`
	out := OpenAIToClaudeRequest("claude-sonnet-4-5", []byte(input), true)
	parsed := gjson.ParseBytes(out)

	assert.Equal(t, "Be terse.", parsed.Get("system").String())
	assert.Equal(t, int64(512), parsed.Get("max_tokens").Int())
	assert.True(t, parsed.Get("stream").Bool())
	assert.Equal(t, "lookup", parsed.Get("tools.0.name").String())

	messages := parsed.Get("messages").Array()
	require.Len(t, messages, 3)
	assert.Equal(t, "tool_use", messages[1].Get("content.0.type").String())
	assert.Equal(t, "tool_result", messages[2].Get("content.0.type").String())
	assert.Equal(t, "c1", messages[2].Get("content.0.tool_use_id").String())
}

func TestClaudeToOpenAIRequest(t *testing.T) {
	input := `{
		"model": "gpt-4o",
		"system": "You help.",
		"messages": [
			{"role": "user", "content": "weather?"},
			{"role": "assistant", "content": [
				{"type": "text", "text": "checking"},
				{"type": "tool_use", "id": "t1", "name": "get_weather", "input": {"city": "SF"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "t1", "content": "15C"}
			]}
		],
		"tools": [{"name": "get_weather", "description": "d", "input_schema": {"type": "object"}}]
	}`
	out := ClaudeToOpenAIRequest("gpt-4o", []byte(input), false)
	parsed := gjson.ParseBytes(out)

	messages := parsed.Get("messages").Array()
	require.GreaterOrEqual(t, len(messages), 4)
	assert.Equal(t, "system", messages[0].Get("role").String())
	assert.Equal(t, "You help.", messages[0].Get("content").String())

	var toolMsg, assistantMsg gjson.Result
	for _, m := range messages {
		switch m.Get("role").String() {
		case "tool":
			toolMsg = m
		case "assistant":
			assistantMsg = m
		}
	}
	assert.Equal(t, "t1", toolMsg.Get("tool_call_id").String())
	assert.Equal(t, "get_weather", assistantMsg.Get("tool_calls.0.function.name").String())
	assert.Equal(t, "function", parsed.Get("tools.0.type").String())
}

func TestClaudeToOpenAIResponse(t *testing.T) {
	input := `{
		"id": "msg_01",
		"model": "claude-sonnet-4-5",
		"content": [
			{"type": "text", "text": "Hello"},
			{"type": "tool_use", "id": "t1", "name": "f", "input": {"a": 1}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 11, "output_tokens": 7}
	}`
	out, err := ClaudeToOpenAIResponse(context.Background(), "claude-sonnet-4-5", []byte(input))
	require.NoError(t, err)

	parsed := gjson.ParseBytes(out)
	assert.Equal(t, "chat.completion", parsed.Get("object").String())
	assert.Equal(t, "Hello", parsed.Get("choices.0.message.content").String())
	assert.Equal(t, "tool_calls", parsed.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(18), parsed.Get("usage.total_tokens").Int())
	assert.Equal(t, `{"a":1}`, parsed.Get("choices.0.message.tool_calls.0.function.arguments").String())
}

func TestOpenAIToClaudeResponse(t *testing.T) {
	input := `{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Hi there"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 3}
	}`
	out, err := OpenAIToClaudeResponse(context.Background(), "gpt-4o", []byte(input))
	require.NoError(t, err)

	parsed := gjson.ParseBytes(out)
	assert.Equal(t, "message", parsed.Get("type").String())
	assert.Equal(t, "Hi there", parsed.Get("content.0.text").String())
	assert.Equal(t, "end_turn", parsed.Get("stop_reason").String())
	assert.Equal(t, int64(5), parsed.Get("usage.input_tokens").Int())
}

func sseEvents(t *testing.T, r io.Reader) []gjson.Result {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	var events []gjson.Result
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == doneMarker {
				continue
			}
			events = append(events, gjson.Parse(data))
		}
	}
	return events
}

func TestOpenAIToClaudeStream(t *testing.T) {
	input := strings.Join([]string{
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":2}}`,
		`data: [DONE]`,
		"",
	}, "\n\n")

	out, err := OpenAIToClaudeStream(context.Background(), "gpt-4o", strings.NewReader(input))
	require.NoError(t, err)

	events := sseEvents(t, out)
	var types []string
	var text strings.Builder
	for _, ev := range events {
		types = append(types, ev.Get("type").String())
		if ev.Get("type").String() == "content_block_delta" {
			text.WriteString(ev.Get("delta.text").String())
		}
	}
	assert.Equal(t, []string{
		"message_start", "content_block_start", "content_block_delta",
		"content_block_delta", "content_block_stop", "message_delta", "message_stop",
	}, types)
	assert.Equal(t, "Hello", text.String())

	for _, ev := range events {
		if ev.Get("type").String() == "message_delta" {
			assert.Equal(t, "end_turn", ev.Get("delta.stop_reason").String())
			assert.Equal(t, int64(9), ev.Get("usage.input_tokens").Int())
			assert.Equal(t, int64(2), ev.Get("usage.output_tokens").Int())
		}
	}
}

func TestClaudeToOpenAIStream(t *testing.T) {
	input := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-5"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":4,"output_tokens":1}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	out, err := ClaudeToOpenAIStream(context.Background(), "claude-sonnet-4-5", strings.NewReader(input))
	require.NoError(t, err)

	events := sseEvents(t, out)
	require.NotEmpty(t, events)
	assert.Equal(t, "Hi", events[0].Get("choices.0.delta.content").String())

	last := events[len(events)-1]
	assert.Equal(t, "stop", last.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(5), last.Get("usage.total_tokens").Int())
}

func TestClaudeToGeminiRequest(t *testing.T) {
	input := `{
		"system": "Short answers.",
		"messages": [
			{"role": "user", "content": "bonjour"},
			{"role": "assistant", "content": [{"type": "text", "text": "salut"}]}
		],
		"max_tokens": 128,
		"temperature": 0.9
	}`
	out := ClaudeToGeminiRequest("gemini-2.5-pro", []byte(input), false)
	parsed := gjson.ParseBytes(out)

	assert.Equal(t, "Short answers.", parsed.Get("systemInstruction.parts.0.text").String())
	assert.Equal(t, "user", parsed.Get("contents.0.role").String())
	assert.Equal(t, "model", parsed.Get("contents.1.role").String())
	assert.Equal(t, "salut", parsed.Get("contents.1.parts.0.text").String())
	assert.Equal(t, int64(128), parsed.Get("generationConfig.maxOutputTokens").Int())
}

func TestGeminiToClaudeResponse(t *testing.T) {
	input := `{
		"candidates": [{"content": {"parts": [{"text": "bonjour"}], "role": "model"}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 6, "candidatesTokenCount": 2},
		"modelVersion": "gemini-2.5-pro"
	}`
	out, err := GeminiToClaudeResponse(context.Background(), "", []byte(input))
	require.NoError(t, err)

	parsed := gjson.ParseBytes(out)
	assert.Equal(t, "bonjour", parsed.Get("content.0.text").String())
	assert.Equal(t, "end_turn", parsed.Get("stop_reason").String())
	assert.Equal(t, "gemini-2.5-pro", parsed.Get("model").String())
	assert.Equal(t, int64(6), parsed.Get("usage.input_tokens").Int())
}

func TestConvertGLMChunkMergesReasoning(t *testing.T) {
	chunk := ConvertGLMChunk([]byte(`{
		"id": "glm-1",
		"model": "glm-4.6",
		"choices": [{"index": 0, "delta": {"reasoning_content": "think ", "content": "answer"}}]
	}`), "glm-4.6")
	require.NotNil(t, chunk)

	parsed := gjson.ParseBytes(chunk)
	assert.Equal(t, "think answer", parsed.Get("choices.0.delta.content").String())
	assert.Equal(t, "chat.completion.chunk", parsed.Get("object").String())
}

func TestConvertGLMChunkEmptyDelta(t *testing.T) {
	chunk := ConvertGLMChunk([]byte(`{"choices":[{"index":0,"delta":{}}]}`), "glm-4.6")
	assert.Nil(t, chunk)
}

func TestOpenAIToGLMRequestToolNormalization(t *testing.T) {
	input := `{
		"model": "glm-4.6",
		"messages": [{"role": "user", "content": "hi"}],
		"tools": [
			{"type": "function", "function": {"name": "ok", "parameters": {"type": "object"}}},
			{"type": "function", "function": {"name": "broken"}}
		]
	}`
	out := OpenAIToGLMRequest("glm-4.6", []byte(input), false)
	parsed := gjson.ParseBytes(out)

	tools := parsed.Get("tools").Array()
	require.Len(t, tools, 1)
	assert.Equal(t, "ok", tools[0].Get("function.name").String())
	// missing description defaults to the function name
	assert.Equal(t, "ok", tools[0].Get("function.description").String())
}

func TestGLMRoutesRegistered(t *testing.T) {
	// Claude- and gemini-dialect clients on a GLM channel must get translated
	// output rather than registry pass-through of raw GLM chunks.
	assert.True(t, Default().HasStreamTransformer(FormatGLM, FormatClaude))
	assert.True(t, Default().HasResponseTransformer(FormatGLM, FormatClaude))
	assert.True(t, Default().HasStreamTransformer(FormatGLM, FormatGemini))
	assert.True(t, Default().HasRequestTransformer(FormatClaude, FormatGLM))
	assert.True(t, Default().HasRequestTransformer(FormatGemini, FormatGLM))
}

func TestGLMToClaudeStream(t *testing.T) {
	input := strings.Join([]string{
		`data: {"id":"c1","model":"glm-4.6","choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"think "}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		`data: [DONE]`,
		"",
	}, "\n\n")

	out, err := GLMToClaudeStream(context.Background(), "glm-4.6", strings.NewReader(input))
	require.NoError(t, err)

	events := sseEvents(t, out)
	var types []string
	var text strings.Builder
	for _, ev := range events {
		types = append(types, ev.Get("type").String())
		if ev.Get("type").String() == "content_block_delta" {
			text.WriteString(ev.Get("delta.text").String())
		}
	}
	assert.Equal(t, []string{
		"message_start", "content_block_start", "content_block_delta",
		"content_block_delta", "content_block_stop", "message_delta", "message_stop",
	}, types)
	// reasoning_content folds into the text stream
	assert.Equal(t, "think Hello", text.String())
}

func TestClaudeToGLMRequest(t *testing.T) {
	input := `{
		"model": "glm-4.6",
		"system": "be brief",
		"messages": [{"role": "user", "content": "hi"}],
		"tools": [{"name": "lookup", "input_schema": {"type": "object"}}]
	}`
	out := ClaudeToGLMRequest("glm-4.6", []byte(input), false)
	parsed := gjson.ParseBytes(out)

	assert.Equal(t, "system", parsed.Get("messages.0.role").String())
	assert.Equal(t, "user", parsed.Get("messages.1.role").String())
	tools := parsed.Get("tools").Array()
	require.Len(t, tools, 1)
	// anthropic tools carry no description; GLM requires one
	assert.Equal(t, "lookup", tools[0].Get("function.description").String())
}

func TestOpenAIResponsesToChatRequest(t *testing.T) {
	input := `{
		"model": "gpt-4o",
		"instructions": "Follow system",
		"input": [
			{"type": "input_text", "text": "describe this"},
			{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "earlier reply"}]}
		],
		"max_output_tokens": 256
	}`
	out := OpenAIResponsesToChatRequest("gpt-4o", []byte(input), false)
	parsed := gjson.ParseBytes(out)

	messages := parsed.Get("messages").Array()
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].Get("role").String())
	assert.Equal(t, "describe this", messages[1].Get("content").String())
	assert.Equal(t, "assistant", messages[2].Get("role").String())
	assert.Equal(t, int64(256), parsed.Get("max_tokens").Int())
}

func TestOpenAIResponsesToGeminiRequest(t *testing.T) {
	input := `{
        "model": "gemini-2.5-pro",
        "instructions": "Follow system",
        "input": [
            {"type":"input_text","text":"describe the image"},
            {"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}
        ],
        "tools": [{"type":"function","function":{"name":"f","description":"d","parameters":{"type":"object"}}}],
        "temperature": 0.2,
        "max_output_tokens": 256
    }`
	out := OpenAIResponsesToGeminiRequest("gemini-2.5-pro", []byte(input), false)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.NotNil(t, obj["contents"])
	assert.NotNil(t, obj["generationConfig"])
	gc := obj["generationConfig"].(map[string]any)
	assert.Equal(t, float64(defaultTopK), gc["topK"])
}

func TestTopKAndMaxTokensClamped(t *testing.T) {
	input := map[string]any{
		"model":      "gemini-2.5-pro",
		"messages":   []any{map[string]any{"role": "user", "content": "hi"}},
		"top_k":      128,
		"max_tokens": 999999,
	}
	payload, _ := json.Marshal(input)
	out := OpenAIToGeminiRequest("gemini-2.5-pro", payload, false)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	gc := obj["generationConfig"].(map[string]any)
	assert.Equal(t, float64(maxTopK), gc["topK"])
	assert.Equal(t, float64(maxOutputTokens), gc["maxOutputTokens"])
}

func TestAggregateClaudeStream(t *testing.T) {
	input := strings.Join([]string{
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-5","usage":{"input_tokens":12}}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"The answer"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" is 4."}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t1","name":"calc"}}`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"x\":2}"}}`,
		`data: {"type":"content_block_stop","index":1}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"input_tokens":12,"output_tokens":6}}`,
		`data: {"type":"message_stop"}`,
		"",
	}, "\n\n")

	out, err := AggregateClaudeStream(strings.NewReader(input))
	require.NoError(t, err)

	parsed := gjson.ParseBytes(out)
	assert.Equal(t, "msg_1", parsed.Get("id").String())
	assert.Equal(t, "The answer is 4.", parsed.Get("content.0.text").String())
	assert.Equal(t, "tool_use", parsed.Get("content.1.type").String())
	assert.Equal(t, float64(2), parsed.Get("content.1.input.x").Float())
	assert.Equal(t, "tool_use", parsed.Get("stop_reason").String())
	assert.Equal(t, int64(6), parsed.Get("usage.output_tokens").Int())
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := Default()

	assert.True(t, reg.HasRequestTransformer(FormatOpenAI, FormatClaude))
	assert.True(t, reg.HasRequestTransformer(FormatClaude, FormatGemini))
	assert.True(t, reg.HasStreamTransformer(FormatGemini, FormatOpenAI))
	assert.True(t, reg.HasResponseTransformer(FormatClaude, FormatOpenAI))
	assert.False(t, reg.HasRequestTransformer(FormatGLM, FormatClaude))

	// unknown pairs pass payloads through unchanged
	body := []byte(`{"model":"x"}`)
	assert.Equal(t, body, reg.TranslateRequest(FormatGLM, FormatClaude, "x", body, false))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, FormatOpenAI, Normalize(FormatOpenAIResponses))
	assert.Equal(t, FormatClaude, Normalize(FormatClaude))
}

func BenchmarkOpenAIToGeminiRequest(b *testing.B) {
	input := []byte(`{
		"model": "gemini-2.5-pro",
		"messages": [
			{"role": "user", "content": "Hello, how are you?"}
		],
		"temperature": 0.7,
		"max_tokens": 100
	}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		OpenAIToGeminiRequest("gemini-2.5-pro", input, false)
	}
}
