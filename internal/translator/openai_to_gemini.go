package translator

import (
	"context"
	"encoding/json"
	"io"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	// Register OpenAI → Gemini translators
	Register(FormatOpenAI, FormatGemini, TranslatorConfig{
		RequestTransform:  OpenAIToGeminiRequest,
		ResponseTransform: OpenAIToGeminiResponse,
		StreamTransform:   OpenAIToGeminiStream,
	})
}

// OpenAIToGeminiRequest converts OpenAI chat completions request to Gemini format.
func OpenAIToGeminiRequest(model string, rawJSON []byte, stream bool) []byte { // stream kept for interface compatibility
	out := `{"contents":[]}`

	genConfig := buildGenerationConfig(rawJSON)
	genConfigJSON, _ := json.Marshal(genConfig)
	out, _ = sjson.SetRaw(out, "generationConfig", string(genConfigJSON))

	contents, systemInstructions := translateMessages(rawJSON)
	if shouldMergeAdjacent(rawJSON) {
		contents = mergeConsecutiveMessages(contents)
	}

	contentsJSON, _ := json.Marshal(contents)
	out, _ = sjson.SetRaw(out, "contents", string(contentsJSON))

	if len(systemInstructions) > 0 {
		sysJSON, _ := json.Marshal(map[string]interface{}{"parts": systemInstructions})
		out, _ = sjson.SetRaw(out, "systemInstruction", string(sysJSON))
	}

	out = applyToolDeclarations(out, rawJSON)
	out = applyResponseFormat(out, rawJSON)

	return []byte(out)
}

// OpenAIToGeminiResponse converts an OpenAI chat completion into a Gemini
// generateContent response.
func OpenAIToGeminiResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)
	if result.Get("error").Exists() {
		return responseBody, nil
	}

	content := result.Get("choices.0.message.content").String()
	usage := result.Get("usage")

	response := map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{
				"parts": []interface{}{map[string]interface{}{"text": content}},
				"role":  "model",
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     usage.Get("prompt_tokens").Int(),
			"candidatesTokenCount": usage.Get("completion_tokens").Int(),
			"totalTokenCount":      usage.Get("total_tokens").Int(),
		},
		"modelVersion": firstNonEmpty(model, result.Get("model").String()),
	}
	return json.Marshal(response)
}

// OpenAIToGeminiStream converts an OpenAI SSE stream into Gemini stream chunks.
func OpenAIToGeminiStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		scanSSEData(reader, func(data []byte) bool {
			if string(data) == doneMarker {
				return false
			}
			chunk := gjson.ParseBytes(data)
			choice := chunk.Get("choices.0")
			text := choice.Get("delta.content").String()
			finish := choice.Get("finish_reason")

			if text == "" && !finish.Exists() {
				return true
			}

			candidate := map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]interface{}{"text": text}},
					"role":  "model",
				},
			}
			out := map[string]interface{}{
				"candidates":   []map[string]interface{}{candidate},
				"modelVersion": firstNonEmpty(chunk.Get("model").String(), model),
			}
			if finish.Exists() && finish.String() != "" {
				candidate["finishReason"] = openaiFinishToGeminiReason(finish.String())
				if usage := chunk.Get("usage"); usage.Exists() {
					out["usageMetadata"] = map[string]interface{}{
						"promptTokenCount":     usage.Get("prompt_tokens").Int(),
						"candidatesTokenCount": usage.Get("completion_tokens").Int(),
						"totalTokenCount":      usage.Get("total_tokens").Int(),
					}
				}
			}
			writeSSEData(pw, out)
			return true
		})
	}()

	return pr, nil
}

func openaiFinishToGeminiReason(reason string) string {
	switch reason {
	case "length":
		return "MAX_TOKENS"
	case "content_filter":
		return "SAFETY"
	default:
		return "STOP"
	}
}
