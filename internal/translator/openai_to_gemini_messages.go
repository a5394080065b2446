package translator

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// translateMessages splits an OpenAI messages array into Gemini contents and
// system instruction parts. System messages never enter the contents list;
// tool results come back as user-role functionResponse parts.
func translateMessages(rawJSON []byte) ([]interface{}, []interface{}) {
	var contents []interface{}
	var systemParts []interface{}

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		content := msg.Get("content")
		switch msg.Get("role").String() {
		case "system":
			systemParts = append(systemParts, contentToParts(content)...)
		case "user":
			contents = append(contents, map[string]interface{}{
				"role":  "user",
				"parts": contentToParts(content),
			})
		case "assistant":
			if parts := assistantParts(msg, content); len(parts) > 0 {
				contents = append(contents, map[string]interface{}{
					"role":  "model",
					"parts": parts,
				})
			}
		case "tool":
			contents = append(contents, map[string]interface{}{
				"role":  "user",
				"parts": []interface{}{toolResultPart(msg, content)},
			})
		}
	}

	return sanitizeMessages(contents), sanitizeParts(systemParts)
}

// contentToParts handles both the string and the array form of "content".
func contentToParts(content gjson.Result) []interface{} {
	if content.IsArray() {
		var parts []interface{}
		for _, part := range content.Array() {
			parts = append(parts, geminiPart(part))
		}
		return parts
	}
	return []interface{}{textPart(content.String())}
}

// assistantParts renders an assistant turn. Tool calls become functionCall
// parts, with any accompanying text placed first.
func assistantParts(msg, content gjson.Result) []interface{} {
	toolCalls := msg.Get("tool_calls")
	if !toolCalls.Exists() || !toolCalls.IsArray() {
		if !content.Exists() {
			return nil
		}
		if content.IsArray() {
			return contentToParts(content)
		}
		if content.String() == "" {
			return nil
		}
		return []interface{}{textPart(content.String())}
	}

	var parts []interface{}
	for _, tc := range toolCalls.Array() {
		if tc.Get("type").String() != "function" {
			continue
		}
		var args interface{}
		if err := json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args); err != nil {
			continue
		}
		parts = append(parts, map[string]interface{}{
			"functionCall": map[string]interface{}{
				"name": tc.Get("function.name").String(),
				"args": args,
			},
		})
	}
	if content.Exists() && content.String() != "" {
		parts = append([]interface{}{textPart(content.String())}, parts...)
	}
	return parts
}

// toolResultPart wraps a tool message as a functionResponse. Non-JSON bodies
// are carried under a "result" key since Gemini requires an object here.
func toolResultPart(msg, content gjson.Result) interface{} {
	text := sanitizeText(content.String())
	var response interface{}
	if err := json.Unmarshal([]byte(text), &response); err != nil {
		response = map[string]interface{}{"result": text}
	}

	fr := map[string]interface{}{
		"name":     msg.Get("name").String(),
		"response": response,
	}
	if id := msg.Get("tool_call_id").String(); id != "" {
		fr["id"] = id
	}
	return map[string]interface{}{"functionResponse": fr}
}

func textPart(text string) map[string]interface{} {
	return map[string]interface{}{"text": sanitizeText(text)}
}

// geminiPart converts one OpenAI content part. Unknown part types pass
// through as raw JSON so provider extensions survive the round trip.
func geminiPart(part gjson.Result) interface{} {
	switch part.Get("type").String() {
	case "text":
		return textPart(part.Get("text").String())

	case "image_url":
		url := part.Get("image_url.url").String()
		if data, ok := strings.CutPrefix(url, "data:"); ok {
			if header, payload, found := strings.Cut(data, ","); found {
				return map[string]interface{}{
					"inlineData": map[string]interface{}{
						"mimeType": imageMIME(header),
						"data":     payload,
					},
				}
			}
		}
		fileData := map[string]interface{}{"fileUri": url}
		if detail := part.Get("image_url.detail").String(); detail != "" {
			fileData["detail"] = detail
		}
		return map[string]interface{}{"fileData": fileData}

	case "audio":
		if audio := part.Get("audio"); audio.Get("data").Exists() {
			return map[string]interface{}{
				"inlineData": map[string]interface{}{
					"mimeType": audio.Get("format").String(),
					"data":     audio.Get("data").String(),
				},
			}
		}

	case "video":
		if url := part.Get("video.url"); url.Exists() {
			return map[string]interface{}{
				"fileData": map[string]interface{}{"fileUri": url.String()},
			}
		}
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(part.Raw), &raw); err == nil {
		return raw
	}
	return textPart(part.Raw)
}

// mergeConsecutiveMessages collapses runs of same-role messages into one,
// concatenating their parts. Gemini rejects back-to-back turns from the same
// role.
func mergeConsecutiveMessages(contents []interface{}) []interface{} {
	if len(contents) <= 1 {
		return contents
	}

	merged := make([]interface{}, 0, len(contents))
	var run map[string]interface{}

	flush := func() {
		if run != nil {
			merged = append(merged, run)
			run = nil
		}
	}

	for _, item := range contents {
		msg, ok := item.(map[string]interface{})
		if !ok {
			flush()
			merged = append(merged, item)
			continue
		}
		role, ok := msg["role"].(string)
		if !ok {
			flush()
			merged = append(merged, msg)
			continue
		}

		if run == nil || run["role"] != role {
			flush()
			run = msg
			continue
		}

		runParts, _ := run["parts"].([]interface{})
		if msgParts, ok := msg["parts"].([]interface{}); ok {
			run["parts"] = append(runParts, msgParts...)
		}
	}
	flush()

	return merged
}

// imageMIME reads the media type out of a data URL header. JPEG is the
// fallback because that is what clients most often omit.
func imageMIME(header string) string {
	for _, mt := range []string{"image/png", "image/webp", "image/gif", "image/heic", "image/heif"} {
		if strings.Contains(header, mt) {
			return mt
		}
	}
	return "image/jpeg"
}
