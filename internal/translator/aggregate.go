package translator

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// AggregateClaudeStream consumes an Anthropic SSE stream and rebuilds the full
// message JSON. Used for non-streaming requests against upstreams that only
// speak SSE.
func AggregateClaudeStream(reader io.Reader) ([]byte, error) {
	type block struct {
		kind     string
		text     strings.Builder
		thinking strings.Builder
		id       string
		name     string
		partial  strings.Builder
	}

	var (
		messageID  string
		model      string
		stopReason string
		blocks     []*block
		byIndex    = map[int]*block{}
		usage      = map[string]interface{}{"input_tokens": int64(0), "output_tokens": int64(0)}
	)

	err := scanSSEData(reader, func(data []byte) bool {
		event := gjson.ParseBytes(data)
		switch event.Get("type").String() {
		case "message_start":
			messageID = event.Get("message.id").String()
			model = event.Get("message.model").String()
			if u := event.Get("message.usage"); u.Exists() {
				usage["input_tokens"] = u.Get("input_tokens").Int()
			}
		case "content_block_start":
			idx := int(event.Get("index").Int())
			b := &block{kind: event.Get("content_block.type").String()}
			if b.kind == "tool_use" {
				b.id = event.Get("content_block.id").String()
				b.name = event.Get("content_block.name").String()
			}
			byIndex[idx] = b
			blocks = append(blocks, b)
		case "content_block_delta":
			idx := int(event.Get("index").Int())
			b, ok := byIndex[idx]
			if !ok {
				return true
			}
			delta := event.Get("delta")
			switch delta.Get("type").String() {
			case "text_delta":
				b.text.WriteString(delta.Get("text").String())
			case "thinking_delta":
				b.thinking.WriteString(delta.Get("thinking").String())
			case "input_json_delta":
				b.partial.WriteString(delta.Get("partial_json").String())
			}
		case "message_delta":
			if v := event.Get("delta.stop_reason"); v.Exists() {
				stopReason = v.String()
			}
			if u := event.Get("usage"); u.Exists() {
				usage["input_tokens"] = u.Get("input_tokens").Int()
				usage["output_tokens"] = u.Get("output_tokens").Int()
				if v := u.Get("cache_read_input_tokens"); v.Exists() {
					usage["cache_read_input_tokens"] = v.Int()
				}
				if v := u.Get("cache_creation_input_tokens"); v.Exists() {
					usage["cache_creation_input_tokens"] = v.Int()
				}
			}
		case "message_stop":
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	content := []map[string]interface{}{}
	for _, b := range blocks {
		switch b.kind {
		case "text":
			if b.text.Len() > 0 {
				content = append(content, map[string]interface{}{"type": "text", "text": b.text.String()})
			}
		case "thinking":
			if b.thinking.Len() > 0 {
				content = append(content, map[string]interface{}{"type": "thinking", "thinking": b.thinking.String()})
			}
		case "tool_use":
			input := map[string]interface{}{}
			if raw := b.partial.String(); raw != "" {
				json.Unmarshal([]byte(raw), &input)
			}
			content = append(content, map[string]interface{}{
				"type":  "tool_use",
				"id":    b.id,
				"name":  b.name,
				"input": input,
			})
		}
	}

	if stopReason == "" {
		stopReason = "end_turn"
	}
	message := map[string]interface{}{
		"id":          messageID,
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     content,
		"stop_reason": stopReason,
		"usage":       usage,
	}
	return json.Marshal(message)
}
