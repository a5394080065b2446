package compressor

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Prompt-cache breakpoints for anthropic-format request bodies. Up to three
// ephemeral markers are placed: on the tail of the system prompt, on the
// second-to-last user message, and on the last user message. Anthropic
// reuses the cached prefix up to each marker on subsequent calls.

const maxCacheBreakpoints = 3

var ephemeralControl = json.RawMessage(`{"type":"ephemeral"}`)

// ApplyCacheMarkers rewrites a claude-format request body in place. String
// contents are promoted to one-element text-block lists so the marker has a
// block to attach to; list contents get the marker on their last text block.
// Bodies that already carry cache_control anywhere are left untouched.
func ApplyCacheMarkers(body []byte) []byte {
	if bytes.Contains(body, []byte(`"cache_control"`)) {
		return body
	}

	out := body
	marked := 0

	if system := gjson.GetBytes(out, "system"); system.Exists() {
		if raw, ok := markTail(system); ok {
			out, _ = sjson.SetRawBytes(out, "system", raw)
			marked++
		}
	}

	messages := gjson.GetBytes(out, "messages")
	if !messages.IsArray() {
		return out
	}
	var userIdx []int
	idx := 0
	messages.ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "user" {
			userIdx = append(userIdx, idx)
		}
		idx++
		return true
	})

	// Last two user turns, oldest first so the breakpoints stay ordered.
	start := len(userIdx) - (maxCacheBreakpoints - 1)
	if start < 0 {
		start = 0
	}
	for _, i := range userIdx[start:] {
		if marked >= maxCacheBreakpoints {
			break
		}
		content := gjson.GetBytes(out, "messages").Array()[i].Get("content")
		if raw, ok := markTail(content); ok {
			path := "messages." + itoa(i) + ".content"
			out, _ = sjson.SetRawBytes(out, path, raw)
			marked++
		}
	}
	return out
}

// markTail attaches a cache_control to the trailing text of a content value.
// A plain string becomes a single marked text block; an array gets the
// marker on its last text-type block.
func markTail(content gjson.Result) (json.RawMessage, bool) {
	if content.Type == gjson.String {
		block := map[string]interface{}{
			"type":          "text",
			"text":          content.String(),
			"cache_control": ephemeralControl,
		}
		raw, err := json.Marshal([]interface{}{block})
		if err != nil {
			return nil, false
		}
		return raw, true
	}

	if !content.IsArray() {
		return nil, false
	}
	blocks := content.Array()
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Get("type").String() != "text" {
			continue
		}
		updated, err := sjson.SetRaw(content.Raw, itoa(i)+".cache_control", string(ephemeralControl))
		if err != nil {
			return nil, false
		}
		return json.RawMessage(updated), true
	}
	return nil, false
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
