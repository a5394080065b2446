package tokenizer

import (
	"github.com/tidwall/gjson"
)

const (
	perMessageOverhead = 3
	perNameOverhead    = 3
	perListOverhead    = 3
	systemOverhead     = 3
	perToolOverhead    = 8
	// flat charge per image part, matching upstream billing conventions
	imageTokens = 1600
)

// documentTokens prices a base64 document block: decoded bytes (3/4 of the
// base64 length) at one token per four bytes, rounded up.
func documentTokens(base64Data string) int {
	n := len(base64Data)
	if n == 0 {
		return 0
	}
	return (3*n + 15) / 16
}

// CountMessages estimates the prompt token total for a chat message list.
// messages is the JSON array of messages; system is the optional system
// prompt (plain string, may be empty); tools is the optional JSON array of
// tool definitions.
func CountMessages(messages gjson.Result, system string, tools gjson.Result, model string) int {
	provider := DetectProvider(model)
	total := perListOverhead

	messages.ForEach(func(_, msg gjson.Result) bool {
		total += perMessageOverhead
		if msg.Get("name").Exists() {
			total += perNameOverhead
		}
		total += countContent(msg.Get("content"), provider)
		return true
	})

	if system != "" {
		total += systemOverhead
		total += EstimateText(system, provider)
	}

	if tools.IsArray() {
		tools.ForEach(func(_, tool gjson.Result) bool {
			total += perToolOverhead
			total += EstimateText(tool.Raw, provider)
			return true
		})
	}

	return total
}

// countContent handles string content and content-part arrays.
func countContent(content gjson.Result, provider Provider) int {
	switch {
	case content.Type == gjson.String:
		return EstimateText(content.String(), provider)
	case content.IsArray():
		total := 0
		content.ForEach(func(_, part gjson.Result) bool {
			switch part.Get("type").String() {
			case "image", "image_url":
				total += imageTokens
			case "document":
				total += documentTokens(part.Get("source.data").String())
			default:
				if t := part.Get("text"); t.Exists() {
					total += EstimateText(t.String(), provider)
				} else {
					total += EstimateText(part.Raw, provider)
				}
			}
			return true
		})
		return total
	case content.Exists():
		return EstimateText(content.Raw, provider)
	default:
		return 0
	}
}

// ContentText flattens a message content value into plain text. Handles
// plain strings and arrays of text parts.
func ContentText(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var out string
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Type == gjson.String {
				out += part.String()
				return true
			}
			if t := part.Get("text"); t.Exists() {
				out += t.String()
			}
			return true
		})
		return out
	default:
		return ""
	}
}
