package compressor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Summarizer request shape used by the relay-side implementation.
const (
	SummaryModel       = "glm-4-flash"
	SummaryTemperature = 0.3
	SummaryMaxTokens   = 1000
)

const summaryPromptTemplate = `请总结以下对话的关键信息，保留重要的上下文和决策点。要求：
1. 简洁明了，突出重点
2. 保留关键的技术细节和决策
3. 使用列表形式组织信息
4. 总结长度控制在原对话的30%%以内

对话历史：
%s

请提供总结：`

// summaryCompress replaces everything before the final user message with a
// model-written summary. Any failure falls back to the sliding window.
func (c *Compressor) summaryCompress(ctx context.Context, messagesJSON []byte, cfg Config) []byte {
	if c.summarizer == nil {
		log.Warn("no summarizer configured, falling back to sliding window")
		return slidingWindowCompress(messagesJSON, cfg.Target, "")
	}

	system, conversation := splitSystem(messagesJSON)
	if len(conversation) <= 2 {
		return messagesJSON
	}

	lastUser := -1
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Get("role").String() == "user" {
			lastUser = i
			break
		}
	}
	if lastUser == -1 {
		log.Warn("no user message found, falling back to sliding window")
		return slidingWindowCompress(messagesJSON, cfg.Target, "")
	}
	if lastUser == 0 {
		return messagesJSON
	}

	history := formatForSummary(conversation[:lastUser])
	summary, err := c.summarizer.Summarize(ctx, fmt.Sprintf(summaryPromptTemplate, history))
	if err != nil || summary == "" {
		log.WithError(err).Warn("summary generation failed, falling back to sliding window")
		return slidingWindowCompress(messagesJSON, cfg.Target, "")
	}

	lastContent := extractText(conversation[lastUser].Get("content"))
	if lastContent == "" {
		lastContent = "[Previous message]"
	}

	out := rawMessages(system)
	out = append(out, textMessage("user", summaryPrefix+summary))
	out = append(out, textMessage("user", lastContent))
	return marshalMessages(out, messagesJSON)
}

// hybridCompress summarizes older history while keeping the trailing
// exchanges verbatim (as plain text).
func (c *Compressor) hybridCompress(ctx context.Context, messagesJSON []byte, cfg Config) []byte {
	if c.summarizer == nil {
		log.Warn("no summarizer configured, falling back to sliding window")
		return slidingWindowCompress(messagesJSON, cfg.Target, "")
	}

	system, conversation := splitSystem(messagesJSON)
	if len(conversation) <= hybridRecentMessages {
		return messagesJSON
	}

	recent := conversation[len(conversation)-hybridRecentMessages:]
	older := conversation[:len(conversation)-hybridRecentMessages]

	history := formatForSummary(older)
	summary, err := c.summarizer.Summarize(ctx, fmt.Sprintf(summaryPromptTemplate, history))
	if err != nil || summary == "" {
		log.WithError(err).Warn("summary generation failed, falling back to sliding window")
		return slidingWindowCompress(messagesJSON, cfg.Target, "")
	}

	out := rawMessages(system)
	out = append(out, textMessage("user", summaryPrefix+summary))
	for _, msg := range recent {
		content := extractText(msg.Get("content"))
		if content == "" {
			continue
		}
		out = append(out, textMessage(msg.Get("role").String(), content))
	}
	return marshalMessages(out, messagesJSON)
}

func splitSystem(messagesJSON []byte) (system, conversation []gjson.Result) {
	gjson.ParseBytes(messagesJSON).ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "system" {
			system = append(system, msg)
		} else {
			conversation = append(conversation, msg)
		}
		return true
	})
	return
}

func rawMessages(msgs []gjson.Result) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, json.RawMessage(m.Raw))
	}
	return out
}

func textMessage(role, content string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"role": role, "content": content})
	return raw
}

func marshalMessages(msgs []json.RawMessage, fallback []byte) []byte {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fallback
	}
	return raw
}

// formatForSummary flattens messages into "role: text" lines, previewing
// tool results so the summarizer sees what tools reported.
func formatForSummary(messages []gjson.Result) string {
	var lines []string
	for _, msg := range messages {
		role := msg.Get("role").String()
		content := msg.Get("content")

		if content.Type == gjson.String {
			lines = append(lines, role+": "+content.String())
			continue
		}
		if !content.IsArray() {
			continue
		}
		var parts []string
		content.ForEach(func(_, item gjson.Result) bool {
			switch item.Get("type").String() {
			case "text":
				parts = append(parts, item.Get("text").String())
			case "tool_result":
				tc := item.Get("content")
				if tc.Type == gjson.String {
					parts = append(parts, "[Tool Result: "+truncate(tc.String(), 100)+"...]")
				} else if tc.IsArray() {
					tc.ForEach(func(_, sub gjson.Result) bool {
						if sub.Get("type").String() == "text" {
							parts = append(parts, "[Tool Result: "+truncate(sub.Get("text").String(), 100)+"...]")
						}
						return true
					})
				}
			}
			return true
		})
		if len(parts) > 0 {
			lines = append(lines, role+": "+strings.Join(parts, " "))
		}
	}
	return strings.Join(lines, "\n\n")
}

// extractText pulls the plain text out of string-or-blocks content.
func extractText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var parts []string
	content.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			parts = append(parts, item.Get("text").String())
		case "tool_result":
			tc := item.Get("content")
			if tc.Type == gjson.String {
				parts = append(parts, tc.String())
			} else if tc.IsArray() {
				tc.ForEach(func(_, sub gjson.Result) bool {
					if sub.Get("type").String() == "text" {
						parts = append(parts, sub.Get("text").String())
					}
					return true
				})
			}
		}
		return true
	})
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
