package kiro

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// defaultHistoryModelID labels replayed Anthropic history turns.
const defaultHistoryModelID = "claude-sonnet-4"

// Conversation is the provider-neutral result of converting an inbound
// request body into the conversationState pieces.
type Conversation struct {
	UserContent string
	Images      []map[string]interface{}
	History     []map[string]interface{}
	ToolResults []map[string]interface{}
	Tools       []map[string]interface{}
}

func toolResult(text, status, toolUseID string) map[string]interface{} {
	return map[string]interface{}{
		"content":   []interface{}{map[string]interface{}{"text": text}},
		"status":    status,
		"toolUseId": toolUseID,
	}
}

func dedupeToolResults(results []map[string]interface{}) []map[string]interface{} {
	seen := make(map[string]bool, len(results))
	unique := results[:0:0]
	for _, tr := range results {
		id, _ := tr["toolUseId"].(string)
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, tr)
	}
	return unique
}

func toInterfaceSlice(results []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(results))
	for i, r := range results {
		out[i] = r
	}
	return out
}

func userMessageWithResults(content, modelID string, results []map[string]interface{}) map[string]interface{} {
	msg := userMessage(content, modelID)
	msg["userInputMessage"].(map[string]interface{})["userInputMessageContext"] = map[string]interface{}{
		"toolResults": toInterfaceSlice(results),
	}
	return msg
}

// systemText flattens an Anthropic system value (string or text block list).
func systemText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	if !system.IsArray() {
		return ""
	}
	var sb strings.Builder
	system.ForEach(func(_, block gjson.Result) bool {
		if block.Type == gjson.String {
			sb.WriteString(block.String() + "\n")
		} else if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String() + "\n")
		}
		return true
	})
	return strings.TrimSpace(sb.String())
}

// ConvertAnthropicMessages converts an Anthropic messages array plus a
// flattened system prompt into the conversationState pieces. The system
// prompt is folded into the first user turn; empty turns get filler text;
// the history is fixed for strict alternation.
func ConvertAnthropicMessages(messages gjson.Result, sysText string) Conversation {
	var conv Conversation

	msgs := messages.Array()
	for i, msg := range msgs {
		role := msg.Get("role").String()
		content := msg.Get("content")
		isLast := i == len(msgs)-1

		var toolResults []map[string]interface{}
		var images []map[string]interface{}
		var textParts []string
		text := ""

		if content.IsArray() {
			content.ForEach(func(_, block gjson.Result) bool {
				if block.Type == gjson.String {
					textParts = append(textParts, block.String())
					return true
				}
				if img, ok := imageFromBlock(block); ok {
					images = append(images, img)
					return true
				}
				switch block.Get("type").String() {
				case "text":
					textParts = append(textParts, block.Get("text").String())
				case "tool_result":
					trContent := block.Get("content")
					trText := trContent.String()
					if trContent.IsArray() {
						var parts []string
						trContent.ForEach(func(_, tc gjson.Result) bool {
							if tc.Type == gjson.String {
								parts = append(parts, tc.String())
							} else if tc.Get("type").String() == "text" {
								parts = append(parts, tc.Get("text").String())
							}
							return true
						})
						trText = strings.Join(parts, "\n")
					}
					status := "success"
					if block.Get("is_error").Bool() {
						status = "error"
					}
					toolResults = append(toolResults, toolResult(trText, status, block.Get("tool_use_id").String()))
				}
				return true
			})
			text = strings.Join(textParts, "\n")
		} else {
			text = content.String()
		}

		if len(toolResults) > 0 {
			toolResults = dedupeToolResults(toolResults)
			if text == "" {
				text = toolResultsText
			}
			if isLast {
				conv.ToolResults = toolResults
				conv.UserContent = text
				conv.Images = images
			} else {
				entry := userMessageWithResults(text, defaultHistoryModelID, toolResults)
				attachUserImages(entry, images)
				conv.History = append(conv.History, entry)
			}
			continue
		}

		switch role {
		case "user":
			if sysText != "" && len(conv.History) == 0 {
				if text != "" {
					text = sysText + "\n\n" + text
				} else {
					text = sysText
				}
			}
			if text == "" {
				text = fillerUserText
			}
			if isLast {
				conv.UserContent = text
				conv.Images = images
			} else {
				entry := userMessage(text, defaultHistoryModelID)
				attachUserImages(entry, images)
				conv.History = append(conv.History, entry)
			}

		case "assistant":
			var toolUses []interface{}
			assistantText := text
			if content.IsArray() {
				var parts []string
				content.ForEach(func(_, block gjson.Result) bool {
					switch block.Get("type").String() {
					case "tool_use":
						toolUses = append(toolUses, map[string]interface{}{
							"toolUseId": block.Get("id").String(),
							"name":      block.Get("name").String(),
							"input":     block.Get("input").Value(),
						})
					case "text":
						parts = append(parts, block.Get("text").String())
					}
					return true
				})
				assistantText = strings.Join(parts, "\n")
			}
			if assistantText == "" {
				assistantText = fillerAssistantText
			}
			entry := assistantMessage(assistantText)
			if len(toolUses) > 0 {
				entry["assistantResponseMessage"].(map[string]interface{})["toolUses"] = toolUses
			}
			conv.History = append(conv.History, entry)
		}
	}

	conv.History = FixHistoryAlternation(conv.History, defaultHistoryModelID)
	pruneHistoryImages(conv.History)
	return conv
}

func openAITextContent(content gjson.Result) string {
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, c gjson.Result) bool {
			if c.Get("type").String() == "text" {
				parts = append(parts, c.Get("text").String())
			}
			return true
		})
		return strings.Join(parts, " ")
	}
	return content.String()
}

// ConvertOpenAIMessages converts an OpenAI chat request (messages, tools,
// tool_choice) into the conversationState pieces. Tool-role messages become
// toolResults attached to a user turn; assistant tool_calls become toolUses.
func ConvertOpenAIMessages(messages gjson.Result, model string, tools, toolChoice gjson.Result) Conversation {
	var conv Conversation
	systemContent := ""
	var pending []map[string]interface{}

	toolInstruction := ""
	if IsToolChoiceRequired(toolChoice) && tools.Exists() && len(tools.Array()) > 0 {
		toolInstruction = toolChoiceInstruction
	}

	flushPending := func(isLast bool) {
		if len(pending) == 0 {
			return
		}
		unique := dedupeToolResults(pending)
		if isLast {
			conv.ToolResults = unique
		} else {
			conv.History = append(conv.History, userMessageWithResults(toolResultsText, model, unique))
		}
		pending = nil
	}

	msgs := messages.Array()
	for i, msg := range msgs {
		role := msg.Get("role").String()
		content := openAITextContent(msg.Get("content"))
		isLast := i == len(msgs)-1

		switch role {
		case "system":
			systemContent = content + toolInstruction

		case "tool":
			pending = append(pending, toolResult(content, "success", msg.Get("tool_call_id").String()))

		case "user":
			flushPending(isLast)
			images := contentImages(msg.Get("content"))
			if systemContent != "" && len(conv.History) == 0 {
				content = systemContent + "\n\n" + content
			}
			if isLast {
				conv.UserContent = content
				conv.Images = images
			} else {
				entry := userMessage(content, model)
				attachUserImages(entry, images)
				conv.History = append(conv.History, entry)
			}

		case "assistant":
			flushPending(false)
			var toolUses []interface{}
			msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
				fn := tc.Get("function")
				var args interface{} = map[string]interface{}{}
				if parsed := gjson.Parse(fn.Get("arguments").String()); parsed.IsObject() {
					args = parsed.Value()
				}
				toolUses = append(toolUses, map[string]interface{}{
					"toolUseId": tc.Get("id").String(),
					"name":      fn.Get("name").String(),
					"input":     args,
				})
				return true
			})
			assistantText := content
			if assistantText == "" {
				assistantText = fillerAssistantText
			}
			entry := assistantMessage(assistantText)
			if len(toolUses) > 0 {
				entry["assistantResponseMessage"].(map[string]interface{})["toolUses"] = toolUses
			}
			conv.History = append(conv.History, entry)
		}
	}

	if len(pending) > 0 {
		conv.ToolResults = dedupeToolResults(pending)
		if conv.UserContent == "" {
			conv.UserContent = toolResultsText
		}
	}

	if conv.UserContent == "" {
		if len(msgs) > 0 {
			conv.UserContent = openAITextContent(msgs[len(msgs)-1].Get("content"))
		}
		if conv.UserContent == "" {
			conv.UserContent = fillerUserText
		}
	}

	// the current user turn never replays in history
	if last := lastEntry(conv.History); last != nil {
		if _, ok := last["userInputMessage"]; ok {
			conv.History = conv.History[:len(conv.History)-1]
		}
	}

	conv.History = FixHistoryAlternation(conv.History, model)
	pruneHistoryImages(conv.History)
	if tools.Exists() {
		conv.Tools = ConvertOpenAITools(tools)
	}
	return conv
}

// ConvertGeminiContents converts a Gemini generateContent request into the
// conversationState pieces. functionCall parts become toolUses (with
// synthesized ids, Gemini carries none) and functionResponse parts become
// toolResults matched to the preceding call.
func ConvertGeminiContents(contents, systemInstruction gjson.Result, model string, tools, toolConfig gjson.Result) Conversation {
	var conv Conversation
	var pending []map[string]interface{}

	sysText := ""
	systemInstruction.Get("parts").ForEach(func(_, p gjson.Result) bool {
		if p.Get("text").Exists() {
			if sysText != "" {
				sysText += " "
			}
			sysText += p.Get("text").String()
		}
		return true
	})

	toolInstruction := ""
	switch toolConfig.Get("functionCallingConfig.mode").String() {
	case "ANY", "REQUIRED":
		toolInstruction = "\n\n[CRITICAL INSTRUCTION] You MUST use one of the provided tools to respond. Do NOT respond with plain text."
	}

	flushPending := func() {
		if len(pending) == 0 {
			return
		}
		conv.History = append(conv.History, userMessageWithResults(toolResultsText, model, dedupeToolResults(pending)))
		pending = nil
	}

	items := contents.Array()
	for i, content := range items {
		role := content.Get("role").String()
		if role == "" {
			role = "user"
		}
		isLast := i == len(items)-1

		var textParts []string
		var toolCalls []interface{}
		var toolResponses []map[string]interface{}
		var images []map[string]interface{}

		content.Get("parts").ForEach(func(_, part gjson.Result) bool {
			switch {
			case part.Get("text").Exists():
				textParts = append(textParts, part.Get("text").String())
			case part.Get("inlineData").Exists() || part.Get("inline_data").Exists():
				if img, ok := imageFromGeminiPart(part); ok {
					images = append(images, img)
				}
			case part.Get("functionCall").Exists():
				fc := part.Get("functionCall")
				toolCalls = append(toolCalls, map[string]interface{}{
					"toolUseId": fc.Get("name").String() + "_" + itoa(i),
					"name":      fc.Get("name").String(),
					"input":     fc.Get("args").Value(),
				})
			case part.Get("functionResponse").Exists():
				fr := part.Get("functionResponse")
				resp := fr.Get("response")
				respText := resp.String()
				if resp.IsObject() {
					respText = resp.Raw
				}
				toolResponses = append(toolResponses, toolResult(respText, "success", fr.Get("name").String()+"_"+itoa(i-1)))
			}
			return true
		})
		text := strings.Join(textParts, " ")

		switch role {
		case "user":
			flushPending()
			if len(toolResponses) > 0 {
				pending = append(pending, toolResponses...)
			}
			if sysText != "" && len(conv.History) == 0 {
				text = sysText + toolInstruction + "\n\n" + text
			}
			if isLast {
				conv.UserContent = text
				conv.Images = images
				if len(pending) > 0 {
					conv.ToolResults = pending
					pending = nil
				}
			} else if text != "" || len(images) > 0 {
				if text == "" {
					text = fillerUserText
				}
				entry := userMessage(text, model)
				attachUserImages(entry, images)
				conv.History = append(conv.History, entry)
			}

		case "model":
			flushPending()
			assistantText := text
			if assistantText == "" {
				assistantText = fillerAssistantText
			}
			entry := assistantMessage(assistantText)
			if len(toolCalls) > 0 {
				entry["assistantResponseMessage"].(map[string]interface{})["toolUses"] = toolCalls
			}
			conv.History = append(conv.History, entry)
		}
	}

	if len(pending) > 0 {
		conv.ToolResults = pending
		if conv.UserContent == "" {
			conv.UserContent = toolResultsText
		}
	}

	if conv.UserContent == "" {
		if len(items) > 0 {
			var parts []string
			items[len(items)-1].Get("parts").ForEach(func(_, p gjson.Result) bool {
				if p.Get("text").Exists() {
					parts = append(parts, p.Get("text").String())
				}
				return true
			})
			conv.UserContent = strings.Join(parts, " ")
		}
		if conv.UserContent == "" {
			conv.UserContent = fillerUserText
		}
	}

	conv.History = FixHistoryAlternation(conv.History, model)
	if last := lastEntry(conv.History); last != nil {
		if _, ok := last["userInputMessage"]; ok {
			conv.History = conv.History[:len(conv.History)-1]
		}
	}
	pruneHistoryImages(conv.History)

	if tools.Exists() {
		conv.Tools = ConvertGeminiTools(tools)
	}
	return conv
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
