package kiro

// History entries are maps with exactly one of the keys "userInputMessage"
// or "assistantResponseMessage", mirroring the conversationState wire shape.

const (
	fillerAssistantText = "I understand."
	fillerUserText      = "Continue"
	toolResultsText     = "Tool results provided."
	originAIEditor      = "AI_EDITOR"
)

func userMessage(content, modelID string) map[string]interface{} {
	return map[string]interface{}{
		"userInputMessage": map[string]interface{}{
			"content": content,
			"modelId": modelID,
			"origin":  originAIEditor,
		},
	}
}

func assistantMessage(content string) map[string]interface{} {
	return map[string]interface{}{
		"assistantResponseMessage": map[string]interface{}{
			"content": content,
		},
	}
}

// FixHistoryAlternation enforces the upstream conversation rules:
//  1. turns strictly alternate user -> assistant -> user -> assistant
//  2. an assistant turn with toolUses must be followed by matching toolResults
//  3. a user turn may carry toolResults only after an assistant with toolUses
//
// Adjacent user turns carrying toolResults are merged into the previous user
// turn; plain adjacent turns get filler messages inserted between them; the
// fixed history always ends with an assistant turn.
func FixHistoryAlternation(history []map[string]interface{}, modelID string) []map[string]interface{} {
	if len(history) == 0 {
		return history
	}

	fixed := make([]map[string]interface{}, 0, len(history))

	for _, item := range history {
		item = deepCopyMap(item)
		userMsg, isUser := item["userInputMessage"].(map[string]interface{})
		_, isAssistant := item["assistantResponseMessage"].(map[string]interface{})

		switch {
		case isUser:
			if last := lastEntry(fixed); last != nil {
				if lastUser, ok := last["userInputMessage"].(map[string]interface{}); ok {
					if results := userToolResults(userMsg); len(results) > 0 {
						mergeToolResults(lastUser, results)
						continue
					}
					fixed = append(fixed, assistantMessage(fillerAssistantText))
				}
			}

			if last := lastEntry(fixed); last != nil {
				if lastAssistant, ok := last["assistantResponseMessage"].(map[string]interface{}); ok {
					hasToolUses := nonEmptySlice(lastAssistant["toolUses"])
					hasToolResults := len(userToolResults(userMsg)) > 0

					if hasToolUses && !hasToolResults {
						delete(lastAssistant, "toolUses")
					} else if !hasToolUses && hasToolResults {
						delete(userMsg, "userInputMessageContext")
					}
				}
			}
			fixed = append(fixed, item)

		case isAssistant:
			if last := lastEntry(fixed); last != nil {
				if _, ok := last["assistantResponseMessage"]; ok {
					fixed = append(fixed, userMessage(fillerUserText, modelID))
				}
			}
			if len(fixed) == 0 {
				fixed = append(fixed, userMessage(fillerUserText, modelID))
			}
			fixed = append(fixed, item)
		}
	}

	if last := lastEntry(fixed); last != nil {
		if _, ok := last["userInputMessage"]; ok {
			fixed = append(fixed, assistantMessage(fillerAssistantText))
		}
	}

	return fixed
}

func lastEntry(history []map[string]interface{}) map[string]interface{} {
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1]
}

func userToolResults(userMsg map[string]interface{}) []interface{} {
	ctx, ok := userMsg["userInputMessageContext"].(map[string]interface{})
	if !ok {
		return nil
	}
	results, _ := ctx["toolResults"].([]interface{})
	return results
}

func mergeToolResults(target map[string]interface{}, results []interface{}) {
	ctx, ok := target["userInputMessageContext"].(map[string]interface{})
	if !ok {
		ctx = map[string]interface{}{}
		target["userInputMessageContext"] = ctx
	}
	if existing, ok := ctx["toolResults"].([]interface{}); ok && len(existing) > 0 {
		ctx["toolResults"] = append(existing, results...)
	} else {
		ctx["toolResults"] = results
	}
}

func nonEmptySlice(v interface{}) bool {
	s, ok := v.([]interface{})
	return ok && len(s) > 0
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
