package kiro

import (
	"github.com/tidwall/gjson"
)

const (
	// MaxTools is the upstream cap on tool definitions per request.
	MaxTools = 50
	// MaxToolDescriptionLength bounds a tool description before truncation.
	MaxToolDescriptionLength = 9216

	toolChoiceInstruction = "\n\n[CRITICAL INSTRUCTION] You MUST use one of the provided tools to respond. Do NOT respond with plain text. Call a tool function immediately."
)

func truncateDescription(desc string) string {
	if len(desc) <= MaxToolDescriptionLength {
		return desc
	}
	return desc[:MaxToolDescriptionLength-3] + "..."
}

func webSearchTool() map[string]interface{} {
	return map[string]interface{}{
		"webSearchTool": map[string]interface{}{"type": "web_search"},
	}
}

func toolSpecification(name, description string, schema interface{}) map[string]interface{} {
	if description == "" {
		description = "Tool: " + name
	}
	if schema == nil {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"toolSpecification": map[string]interface{}{
			"name":        name,
			"description": truncateDescription(description),
			"inputSchema": map[string]interface{}{"json": schema},
		},
	}
}

func schemaValue(v gjson.Result) interface{} {
	if !v.Exists() {
		return nil
	}
	return v.Value()
}

// ConvertAnthropicTools maps Anthropic tool definitions to the upstream shape.
func ConvertAnthropicTools(tools gjson.Result) []map[string]interface{} {
	var out []map[string]interface{}
	functionCount := 0

	tools.ForEach(func(_, tool gjson.Result) bool {
		name := tool.Get("name").String()

		if name == "web_search" || name == "web_search_20250305" {
			out = append(out, webSearchTool())
			return true
		}
		if functionCount >= MaxTools {
			return true
		}
		functionCount++

		out = append(out, toolSpecification(name,
			tool.Get("description").String(),
			schemaValue(tool.Get("input_schema"))))
		return true
	})
	return out
}

// ConvertOpenAITools maps OpenAI tool definitions to the upstream shape.
func ConvertOpenAITools(tools gjson.Result) []map[string]interface{} {
	var out []map[string]interface{}
	functionCount := 0

	tools.ForEach(func(_, tool gjson.Result) bool {
		toolType := tool.Get("type").String()
		if toolType == "" {
			toolType = "function"
		}
		if toolType == "web_search" {
			out = append(out, webSearchTool())
			return true
		}
		if toolType != "function" {
			return true
		}
		if functionCount >= MaxTools {
			return true
		}
		functionCount++

		fn := tool.Get("function")
		out = append(out, toolSpecification(fn.Get("name").String(),
			fn.Get("description").String(),
			schemaValue(fn.Get("parameters"))))
		return true
	})
	return out
}

// ConvertGeminiTools maps Gemini functionDeclarations to the upstream shape.
func ConvertGeminiTools(tools gjson.Result) []map[string]interface{} {
	var out []map[string]interface{}
	functionCount := 0

	tools.ForEach(func(_, tool gjson.Result) bool {
		tool.Get("functionDeclarations").ForEach(func(_, fn gjson.Result) bool {
			if functionCount >= MaxTools {
				return false
			}
			functionCount++

			out = append(out, toolSpecification(fn.Get("name").String(),
				fn.Get("description").String(),
				schemaValue(fn.Get("parameters"))))
			return true
		})
		return true
	})
	return out
}

// IsToolChoiceRequired reports whether tool_choice forces a tool call.
func IsToolChoiceRequired(toolChoice gjson.Result) bool {
	if toolChoice.IsObject() {
		switch toolChoice.Get("type").String() {
		case "any", "tool", "required":
			return true
		}
		return false
	}
	switch toolChoice.String() {
	case "required", "any":
		return true
	}
	return false
}
