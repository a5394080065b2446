package kiro

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestConvertAnthropicMessagesBasic(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"user","content":"What is 2+2?"},
		{"role":"assistant","content":"4"},
		{"role":"user","content":"And 3+3?"}
	]`)
	conv := ConvertAnthropicMessages(messages, "Be brief.")

	if conv.UserContent != "And 3+3?" {
		t.Errorf("user content = %q", conv.UserContent)
	}
	if len(conv.History) != 2 {
		t.Fatalf("history length = %d", len(conv.History))
	}
	first := conv.History[0]["userInputMessage"].(map[string]interface{})
	if !strings.HasPrefix(first["content"].(string), "Be brief.\n\n") {
		t.Errorf("system prompt not folded into first user turn: %q", first["content"])
	}
	if roleOf(conv.History[len(conv.History)-1]) != "assistant" {
		t.Error("history must end with assistant")
	}
}

func TestConvertAnthropicMessagesToolResults(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"user","content":"look it up"},
		{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"search","input":{"q":"go"}}]},
		{"role":"user","content":[
			{"type":"tool_result","tool_use_id":"t1","content":"result text"},
			{"type":"tool_result","tool_use_id":"t1","content":"dup ignored"}
		]}
	]`)
	conv := ConvertAnthropicMessages(messages, "")

	if len(conv.ToolResults) != 1 {
		t.Fatalf("tool results should dedupe by toolUseId, got %d", len(conv.ToolResults))
	}
	tr := conv.ToolResults[0]
	if tr["toolUseId"] != "t1" || tr["status"] != "success" {
		t.Errorf("tool result = %v", tr)
	}
	if conv.UserContent != toolResultsText {
		t.Errorf("user content = %q", conv.UserContent)
	}
}

func TestConvertAnthropicMessagesErrorToolResult(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"t2","content":"boom","is_error":true}]}
	]`)
	conv := ConvertAnthropicMessages(messages, "")
	if conv.ToolResults[0]["status"] != "error" {
		t.Errorf("is_error should map to error status: %v", conv.ToolResults[0])
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	tools := gjson.Parse(`[
		{"name":"web_search"},
		{"name":"get_weather","description":"weather","input_schema":{"type":"object","properties":{"city":{"type":"string"}}}}
	]`)
	out := ConvertAnthropicTools(tools)
	if len(out) != 2 {
		t.Fatalf("got %d tools", len(out))
	}
	if _, ok := out[0]["webSearchTool"]; !ok {
		t.Errorf("web_search should map to webSearchTool: %v", out[0])
	}
	spec := out[1]["toolSpecification"].(map[string]interface{})
	if spec["name"] != "get_weather" {
		t.Errorf("tool spec = %v", spec)
	}
	if _, ok := spec["inputSchema"].(map[string]interface{})["json"]; !ok {
		t.Error("input schema must nest under json")
	}
}

func TestConvertToolsLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < MaxTools+10; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"tool` + itoa(i) + `"}`)
	}
	sb.WriteString("]")
	out := ConvertAnthropicTools(gjson.Parse(sb.String()))
	if len(out) != MaxTools {
		t.Errorf("tool count should cap at %d, got %d", MaxTools, len(out))
	}
}

func TestTruncateDescription(t *testing.T) {
	long := strings.Repeat("x", MaxToolDescriptionLength+100)
	got := truncateDescription(long)
	if len(got) != MaxToolDescriptionLength {
		t.Errorf("truncated length = %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncation should end with ellipsis")
	}
	short := "fine"
	if truncateDescription(short) != short {
		t.Error("short description must pass through")
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"system","content":"You are terse."},
		{"role":"user","content":"hi"},
		{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"lookup","arguments":"{\"k\":\"v\"}"}}]},
		{"role":"tool","tool_call_id":"c1","content":"found it"},
		{"role":"user","content":"so?"}
	]`)
	conv := ConvertOpenAIMessages(messages, "claude-sonnet-4-5", gjson.Result{}, gjson.Result{})

	if conv.UserContent != "so?" {
		t.Errorf("user content = %q", conv.UserContent)
	}
	// system folded into first user turn
	first := conv.History[0]["userInputMessage"].(map[string]interface{})
	if !strings.HasPrefix(first["content"].(string), "You are terse.\n\n") {
		t.Errorf("first turn = %q", first["content"])
	}
	// the assistant's toolUses stay in history; the trailing tool output
	// becomes the current message's toolResults
	foundUses := false
	for _, entry := range conv.History {
		if a, ok := entry["assistantResponseMessage"].(map[string]interface{}); ok {
			if nonEmptySlice(a["toolUses"]) {
				foundUses = true
			}
		}
	}
	if !foundUses {
		t.Error("assistant toolUses missing from history")
	}
	if len(conv.ToolResults) != 1 || conv.ToolResults[0]["toolUseId"] != "c1" {
		t.Errorf("tool results = %v", conv.ToolResults)
	}
	assertAlternates(t, conv.History)
}

func TestConvertOpenAIMessagesToolChoiceRequired(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"system","content":"sys"},
		{"role":"user","content":"call something"}
	]`)
	tools := gjson.Parse(`[{"type":"function","function":{"name":"f"}}]`)
	conv := ConvertOpenAIMessages(messages, "m", tools, gjson.Parse(`"required"`))

	if !strings.Contains(conv.UserContent, "[CRITICAL INSTRUCTION]") {
		t.Errorf("required tool_choice should inject instruction: %q", conv.UserContent)
	}
	if len(conv.Tools) != 1 {
		t.Errorf("tools = %d", len(conv.Tools))
	}
}

func TestIsToolChoiceRequired(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`"required"`, true},
		{`"any"`, true},
		{`"auto"`, false},
		{`{"type":"any"}`, true},
		{`{"type":"tool","name":"f"}`, true},
		{`{"type":"auto"}`, false},
	}
	for _, tc := range cases {
		if got := IsToolChoiceRequired(gjson.Parse(tc.raw)); got != tc.want {
			t.Errorf("IsToolChoiceRequired(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestConvertGeminiContents(t *testing.T) {
	contents := gjson.Parse(`[
		{"role":"user","parts":[{"text":"hello"}]},
		{"role":"model","parts":[{"text":"hi"}]},
		{"role":"user","parts":[{"text":"what is the weather"}]}
	]`)
	system := gjson.Parse(`{"parts":[{"text":"Answer in French."}]}`)
	conv := ConvertGeminiContents(contents, system, "gemini-2.0-flash", gjson.Result{}, gjson.Result{})

	if conv.UserContent != "what is the weather" {
		t.Errorf("user content = %q", conv.UserContent)
	}
	first := conv.History[0]["userInputMessage"].(map[string]interface{})
	if !strings.Contains(first["content"].(string), "Answer in French.") {
		t.Errorf("system instruction not folded: %q", first["content"])
	}
	assertAlternates(t, conv.History)
}

func TestConvertGeminiContentsFunctionCall(t *testing.T) {
	contents := gjson.Parse(`[
		{"role":"user","parts":[{"text":"weather in SF"}]},
		{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"SF"}}}]},
		{"role":"user","parts":[{"functionResponse":{"name":"get_weather","response":{"temp":15}}}]}
	]`)
	conv := ConvertGeminiContents(contents, gjson.Result{}, "m", gjson.Result{}, gjson.Result{})

	if len(conv.ToolResults) != 1 {
		t.Fatalf("tool results = %d", len(conv.ToolResults))
	}
	if conv.ToolResults[0]["toolUseId"] != "get_weather_1" {
		t.Errorf("tool result id = %v", conv.ToolResults[0]["toolUseId"])
	}
	// the closing turn has no text of its own
	if conv.UserContent != fillerUserText {
		t.Errorf("user content = %q", conv.UserContent)
	}
}

func TestConvertGeminiTools(t *testing.T) {
	tools := gjson.Parse(`[{"functionDeclarations":[
		{"name":"a","description":"d1","parameters":{"type":"object"}},
		{"name":"b"}
	]}]`)
	out := ConvertGeminiTools(tools)
	if len(out) != 2 {
		t.Fatalf("got %d tools", len(out))
	}
	spec := out[1]["toolSpecification"].(map[string]interface{})
	if spec["description"] != "Tool: b" {
		t.Errorf("default description = %v", spec["description"])
	}
}
