package kiro

import (
	"strings"
	"testing"
)

func eventTypes(events []SSEEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i], _ = ev["type"].(string)
	}
	return out
}

func collectText(events []SSEEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev["type"] == "content_block_delta" {
			delta := ev["delta"].(map[string]interface{})
			if delta["type"] == "text_delta" {
				sb.WriteString(delta["text"].(string))
			}
		}
	}
	return sb.String()
}

func collectThinking(events []SSEEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev["type"] == "content_block_delta" {
			delta := ev["delta"].(map[string]interface{})
			if delta["type"] == "thinking_delta" {
				sb.WriteString(delta["thinking"].(string))
			}
		}
	}
	return sb.String()
}

func TestAssemblerPlainText(t *testing.T) {
	asm := NewStreamAssembler()
	events := asm.ProcessContent("Hello ", false)
	events = append(events, asm.ProcessContent("world", false)...)

	if got := collectText(events); got != "Hello world" {
		t.Errorf("text = %q", got)
	}
	// exactly one content_block_start for the text block
	starts := 0
	for _, ev := range events {
		if ev["type"] == "content_block_start" {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("expected 1 block start, got %d", starts)
	}
}

func TestAssemblerDuplicateContentDropped(t *testing.T) {
	asm := NewStreamAssembler()
	asm.ProcessContent("same", false)
	events := asm.ProcessContent("same", false)
	if len(events) != 0 {
		t.Errorf("duplicate piece should produce no events, got %v", eventTypes(events))
	}
	// a different piece resumes normally
	events = asm.ProcessContent("next", false)
	if collectText(events) != "next" {
		t.Error("non-duplicate piece should pass through")
	}
}

func TestAssemblerThinkingExtraction(t *testing.T) {
	asm := NewStreamAssembler()
	var events []SSEEvent
	events = append(events, asm.ProcessContent("<thinking>let me ponder</thinking>\n\nThe answer is 4.", true)...)
	events = append(events, asm.FinalizeThinkingBuffer(true)...)

	if got := collectThinking(events); got != "let me ponder" {
		t.Errorf("thinking = %q", got)
	}
	if got := collectText(events); got != "The answer is 4." {
		t.Errorf("text = %q", got)
	}
}

func TestAssemblerThinkingSplitAcrossChunks(t *testing.T) {
	asm := NewStreamAssembler()
	var events []SSEEvent
	for _, piece := range []string{"<think", "ing>deep", " thought</think", "ing>\n\nanswer"} {
		events = append(events, asm.ProcessContent(piece, true)...)
	}
	events = append(events, asm.FinalizeThinkingBuffer(true)...)

	if got := collectThinking(events); got != "deep thought" {
		t.Errorf("thinking = %q", got)
	}
	if got := collectText(events); got != "answer" {
		t.Errorf("text = %q", got)
	}
}

func TestAssemblerQuotedTagIgnored(t *testing.T) {
	asm := NewStreamAssembler()
	var events []SSEEvent
	events = append(events, asm.ProcessContent(`the "<thinking>" tag is special`, true)...)
	events = append(events, asm.FinalizeThinkingBuffer(true)...)

	if got := collectThinking(events); got != "" {
		t.Errorf("quoted tag must not open thinking, got %q", got)
	}
	if got := collectText(events); got != `the "<thinking>" tag is special` {
		t.Errorf("text = %q", got)
	}
}

func TestAssemblerThinkingBlockStopsOnce(t *testing.T) {
	asm := NewStreamAssembler()
	var events []SSEEvent
	events = append(events, asm.ProcessContent("<thinking>a</thinking>rest", true)...)
	events = append(events, asm.FinalizeThinkingBuffer(true)...)

	stops := 0
	for _, ev := range events {
		if ev["type"] == "content_block_stop" {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("expected exactly one content_block_stop for thinking, got %d", stops)
	}
}

func TestAssemblerToolCalls(t *testing.T) {
	asm := NewStreamAssembler()
	asm.ProcessToolUse(Event{Type: EventToolUse, Name: "get_weather", ToolUseID: "t1", Input: `{"city":`})
	asm.ProcessToolUseInput(`"SF"}`)
	asm.ProcessToolUseStop(true)

	events := asm.FinalizeToolCalls()
	if len(events) != 3 {
		t.Fatalf("expected start/delta/stop triple, got %v", eventTypes(events))
	}
	start := events[0]["content_block"].(map[string]interface{})
	if start["type"] != "tool_use" || start["name"] != "get_weather" || start["id"] != "t1" {
		t.Errorf("tool block start: %v", start)
	}
	delta := events[1]["delta"].(map[string]interface{})
	if delta["partial_json"] != `{"city":"SF"}` {
		t.Errorf("partial_json = %v", delta["partial_json"])
	}
	if asm.StopReason() != "tool_use" {
		t.Errorf("stop reason = %q", asm.StopReason())
	}
}

func TestAssemblerDanglingToolCallFinalized(t *testing.T) {
	asm := NewStreamAssembler()
	asm.ProcessToolUse(Event{Type: EventToolUse, Name: "search", ToolUseID: "t2", Input: `{"q":"go"}`})
	// no stop event arrives

	events := asm.FinalizeToolCalls()
	if len(events) != 3 {
		t.Fatalf("dangling tool call should still emit a triple, got %d", len(events))
	}
}

func TestAssemblerStopReasonEndTurn(t *testing.T) {
	asm := NewStreamAssembler()
	asm.ProcessContent("plain", false)
	if asm.StopReason() != "end_turn" {
		t.Errorf("stop reason = %q", asm.StopReason())
	}
}
