package kiro

import (
	"testing"
)

func TestParseEventBufferContent(t *testing.T) {
	events, remaining := ParseEventBuffer(`garbage{"content":"Hello"}trailer`)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventContent || events[0].Content != "Hello" {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if remaining != "trailer" {
		t.Errorf("remaining = %q", remaining)
	}
}

func TestParseEventBufferMultiple(t *testing.T) {
	buf := `{"content":"a"}framing{"content":"b"}{"name":"lookup","toolUseId":"t1","input":"{\"q\":","stop":false}`
	events, remaining := ParseEventBuffer(buf)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Content != "a" || events[1].Content != "b" {
		t.Errorf("content events wrong: %+v", events[:2])
	}
	tu := events[2]
	if tu.Type != EventToolUse || tu.Name != "lookup" || tu.ToolUseID != "t1" {
		t.Errorf("toolUse event wrong: %+v", tu)
	}
	if remaining != "" {
		t.Errorf("remaining = %q", remaining)
	}
}

func TestParseEventBufferIncomplete(t *testing.T) {
	events, remaining := ParseEventBuffer(`{"content":"partial`)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if remaining != `{"content":"partial` {
		t.Errorf("partial payload should stay buffered, got %q", remaining)
	}

	// completing the buffer yields the event
	events, remaining = ParseEventBuffer(remaining + `"}`)
	if len(events) != 1 || events[0].Content != "partial" {
		t.Fatalf("completed buffer: %+v", events)
	}
	if remaining != "" {
		t.Errorf("remaining = %q", remaining)
	}
}

func TestParseEventBufferBracesInStrings(t *testing.T) {
	events, _ := ParseEventBuffer(`{"content":"code: {\"k\": 1} done"}`)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != `code: {"k": 1} done` {
		t.Errorf("content = %q", events[0].Content)
	}
}

func TestParseEventBufferClassification(t *testing.T) {
	t.Run("followupPrompt is not content", func(t *testing.T) {
		events, _ := ParseEventBuffer(`{"followupPrompt":{"content":"next?"}}`)
		for _, ev := range events {
			if ev.Type == EventContent {
				t.Errorf("followupPrompt misclassified as content")
			}
		}
	})

	t.Run("input without name", func(t *testing.T) {
		events, _ := ParseEventBuffer(`{"input":"\"city\":\"SF\"}"}`)
		if len(events) != 1 || events[0].Type != EventToolUseInput {
			t.Fatalf("got %+v", events)
		}
	})

	t.Run("stop without contextUsagePercentage", func(t *testing.T) {
		events, _ := ParseEventBuffer(`{"stop":true}`)
		if len(events) != 1 || events[0].Type != EventToolUseStop || !events[0].Stop {
			t.Fatalf("got %+v", events)
		}
	})

	t.Run("contextUsagePercentage is not a tool stop", func(t *testing.T) {
		events, _ := ParseEventBuffer(`{"contextUsagePercentage":42,"stop":true}`)
		for _, ev := range events {
			if ev.Type == EventToolUseStop {
				t.Error("context usage misclassified as tool stop")
			}
		}
	})

	t.Run("usage event", func(t *testing.T) {
		events, _ := ParseEventBuffer(`{"unit":"Credit","unitPlural":"Credits","usage":1.5}`)
		if len(events) != 1 || events[0].Type != EventUsage {
			t.Fatalf("got %+v", events)
		}
		if events[0].Usage != 1.5 || events[0].Unit != "Credit" {
			t.Errorf("usage fields: %+v", events[0])
		}
	})
}
