package kiro

import (
	"strings"

	"github.com/tidwall/gjson"
)

// EventType classifies a payload extracted from the CodeWhisperer event stream.
type EventType string

const (
	EventContent      EventType = "content"
	EventToolUse      EventType = "toolUse"
	EventToolUseInput EventType = "toolUseInput"
	EventToolUseStop  EventType = "toolUseStop"
	EventUsage        EventType = "usage"
)

// Event is one decoded assistant event.
type Event struct {
	Type       EventType
	Content    string
	Name       string
	ToolUseID  string
	Input      string
	Stop       bool
	Usage      float64
	Unit       string
	UnitPlural string
}

// eventPrefixes are the literal JSON openings the upstream emits. The binary
// event-stream framing around them is not parsed; scanning for the payload
// prefixes and brace-walking to the balanced close is sufficient and robust
// against framing changes.
var eventPrefixes = []string{
	`{"content":`,
	`{"name":`,
	`{"followupPrompt":`,
	`{"input":`,
	`{"stop":`,
	`{"contextUsagePercentage":`,
	`{"unit":`,
}

// ParseEventBuffer extracts all complete events from buffer and returns them
// together with the unconsumed remainder (a partial trailing payload stays in
// the remainder until more bytes arrive).
func ParseEventBuffer(buffer string) ([]Event, string) {
	var events []Event
	remaining := buffer
	searchStart := 0

	for {
		jsonStart := -1
		for _, prefix := range eventPrefixes {
			if pos := indexFrom(remaining, prefix, searchStart); pos >= 0 && (jsonStart < 0 || pos < jsonStart) {
				jsonStart = pos
			}
		}
		if jsonStart < 0 {
			break
		}

		jsonEnd := balancedObjectEnd(remaining, jsonStart)
		if jsonEnd < 0 {
			// incomplete object, keep from its start
			remaining = remaining[jsonStart:]
			return events, remaining
		}

		if ev, ok := classifyEvent(remaining[jsonStart : jsonEnd+1]); ok {
			events = append(events, ev)
		}

		searchStart = jsonEnd + 1
		if searchStart >= len(remaining) {
			return events, ""
		}
	}

	if searchStart > 0 && remaining != "" {
		remaining = remaining[searchStart:]
	}
	return events, remaining
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	if idx := strings.Index(s[from:], substr); idx >= 0 {
		return from + idx
	}
	return -1
}

// balancedObjectEnd walks braces from start, respecting JSON string and
// escape state, and returns the index of the closing brace or -1.
func balancedObjectEnd(s string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch c {
		case '\\':
			escapeNext = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				braceCount++
			}
		case '}':
			if !inString {
				braceCount--
				if braceCount == 0 {
					return i
				}
			}
		}
	}
	return -1
}

func classifyEvent(raw string) (Event, bool) {
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return Event{}, false
	}

	switch {
	case parsed.Get("content").Exists() && !parsed.Get("followupPrompt").Exists():
		return Event{Type: EventContent, Content: parsed.Get("content").String()}, true

	case parsed.Get("name").String() != "" && parsed.Get("toolUseId").String() != "":
		return Event{
			Type:      EventToolUse,
			Name:      parsed.Get("name").String(),
			ToolUseID: parsed.Get("toolUseId").String(),
			Input:     parsed.Get("input").String(),
			Stop:      parsed.Get("stop").Bool(),
		}, true

	case parsed.Get("input").Exists() && parsed.Get("name").String() == "":
		return Event{Type: EventToolUseInput, Input: parsed.Get("input").String()}, true

	case parsed.Get("stop").Exists() && !parsed.Get("contextUsagePercentage").Exists():
		return Event{Type: EventToolUseStop, Stop: parsed.Get("stop").Bool()}, true

	case parsed.Get("usage").Exists():
		return Event{
			Type:       EventUsage,
			Usage:      parsed.Get("usage").Float(),
			Unit:       parsed.Get("unit").String(),
			UnitPlural: parsed.Get("unitPlural").String(),
		}, true
	}
	return Event{}, false
}
