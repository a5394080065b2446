package kiro

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SSEEvent is one Anthropic-format stream event ready for serialization.
type SSEEvent map[string]interface{}

// toolCall accumulates a streamed tool invocation.
type toolCall struct {
	ToolUseID string
	Name      string
	Input     string      // raw accumulated JSON text
	Parsed    interface{} // set once Input parses
}

func (tc *toolCall) MarshalJSON() ([]byte, error) {
	input := interface{}(tc.Input)
	if tc.Parsed != nil {
		input = tc.Parsed
	}
	return json.Marshal(map[string]interface{}{
		"toolUseId": tc.ToolUseID,
		"name":      tc.Name,
		"input":     input,
	})
}

func (tc *toolCall) finalize() {
	var v interface{}
	if err := json.Unmarshal([]byte(tc.Input), &v); err == nil {
		tc.Parsed = v
	}
}

// StreamAssembler turns decoded upstream events into Anthropic SSE events.
// When thinking is requested it extracts <thinking>...</thinking> spans into
// a dedicated thinking content block, flushing only prefixes that cannot be
// part of a split tag.
type StreamAssembler struct {
	startTag string
	endTag   string

	buffer            string
	inThinking        bool
	thinkingExtracted bool
	thinkingBlockIdx  int
	textBlockIdx      int
	nextBlockIdx      int
	stoppedBlocks     map[int]bool

	toolCalls       []*toolCall
	currentToolCall *toolCall

	totalContent     string
	lastContentPiece string
	seenContent      bool

	CacheReadTokens     int
	CacheCreationTokens int
}

// NewStreamAssembler returns an assembler with the default thinking tags.
func NewStreamAssembler() *StreamAssembler {
	return &StreamAssembler{
		startTag:         "<thinking>",
		endTag:           "</thinking>",
		thinkingBlockIdx: -1,
		textBlockIdx:     -1,
		stoppedBlocks:    map[int]bool{},
	}
}

func (a *StreamAssembler) ensureBlockStart(blockType string) []SSEEvent {
	switch blockType {
	case "thinking":
		if a.thinkingBlockIdx >= 0 {
			return nil
		}
		idx := a.nextBlockIdx
		a.nextBlockIdx++
		a.thinkingBlockIdx = idx
		return []SSEEvent{{
			"type":          "content_block_start",
			"index":         idx,
			"content_block": map[string]interface{}{"type": "thinking", "thinking": ""},
		}}
	case "text":
		if a.textBlockIdx >= 0 {
			return nil
		}
		idx := a.nextBlockIdx
		a.nextBlockIdx++
		a.textBlockIdx = idx
		return []SSEEvent{{
			"type":          "content_block_start",
			"index":         idx,
			"content_block": map[string]interface{}{"type": "text", "text": ""},
		}}
	}
	return nil
}

func (a *StreamAssembler) stopBlock(index int) []SSEEvent {
	if index < 0 || a.stoppedBlocks[index] {
		return nil
	}
	a.stoppedBlocks[index] = true
	return []SSEEvent{{"type": "content_block_stop", "index": index}}
}

func (a *StreamAssembler) textDelta(text string) []SSEEvent {
	events := a.ensureBlockStart("text")
	events = append(events, SSEEvent{
		"type":  "content_block_delta",
		"index": a.textBlockIdx,
		"delta": map[string]interface{}{"type": "text_delta", "text": text},
	})
	return events
}

func (a *StreamAssembler) thinkingDelta(text string) []SSEEvent {
	events := a.ensureBlockStart("thinking")
	events = append(events, SSEEvent{
		"type":  "content_block_delta",
		"index": a.thinkingBlockIdx,
		"delta": map[string]interface{}{"type": "thinking_delta", "thinking": text},
	})
	return events
}

// ProcessContent handles one content event. Duplicate consecutive pieces are
// dropped (the upstream occasionally repeats a payload).
func (a *StreamAssembler) ProcessContent(piece string, thinkingRequested bool) []SSEEvent {
	if a.seenContent && piece == a.lastContentPiece {
		return nil
	}
	a.seenContent = true
	a.lastContentPiece = piece
	a.totalContent += piece

	if !thinkingRequested {
		return a.textDelta(piece)
	}

	a.buffer += piece
	var pending []SSEEvent

	for a.buffer != "" {
		if !a.inThinking && !a.thinkingExtracted {
			if startPos := findRealTag(a.buffer, a.startTag, 0); startPos >= 0 {
				if before := a.buffer[:startPos]; before != "" {
					pending = append(pending, a.textDelta(before)...)
				}
				a.buffer = a.buffer[startPos+len(a.startTag):]
				a.inThinking = true
				continue
			}
			// keep a tag-sized tail in case the tag arrives split
			safeLen := len(a.buffer) - len(a.startTag)
			if safeLen > 0 {
				pending = append(pending, a.textDelta(a.buffer[:safeLen])...)
				a.buffer = a.buffer[safeLen:]
			}
			break
		}

		if a.inThinking {
			if endPos := findRealTag(a.buffer, a.endTag, 0); endPos >= 0 {
				if part := a.buffer[:endPos]; part != "" {
					pending = append(pending, a.thinkingDelta(part)...)
				}
				a.buffer = a.buffer[endPos+len(a.endTag):]
				a.inThinking = false
				a.thinkingExtracted = true
				pending = append(pending, a.thinkingDelta("")...)
				pending = append(pending, a.stopBlock(a.thinkingBlockIdx)...)
				// a single blank line separates thinking from the answer
				if len(a.buffer) >= 2 && a.buffer[:2] == "\n\n" {
					a.buffer = a.buffer[2:]
				}
				continue
			}
			safeLen := len(a.buffer) - len(a.endTag)
			if safeLen > 0 {
				pending = append(pending, a.thinkingDelta(a.buffer[:safeLen])...)
				a.buffer = a.buffer[safeLen:]
			}
			break
		}

		// thinking already extracted, everything else is answer text
		rest := a.buffer
		a.buffer = ""
		if rest != "" {
			pending = append(pending, a.textDelta(rest)...)
		}
		break
	}

	return pending
}

// ProcessToolUse handles a toolUse start (or continuation) event.
func (a *StreamAssembler) ProcessToolUse(ev Event) {
	if ev.Name != "" {
		a.totalContent += ev.Name
	}
	if ev.Input != "" {
		a.totalContent += ev.Input
	}
	if ev.Name == "" || ev.ToolUseID == "" {
		return
	}

	if a.currentToolCall != nil && a.currentToolCall.ToolUseID == ev.ToolUseID {
		a.currentToolCall.Input += ev.Input
	} else {
		if a.currentToolCall != nil {
			a.currentToolCall.finalize()
			a.toolCalls = append(a.toolCalls, a.currentToolCall)
		}
		a.currentToolCall = &toolCall{ToolUseID: ev.ToolUseID, Name: ev.Name, Input: ev.Input}
	}
	if ev.Stop {
		a.currentToolCall.finalize()
		a.toolCalls = append(a.toolCalls, a.currentToolCall)
		a.currentToolCall = nil
	}
}

// ProcessToolUseInput appends an input fragment to the open tool call.
func (a *StreamAssembler) ProcessToolUseInput(input string) {
	if input != "" {
		a.totalContent += input
	}
	if a.currentToolCall != nil {
		a.currentToolCall.Input += input
	}
}

// ProcessToolUseStop closes the open tool call.
func (a *StreamAssembler) ProcessToolUseStop(stop bool) {
	if a.currentToolCall != nil && stop {
		a.currentToolCall.finalize()
		a.toolCalls = append(a.toolCalls, a.currentToolCall)
		a.currentToolCall = nil
	}
}

// FinalizeThinkingBuffer flushes whatever is still held back by the
// split-tag guard once the stream ends.
func (a *StreamAssembler) FinalizeThinkingBuffer(thinkingRequested bool) []SSEEvent {
	if !thinkingRequested || a.buffer == "" {
		return nil
	}
	var events []SSEEvent
	switch {
	case a.inThinking:
		events = append(events, a.thinkingDelta(a.buffer)...)
		a.buffer = ""
		events = append(events, a.thinkingDelta("")...)
		events = append(events, a.stopBlock(a.thinkingBlockIdx)...)
	default:
		events = append(events, a.textDelta(a.buffer)...)
		a.buffer = ""
	}
	return events
}

// FinalizeToolCalls closes any dangling tool call and emits the Anthropic
// block triple for every collected call.
func (a *StreamAssembler) FinalizeToolCalls() []SSEEvent {
	if a.currentToolCall != nil {
		a.currentToolCall.finalize()
		a.toolCalls = append(a.toolCalls, a.currentToolCall)
		a.currentToolCall = nil
	}

	var events []SSEEvent
	for _, tc := range a.toolCalls {
		idx := a.nextBlockIdx
		a.nextBlockIdx++

		toolID := tc.ToolUseID
		if toolID == "" {
			toolID = "tool_" + uuid.NewString()
		}
		partialJSON := tc.Input
		if tc.Parsed != nil {
			if b, err := json.Marshal(tc.Parsed); err == nil {
				partialJSON = string(b)
			}
		}
		if partialJSON == "" {
			partialJSON = "{}"
		}

		events = append(events,
			SSEEvent{
				"type":  "content_block_start",
				"index": idx,
				"content_block": map[string]interface{}{
					"type": "tool_use", "id": toolID, "name": tc.Name, "input": map[string]interface{}{},
				},
			},
			SSEEvent{
				"type":  "content_block_delta",
				"index": idx,
				"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": partialJSON},
			},
			SSEEvent{"type": "content_block_stop", "index": idx},
		)
	}
	return events
}

// StopReason is tool_use when any tool fired, end_turn otherwise.
func (a *StreamAssembler) StopReason() string {
	if len(a.toolCalls) > 0 {
		return "tool_use"
	}
	return "end_turn"
}

// TotalContent returns everything the stream produced, tool payloads included.
// Used to count output tokens.
func (a *StreamAssembler) TotalContent() string {
	out := a.totalContent
	if len(a.toolCalls) > 0 {
		if b, err := json.Marshal(a.toolCalls); err == nil {
			out += string(b)
		}
	}
	return out
}

// ToolCalls returns the collected tool calls.
func (a *StreamAssembler) ToolCalls() []*toolCall {
	return a.toolCalls
}

// TextBlockIndex returns the text block index, -1 when no text block opened.
func (a *StreamAssembler) TextBlockIndex() int {
	return a.textBlockIdx
}

// StopTextBlock emits the stop for the text block if it is open.
func (a *StreamAssembler) StopTextBlock() []SSEEvent {
	return a.stopBlock(a.textBlockIdx)
}
