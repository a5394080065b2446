package relay

import (
	"bytes"

	"github.com/tidwall/gjson"

	"aigateway-go/internal/translator"
	"aigateway-go/internal/usage"
)

var dataPrefix = []byte("data:")

// usageWatcher passively reads the SSE lines flowing to the client and
// collects the definitive token counters the upstream embeds in them. It
// never mutates the stream.
type usageWatcher struct {
	format translator.Format
	u      usage.TokenUsage
	seen   bool
}

func newUsageWatcher(clientFormat translator.Format) *usageWatcher {
	return &usageWatcher{format: clientFormat}
}

// observe inspects one stream line. Non-data lines and partial fragments
// are ignored.
func (w *usageWatcher) observe(line []byte) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || payload[0] != '{' {
		return
	}

	switch w.format {
	case translator.FormatClaude:
		w.observeClaude(payload)
	case translator.FormatGemini:
		w.observeGemini(payload)
	default:
		w.observeOpenAI(payload)
	}
}

// observeClaude reads message_start (input side) and message_delta (output
// side) usage blocks, the definitive counters for claude and kiro streams.
func (w *usageWatcher) observeClaude(payload []byte) {
	root := gjson.ParseBytes(payload)
	switch root.Get("type").String() {
	case "message_start":
		u := root.Get("message.usage")
		if !u.Exists() {
			return
		}
		w.u.InputTokens = u.Get("input_tokens").Int()
		w.u.CacheReadTokens = u.Get("cache_read_input_tokens").Int()
		w.u.CacheCreationTokens = u.Get("cache_creation_input_tokens").Int()
		w.seen = true
	case "message_delta":
		u := root.Get("usage")
		if !u.Exists() {
			return
		}
		if v := u.Get("output_tokens"); v.Exists() {
			w.u.OutputTokens = v.Int()
			w.seen = true
		}
		if v := u.Get("input_tokens"); v.Exists() && v.Int() > 0 {
			w.u.InputTokens = v.Int()
		}
	}
}

// observeOpenAI reads the usage object OpenAI-wire upstreams attach to the
// final chunk.
func (w *usageWatcher) observeOpenAI(payload []byte) {
	u := gjson.GetBytes(payload, "usage")
	if !u.Exists() || u.Type == gjson.Null {
		return
	}
	w.u.InputTokens = u.Get("prompt_tokens").Int()
	w.u.OutputTokens = u.Get("completion_tokens").Int()
	w.u.CacheReadTokens = u.Get("prompt_tokens_details.cached_tokens").Int()
	w.seen = true
}

// observeGemini reads usageMetadata, which gemini repeats with running
// totals; the last chunk wins.
func (w *usageWatcher) observeGemini(payload []byte) {
	meta := gjson.GetBytes(payload, "usageMetadata")
	if !meta.Exists() {
		return
	}
	w.u.InputTokens = meta.Get("promptTokenCount").Int()
	w.u.OutputTokens = meta.Get("candidatesTokenCount").Int()
	w.u.CacheReadTokens = meta.Get("cachedContentTokenCount").Int()
	w.seen = true
}

// result returns the collected usage and whether anything definitive was
// seen.
func (w *usageWatcher) result() (usage.TokenUsage, bool) {
	if w.u.TotalTokens == 0 {
		w.u.TotalTokens = w.u.InputTokens + w.u.OutputTokens
	}
	return w.u, w.seen
}
