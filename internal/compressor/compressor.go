package compressor

import (
	"context"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"aigateway-go/internal/tokenizer"
)

// Strategy selects how an over-long conversation gets shortened.
type Strategy string

const (
	StrategySlidingWindow Strategy = "sliding_window"
	StrategySummary       Strategy = "summary"
	StrategyHybrid        Strategy = "hybrid"
)

const (
	defaultThreshold = 8000
	defaultTarget    = 4000

	// hybrid keeps the trailing two exchanges verbatim
	hybridRecentMessages = 4

	summaryPrefix = "[历史对话总结]\n"
)

// Config tunes the compressor. Operators flip these at runtime from the
// admin API, so reads go through a snapshot.
type Config struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Threshold int      `json:"threshold" yaml:"threshold"`
	Target    int      `json:"target" yaml:"target"`
	Strategy  Strategy `json:"strategy" yaml:"strategy"`
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.Target <= 0 {
		c.Target = defaultTarget
	}
	if c.Strategy == "" {
		c.Strategy = StrategySlidingWindow
	}
	return c
}

// Summarizer condenses a block of conversation history into a short text.
// The relay wires this to a cheap upstream model; a nil summarizer makes the
// summary strategies fall back to the sliding window.
type Summarizer interface {
	Summarize(ctx context.Context, history string) (string, error)
}

// Result reports what compression did to a request.
type Result struct {
	Messages         []byte
	Compressed       bool
	OriginalTokens   int
	CompressedTokens int
}

// Compressor shortens chat-completions message arrays that exceed the token
// threshold.
type Compressor struct {
	mu         sync.RWMutex
	cfg        Config
	summarizer Summarizer
}

// New builds a compressor with the given config and optional summarizer.
func New(cfg Config, summarizer Summarizer) *Compressor {
	return &Compressor{cfg: cfg.withDefaults(), summarizer: summarizer}
}

// SetConfig swaps the runtime configuration.
func (c *Compressor) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.withDefaults()
}

func (c *Compressor) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// CompressIfNeeded shortens messagesJSON (a chat-completions messages array)
// when it exceeds the configured threshold. The input is returned untouched
// when compression is disabled or unnecessary.
func (c *Compressor) CompressIfNeeded(ctx context.Context, messagesJSON []byte, model string) Result {
	cfg := c.config()
	if !cfg.Enabled {
		return Result{Messages: messagesJSON}
	}

	original := estimateTokens(gjson.ParseBytes(messagesJSON), model)
	if original < cfg.Threshold {
		return Result{Messages: messagesJSON, OriginalTokens: original, CompressedTokens: original}
	}

	log.WithFields(log.Fields{
		"tokens":    original,
		"threshold": cfg.Threshold,
		"strategy":  cfg.Strategy,
	}).Info("context compression triggered")

	var compressed []byte
	switch cfg.Strategy {
	case StrategySummary:
		compressed = c.summaryCompress(ctx, messagesJSON, cfg)
	case StrategyHybrid:
		compressed = c.hybridCompress(ctx, messagesJSON, cfg)
	default:
		compressed = slidingWindowCompress(messagesJSON, cfg.Target, model)
	}

	after := estimateTokens(gjson.ParseBytes(compressed), model)
	log.WithFields(log.Fields{
		"before": original,
		"after":  after,
		"saved":  original - after,
	}).Info("context compressed")

	return Result{
		Messages:         compressed,
		Compressed:       true,
		OriginalTokens:   original,
		CompressedTokens: after,
	}
}

// estimateTokens sums token estimates over text content in the array.
func estimateTokens(messages gjson.Result, model string) int {
	total := 0
	messages.ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		if content.Type == gjson.String {
			total += tokenizer.EstimateForModel(content.String(), model)
		} else if content.IsArray() {
			content.ForEach(func(_, item gjson.Result) bool {
				if txt := item.Get("text"); txt.Exists() {
					total += tokenizer.EstimateForModel(txt.String(), model)
				}
				return true
			})
		}
		return true
	})
	return total
}

// slidingWindowCompress keeps the system prompt plus as many trailing
// messages as fit inside the target budget, then repairs the sequence so it
// still satisfies anthropic-style alternation rules.
func slidingWindowCompress(messagesJSON []byte, target int, model string) []byte {
	parsed := gjson.ParseBytes(messagesJSON)
	if !parsed.IsArray() {
		return messagesJSON
	}

	var system, conversation []gjson.Result
	parsed.ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "system" {
			system = append(system, msg)
		} else {
			conversation = append(conversation, msg)
		}
		return true
	})
	if len(conversation) == 0 {
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
		log.Warn("no user message in conversation, skipping compression")
		return messagesJSON
	}

	budget := target
	for _, m := range system {
		budget -= estimateTokens(wrapArray(m), model)
	}

	var kept []gjson.Result
	used := 0
	for i := lastUser; i >= 0; i-- {
		cost := estimateTokens(wrapArray(conversation[i]), model)
		if used+cost > budget {
			break
		}
		kept = append([]gjson.Result{conversation[i]}, kept...)
		used += cost
	}
	if len(kept) == 0 || kept[len(kept)-1].Get("role").String() != "user" {
		kept = []gjson.Result{conversation[lastUser]}
	}

	kept = cleanSequence(kept)

	out := make([]json.RawMessage, 0, len(system)+len(kept))
	for _, m := range system {
		out = append(out, json.RawMessage(m.Raw))
	}
	for _, m := range kept {
		out = append(out, json.RawMessage(m.Raw))
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return messagesJSON
	}
	return raw
}

// wrapArray lifts a single message into a one-element array result so the
// token estimator can walk it.
func wrapArray(msg gjson.Result) gjson.Result {
	return gjson.Parse("[" + msg.Raw + "]")
}

func hasBlockType(msg gjson.Result, blockType string) bool {
	content := msg.Get("content")
	if !content.IsArray() {
		return false
	}
	found := false
	content.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() == blockType {
			found = true
			return false
		}
		return true
	})
	return found
}

// stripBlockType removes content blocks of one type from a message, returning
// the rewritten message.
func stripBlockType(msg gjson.Result, blockType string) gjson.Result {
	content := msg.Get("content")
	if !content.IsArray() {
		return msg
	}
	var blocks []json.RawMessage
	content.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != blockType {
			blocks = append(blocks, json.RawMessage(item.Raw))
		}
		return true
	})
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(msg.Raw), &obj); err != nil {
		return msg
	}
	rawBlocks, _ := json.Marshal(blocks)
	if blocks == nil {
		rawBlocks = []byte("[]")
	}
	obj["content"] = rawBlocks
	raw, err := json.Marshal(obj)
	if err != nil {
		return msg
	}
	return gjson.ParseBytes(raw)
}

// cleanSequence repairs a truncated conversation: it must open with a user
// message, roles must alternate, tool_use needs a matching tool_result (and
// vice versa), and the sequence must end on a user message.
func cleanSequence(messages []gjson.Result) []gjson.Result {
	var cleaned []gjson.Result
	for _, msg := range messages {
		role := msg.Get("role").String()

		if len(cleaned) == 0 && role != "user" {
			continue
		}
		if len(cleaned) > 0 && cleaned[len(cleaned)-1].Get("role").String() == role {
			continue
		}

		if role == "user" && len(cleaned) > 0 {
			last := cleaned[len(cleaned)-1]
			if last.Get("role").String() == "assistant" {
				hasUse := hasBlockType(last, "tool_use")
				hasResult := hasBlockType(msg, "tool_result")
				if hasUse && !hasResult {
					cleaned[len(cleaned)-1] = stripBlockType(last, "tool_use")
				} else if !hasUse && hasResult {
					msg = stripBlockType(msg, "tool_result")
				}
			}
		}

		cleaned = append(cleaned, msg)
	}

	for len(cleaned) > 0 && cleaned[len(cleaned)-1].Get("role").String() != "user" {
		cleaned = cleaned[:len(cleaned)-1]
	}
	return cleaned
}
