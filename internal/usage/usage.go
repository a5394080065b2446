package usage

import (
	"github.com/tidwall/gjson"
)

// TokenUsage is the token consumption of a single relay call.
type TokenUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	TotalTokens         int64 `json:"total_tokens"`
}

// Add folds another call's usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.TotalTokens += other.TotalTokens
}

// Extract pulls token usage out of a provider response body. Each provider
// reports usage under its own keys; unknown providers fall back to the
// OpenAI layout.
func Extract(providerType string, body []byte) TokenUsage {
	root := gjson.ParseBytes(body)
	var u TokenUsage

	switch providerType {
	case "claude", "kiro":
		usage := root.Get("usage")
		u.InputTokens = usage.Get("input_tokens").Int()
		u.OutputTokens = usage.Get("output_tokens").Int()
		u.CacheReadTokens = usage.Get("cache_read_input_tokens").Int()
		u.CacheCreationTokens = usage.Get("cache_creation_input_tokens").Int()
	case "gemini":
		meta := root.Get("usageMetadata")
		if !meta.Exists() {
			meta = root.Get("response.usageMetadata")
		}
		u.InputTokens = meta.Get("promptTokenCount").Int()
		u.OutputTokens = meta.Get("candidatesTokenCount").Int()
		u.CacheReadTokens = meta.Get("cachedContentTokenCount").Int()
		if total := meta.Get("totalTokenCount"); total.Exists() {
			u.TotalTokens = total.Int()
		}
	default: // openai, glm, and anything openai-compatible
		usage := root.Get("usage")
		u.InputTokens = usage.Get("prompt_tokens").Int()
		u.OutputTokens = usage.Get("completion_tokens").Int()
		u.CacheReadTokens = usage.Get("prompt_tokens_details.cached_tokens").Int()
		if total := usage.Get("total_tokens"); total.Exists() {
			u.TotalTokens = total.Int()
		}
	}

	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}
