package models

import "time"

// RequestLog is one completed relay call.
type RequestLog struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	ChannelID           int64     `json:"channel_id"`
	ProviderType        string    `json:"provider_type"`
	Model               string    `json:"model"`
	InputTokens         int64     `json:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens"`
	DurationMS          int64     `json:"duration_ms"`
	Status              int       `json:"status"`
	Error               string    `json:"error,omitempty"`
	ContextCompressed   bool      `json:"context_compressed"`
	OriginalTokens      int64     `json:"original_tokens"`
	CompressedTokens    int64     `json:"compressed_tokens"`
	CreatedAt           time.Time `json:"created_at"`
}

// UsageStats aggregates request logs over a window.
type UsageStats struct {
	TotalRequests       int64   `json:"total_requests"`
	TotalInputTokens    int64   `json:"total_input_tokens"`
	TotalOutputTokens   int64   `json:"total_output_tokens"`
	CacheReadTokens     int64   `json:"total_cache_read_tokens"`
	CacheCreationTokens int64   `json:"total_cache_creation_tokens"`
	AvgDurationMS       float64 `json:"avg_duration"`
	ErrorCount          int64   `json:"error_count"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
}

// ComputeCacheHitRate fills CacheHitRate from the token totals.
func (s *UsageStats) ComputeCacheHitRate() {
	if s.TotalInputTokens > 0 {
		s.CacheHitRate = float64(s.CacheReadTokens) / float64(s.TotalInputTokens) * 100
	}
}

// ModelStat is the per-model aggregate row.
type ModelStat struct {
	Model               string `json:"model"`
	Count               int64  `json:"count"`
	TotalTokens         int64  `json:"total_tokens"`
	CacheReadTokens     int64  `json:"cache_read_tokens"`
	CacheCreationTokens int64  `json:"cache_creation_tokens"`
}

// HourlyStat is the per-hour aggregate row for dashboard charts.
type HourlyStat struct {
	Hour                string `json:"hour"`
	Requests            int64  `json:"requests"`
	InputTokens         int64  `json:"input_tokens"`
	OutputTokens        int64  `json:"output_tokens"`
	TotalTokens         int64  `json:"total_tokens"`
	CacheReadTokens     int64  `json:"cache_read_tokens"`
	CacheCreationTokens int64  `json:"cache_creation_tokens"`
}
