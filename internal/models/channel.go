package models

import (
	"strings"
	"time"
)

// Channel groups the accounts of one provider together with routing
// metadata: which models it serves, its scheduling priority and weight, and
// rolling success/latency figures maintained by the relay.
type Channel struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"` // provider type: openai, claude, gemini, glm, kiro
	Models       []string          `json:"models"`
	ModelMapping map[string]string `json:"model_mapping,omitempty"`
	Priority     int               `json:"priority"`
	Weight       int               `json:"weight"`
	Enabled      bool              `json:"enabled"`

	// Rolling stats fed back by the relay.
	TotalRequests  int64     `json:"total_requests"`
	FailedRequests int64     `json:"failed_requests"`
	TotalLatencyMS int64     `json:"total_latency_ms"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MappedModel rewrites a public model name to the provider's own name.
func (c *Channel) MappedModel(model string) string {
	if c.ModelMapping == nil {
		return model
	}
	if mapped, ok := c.ModelMapping[model]; ok && mapped != "" {
		return mapped
	}
	return model
}

// SupportsModel matches exactly first, then by prefix or substring so that
// dated variants resolve to their base entry.
func (c *Channel) SupportsModel(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	lower := strings.ToLower(model)
	for _, m := range c.Models {
		ml := strings.ToLower(m)
		if strings.HasPrefix(lower, ml) || strings.Contains(lower, ml) {
			return true
		}
	}
	return false
}

// SuccessRate over all recorded requests; unused channels count as perfect.
func (c *Channel) SuccessRate() float64 {
	if c.TotalRequests == 0 {
		return 1.0
	}
	return 1.0 - float64(c.FailedRequests)/float64(c.TotalRequests)
}

// AvgLatencyMS over all recorded requests.
func (c *Channel) AvgLatencyMS() float64 {
	if c.TotalRequests == 0 {
		return 0
	}
	return float64(c.TotalLatencyMS) / float64(c.TotalRequests)
}
