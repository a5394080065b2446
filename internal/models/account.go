package models

import (
	"time"
)

// Account is one upstream credential inside a provider's pool.
type Account struct {
	ID           int64      `json:"id"`
	ProviderType string     `json:"provider_type"`
	Name         string     `json:"name"`
	APIKey       string     `json:"api_key"`
	Usage        int64      `json:"usage"`
	Limit        int64      `json:"limit"`
	InputTokens  int64      `json:"input_tokens"`
	OutputTokens int64      `json:"output_tokens"`
	TotalTokens  int64      `json:"total_tokens"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	Enabled      bool       `json:"enabled"`
	CreatedBy    *int64     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasCredit reports whether the account still has credit budget. A zero
// limit means the provider imposes none.
func (a *Account) HasCredit() bool {
	if a.Limit <= 0 {
		return true
	}
	return a.Usage < a.Limit
}

// Redacted returns a copy safe to expose over the admin API, with the key
// shortened to a recognizable prefix.
func (a Account) Redacted() Account {
	if len(a.APIKey) > 8 {
		a.APIKey = a.APIKey[:8] + "..."
	}
	return a
}
