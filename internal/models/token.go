package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// Token statuses.
const (
	TokenStatusEnabled   = 1
	TokenStatusDisabled  = 2
	TokenStatusExhausted = 3
	TokenStatusExpired   = 4
)

// NeverExpires is the sentinel for tokens without an expiry.
const NeverExpires = -1

// APIToken is a client-facing key with quota, model, and network scoping.
type APIToken struct {
	ID                 int64  `json:"id"`
	UserID             int64  `json:"user_id"`
	Key                string `json:"key"`
	Name               string `json:"name"`
	Status             int    `json:"status"`
	UnlimitedQuota     bool   `json:"unlimited_quota"`
	RemainQuota        int64  `json:"remain_quota"`
	UsedQuota          int64  `json:"used_quota"`
	CreatedTime        int64  `json:"created_time"`
	AccessedTime       int64  `json:"accessed_time"`
	ExpiredTime        int64  `json:"expired_time"` // unix seconds, NeverExpires for none
	ModelLimitsEnabled bool   `json:"model_limits_enabled"`
	ModelLimits        string `json:"model_limits"` // comma separated
	IPWhitelist        string `json:"ip_whitelist"` // newline separated
	Group              string `json:"group"`
	CrossGroupRetry    bool   `json:"cross_group_retry"`
	RPMLimit           int    `json:"rpm_limit"`
	TPMLimit           int    `json:"tpm_limit"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	RequestCount int64 `json:"request_count"`
}

// NewTokenKey generates a fresh client key.
func NewTokenKey() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic("models: crypto/rand unavailable: " + err.Error())
	}
	return "sk-" + hex.EncodeToString(buf)
}

// Valid reports whether the token may be used right now, with a
// human-readable reason when it may not.
func (t *APIToken) Valid(now time.Time) (bool, string) {
	switch t.Status {
	case TokenStatusEnabled:
	case TokenStatusDisabled:
		return false, "Token is disabled"
	case TokenStatusExhausted:
		return false, "Token quota exhausted"
	case TokenStatusExpired:
		return false, "Token expired"
	default:
		return false, "Token is not available"
	}

	if t.ExpiredTime != NeverExpires && t.ExpiredTime < now.Unix() {
		return false, "Token expired"
	}
	if !t.UnlimitedQuota && t.RemainQuota <= 0 {
		return false, "Token quota exhausted"
	}
	return true, ""
}

// HasModelAccess checks the comma-separated model allowlist.
func (t *APIToken) HasModelAccess(model string) bool {
	if !t.ModelLimitsEnabled || t.ModelLimits == "" {
		return true
	}
	for _, m := range strings.Split(t.ModelLimits, ",") {
		if strings.TrimSpace(m) == model {
			return true
		}
	}
	return false
}

// IPAllowed checks the newline-separated IP whitelist; an empty list allows
// everything.
func (t *APIToken) IPAllowed(ip string) bool {
	if t.IPWhitelist == "" {
		return true
	}
	for _, allowed := range strings.Split(t.IPWhitelist, "\n") {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}

// AllowedModels returns the configured allowlist, empty when unrestricted.
func (t *APIToken) AllowedModels() []string {
	if !t.ModelLimitsEnabled || t.ModelLimits == "" {
		return nil
	}
	var out []string
	for _, m := range strings.Split(t.ModelLimits, ",") {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}
