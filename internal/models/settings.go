package models

import "time"

// CacheSettings is the single-row cache/compression configuration operators
// flip from the console.
type CacheSettings struct {
	PromptCacheEnabled   bool      `json:"prompt_cache_enabled"`
	CompressionEnabled   bool      `json:"context_compression_enabled"`
	CompressionThreshold int       `json:"context_compression_threshold"`
	CompressionTarget    int       `json:"context_compression_target"`
	CompressionStrategy  string    `json:"context_compression_strategy"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultCacheSettings mirrors the defaults applied before the row exists.
func DefaultCacheSettings() CacheSettings {
	return CacheSettings{
		PromptCacheEnabled:   true,
		CompressionEnabled:   false,
		CompressionThreshold: 8000,
		CompressionTarget:    4000,
		CompressionStrategy:  "sliding_window",
	}
}

// RiskControlSettings is the single-row risk-control switchboard.
type RiskControlSettings struct {
	ProxyPoolEnabled      bool      `json:"proxy_pool_enabled"`
	ProxyPoolStrategy     string    `json:"proxy_pool_strategy"`
	RateLimitEnabled      bool      `json:"rate_limit_enabled"`
	RateLimitGlobalRPM    int       `json:"rate_limit_global_rpm"`
	RateLimitGlobalTPM    int       `json:"rate_limit_global_tpm"`
	HealthMonitorEnabled  bool      `json:"health_monitor_enabled"`
	HealthMonitorInterval int       `json:"health_monitor_interval"`
	FingerprintEnabled    bool      `json:"fingerprint_enabled"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultRiskControlSettings matches the seeded row.
func DefaultRiskControlSettings() RiskControlSettings {
	return RiskControlSettings{
		ProxyPoolStrategy:     "sticky",
		RateLimitGlobalRPM:    1000,
		RateLimitGlobalTPM:    1000000,
		HealthMonitorInterval: 60,
	}
}
