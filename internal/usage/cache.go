package usage

import "fmt"

// CacheRatio is what cached tokens cost relative to fresh input tokens.
// Reads are discounted, cache writes carry a surcharge on some providers.
type CacheRatio struct {
	Read     float64
	Creation float64
}

var cacheRatios = map[string]CacheRatio{
	"openai": {Read: 0.5, Creation: 1.25},
	"claude": {Read: 0.1, Creation: 1.25},
	"gemini": {Read: 0.25, Creation: 1.0},
	"kiro":   {Read: 0.5, Creation: 1.0},
}

// Unknown providers get no discount and no surcharge.
var defaultCacheRatio = CacheRatio{Read: 1.0, Creation: 1.0}

// RatioFor returns the provider's cache pricing ratios.
func RatioFor(providerType string) CacheRatio {
	if r, ok := cacheRatios[providerType]; ok {
		return r
	}
	return defaultCacheRatio
}

// EffectiveInputTokens weighs the input side of a call by the provider's
// cache ratios: uncached tokens at full price, cache reads discounted,
// cache writes surcharged.
func EffectiveInputTokens(providerType string, u TokenUsage) float64 {
	r := RatioFor(providerType)
	fresh := u.InputTokens - u.CacheReadTokens - u.CacheCreationTokens
	if fresh < 0 {
		fresh = 0
	}
	return float64(fresh) +
		float64(u.CacheReadTokens)*r.Read +
		float64(u.CacheCreationTokens)*r.Creation
}

// CacheSavings is the net token-equivalents saved by caching: the read
// discount minus the creation surcharge. Negative means the cache cost more
// than it saved so far.
func CacheSavings(providerType string, u TokenUsage) float64 {
	r := RatioFor(providerType)
	return float64(u.CacheReadTokens)*(1-r.Read) -
		float64(u.CacheCreationTokens)*(r.Creation-1)
}

// CacheHitRate is the share of input tokens served from cache, in percent.
func CacheHitRate(u TokenUsage) float64 {
	if u.InputTokens == 0 {
		return 0
	}
	return float64(u.CacheReadTokens) / float64(u.InputTokens) * 100
}

// FormatCacheStats renders a one-line cache summary for logs and the admin
// console.
func FormatCacheStats(providerType string, u TokenUsage) string {
	return fmt.Sprintf("cache: read=%d creation=%d hit=%.1f%% saved=%.0f tokens",
		u.CacheReadTokens, u.CacheCreationTokens, CacheHitRate(u),
		CacheSavings(providerType, u))
}
