package usage

import "strings"

// ModelRate prices a model per 1K tokens and carries the quota ratio used
// to convert raw tokens into billed quota units.
type ModelRate struct {
	InputPer1K  float64
	OutputPer1K float64
	Ratio       float64
}

var modelRates = map[string]ModelRate{
	"gpt-4":             {InputPer1K: 0.03, OutputPer1K: 0.06, Ratio: 15},
	"gpt-3.5-turbo":     {InputPer1K: 0.0015, OutputPer1K: 0.002, Ratio: 1},
	"claude-3-5-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015, Ratio: 3},
	"gemini-2.0-flash":  {InputPer1K: 0.0001, OutputPer1K: 0.0003, Ratio: 0.1},
}

var defaultRate = ModelRate{InputPer1K: 0.001, OutputPer1K: 0.002, Ratio: 1}

// RateFor resolves a model's rate: exact match first, then substring so
// dated variants (claude-3-5-sonnet-20240620) price like their base model.
func RateFor(model string) ModelRate {
	if r, ok := modelRates[model]; ok {
		return r
	}
	lower := strings.ToLower(model)
	for name, r := range modelRates {
		if strings.Contains(lower, name) {
			return r
		}
	}
	return defaultRate
}

// Cost estimates the dollar cost of a call, weighing cached input tokens by
// the provider's cache ratios.
func Cost(providerType, model string, u TokenUsage) float64 {
	r := RateFor(model)
	return EffectiveInputTokens(providerType, u)/1000*r.InputPer1K +
		float64(u.OutputTokens)/1000*r.OutputPer1K
}

// QuotaUsage converts a call's total tokens into quota units via the
// model's ratio. This is what gets charged against users and tokens.
func QuotaUsage(model string, u TokenUsage) int64 {
	return int64(float64(u.TotalTokens) * RateFor(model).Ratio)
}
