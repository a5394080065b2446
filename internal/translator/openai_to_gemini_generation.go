package translator

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	defaultTopK     = 64
	maxTopK         = 64
	maxOutputTokens = 65535
)

// thinkingBudgets maps reasoning_effort levels to Gemini thinking budgets.
// -1 lets the model decide; anything not listed here is treated as auto.
var thinkingBudgets = map[string]int{
	"none":   0,
	"auto":   -1,
	"low":    1024,
	"medium": 8192,
	"high":   24576,
}

// buildGenerationConfig maps the sampling and output knobs of an OpenAI
// chat request onto Gemini's generationConfig. topK is always emitted since
// the upstream rejects requests without it on some model families.
func buildGenerationConfig(rawJSON []byte) map[string]interface{} {
	body := gjson.ParseBytes(rawJSON)
	gen := map[string]interface{}{
		"candidateCount": 1,
		"topK":           clampTopK(body.Get("top_k")),
	}

	for src, dst := range map[string]string{
		"temperature":       "temperature",
		"top_p":             "topP",
		"frequency_penalty": "frequencyPenalty",
		"presence_penalty":  "presencePenalty",
	} {
		if v := body.Get(src); v.Exists() {
			gen[dst] = v.Value()
		}
	}

	// max_completion_tokens supersedes the deprecated max_tokens.
	maxTokens := -1
	if v := body.Get("max_tokens"); v.Exists() {
		maxTokens = int(v.Int())
	}
	if v := body.Get("max_completion_tokens"); v.Exists() {
		maxTokens = int(v.Int())
	}
	if maxTokens > 0 {
		if maxTokens > maxOutputTokens {
			maxTokens = maxOutputTokens
		}
		gen["maxOutputTokens"] = maxTokens
	}

	if v := body.Get("n"); v.Exists() {
		gen["candidateCount"] = int(v.Int())
	}
	if v := body.Get("seed"); v.Exists() {
		gen["seed"] = int(v.Int())
	}
	if v := body.Get("reasoning_effort"); v.Exists() {
		gen["thinkingConfig"] = buildThinkingConfig(v.String())
	}
	if v := body.Get("modalities"); v.Exists() {
		if mods := mapModalities(v.Array()); len(mods) > 0 {
			gen["responseModalities"] = mods
		}
	}
	if aspect := body.Get("image_config.aspect_ratio"); aspect.Exists() {
		gen["responseImageAspectRatio"] = aspect.String()
	}
	if stop := body.Get("stop"); stop.Exists() {
		if seqs := collectStopSequences(stop); len(seqs) > 0 {
			gen["stopSequences"] = seqs
		}
	}

	return gen
}

func clampTopK(topK gjson.Result) int {
	if !topK.Exists() {
		return defaultTopK
	}
	v := int(topK.Int())
	if v <= 0 {
		return defaultTopK
	}
	if v > maxTopK {
		return maxTopK
	}
	return v
}

func buildThinkingConfig(effort string) map[string]interface{} {
	budget, ok := thinkingBudgets[effort]
	if !ok {
		budget = -1
	}
	cfg := map[string]interface{}{"thinkingBudget": budget}
	if budget != 0 {
		cfg["includeThoughts"] = true
	}
	return cfg
}

func mapModalities(mods []gjson.Result) []string {
	var out []string
	for _, m := range mods {
		switch strings.ToLower(m.String()) {
		case "text":
			out = append(out, "Text")
		case "image":
			out = append(out, "Image")
		}
	}
	return out
}

func collectStopSequences(stop gjson.Result) []string {
	if !stop.IsArray() {
		return []string{stop.String()}
	}
	var seqs []string
	for _, s := range stop.Array() {
		seqs = append(seqs, s.String())
	}
	return seqs
}

// shouldMergeAdjacent reads the compat flag that disables same-role message
// merging. Merging defaults on.
func shouldMergeAdjacent(rawJSON []byte) bool {
	v := gjson.GetBytes(rawJSON, "compat_merge_adjacent")
	return !(v.Exists() && v.Type == gjson.False)
}
