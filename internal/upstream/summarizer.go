package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"aigateway-go/internal/compressor"
)

// GLMSummarizer backs the context compressor with a cheap GLM flash model.
type GLMSummarizer struct {
	provider Provider
	apiKey   string
}

var _ compressor.Summarizer = (*GLMSummarizer)(nil)

// NewGLMSummarizer binds a summarizer to an OpenAI-wire provider, normally
// the GLM adapter.
func NewGLMSummarizer(provider Provider, apiKey string) *GLMSummarizer {
	return &GLMSummarizer{provider: provider, apiKey: apiKey}
}

// Summarize sends the prompt as a single user turn and returns the model's
// reply text.
func (s *GLMSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model": compressor.SummaryModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": compressor.SummaryTemperature,
		"max_tokens":  compressor.SummaryMaxTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := s.provider.Chat(ctx, compressor.SummaryModel, body, ChatOptions{APIKey: s.apiKey})
	if err != nil {
		return "", err
	}
	content := gjson.GetBytes(resp, "choices.0.message.content").String()
	if content == "" {
		return "", fmt.Errorf("summarizer returned an empty response")
	}
	return content, nil
}
