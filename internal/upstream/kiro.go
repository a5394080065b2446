package upstream

import (
	"context"
	"io"
	"net/http"

	"aigateway-go/internal/kiro"
	"aigateway-go/internal/translator"
)

// KiroProvider adapts the CodeWhisperer bridge to the Provider interface.
// Kiro only streams, so non-streaming calls aggregate the Anthropic SSE
// stream into a single message.
type KiroProvider struct {
	inner *kiro.Provider
}

// NewKiro wraps a configured kiro bridge.
func NewKiro(client *http.Client, persist kiro.PersistFunc, credit kiro.CreditFunc) *KiroProvider {
	return &KiroProvider{inner: kiro.NewProvider(client, persist, credit)}
}

func (p *KiroProvider) Name() string              { return "kiro" }
func (p *KiroProvider) Format() translator.Format { return translator.FormatClaude }

func (p *KiroProvider) SupportsModel(model string) bool {
	return p.inner.SupportsModel(model)
}

func (p *KiroProvider) kiroOpts(opts ChatOptions) kiro.ChatOptions {
	return kiro.ChatOptions{
		AccountID:       opts.AccountID,
		CredentialsJSON: opts.CredentialsJSON,
		MachineID:       opts.MachineID,
	}
}

func (p *KiroProvider) Chat(ctx context.Context, model string, body []byte, opts ChatOptions) ([]byte, error) {
	stream, err := p.inner.ChatStream(ctx, model, body, p.kiroOpts(opts))
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return translator.AggregateClaudeStream(stream)
}

func (p *KiroProvider) ChatStream(ctx context.Context, model string, body []byte, opts ChatOptions) (io.ReadCloser, error) {
	return p.inner.ChatStream(ctx, model, body, p.kiroOpts(opts))
}

func (p *KiroProvider) Models(ctx context.Context, opts ChatOptions) ([]string, error) {
	return p.inner.SupportedModels(), nil
}

// UsageLimits surfaces the account's credit standing for the admin console.
func (p *KiroProvider) UsageLimits(ctx context.Context, credentialsJSON string, accountID int64) (used, limit int, err error) {
	return p.inner.UsageLimits(ctx, credentialsJSON, accountID)
}
