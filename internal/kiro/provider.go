package kiro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aigateway-go/internal/tokenizer"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	baseURLTemplate = "https://q.%s.amazonaws.com/generateAssistantResponse"

	// DefaultRegion is used when the credentials carry no region.
	DefaultRegion = "us-east-1"
	kiroVersion   = "0.8.140"

	usageResourceType  = "AGENTIC_REQUEST"
	totalContextTokens = 172500

	thinkingMaxBudgetTokens     = 24576
	thinkingDefaultBudgetTokens = 20000
	thinkingModeTag             = "<thinking_mode>"
	thinkingMaxLenTag           = "<max_thinking_length>"
)

// ModelMapping maps public model names to upstream model ids.
var ModelMapping = map[string]string{
	"claude-sonnet-4-5":          "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4-5-20250929": "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-haiku-4-5":           "claude-haiku-4.5",
	"claude-opus-4-5":            "claude-opus-4.5",
}

// PersistFunc stores refreshed credentials for an account.
type PersistFunc func(ctx context.Context, accountID int64, credentialsJSON string) error

// CreditFunc records credit usage reported by the upstream.
type CreditFunc func(ctx context.Context, accountID int64, delta float64)

// Provider speaks the CodeWhisperer protocol. Its native client format is
// Anthropic: ChatStream accepts an Anthropic messages request and emits
// Anthropic SSE.
type Provider struct {
	client  *http.Client
	persist PersistFunc
	credit  CreditFunc
}

// NewProvider builds a provider. client may be nil; persist and credit may be
// nil when refresh persistence or credit accounting is not wanted.
func NewProvider(client *http.Client, persist PersistFunc, credit CreditFunc) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Provider{client: client, persist: persist, credit: credit}
}

func (p *Provider) Name() string   { return "kiro" }
func (p *Provider) Format() string { return "claude" }

// SupportedModels lists the public model names.
func (p *Provider) SupportedModels() []string {
	out := make([]string, 0, len(ModelMapping))
	for m := range ModelMapping {
		out = append(out, m)
	}
	return out
}

// SupportsModel reports whether model maps to an upstream id.
func (p *Provider) SupportsModel(model string) bool {
	_, ok := ModelMapping[model]
	return ok
}

// MappedModel resolves the upstream model id, passing unknown names through.
func MappedModel(model string) string {
	if mapped, ok := ModelMapping[model]; ok {
		return mapped
	}
	return model
}

func baseURL(region string) string {
	if region == "" {
		region = DefaultRegion
	}
	return fmt.Sprintf(baseURLTemplate, region)
}

// buildHeaders builds the per-request header set. machineID keeps a stable
// per-account device identity across requests.
func buildHeaders(accessToken, machineID string) http.Header {
	if machineID == "" {
		machineID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("amz-sdk-request", "attempt=1; max=1")
	h.Set("amz-sdk-invocation-id", uuid.NewString())
	h.Set("x-amzn-kiro-agent-mode", "vibe")
	h.Set("x-amz-user-agent", fmt.Sprintf("aws-sdk-js/1.0.0 KiroIDE-%s-%s", kiroVersion, machineID))
	h.Set("user-agent", fmt.Sprintf(
		"aws-sdk-js/1.0.0 ua/2.1 os/windows lang/js md/nodejs api/codewhispererruntime#1.0.0 m/E KiroIDE-%s-%s",
		kiroVersion, machineID))
	return h
}

func normalizeThinkingBudget(budget int64) int64 {
	if budget <= 0 {
		budget = thinkingDefaultBudgetTokens
	}
	if budget > thinkingMaxBudgetTokens {
		budget = thinkingMaxBudgetTokens
	}
	return budget
}

// thinkingPrefix renders the system-prompt prefix that switches the model
// into tagged-thinking mode.
func thinkingPrefix(thinking gjson.Result) string {
	if thinking.Get("type").String() != "enabled" {
		return ""
	}
	budget := normalizeThinkingBudget(thinking.Get("budget_tokens").Int())
	return fmt.Sprintf("%senabled%s%s%d%s",
		thinkingModeTag, strings.Replace(thinkingModeTag, "<", "</", 1),
		thinkingMaxLenTag, budget, strings.Replace(thinkingMaxLenTag, "<", "</", 1))
}

func hasThinkingPrefix(text string) bool {
	return strings.Contains(text, thinkingModeTag) || strings.Contains(text, thinkingMaxLenTag)
}

// BuildRequest assembles the conversationState envelope from an Anthropic
// messages request body.
func BuildRequest(body []byte, model string) map[string]interface{} {
	req := gjson.ParseBytes(body)
	kiroModel := MappedModel(model)

	systemPrompt := systemText(req.Get("system"))
	if prefix := thinkingPrefix(req.Get("thinking")); prefix != "" {
		if systemPrompt == "" {
			systemPrompt = prefix
		} else if !hasThinkingPrefix(systemPrompt) {
			systemPrompt = prefix + "\n" + systemPrompt
		}
	}

	conv := ConvertAnthropicMessages(req.Get("messages"), systemPrompt)
	if tools := req.Get("tools"); tools.Exists() {
		conv.Tools = ConvertAnthropicTools(tools)
	}

	currentMessage := map[string]interface{}{
		"userInputMessage": map[string]interface{}{
			"content": conv.UserContent,
			"modelId": kiroModel,
			"origin":  originAIEditor,
		},
	}
	attachUserImages(currentMessage, conv.Images)

	request := map[string]interface{}{
		"conversationState": map[string]interface{}{
			"chatTriggerType": "MANUAL",
			"conversationId":  uuid.NewString(),
			"currentMessage":  currentMessage,
		},
	}
	if len(conv.History) > 0 {
		request["conversationState"].(map[string]interface{})["history"] = conv.History
	}
	if len(conv.ToolResults) > 0 || len(conv.Tools) > 0 {
		context := map[string]interface{}{}
		if len(conv.ToolResults) > 0 {
			context["toolResults"] = toInterfaceSlice(conv.ToolResults)
		}
		if len(conv.Tools) > 0 {
			context["tools"] = toInterfaceSlice(conv.Tools)
		}
		currentMessage["userInputMessage"].(map[string]interface{})["userInputMessageContext"] = context
	}
	return request
}

func estimateInputTokens(body []byte, model string) int {
	req := gjson.ParseBytes(body)
	return tokenizer.CountMessages(req.Get("messages"), systemText(req.Get("system")), req.Get("tools"), "claude-"+model)
}

// ChatOptions carries the per-call account context.
type ChatOptions struct {
	AccountID       int64
	CredentialsJSON string
	MachineID       string
}

// ChatStream issues the upstream call and returns an Anthropic-format SSE
// stream. A 403 triggers one credential refresh and retry.
func (p *Provider) ChatStream(ctx context.Context, model string, body []byte, opts ChatOptions) (io.ReadCloser, error) {
	creds, err := ParseCredentials(opts.CredentialsJSON)
	if err != nil {
		return nil, err
	}

	if err := p.ensureValidToken(ctx, creds, opts.AccountID); err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("missing accessToken in credentials")
	}

	requestData := BuildRequest(body, model)
	payload := map[string]interface{}{}
	for k, v := range requestData {
		payload[k] = v
	}
	if creds.ProfileArn != "" {
		payload["profileArn"] = creds.ProfileArn
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, baseURL(creds.Region), creds.AccessToken, opts.MachineID, encoded)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden && creds.canRefresh() {
		resp.Body.Close()
		result, rerr := refreshToken(ctx, p.client, creds)
		if rerr != nil {
			return nil, fmt.Errorf("upstream 403 and refresh failed: %w", rerr)
		}
		creds.apply(result)
		p.persistCredentials(ctx, opts.AccountID, creds)
		resp, err = p.post(ctx, baseURL(creds.Region), creds.AccessToken, opts.MachineID, encoded)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		log.WithFields(log.Fields{"status": resp.StatusCode, "body": string(errBody)}).Error("Kiro API error")
		return nil, fmt.Errorf("kiro API error: %d", resp.StatusCode)
	}

	thinkingRequested := gjson.GetBytes(body, "thinking.type").String() == "enabled"
	inputTokens := estimateInputTokens(body, model)

	pr, pw := io.Pipe()
	go p.pump(ctx, resp.Body, pw, model, thinkingRequested, inputTokens, opts.AccountID)
	return pr, nil
}

func (p *Provider) post(ctx context.Context, url, accessToken, machineID string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = buildHeaders(accessToken, machineID)
	return p.client.Do(req)
}

func (p *Provider) ensureValidToken(ctx context.Context, creds *Credentials, accountID int64) error {
	needRefresh := (creds.Expired(time.Now()) || creds.AccessToken == "") && creds.canRefresh()
	if !needRefresh {
		return nil
	}
	log.Info("Kiro access token expired, refreshing")
	result, err := refreshToken(ctx, p.client, creds)
	if err != nil {
		return err
	}
	creds.apply(result)
	p.persistCredentials(ctx, accountID, creds)
	return nil
}

func (p *Provider) persistCredentials(ctx context.Context, accountID int64, creds *Credentials) {
	if p.persist == nil || accountID == 0 {
		return
	}
	if err := p.persist(ctx, accountID, creds.Marshal()); err != nil {
		log.WithError(err).WithField("account_id", accountID).Warn("Failed to persist refreshed credentials")
	}
}

// pump reads the upstream event stream, assembles Anthropic SSE events and
// writes them to w.
func (p *Provider) pump(ctx context.Context, upstream io.ReadCloser, w *io.PipeWriter, model string, thinkingRequested bool, inputTokens int, accountID int64) {
	defer upstream.Close()

	asm := NewStreamAssembler()
	writeEvent := func(ev SSEEvent) error {
		data, err := json.Marshal(map[string]interface{}(ev))
		if err != nil {
			return err
		}
		evType, _ := ev["type"].(string)
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evType, data)
		return err
	}
	writeAll := func(events []SSEEvent) error {
		for _, ev := range events {
			if err := writeEvent(ev); err != nil {
				return err
			}
		}
		return nil
	}

	start := SSEEvent{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":      "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
			"type":    "message",
			"role":    "assistant",
			"model":   model,
			"content": []interface{}{},
			"usage": map[string]interface{}{
				"input_tokens":                inputTokens,
				"output_tokens":               0,
				"cache_creation_input_tokens": 0,
				"cache_read_input_tokens":     0,
			},
		},
	}
	if err := writeEvent(start); err != nil {
		w.CloseWithError(err)
		return
	}

	var usageDelta float64
	buffer := ""
	chunk := make([]byte, 32*1024)

	for {
		n, rerr := upstream.Read(chunk)
		if n > 0 {
			buffer += string(chunk[:n])
			events, remaining := ParseEventBuffer(buffer)
			buffer = remaining

			for _, ev := range events {
				switch ev.Type {
				case EventContent:
					if err := writeAll(asm.ProcessContent(ev.Content, thinkingRequested)); err != nil {
						w.CloseWithError(err)
						return
					}
				case EventToolUse:
					asm.ProcessToolUse(ev)
				case EventToolUseInput:
					asm.ProcessToolUseInput(ev.Input)
				case EventToolUseStop:
					asm.ProcessToolUseStop(ev.Stop)
				case EventUsage:
					unit := strings.ToLower(ev.Unit)
					unitPlural := strings.ToLower(ev.UnitPlural)
					if unit == "credit" || unitPlural == "credits" {
						usageDelta = ev.Usage
					}
				}
			}
		}
		if rerr != nil {
			break
		}
	}

	if err := writeAll(asm.FinalizeThinkingBuffer(thinkingRequested)); err != nil {
		w.CloseWithError(err)
		return
	}
	if err := writeAll(asm.StopTextBlock()); err != nil {
		w.CloseWithError(err)
		return
	}
	if err := writeAll(asm.FinalizeToolCalls()); err != nil {
		w.CloseWithError(err)
		return
	}

	outputTokens := tokenizer.EstimateText(asm.TotalContent(), tokenizer.ProviderClaude)

	if p.credit != nil && accountID != 0 && usageDelta > 0 {
		p.credit(ctx, accountID, usageDelta)
	}

	delta := SSEEvent{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": asm.StopReason()},
		"usage": map[string]interface{}{
			"input_tokens":                inputTokens,
			"output_tokens":               outputTokens,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     0,
		},
	}
	if err := writeEvent(delta); err != nil {
		w.CloseWithError(err)
		return
	}
	if err := writeEvent(SSEEvent{"type": "message_stop"}); err != nil {
		w.CloseWithError(err)
		return
	}
	w.Close()
}

// UsageLimits queries the account's credit usage.
func (p *Provider) UsageLimits(ctx context.Context, credentialsJSON string, accountID int64) (used, limit int, err error) {
	creds, err := ParseCredentials(credentialsJSON)
	if err != nil {
		return 0, 0, err
	}
	if err := p.ensureValidToken(ctx, creds, accountID); err != nil {
		return 0, 0, err
	}
	if creds.AccessToken == "" {
		return 0, 0, fmt.Errorf("missing access token")
	}

	data, err := p.requestUsageLimits(ctx, creds)
	if err != nil && strings.Contains(err.Error(), "403") && creds.canRefresh() {
		result, rerr := refreshToken(ctx, p.client, creds)
		if rerr == nil {
			creds.apply(result)
			p.persistCredentials(ctx, accountID, creds)
			data, err = p.requestUsageLimits(ctx, creds)
		}
	}
	if err != nil {
		return 0, 0, err
	}
	used, limit = ExtractPoints(data)
	return used, limit, nil
}

func (p *Provider) requestUsageLimits(ctx context.Context, creds *Credentials) ([]byte, error) {
	usageURL := strings.Replace(baseURL(creds.Region), "generateAssistantResponse", "getUsageLimits", 1)
	params := url.Values{}
	params.Set("isEmailRequired", "true")
	params.Set("origin", originAIEditor)
	params.Set("resourceType", usageResourceType)
	if creds.ProfileArn != "" {
		params.Set("profileArn", creds.ProfileArn)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, usageURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = buildHeaders(creds.AccessToken, "")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage limits error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ExtractPoints pulls (used, limit) credit counts out of a usage limits
// response, preferring the agentic-request breakdown.
func ExtractPoints(data []byte) (int, int) {
	parsed := gjson.ParseBytes(data)
	if !parsed.Exists() {
		return 0, 0
	}

	if parsed.Get("usedCount").Exists() && parsed.Get("limitCount").Exists() {
		return int(parsed.Get("usedCount").Int()), int(parsed.Get("limitCount").Int())
	}

	breakdowns := parsed.Get("usageBreakdownList").Array()
	var candidate gjson.Result
	for _, item := range breakdowns {
		if item.Get("resourceType").String() == usageResourceType {
			candidate = item
			break
		}
	}
	if !candidate.Exists() {
		for _, item := range breakdowns {
			if strings.Contains(strings.ToLower(item.Get("displayName").String()), "agent") {
				candidate = item
				break
			}
		}
	}
	if !candidate.Exists() && len(breakdowns) > 0 {
		candidate = breakdowns[0]
	}
	if !candidate.Exists() {
		return 0, 0
	}

	floatField := func(obj gjson.Result, precise, plain string) float64 {
		if v := obj.Get(precise); v.Exists() {
			return v.Float()
		}
		return obj.Get(plain).Float()
	}

	used := floatField(candidate, "currentUsageWithPrecision", "currentUsage")
	limit := floatField(candidate, "usageLimitWithPrecision", "usageLimit")

	if ft := candidate.Get("freeTrialInfo"); ft.Exists() {
		used += floatField(ft, "currentUsageWithPrecision", "currentUsage")
		limit += floatField(ft, "usageLimitWithPrecision", "usageLimit")
	}
	return int(used), int(limit)
}
