package kiro

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestParseCredentialsCamelAndSnake(t *testing.T) {
	camel, err := ParseCredentials(`{"accessToken":"at","refreshToken":"rt","clientId":"ci","clientSecret":"cs","region":"eu-west-1"}`)
	if err != nil {
		t.Fatal(err)
	}
	if camel.AccessToken != "at" || camel.Region != "eu-west-1" {
		t.Errorf("camel: %+v", camel)
	}

	snake, err := ParseCredentials(`{"access_token":"at2","refresh_token":"rt2","client_id":"ci2","client_secret":"cs2"}`)
	if err != nil {
		t.Fatal(err)
	}
	if snake.AccessToken != "at2" || snake.RefreshToken != "rt2" {
		t.Errorf("snake: %+v", snake)
	}
	if snake.Region != DefaultRegion {
		t.Errorf("region default = %q", snake.Region)
	}

	if _, err := ParseCredentials("not json"); err == nil {
		t.Error("invalid JSON must error")
	}
}

func TestCredentialsExpired(t *testing.T) {
	now := time.Now()

	fresh := &Credentials{RefreshedAt: now.Unix(), ExpiresIn: 3600}
	if fresh.Expired(now) {
		t.Error("fresh token should not be expired")
	}

	// inside the 60s safety margin
	closing := &Credentials{RefreshedAt: now.Unix() - 3570, ExpiresIn: 3600}
	if !closing.Expired(now) {
		t.Error("token within 60s of expiry counts as expired")
	}

	unknown := &Credentials{}
	if !unknown.Expired(now) {
		t.Error("credentials without bookkeeping count as expired")
	}

	// expiresAt fallback
	viaExpiresAt := &Credentials{
		ExpiresAt: now.Add(2 * time.Hour).UTC().Format(time.RFC3339),
		ExpiresIn: 3600,
	}
	if viaExpiresAt.Expired(now) {
		t.Error("future expiresAt should not be expired")
	}
}

func TestBuildRequestEnvelope(t *testing.T) {
	body := []byte(`{
		"model":"claude-sonnet-4-5",
		"system":"Be kind.",
		"messages":[
			{"role":"user","content":"first"},
			{"role":"assistant","content":"ok"},
			{"role":"user","content":"second"}
		]
	}`)
	req := BuildRequest(body, "claude-sonnet-4-5")
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	parsed := gjson.ParseBytes(raw)

	if parsed.Get("conversationState.chatTriggerType").String() != "MANUAL" {
		t.Error("chatTriggerType missing")
	}
	if parsed.Get("conversationState.conversationId").String() == "" {
		t.Error("conversationId missing")
	}
	current := parsed.Get("conversationState.currentMessage.userInputMessage")
	if current.Get("content").String() != "second" {
		t.Errorf("current content = %q", current.Get("content").String())
	}
	if current.Get("modelId").String() != "CLAUDE_SONNET_4_5_20250929_V1_0" {
		t.Errorf("modelId = %q", current.Get("modelId").String())
	}
	if current.Get("origin").String() != "AI_EDITOR" {
		t.Errorf("origin = %q", current.Get("origin").String())
	}
	history := parsed.Get("conversationState.history").Array()
	if len(history) != 2 {
		t.Fatalf("history = %d entries", len(history))
	}
	if !strings.HasPrefix(history[0].Get("userInputMessage.content").String(), "Be kind.\n\n") {
		t.Error("system prompt not folded into history")
	}
}

func TestBuildRequestThinkingPrefix(t *testing.T) {
	body := []byte(`{
		"system":"sys",
		"thinking":{"type":"enabled","budget_tokens":50000},
		"messages":[{"role":"user","content":"hi"}]
	}`)
	req := BuildRequest(body, "claude-sonnet-4-5")
	raw, _ := json.Marshal(req)
	content := gjson.GetBytes(raw, "conversationState.currentMessage.userInputMessage.content").String()

	if !strings.Contains(content, "<thinking_mode>enabled</thinking_mode>") {
		t.Errorf("thinking mode tag missing: %q", content)
	}
	// budget capped at the maximum
	if !strings.Contains(content, "<max_thinking_length>24576</max_thinking_length>") {
		t.Errorf("budget not capped: %q", content)
	}
}

func TestThinkingPrefixDefaults(t *testing.T) {
	prefix := thinkingPrefix(gjson.Parse(`{"type":"enabled"}`))
	if !strings.Contains(prefix, "<max_thinking_length>20000</max_thinking_length>") {
		t.Errorf("default budget: %q", prefix)
	}
	if thinkingPrefix(gjson.Parse(`{"type":"disabled"}`)) != "" {
		t.Error("disabled thinking must produce no prefix")
	}
}

func TestMappedModel(t *testing.T) {
	if MappedModel("claude-sonnet-4-5-20250929") != "CLAUDE_SONNET_4_5_20250929_V1_0" {
		t.Error("mapping failed")
	}
	if MappedModel("unknown-model") != "unknown-model" {
		t.Error("unknown models pass through")
	}
}

func TestExtractPoints(t *testing.T) {
	t.Run("direct counts", func(t *testing.T) {
		used, limit := ExtractPoints([]byte(`{"usedCount":10,"limitCount":500}`))
		if used != 10 || limit != 500 {
			t.Errorf("got %d/%d", used, limit)
		}
	})

	t.Run("breakdown with free trial", func(t *testing.T) {
		data := []byte(`{"usageBreakdownList":[
			{"resourceType":"AGENTIC_REQUEST","currentUsageWithPrecision":12.5,"usageLimitWithPrecision":100,
			 "freeTrialInfo":{"currentUsage":2,"usageLimit":50}}
		]}`)
		used, limit := ExtractPoints(data)
		if used != 14 || limit != 150 {
			t.Errorf("got %d/%d", used, limit)
		}
	})

	t.Run("display name fallback", func(t *testing.T) {
		data := []byte(`{"usageBreakdownList":[
			{"resourceType":"OTHER","displayName":"Chat"},
			{"resourceType":"OTHER","displayName":"Agent requests","currentUsage":3,"usageLimit":10}
		]}`)
		used, limit := ExtractPoints(data)
		if used != 3 || limit != 10 {
			t.Errorf("got %d/%d", used, limit)
		}
	})

	t.Run("empty", func(t *testing.T) {
		used, limit := ExtractPoints([]byte(`{}`))
		if used != 0 || limit != 0 {
			t.Errorf("got %d/%d", used, limit)
		}
	})
}

func TestBuildHeaders(t *testing.T) {
	h := buildHeaders("tok", "machine123")
	if h.Get("Authorization") != "Bearer tok" {
		t.Errorf("auth = %q", h.Get("Authorization"))
	}
	if h.Get("amz-sdk-request") != "attempt=1; max=1" {
		t.Errorf("amz-sdk-request = %q", h.Get("amz-sdk-request"))
	}
	if h.Get("x-amzn-kiro-agent-mode") != "vibe" {
		t.Errorf("agent mode = %q", h.Get("x-amzn-kiro-agent-mode"))
	}
	if !strings.Contains(h.Get("x-amz-user-agent"), "KiroIDE-0.8.140-machine123") {
		t.Errorf("user agent = %q", h.Get("x-amz-user-agent"))
	}
	if h.Get("amz-sdk-invocation-id") == "" {
		t.Error("invocation id missing")
	}
}
