package kiro

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

const pngBytes = "iVBORw0KGgoAAAANSUhEUg=="

func userImages(entry map[string]interface{}) []interface{} {
	user, ok := entry["userInputMessage"].(map[string]interface{})
	if !ok {
		return nil
	}
	images, _ := user["images"].([]interface{})
	return images
}

func TestConvertAnthropicImageBlocks(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"user","content":[
			{"type":"text","text":"what is in this picture?"},
			{"type":"image","source":{"type":"base64","media_type":"image/png","data":"` + pngBytes + `"}}
		]}
	]`)
	conv := ConvertAnthropicMessages(messages, "")

	if conv.UserContent != "what is in this picture?" {
		t.Errorf("user content = %q", conv.UserContent)
	}
	if len(conv.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(conv.Images))
	}
	img := conv.Images[0]
	if img["format"] != "png" {
		t.Errorf("format = %v", img["format"])
	}
	if img["source"].(map[string]interface{})["bytes"] != pngBytes {
		t.Error("image bytes lost in conversion")
	}
}

func TestConvertOpenAIImageDataURL(t *testing.T) {
	messages := gjson.Parse(`[
		{"role":"user","content":[
			{"type":"text","text":"describe"},
			{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,` + pngBytes + `"}},
			{"type":"image_url","image_url":{"url":"https://example.com/remote.png"}}
		]}
	]`)
	conv := ConvertOpenAIMessages(messages, "claude-sonnet-4", gjson.Result{}, gjson.Result{})

	// remote URLs carry no bytes and are skipped
	if len(conv.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(conv.Images))
	}
	if conv.Images[0]["format"] != "jpeg" {
		t.Errorf("format = %v", conv.Images[0]["format"])
	}
}

func TestConvertGeminiInlineDataImage(t *testing.T) {
	contents := gjson.Parse(`[
		{"role":"user","parts":[
			{"text":"look"},
			{"inlineData":{"mimeType":"image/webp","data":"` + pngBytes + `"}}
		]}
	]`)
	conv := ConvertGeminiContents(contents, gjson.Result{}, "claude-sonnet-4", gjson.Result{}, gjson.Result{})

	if len(conv.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(conv.Images))
	}
	if conv.Images[0]["format"] != "webp" {
		t.Errorf("format = %v", conv.Images[0]["format"])
	}
}

func TestHistoryImagesKeptOnRecentTurns(t *testing.T) {
	// Image sits in the second-to-last user turn: well inside the recent
	// window, so it must survive conversion.
	messages := gjson.Parse(`[
		{"role":"user","content":[
			{"type":"text","text":"first look"},
			{"type":"image","source":{"media_type":"image/png","data":"` + pngBytes + `"}}
		]},
		{"role":"assistant","content":"a cat"},
		{"role":"user","content":"and now?"}
	]`)
	conv := ConvertAnthropicMessages(messages, "")

	if len(conv.History) != 2 {
		t.Fatalf("history length = %d", len(conv.History))
	}
	if len(userImages(conv.History[0])) != 1 {
		t.Error("recent history turn lost its images")
	}
}

func TestHistoryImagesPrunedWithPlaceholder(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`[{"role":"user","content":[
		{"type":"text","text":"oldest"},
		{"type":"image","source":{"media_type":"image/png","data":"` + pngBytes + `"}},
		{"type":"image","source":{"media_type":"image/png","data":"` + pngBytes + `"}}
	]}`)
	for i := 0; i < 3; i++ {
		sb.WriteString(`,{"role":"assistant","content":"ok"},{"role":"user","content":"more"}`)
	}
	sb.WriteString(`,{"role":"assistant","content":"ok"},{"role":"user","content":"latest"}]`)

	conv := ConvertAnthropicMessages(gjson.Parse(sb.String()), "")

	first := conv.History[0]["userInputMessage"].(map[string]interface{})
	if _, ok := first["images"]; ok {
		t.Error("images older than the recent window must be dropped")
	}
	content := first["content"].(string)
	if !strings.Contains(content, "[此消息包含 2 张图片，已在历史记录中省略]") {
		t.Errorf("placeholder missing, content = %q", content)
	}
	if !strings.HasPrefix(content, "oldest") {
		t.Errorf("original text must survive, content = %q", content)
	}
}

func TestBuildRequestCarriesImages(t *testing.T) {
	body := `{
		"model":"claude-sonnet-4",
		"messages":[{"role":"user","content":[
			{"type":"text","text":"what is this?"},
			{"type":"image","source":{"media_type":"image/gif","data":"` + pngBytes + `"}}
		]}]
	}`
	req := BuildRequest([]byte(body), "claude-sonnet-4")

	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	img := gjson.GetBytes(raw, "conversationState.currentMessage.userInputMessage.images.0")
	if img.Get("format").String() != "gif" {
		t.Errorf("format = %q", img.Get("format").String())
	}
	if img.Get("source.bytes").String() != pngBytes {
		t.Error("image bytes missing from request")
	}
}
