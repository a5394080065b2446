package tokenizer

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestDetectProvider(t *testing.T) {
	cases := []struct {
		model string
		want  Provider
	}{
		{"gemini-2.0-flash", ProviderGemini},
		{"claude-sonnet-4-5", ProviderClaude},
		{"gpt-4o", ProviderOpenAI},
		{"o1-preview", ProviderOpenAI},
		{"davinci-002", ProviderOpenAI},
		{"some-unknown-model", ProviderOpenAI},
	}
	for _, tc := range cases {
		if got := DetectProvider(tc.model); got != tc.want {
			t.Errorf("DetectProvider(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestEstimateTextEmpty(t *testing.T) {
	if got := EstimateText("", ProviderOpenAI); got != 0 {
		t.Errorf("empty text: got %d, want 0", got)
	}
}

func TestEstimateTextWordRuns(t *testing.T) {
	// a single letter run weighs once, regardless of length
	one := EstimateText("a", ProviderOpenAI)
	long := EstimateText("abcdefghij", ProviderOpenAI)
	if one != long {
		t.Errorf("letter run should weigh once: got %d vs %d", one, long)
	}
	// two words separated by a space weigh more than one word
	two := EstimateText("hello world", ProviderOpenAI)
	if two <= one {
		t.Errorf("two words (%d) should exceed one word (%d)", two, one)
	}
}

func TestEstimateTextDigitRuns(t *testing.T) {
	if EstimateText("1234567890", ProviderClaude) != EstimateText("1", ProviderClaude) {
		t.Error("digit run should weigh once")
	}
}

func TestEstimateTextClassSwitch(t *testing.T) {
	// ab12 starts a new unit at the digit boundary: word + number
	got := EstimateText("ab12", ProviderOpenAI)
	want := EstimateText("ab", ProviderOpenAI) + EstimateText("12", ProviderOpenAI)
	if got != want {
		t.Errorf("class switch: got %d, want %d", got, want)
	}
}

func TestEstimateTextCJK(t *testing.T) {
	// each CJK rune weighs individually (1.21 for claude); 3 runes -> ceil(3.63)=4
	if got := EstimateText("你好吗", ProviderClaude); got != 4 {
		t.Errorf("CJK claude: got %d, want 4", got)
	}
	// gemini weighs CJK 0.68; 3 runes -> ceil(2.04)=3
	if got := EstimateText("你好吗", ProviderGemini); got != 3 {
		t.Errorf("CJK gemini: got %d, want 3", got)
	}
}

func TestEstimateTextURLAndAt(t *testing.T) {
	url := EstimateText("https://example.com/a?b=c", ProviderOpenAI)
	if url == 0 {
		t.Fatal("url should produce tokens")
	}
	at := EstimateText("user@example.com", ProviderClaude)
	plain := EstimateText("userexample.com", ProviderClaude)
	if at <= plain {
		t.Errorf("@ should add weight: %d vs %d", at, plain)
	}
}

func TestEstimateTextProviderTables(t *testing.T) {
	// claude weighs math symbols 4.52, openai 2.68: a math-heavy string
	// must estimate higher for claude
	text := "∑∑∑∑"
	if EstimateText(text, ProviderClaude) <= EstimateText(text, ProviderOpenAI) {
		t.Error("claude math weight should exceed openai")
	}
}

func TestCountMessagesOverheads(t *testing.T) {
	messages := gjson.Parse(`[{"role":"user","content":"hi"}]`)
	got := CountMessages(messages, "", gjson.Result{}, "gpt-4")
	// list +3, message +3, "hi" -> ceil(1.02) = 2
	if got != 8 {
		t.Errorf("got %d, want 8", got)
	}
}

func TestCountMessagesName(t *testing.T) {
	without := CountMessages(gjson.Parse(`[{"role":"user","content":"hi"}]`), "", gjson.Result{}, "gpt-4")
	with := CountMessages(gjson.Parse(`[{"role":"user","content":"hi","name":"bob"}]`), "", gjson.Result{}, "gpt-4")
	if with-without != perNameOverhead {
		t.Errorf("name overhead: got %d, want %d", with-without, perNameOverhead)
	}
}

func TestCountMessagesImageParts(t *testing.T) {
	messages := gjson.Parse(`[{"role":"user","content":[{"type":"image_url","image_url":{"url":"data:..."}}]}]`)
	got := CountMessages(messages, "", gjson.Result{}, "gpt-4")
	if got != perListOverhead+perMessageOverhead+imageTokens {
		t.Errorf("image part: got %d", got)
	}
}

func TestCountMessagesDocumentParts(t *testing.T) {
	// 32 base64 chars decode to 24 bytes, priced at one token per four
	// bytes: ceil(0.75*32/4) = 6.
	data := "QUJDREVGR0hJSktMTU5PUFFSU1RVVldY"
	messages := gjson.Parse(`[{"role":"user","content":[{"type":"document","source":{"type":"base64","media_type":"application/pdf","data":"` + data + `"}}]}]`)
	got := CountMessages(messages, "", gjson.Result{}, "claude-3")
	if got != perListOverhead+perMessageOverhead+6 {
		t.Errorf("document part: got %d, want %d", got, perListOverhead+perMessageOverhead+6)
	}
}

func TestEstimateTextTabWeighsAsNewline(t *testing.T) {
	tab := EstimateText("a\tb", ProviderOpenAI)
	newline := EstimateText("a\nb", ProviderOpenAI)
	if tab != newline {
		t.Errorf("tab %d != newline %d", tab, newline)
	}
}

func TestCountMessagesTools(t *testing.T) {
	messages := gjson.Parse(`[{"role":"user","content":"hi"}]`)
	tools := gjson.Parse(`[{"name":"get_weather","description":"weather lookup"}]`)
	with := CountMessages(messages, "", tools, "gpt-4")
	without := CountMessages(messages, "", gjson.Result{}, "gpt-4")
	if with <= without+perToolOverhead {
		t.Errorf("tool should add overhead plus schema tokens: %d vs %d", with, without)
	}
}

func TestContentText(t *testing.T) {
	if got := ContentText(gjson.Parse(`"plain"`)); got != "plain" {
		t.Errorf("string content: got %q", got)
	}
	parts := gjson.Parse(`[{"type":"text","text":"a"},{"type":"image"},{"type":"text","text":"b"}]`)
	if got := ContentText(parts); got != "ab" {
		t.Errorf("parts content: got %q", got)
	}
}
