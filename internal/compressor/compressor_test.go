package compressor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeSummarizer struct {
	summary string
	err     error
	prompts []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, history string) (string, error) {
	f.prompts = append(f.prompts, history)
	return f.summary, f.err
}

func msgs(raw string) []byte { return []byte(raw) }

func TestCompressDisabledPassthrough(t *testing.T) {
	c := New(Config{Enabled: false}, nil)
	in := msgs(`[{"role":"user","content":"hi"}]`)
	res := c.CompressIfNeeded(context.Background(), in, "gpt-4")
	assert.False(t, res.Compressed)
	assert.Equal(t, in, res.Messages)
}

func TestCompressBelowThresholdPassthrough(t *testing.T) {
	c := New(Config{Enabled: true, Threshold: 8000}, nil)
	in := msgs(`[{"role":"user","content":"short question"}]`)
	res := c.CompressIfNeeded(context.Background(), in, "gpt-4")
	assert.False(t, res.Compressed)
	assert.Equal(t, res.OriginalTokens, res.CompressedTokens)
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", words/5+1))
}

func buildLongConversation() []byte {
	long := longText(2000)
	raw := `[{"role":"system","content":"be helpful"}`
	for i := 0; i < 10; i++ {
		raw += `,{"role":"user","content":"` + long + `"}`
		raw += `,{"role":"assistant","content":"` + long + `"}`
	}
	raw += `,{"role":"user","content":"final question"}]`
	return []byte(raw)
}

func TestSlidingWindowCompression(t *testing.T) {
	c := New(Config{Enabled: true, Threshold: 100, Target: 4000}, nil)
	res := c.CompressIfNeeded(context.Background(), buildLongConversation(), "gpt-4")
	require.True(t, res.Compressed)
	assert.Less(t, res.CompressedTokens, res.OriginalTokens)

	parsed := gjson.ParseBytes(res.Messages).Array()
	require.NotEmpty(t, parsed)
	assert.Equal(t, "system", parsed[0].Get("role").String(), "system prompt survives")
	last := parsed[len(parsed)-1]
	assert.Equal(t, "user", last.Get("role").String())
	assert.Equal(t, "final question", last.Get("content").String())
}

func TestSlidingWindowKeepsLastUserEvenOverBudget(t *testing.T) {
	huge := longText(9000)
	in := []byte(`[{"role":"user","content":"` + huge + `"}]`)
	out := slidingWindowCompress(in, 10, "gpt-4")
	parsed := gjson.ParseBytes(out).Array()
	require.Len(t, parsed, 1)
	assert.Equal(t, "user", parsed[0].Get("role").String())
}

func TestSlidingWindowNoUserMessage(t *testing.T) {
	in := msgs(`[{"role":"assistant","content":"hello"}]`)
	out := slidingWindowCompress(in, 4000, "gpt-4")
	assert.Equal(t, in, out)
}

func TestCleanSequenceDropsLeadingAssistant(t *testing.T) {
	in := gjson.Parse(`[
		{"role":"assistant","content":"orphan"},
		{"role":"user","content":"q"},
		{"role":"assistant","content":"a"},
		{"role":"user","content":"q2"}
	]`).Array()

	out := cleanSequence(in)
	require.Len(t, out, 3)
	assert.Equal(t, "user", out[0].Get("role").String())
	assert.Equal(t, "user", out[len(out)-1].Get("role").String())
}

func TestCleanSequenceSkipsRepeatedRoles(t *testing.T) {
	in := gjson.Parse(`[
		{"role":"user","content":"a"},
		{"role":"user","content":"b"},
		{"role":"assistant","content":"c"},
		{"role":"user","content":"d"}
	]`).Array()

	out := cleanSequence(in)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Get("content").String())
}

func TestCleanSequenceStripsUnmatchedToolUse(t *testing.T) {
	in := gjson.Parse(`[
		{"role":"user","content":"q"},
		{"role":"assistant","content":[{"type":"text","text":"calling"},{"type":"tool_use","id":"t1","name":"f","input":{}}]},
		{"role":"user","content":"plain follow-up"}
	]`).Array()

	out := cleanSequence(in)
	require.Len(t, out, 3)
	assert.False(t, hasBlockType(out[1], "tool_use"), "orphaned tool_use must be removed")
	assert.True(t, hasBlockType(out[1], "text"))
}

func TestCleanSequenceStripsUnmatchedToolResult(t *testing.T) {
	in := gjson.Parse(`[
		{"role":"user","content":"q"},
		{"role":"assistant","content":"plain answer"},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"out"},{"type":"text","text":"next"}]}
	]`).Array()

	out := cleanSequence(in)
	require.Len(t, out, 3)
	assert.False(t, hasBlockType(out[2], "tool_result"))
}

func TestSummaryCompression(t *testing.T) {
	sum := &fakeSummarizer{summary: "用户讨论了部署问题"}
	c := New(Config{Enabled: true, Threshold: 100, Target: 4000, Strategy: StrategySummary}, sum)

	res := c.CompressIfNeeded(context.Background(), buildLongConversation(), "gpt-4")
	require.True(t, res.Compressed)

	parsed := gjson.ParseBytes(res.Messages).Array()
	require.Len(t, parsed, 3) // system + summary + final user message
	assert.Equal(t, "system", parsed[0].Get("role").String())
	assert.True(t, strings.HasPrefix(parsed[1].Get("content").String(), summaryPrefix))
	assert.Contains(t, parsed[1].Get("content").String(), "部署问题")
	assert.Equal(t, "final question", parsed[2].Get("content").String())

	require.Len(t, sum.prompts, 1)
	assert.Contains(t, sum.prompts[0], "对话历史")
}

func TestSummaryFallsBackOnError(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("upstream down")}
	c := New(Config{Enabled: true, Threshold: 100, Target: 4000, Strategy: StrategySummary}, sum)

	res := c.CompressIfNeeded(context.Background(), buildLongConversation(), "gpt-4")
	require.True(t, res.Compressed)

	parsed := gjson.ParseBytes(res.Messages).Array()
	last := parsed[len(parsed)-1]
	assert.Equal(t, "final question", last.Get("content").String(), "sliding window fallback keeps last user message")
}

func TestSummaryWithoutSummarizerFallsBack(t *testing.T) {
	c := New(Config{Enabled: true, Threshold: 100, Target: 4000, Strategy: StrategySummary}, nil)
	res := c.CompressIfNeeded(context.Background(), buildLongConversation(), "gpt-4")
	assert.True(t, res.Compressed)
}

func TestHybridCompression(t *testing.T) {
	sum := &fakeSummarizer{summary: "older context"}
	c := New(Config{Enabled: true, Threshold: 100, Target: 4000, Strategy: StrategyHybrid}, sum)

	res := c.CompressIfNeeded(context.Background(), buildLongConversation(), "gpt-4")
	require.True(t, res.Compressed)

	parsed := gjson.ParseBytes(res.Messages).Array()
	// system + summary + last four conversation messages
	require.Len(t, parsed, 6)
	assert.True(t, strings.HasPrefix(parsed[1].Get("content").String(), summaryPrefix))
	assert.Equal(t, "final question", parsed[5].Get("content").String())
}

func TestHybridShortConversationUntouched(t *testing.T) {
	sum := &fakeSummarizer{summary: "x"}
	c := New(Config{Enabled: true, Threshold: 1, Target: 4000, Strategy: StrategyHybrid}, sum)

	in := msgs(`[{"role":"user","content":"one"},{"role":"assistant","content":"two"}]`)
	res := c.CompressIfNeeded(context.Background(), in, "gpt-4")
	assert.Equal(t, in, res.Messages)
	assert.Empty(t, sum.prompts)
}

func TestFormatForSummaryToolResults(t *testing.T) {
	in := gjson.Parse(`[
		{"role":"user","content":"run it"},
		{"role":"assistant","content":[{"type":"text","text":"running"}]},
		{"role":"user","content":[{"type":"tool_result","content":"exit code 0"}]}
	]`).Array()

	out := formatForSummary(in)
	assert.Contains(t, out, "user: run it")
	assert.Contains(t, out, "assistant: running")
	assert.Contains(t, out, "[Tool Result: exit code 0...]")
}

func TestExtractTextFromBlocks(t *testing.T) {
	content := gjson.Parse(`[{"type":"text","text":"a"},{"type":"tool_result","content":[{"type":"text","text":"b"}]}]`)
	assert.Equal(t, "a b", extractText(content))
	assert.Equal(t, "plain", extractText(gjson.Parse(`"plain"`)))
}
