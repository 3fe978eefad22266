package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction_CanonicalQuotedForm(t *testing.T) {
	text := `ACTION: SEARCH query="张三" date="2024-06"`
	a, ok := parseAction(text)
	require.True(t, ok)
	assert.Equal(t, "张三", a.Query)
	assert.Equal(t, "2024-06", a.Date)
}

func TestParseAction_NoneDateNormalizesToEmpty(t *testing.T) {
	text := `ACTION: SEARCH query="coffee" date="None"`
	a, ok := parseAction(text)
	require.True(t, ok)
	assert.Equal(t, "", a.Date)
}

func TestParseAction_UnquotedFallbackForm(t *testing.T) {
	text := `ACTION: SEARCH query=coffee date=yesterday`
	a, ok := parseAction(text)
	require.True(t, ok)
	assert.Equal(t, "coffee", a.Query)
	assert.Equal(t, "yesterday", a.Date)
}

func TestParseAction_QueryOnlyFallbackForm(t *testing.T) {
	text := `ACTION: SEARCH query="project update"`
	a, ok := parseAction(text)
	require.True(t, ok)
	assert.Equal(t, "project update", a.Query)
	assert.Equal(t, "", a.Date)
}

func TestParseAction_NoActionReturnsFalse(t *testing.T) {
	_, ok := parseAction("Sure, the weather today is nice.")
	assert.False(t, ok)
}

func TestWithTruncationNotice_AppendsApologyOnlyWhenTruncated(t *testing.T) {
	assert.Equal(t, "done", withTruncationNotice("done", false))
	assert.Contains(t, withTruncationNotice("partial", true), "cut off")
}

func TestSummarize_KeepsOnlyRecentTurns(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
		{Role: "user", Content: "five"},
	}
	out := summarize(history)
	assert.NotContains(t, out, "one")
	assert.Contains(t, out, "five")
}
