package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_StripsFillerWordsAndCollapsesWhitespace(t *testing.T) {
	in := "嗯   今天  啊  去了  那个   公园\n\n\n散步"
	out := Normalize(in)
	assert.NotContains(t, out, "嗯")
	assert.NotContains(t, out, "那个")
	assert.Equal(t, "今天 去了 公园\n\n散步", out)
}

func TestNormalize_LeavesCleanTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("hello world"))
}
