package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/dzheng/digitalmemory/internal/store"
)

func TestSplit_ShortContentPassesThroughUnchanged(t *testing.T) {
	s := NewSplitter()
	rec := store.Record{ID: "voice_1", Content: "今天见了张三，聊了项目。", Source: "voice", Date: "2024-01-01"}

	out := s.Split(rec)

	assert.Len(t, out, 1)
	assert.Equal(t, "voice_1", out[0].ID)
	assert.Equal(t, rec.Content, out[0].Content)
	assert.False(t, out[0].IsSplit())
	assert.Equal(t, "2024-01-01", out[0].Date)
}

func TestSplit_LongContentProducesNumberedParts(t *testing.T) {
	s := NewSplitter()
	long := strings.Repeat("这是一段很长的日记内容，记录今天发生的事情。", 80) // well over 600 runes
	rec := store.Record{ID: "voice_long", Content: long, Source: "voice"}

	out := s.Split(rec)

	assert.Greater(t, len(out), 1)
	for k, sc := range out {
		assert.Equal(t, store.SubChunkID("voice_long", k), sc.ID)
		assert.Equal(t, "voice_long", sc.OriginalID)
		assert.Equal(t, k, sc.SplitIndex)
		assert.Equal(t, len(out), sc.TotalSplits)
		assert.LessOrEqual(t, len([]rune(sc.Content)), DefaultChunkSize)
	}
}

func TestSplit_NullDateInherited(t *testing.T) {
	s := NewSplitter()
	rec := store.Record{ID: "voice_2", Content: "无日期的一条记录。", Source: "voice"}

	out := s.Split(rec)
	assert.Empty(t, out[0].Date)
}

func TestHardCut_CoversOriginalAccountingForOverlap(t *testing.T) {
	s := &Splitter{ChunkSize: 20, ChunkOverlap: 5}
	text := strings.Repeat("a", 100)
	windows := s.hardCut(text)

	assert.Greater(t, len(windows), 1)
	// reconstruct by stripping known overlap from every window after the first
	var rebuilt strings.Builder
	rebuilt.WriteString(windows[0])
	for _, w := range windows[1:] {
		if len(w) > s.ChunkOverlap {
			rebuilt.WriteString(w[s.ChunkOverlap:])
		}
	}
	assert.Equal(t, text, rebuilt.String())
}
