package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzheng/digitalmemory/internal/store"
)

// stubEmbedder returns a fixed vector regardless of input text, so
// vector-pass ordering in these tests is driven entirely by the
// vectors seeded into the index, not by embedding content.
type stubEmbedder struct{ vec []float32 }

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return s.vec, nil }
func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}
func (s stubEmbedder) Dimensions() int   { return len(s.vec) }
func (s stubEmbedder) ModelName() string { return "stub" }
func (s stubEmbedder) Close() error      { return nil }

func buildSnapshot(t *testing.T, chunks []store.SubChunk, vecs [][]float32) *store.Handle {
	idx := store.NewFlatL2Index()
	_, err := idx.Add(vecs)
	require.NoError(t, err)
	h := store.NewHandle()
	h.Publish(&store.Snapshot{Index: idx, Metadata: chunks})
	return h
}

func TestSearch_ExactSubstringReturnsKeywordHitFirst(t *testing.T) {
	chunks := []store.SubChunk{
		{ID: "voice_20240101", Source: "voice", Date: "2024-01-01", Content: "今天见了 张三，聊了项目。"},
	}
	for i := 0; i < 50; i++ {
		chunks = append(chunks, store.SubChunk{
			ID: store.SubChunkID("rec", i), Source: "voice", Date: "2024-01-02",
			Content: "一段普通的日记内容，没有提到那个名字。",
		})
	}
	vecs := make([][]float32, len(chunks))
	for i := range vecs {
		vecs[i] = []float32{float32(i), 0}
	}
	handle := buildSnapshot(t, chunks, vecs)

	r := New(handle, stubEmbedder{vec: []float32{0, 0}}, nil)
	hits, err := r.Search(context.Background(), "张三", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "voice_20240101", hits[0].ID)
	assert.Equal(t, OriginKeyword, hits[0].Origin)
	assert.Equal(t, float32(0.0), hits[0].Distance)
}

func TestSearch_DateFilterPresentAndNonEmptyDoesNotRelax(t *testing.T) {
	chunks := []store.SubChunk{
		{ID: "a", Source: "voice", Date: "2024-06-15", Content: "内心的小孩 名字是小明"},
	}
	handle := buildSnapshot(t, chunks, [][]float32{{1, 0}})

	r := New(handle, stubEmbedder{vec: []float32{1, 0}}, nil)
	r.Clock = func() time.Time { return time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC) }

	hits, err := r.Search(context.Background(), "内心的小孩 名字", "2024-06", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestSearch_EmptyDatedResultRelaxesOnce(t *testing.T) {
	chunks := []store.SubChunk{
		{ID: "old", Source: "voice", Date: "2024-01-01", Content: "内心的小孩 名字是小明"},
	}
	handle := buildSnapshot(t, chunks, [][]float32{{1, 0}})

	r := New(handle, stubEmbedder{vec: []float32{1, 0}}, nil)
	r.Clock = func() time.Time { return time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC) }

	hits, err := r.Search(context.Background(), "内心的小孩 名字", "2024-06", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "relaxation should surface the 2024-01-01 record")
	assert.Equal(t, "old", hits[0].ID)
}

func TestSearch_NoRecordSentinelWhenNothingFound(t *testing.T) {
	handle := buildSnapshot(t, nil, nil)
	r := New(handle, stubEmbedder{vec: []float32{1, 0}}, nil)

	hits, err := r.Search(context.Background(), "不存在的内容query", "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, NoRecordSentinel, Envelope(hits))
}

func TestAdaptedK_FollowsFilterKindTable(t *testing.T) {
	assert.Equal(t, 5, adaptedK("", 5, 1000))
	assert.Equal(t, 3, adaptedK("", 5, 3))
	assert.Equal(t, 1000, adaptedK("2024-01-01", 5, 5000))
	assert.Equal(t, 500, adaptedK("2024-01-上旬", 5, 5000))
	assert.Equal(t, 250, adaptedK("last_week", 5, 5000))
}

func TestCleanse_GenericQueryBypassesCoreTokenCheck(t *testing.T) {
	hits := []Hit{
		{ID: "voice_1", Source: "voice", Content: "无关内容完全不同"},
	}
	out := cleanse("最近", hits)
	assert.Len(t, out, 1, "generic query should bypass the core-token check for voice-authored hits")
}

func TestCleanse_NonVoiceHitsMustContainCoreToken(t *testing.T) {
	hits := []Hit{
		{ID: "a", Source: "import", Content: "完全不相关的内容"},
		{ID: "b", Source: "import", Content: "提到了张三的内容"},
	}
	out := cleanse("张三", hits)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}
