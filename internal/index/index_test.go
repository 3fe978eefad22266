package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzheng/digitalmemory/internal/chunk"
	"github.com/dzheng/digitalmemory/internal/embed"
	"github.com/dzheng/digitalmemory/internal/store"
)

// fakeEmbedder returns a deterministic vector keyed off text length so
// tests can assert on index contents without a real embedding backend.
type fakeEmbedder struct {
	failBatches map[int]bool
	calls       int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 2 }
func (f *fakeEmbedder) ModelName() string { return "fake-model" }
func (f *fakeEmbedder) Close() error      { return nil }

// failingEmbedder errors on every call, simulating an unreachable backend.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, assert.AnError
}
func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, assert.AnError
}
func (failingEmbedder) Dimensions() int   { return 0 }
func (failingEmbedder) ModelName() string { return "failing" }
func (failingEmbedder) Close() error      { return nil }

func newTestDeps(t *testing.T, embedder embed.Embedder) (Dependencies, *store.ChunkStore) {
	dir := t.TempDir()
	cs := store.NewChunkStore(filepath.Join(dir, "records.json"))
	return Dependencies{
		ChunkStore:   cs,
		Embedder:     embedder,
		Splitter:     chunk.NewSplitter(),
		Handle:       store.NewHandle(),
		IndexPath:    filepath.Join(dir, "index.gob"),
		MetadataPath: filepath.Join(dir, "metadata.json"),
		IndexedIDs:   filepath.Join(dir, "indexed_ids.json"),
		DirtyFlag:    filepath.Join(dir, "dirty.flag"),
		StatusPath:   filepath.Join(dir, "status.json"),
		BatchSize:    5,
	}, cs
}

func seedRecords(t *testing.T, cs *store.ChunkStore, n int) {
	for i := 0; i < n; i++ {
		require.NoError(t, cs.Append(store.Record{
			ID:      store.SubChunkID("rec", i),
			Source:  "voice",
			Date:    "2026-07-30",
			Content: "a short diary entry about the day",
		}))
	}
}

func TestFull_IndexesAllRecords(t *testing.T) {
	fe := &fakeEmbedder{}
	deps, cs := newTestDeps(t, fe)
	seedRecords(t, cs, 7)

	result, err := Full(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 7, result.RecordsRead)
	assert.Equal(t, 7, result.SubChunks)
	assert.Equal(t, 0, result.BatchesFailed)

	snap := deps.Handle.Load()
	assert.Equal(t, 7, snap.Index.NTotal())
	assert.Len(t, snap.Metadata, 7)

	st, err := store.LoadStatus(deps.StatusPath)
	require.NoError(t, err)
	assert.Equal(t, store.StateCompleted, st.State)
	assert.Equal(t, 100, st.Progress)
}

func TestFull_CatastrophicFailureLeavesExistingIndexIntact(t *testing.T) {
	fe := &fakeEmbedder{}
	deps, cs := newTestDeps(t, fe)
	seedRecords(t, cs, 3)

	_, err := Full(context.Background(), deps)
	require.NoError(t, err)

	before, err := store.LoadFlatL2Index(deps.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, 3, before.NTotal())

	deps.Embedder = failingEmbedder{}
	_, err = Full(context.Background(), deps)
	require.Error(t, err)

	after, err := store.LoadFlatL2Index(deps.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, 3, after.NTotal(), "existing on-disk index must survive a catastrophic failure")

	st, err := store.LoadStatus(deps.StatusPath)
	require.NoError(t, err)
	assert.Equal(t, store.StateFailed, st.State)
}

func TestFull_EmptyChunkStoreProducesEmptyIndex(t *testing.T) {
	fe := &fakeEmbedder{}
	deps, _ := newTestDeps(t, fe)

	result, err := Full(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RecordsRead)
	assert.Equal(t, 0, result.SubChunks)

	snap := deps.Handle.Load()
	assert.Equal(t, 0, snap.Index.NTotal())
}

func TestIncremental_OnlyEmbedsUnindexedSubChunks(t *testing.T) {
	fe := &fakeEmbedder{}
	deps, cs := newTestDeps(t, fe)
	seedRecords(t, cs, 4)

	_, err := Full(context.Background(), deps)
	require.NoError(t, err)
	callsAfterFull := fe.calls

	require.NoError(t, cs.Append(store.Record{
		ID:      "rec_new",
		Source:  "voice",
		Date:    "2026-07-31",
		Content: "a brand new entry not yet indexed",
	}))

	result, err := Incremental(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewSubChunks)
	assert.Equal(t, 5, result.NTotal)
	assert.Greater(t, fe.calls, callsAfterFull, "incremental run must call the embedder again for the new record")

	snap := deps.Handle.Load()
	assert.Equal(t, 5, snap.Index.NTotal())
	assert.Len(t, snap.Metadata, 5)
}

func TestIncremental_NoNewRecordsIsANoop(t *testing.T) {
	fe := &fakeEmbedder{}
	deps, cs := newTestDeps(t, fe)
	seedRecords(t, cs, 2)

	_, err := Full(context.Background(), deps)
	require.NoError(t, err)

	result, err := Incremental(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewSubChunks)
	assert.Equal(t, 2, result.NTotal)
}

func TestIncremental_BootstrapsFromMissingIndex(t *testing.T) {
	fe := &fakeEmbedder{}
	deps, cs := newTestDeps(t, fe)
	seedRecords(t, cs, 3)

	result, err := Incremental(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewSubChunks)
	assert.Equal(t, 3, result.NTotal)
}
