package rebuild

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzheng/digitalmemory/internal/chunk"
	"github.com/dzheng/digitalmemory/internal/index"
	"github.com/dzheng/digitalmemory/internal/store"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}
func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}
func (stubEmbedder) Dimensions() int   { return 2 }
func (stubEmbedder) ModelName() string { return "stub" }
func (stubEmbedder) Close() error      { return nil }

func newTestSupervisor(t *testing.T) (*Supervisor, *store.ChunkStore) {
	dir := t.TempDir()
	cs := store.NewChunkStore(filepath.Join(dir, "records.json"))
	deps := index.Dependencies{
		ChunkStore:   cs,
		Embedder:     stubEmbedder{},
		Splitter:     chunk.NewSplitter(),
		Handle:       store.NewHandle(),
		IndexPath:    filepath.Join(dir, "index.gob"),
		MetadataPath: filepath.Join(dir, "metadata.json"),
		IndexedIDs:   filepath.Join(dir, "indexed_ids.json"),
		DirtyFlag:    filepath.Join(dir, "dirty.flag"),
		StatusPath:   filepath.Join(dir, "status.json"),
		BatchSize:    5,
	}
	sup := New(deps, FullRebuildCommand{}, filepath.Join(dir, "rebuild.lock"), nil)
	return sup, cs
}

func TestTriggerIngest_SetsDirtyFlagAndRunsIncremental(t *testing.T) {
	sup, cs := newTestSupervisor(t)
	require.NoError(t, cs.Append(store.Record{ID: "rec_1", Source: "voice", Content: "a journal entry"}))

	require.NoError(t, sup.TriggerIngest(context.Background()))

	require.Eventually(t, func() bool { return !sup.IsRunning() }, 2*time.Second, 10*time.Millisecond)

	snap := sup.deps.Handle.Load()
	assert.Equal(t, 1, snap.Index.NTotal())
	assert.False(t, sup.dirtyFlag.IsSet(), "successful rebuild clears the dirty flag")
}

func TestTriggerManualRebuild_RefusesWhileRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	sup.mu.Lock()
	sup.running = true
	sup.mu.Unlock()

	err := sup.TriggerManualRebuild(context.Background())
	assert.Error(t, err)
}

func TestSubmit_NewTriggerWhileRunningReplacesPending(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	sup.mu.Lock()
	sup.running = true
	sup.pending = "incremental"
	sup.mu.Unlock()

	sup.submit(context.Background(), "full")

	sup.mu.Lock()
	defer sup.mu.Unlock()
	assert.Equal(t, "full", sup.pending, "a new trigger replaces the pending job, not the running one")
}

func TestBoundedWriter_CapsRetainedBytes(t *testing.T) {
	var buf bytes.Buffer
	w := &boundedWriter{buf: &buf, max: 5}
	n, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n, "Write must report the full length even when truncating internally")
	assert.Equal(t, "hello", buf.String())
}
