package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkStore_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	cs := NewChunkStore(path)

	require.NoError(t, cs.Append(Record{ID: "voice_1", Content: "hello", Source: "voice"}))
	require.NoError(t, cs.Append(Record{ID: "voice_2", Content: "world", Source: "voice"}))

	records, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "voice_1", records[0].ID)
	assert.Equal(t, "voice_2", records[1].ID)
}

func TestChunkStore_AppendRejectsDuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	cs := NewChunkStore(path)

	require.NoError(t, cs.Append(Record{ID: "voice_1", Content: "a"}))
	err := cs.Append(Record{ID: "voice_1", Content: "b"})
	assert.Error(t, err)

	records, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Content)
}

func TestChunkStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	cs := NewChunkStore(path)

	require.NoError(t, cs.Append(Record{ID: "voice_1", Content: "a"}))
	require.NoError(t, cs.Append(Record{ID: "voice_2", Content: "b"}))

	removed, err := cs.Delete([]string{"voice_1", "voice_missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"voice_1"}, removed)

	records, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "voice_2", records[0].ID)
}

func TestChunkStore_LoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	cs := NewChunkStore(path)

	records, err := cs.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}
