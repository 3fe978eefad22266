package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzheng/digitalmemory/internal/store"
)

func TestDeleteCmd_RemovesMatchingRecordsFromChunkStore(t *testing.T) {
	dir := t.TempDir()
	recordsPath := filepath.Join(dir, "records.json")
	cs := store.NewChunkStore(recordsPath)
	require.NoError(t, cs.Append(store.Record{ID: "voice_1", Source: "voice", Content: "keep me"}))
	require.NoError(t, cs.Append(store.Record{ID: "voice_2", Source: "voice", Content: "delete me"}))

	dirtyFlagPath := filepath.Join(dir, "dirty.flag")
	configPath = filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { configPath = "" })
	require.NoError(t, os.WriteFile(configPath, []byte(
		"paths:\n  data_dir: "+dir+
			"\n  chunk_store: "+recordsPath+
			"\n  dirty_flag_path: "+dirtyFlagPath+"\n"), 0o644))

	cmd := newDeleteCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"voice_2"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "deleted 1 record(s)")

	records, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "voice_1", records[0].ID)

	assert.True(t, store.NewDirtyFlag(dirtyFlagPath).IsSet(),
		"delete should set the dirty flag so a following rebuild drops the records from the index")
}

func TestDeleteCmd_NoMatchLeavesStoreUnchanged(t *testing.T) {
	dir := t.TempDir()
	recordsPath := filepath.Join(dir, "records.json")
	cs := store.NewChunkStore(recordsPath)
	require.NoError(t, cs.Append(store.Record{ID: "voice_1", Source: "voice", Content: "keep me"}))

	configPath = filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { configPath = "" })
	require.NoError(t, os.WriteFile(configPath, []byte(
		"paths:\n  data_dir: "+dir+"\n  chunk_store: "+recordsPath+"\n"), 0o644))

	cmd := newDeleteCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"voice_nonexistent"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no matching records found")

	records, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
