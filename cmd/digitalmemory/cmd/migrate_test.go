package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzheng/digitalmemory/internal/store"
)

func TestMigrateCmd_BackfillsUserIDAndNormalizesContent(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "voice_records.json")
	legacy := []legacyRecord{
		{ID: "voice_1", Source: "voice", Date: "2024-01-01", Content: "嗯 今天 天气 不错"},
		{ID: "voice_2", Source: "voice", Date: "2024-01-02", Content: "clean text", UserID: "existing_user"},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(exportPath, data, 0o644))

	configPath = filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { configPath = "" })
	require.NoError(t, os.WriteFile(configPath, []byte(
		"paths:\n  data_dir: "+dir+
			"\n  chunk_store: "+filepath.Join(dir, "records.json")+
			"\n  dirty_flag_path: "+filepath.Join(dir, "dirty.flag")+"\n"), 0o644))

	cmd := newMigrateCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--user-id", "new_user", exportPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "migrated 2 records")

	cs := store.NewChunkStore(filepath.Join(dir, "records.json"))
	records, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]store.Record{}
	for _, r := range records {
		byID[r.ID] = r
	}
	assert.Equal(t, "new_user", byID["voice_1"].UserID)
	assert.NotContains(t, byID["voice_1"].Content, "嗯")
	assert.Equal(t, "existing_user", byID["voice_2"].UserID)

	assert.True(t, store.NewDirtyFlag(filepath.Join(dir, "dirty.flag")).IsSet(),
		"migrate should set the dirty flag so a following rebuild picks up the new records")
}
