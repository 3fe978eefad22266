package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/bootstrap"
	"github.com/dzheng/digitalmemory/internal/store"
)

// legacyRecord mirrors the flat-JSON export produced by the original
// voice-journal pipeline's voice_records.json / conversations.json
// (original_source/migrate_user_data.py), including the user_id field
// that export sometimes omits.
type legacyRecord struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

func newMigrateCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "migrate <export.json>",
		Short: "Load a legacy flat-JSON export into the chunk store",
		Long: `Reads a legacy voice-journal export (an array of flat JSON records)
and appends each one to the chunk store, backfilling user_id when the
export omits it (original_source's migrate_user_data.py) and normalizing
content to strip hesitation artifacts and collapse whitespace. Does not
rebuild the index; run 'digitalmemory index' afterward.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer setupLogging()()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			var legacy []legacyRecord
			if err := json.Unmarshal(data, &legacy); err != nil {
				return fmt.Errorf("parse export: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			comps, err := bootstrap.Build(cfg, nil)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			migrated, skipped := 0, 0
			for _, lr := range legacy {
				if lr.UserID == "" {
					lr.UserID = userID
				}
				rec := store.Record{
					ID:             lr.ID,
					Source:         lr.Source,
					Date:           lr.Date,
					Time:           lr.Time,
					Content:        store.Normalize(lr.Content),
					ConversationID: lr.ConversationID,
					UserID:         lr.UserID,
				}
				if err := comps.ChunkStore.Append(rec); err != nil {
					skipped++
					continue
				}
				migrated++
			}

			if migrated > 0 {
				if err := store.NewDirtyFlag(comps.IndexDeps.DirtyFlag).Set(); err != nil {
					return fmt.Errorf("set dirty flag: %w", err)
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %d records (%d skipped as duplicates)\n", migrated, skipped)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User ID to backfill onto records that don't already have one")
	return cmd
}
