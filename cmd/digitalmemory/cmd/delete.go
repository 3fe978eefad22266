package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/bootstrap"
	"github.com/dzheng/digitalmemory/internal/store"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id...>",
		Short: "Delete records by ID and mark the index for a rebuild",
		Long: `Removes the given record IDs from the chunk store and sets the dirty
flag. Only a full rebuild actually drops entries from the metadata list
and vector index (spec section 3's deletion invariant), so follow this
with 'digitalmemory rebuild'. A running server answers the dirty flag
with an incremental run, which clears the flag but keeps deleted entries
in the index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer setupLogging()()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			comps, err := bootstrap.Build(cfg, nil)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			removed, err := comps.ChunkStore.Delete(args)
			if err != nil {
				return fmt.Errorf("delete records: %w", err)
			}
			if len(removed) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no matching records found; index unchanged")
				return nil
			}

			if err := store.NewDirtyFlag(comps.IndexDeps.DirtyFlag).Set(); err != nil {
				return fmt.Errorf("set dirty flag: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d record(s); run 'digitalmemory rebuild' to update the index\n", len(removed))
			return nil
		},
	}

	return cmd
}
