package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/bootstrap"
	"github.com/dzheng/digitalmemory/internal/index"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run the full indexer once",
		Long: `Reads every record in the chunk store, re-splits and re-embeds it,
and rebuilds the vector index and metadata list from scratch.

Progress is written to the status record and a one-line summary is
printed on stdout; errors go to stderr. Exits 0 on
success, 1 on failure, matching the existing index's on-disk state being
left untouched on catastrophic failure (spec section 4.6).`,
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

			result, err := index.Full(cmd.Context(), comps.IndexDeps)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d sub-chunks from %d records (%d batches failed)\n",
				result.SubChunks, result.RecordsRead, result.BatchesFailed)
			return nil
		},
	}

	return cmd
}
