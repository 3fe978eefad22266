package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/store"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the index status record",
		Long:  `Prints the state, progress, message, and timestamp of the most recent indexing run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			st, err := store.LoadStatus(cfg.Paths.StatusFile)
			if err != nil {
				return fmt.Errorf("load status: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "state: %s\nprogress: %d%%\nmessage: %s\ntimestamp: %s\n",
				st.State, st.Progress, st.Message, st.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
