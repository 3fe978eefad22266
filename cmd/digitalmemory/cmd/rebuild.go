package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/bootstrap"
	"github.com/dzheng/digitalmemory/internal/rebuild"
	"github.com/dzheng/digitalmemory/internal/store"
)

func newRebuildCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Trigger a full rebuild of the index",
		Long: `Sets the dirty flag and starts a full rebuild through the same
supervisor a running server uses (spec section 4.11). By default waits
for the rebuild to finish and reports its outcome; --async returns as
soon as the rebuild has started.`,
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

			sup := rebuild.New(comps.IndexDeps, fullRebuildCommand(), filepath.Join(cfg.Paths.DataDir, "rebuild.lock"), nil)

			ctx := cmd.Context()
			if err := sup.TriggerManualRebuild(ctx); err != nil {
				return fmt.Errorf("trigger rebuild: %w", err)
			}

			if async {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "rebuild started")
				return nil
			}

			for sup.IsRunning() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(200 * time.Millisecond):
				}
			}

			st, err := store.LoadStatus(cfg.Paths.StatusFile)
			if err != nil {
				return fmt.Errorf("load status: %w", err)
			}
			if st.State == store.StateFailed {
				return fmt.Errorf("rebuild failed: %s", st.Message)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rebuild %s: %s\n", st.State, st.Message)
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Return immediately instead of waiting for the rebuild to finish")
	return cmd
}
