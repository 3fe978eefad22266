package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/agent"
	"github.com/dzheng/digitalmemory/internal/bootstrap"
	"github.com/dzheng/digitalmemory/internal/httpapi"
	"github.com/dzheng/digitalmemory/internal/rebuild"
	"github.com/dzheng/digitalmemory/internal/retrieve"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP retrieval/chat server",
		Long: `Starts the HTTP surface (spec section 6): POST /retrieve, POST /chat,
POST /rebuild-index, GET /index-status. Watches the dirty flag so an
external writer appending to the chunk store triggers an incremental
reindex without the server polling for it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := setupLogging()
			defer cleanup()
			logger := slog.Default()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			comps, err := bootstrap.Build(cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			if err := bootstrap.LoadSnapshot(comps); err != nil {
				return fmt.Errorf("load index: %w", err)
			}

			retriever := retrieve.New(comps.Handle, comps.Embedder, logger)
			chatAgent := agent.New(comps.ChatClient, cfg.Chat.Model, retriever, logger)
			sup := rebuild.New(comps.IndexDeps, fullRebuildCommand(), filepath.Join(cfg.Paths.DataDir, "rebuild.lock"), logger)

			ctx := cmd.Context()
			watchDirtyFlag(ctx, sup, cfg.Paths.DirtyFlag, logger)
			go periodicTick(ctx, sup, cfg.Rebuild.PollInterval)

			srv := httpapi.New(httpapi.Dependencies{
				Retriever:  retriever,
				Agent:      chatAgent,
				Supervisor: sup,
				StatusPath: cfg.Paths.StatusFile,
				Logger:     logger,
				Context:    ctx,
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			logger.Info("starting http server", slog.String("addr", addr))

			httpSrv := &http.Server{Addr: addr, Handler: srv}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	return cmd
}

// watchDirtyFlag starts an fsnotify watch on the dirty-flag file's
// directory and triggers an incremental reindex whenever the flag is
// created, so newly-ingested records are picked up without polling.
func watchDirtyFlag(ctx context.Context, sup *rebuild.Supervisor, dirtyFlagPath string, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("dirty-flag watcher unavailable, falling back to periodic tick only", slog.String("error", err.Error()))
		return
	}
	dir := filepath.Dir(dirtyFlagPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("failed to watch dirty-flag directory", slog.String("dir", dir), slog.String("error", err.Error()))
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == dirtyFlagPath && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
					if err := sup.TriggerIngest(ctx); err != nil {
						logger.Warn("failed to trigger ingest from dirty-flag watch", slog.String("error", err.Error()))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("dirty-flag watcher error", slog.String("error", err.Error()))
			}
		}
	}()
}

// periodicTick is the fallback described in spec section 4.11: if the
// dirty flag was set but no watch event ever fired (e.g. the watcher
// failed to start), a full rebuild still eventually runs.
func periodicTick(ctx context.Context, sup *rebuild.Supervisor, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sup.TriggerPeriodicTick(ctx)
		}
	}
}
