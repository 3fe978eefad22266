// Package bootstrap wires a loaded config.Config into concrete component
// instances: the embedder, chunk store, splitter, vector-index handle,
// and chat client. Every cmd/digitalmemory subcommand shares this wiring
// instead of repeating it, the way the teacher's cmd package funnels
// index/serve/status through the same metadata/BM25/vector construction
// sequence in cmd/index.go.
package bootstrap

import (
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dzheng/digitalmemory/internal/chunk"
	"github.com/dzheng/digitalmemory/internal/config"
	"github.com/dzheng/digitalmemory/internal/embed"
	"github.com/dzheng/digitalmemory/internal/index"
	"github.com/dzheng/digitalmemory/internal/store"
)

// Components holds every dependency a subcommand might need.
type Components struct {
	Embedder   embed.Embedder
	ChunkStore *store.ChunkStore
	Splitter   *chunk.Splitter
	Handle     *store.Handle
	IndexDeps  index.Dependencies
	ChatClient *openai.Client
	Config     config.Config
}

// Build constructs every component from cfg but does not load any
// on-disk index into the handle (callers that need the current snapshot
// call LoadSnapshot explicitly, since not every subcommand needs it —
// e.g. `migrate` only appends to the chunk store).
func Build(cfg config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, err
	}

	raw := embed.NewOpenAIEmbedder(
		cfg.Embedding.Endpoint,
		cfg.Embedding.APIKey(),
		cfg.Embedding.Model,
		cfg.Embedding.Timeout,
		embed.RetryConfig{
			MaxRetries:   cfg.Embedding.MaxRetries,
			InitialDelay: embed.DefaultRetryConfig().InitialDelay,
			MaxDelay:     embed.DefaultRetryConfig().MaxDelay,
			Multiplier:   embed.DefaultRetryConfig().Multiplier,
		},
	)
	embedder, err := embed.NewCachedEmbedder(raw, cfg.Embedding.CacheSize)
	if err != nil {
		return nil, err
	}

	chunkStore := store.NewChunkStore(cfg.Paths.ChunkStore)
	splitter := chunk.NewSplitter()
	handle := store.NewHandle()

	chatCfg := openai.DefaultConfig(cfg.Chat.APIKey())
	if cfg.Chat.Endpoint != "" {
		chatCfg.BaseURL = cfg.Chat.Endpoint
	}
	chatClient := openai.NewClientWithConfig(chatCfg)

	deps := index.Dependencies{
		ChunkStore:   chunkStore,
		Embedder:     embedder,
		Splitter:     splitter,
		Handle:       handle,
		IndexPath:    cfg.Paths.IndexPath,
		MetadataPath: cfg.Paths.MetadataPath,
		IndexedIDs:   cfg.Paths.IndexedIDs,
		DirtyFlag:    cfg.Paths.DirtyFlag,
		StatusPath:   cfg.Paths.StatusFile,
		BatchSize:    cfg.Embedding.BatchSize,
		Logger:       logger,
	}

	return &Components{
		Embedder:   embedder,
		ChunkStore: chunkStore,
		Splitter:   splitter,
		Handle:     handle,
		IndexDeps:  deps,
		ChatClient: chatClient,
		Config:     cfg,
	}, nil
}

// LoadSnapshot loads the on-disk vector index and metadata (if present)
// and publishes them to c.Handle, so readers (the retriever, the HTTP
// surface) see the most recently built index at process start.
func LoadSnapshot(c *Components) error {
	idx, err := store.LoadFlatL2Index(c.IndexDeps.IndexPath)
	if err != nil {
		return err
	}
	metadata, err := store.LoadMetadata(c.IndexDeps.MetadataPath)
	if err != nil {
		return err
	}
	c.Handle.Publish(&store.Snapshot{Index: idx, Metadata: metadata})
	return nil
}
