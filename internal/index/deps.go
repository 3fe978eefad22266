// Package index implements the full indexer (spec component C6) and the
// incremental indexer (spec component C7), adapted from the teacher's
// internal/index/runner.go pipeline: scan -> chunk -> embed in batches ->
// build/extend the vector index -> publish atomically, reporting
// progress through the status record at coarse checkpoints.
package index

import (
	"log/slog"
	"time"

	"github.com/dzheng/digitalmemory/internal/chunk"
	"github.com/dzheng/digitalmemory/internal/embed"
	"github.com/dzheng/digitalmemory/internal/store"
)

// Dependencies wires the components an indexing run needs, mirroring the
// teacher's RunnerDependencies dependency-injection shape.
type Dependencies struct {
	ChunkStore *store.ChunkStore
	Embedder   embed.Embedder
	Splitter   *chunk.Splitter
	Handle     *store.Handle

	IndexPath    string
	MetadataPath string
	IndexedIDs   string
	DirtyFlag    string
	StatusPath   string

	BatchSize int
	Logger    *slog.Logger
}

func (d Dependencies) batchSize() int {
	if d.BatchSize <= 0 {
		return 20
	}
	return d.BatchSize
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func writeStatus(path string, state store.RebuildState, progress int, message string) {
	s := store.Status{State: state, Progress: progress, Message: message, Timestamp: time.Now()}
	_ = s.Save(path) // best-effort: a failed status write must not abort indexing
}

// batches splits items into chunks of size n.
func batchesOf[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = len(items)
	}
	var out [][]T
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
