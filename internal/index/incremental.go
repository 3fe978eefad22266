package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dzheng/digitalmemory/internal/store"
)

// IncrementalResult summarizes a completed incremental run.
type IncrementalResult struct {
	NewSubChunks int
	NTotal       int
}

// Incremental embeds only sub-chunk IDs not already in the indexed-IDs
// set and appends them (spec section 4.7). If the persisted index is
// missing it bootstraps a fresh one, deriving its dimension from the
// first embedding. A failure leaves the on-disk index exactly as it was
// before the run; success clears the dirty flag.
func Incremental(ctx context.Context, deps Dependencies) (IncrementalResult, error) {
	log := deps.logger()
	writeStatus(deps.StatusPath, store.StateRunning, 0, "starting incremental index")

	idx, err := store.LoadFlatL2Index(deps.IndexPath)
	if err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to load existing index")
		return IncrementalResult{}, err
	}
	metadata, err := store.LoadMetadata(deps.MetadataPath)
	if err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to load metadata")
		return IncrementalResult{}, err
	}
	indexedIDs, err := store.LoadIDSet(deps.IndexedIDs)
	if err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to load indexed-ids set")
		return IncrementalResult{}, err
	}

	records, err := deps.ChunkStore.Load()
	if err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to read chunk store")
		return IncrementalResult{}, err
	}

	var fresh []store.SubChunk
	for _, rec := range records {
		if rec.Content == "" {
			continue
		}
		for _, sc := range deps.Splitter.Split(rec) {
			if !indexedIDs.Has(sc.ID) {
				fresh = append(fresh, sc)
			}
		}
	}

	if len(fresh) == 0 {
		writeStatus(deps.StatusPath, store.StateCompleted, 100, "no new sub-chunks")
		if err := store.NewDirtyFlag(deps.DirtyFlag).Clear(); err != nil {
			log.Warn("failed to clear dirty flag", slog.String("error", err.Error()))
		}
		return IncrementalResult{NTotal: idx.NTotal()}, nil
	}

	writeStatus(deps.StatusPath, store.StateRunning, 10,
		fmt.Sprintf("embedding %d new sub-chunks", len(fresh)))

	batches := batchesOf(fresh, deps.batchSize())
	embedded := 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			writeStatus(deps.StatusPath, store.StateFailed, 0, "cancelled")
			return IncrementalResult{}, err
		}

		texts := make([]string, len(batch))
		for j, sc := range batch {
			texts[j] = sc.Content
		}
		vecs, err := deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			log.Warn("embedding failed for record, skipping", slog.Int("batch", i), slog.String("error", err.Error()))
			continue
		}

		if _, err := idx.Add(vecs); err != nil {
			log.Warn("index add failed, skipping batch", slog.Int("batch", i), slog.String("error", err.Error()))
			continue
		}
		metadata = append(metadata, batch...)
		for _, sc := range batch {
			indexedIDs.Add(sc.ID)
		}
		embedded += len(batch)

		pct := 10 + int(float64(i+1)/float64(len(batches))*70)
		writeStatus(deps.StatusPath, store.StateRunning, pct,
			fmt.Sprintf("embedded batch %d/%d", i+1, len(batches)))
	}

	writeStatus(deps.StatusPath, store.StateRunning, 85, "persisting index")
	if err := idx.Save(deps.IndexPath); err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to write index")
		return IncrementalResult{}, err
	}
	if err := store.SaveMetadata(deps.MetadataPath, metadata); err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to write metadata")
		return IncrementalResult{}, err
	}
	if err := indexedIDs.Save(deps.IndexedIDs); err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to write indexed-ids set")
		return IncrementalResult{}, err
	}

	deps.Handle.Publish(&store.Snapshot{Index: idx, Metadata: metadata})

	if err := store.NewDirtyFlag(deps.DirtyFlag).Clear(); err != nil {
		log.Warn("failed to clear dirty flag", slog.String("error", err.Error()))
	}

	writeStatus(deps.StatusPath, store.StateCompleted, 100,
		fmt.Sprintf("embedded %d new sub-chunks", embedded))

	return IncrementalResult{NewSubChunks: embedded, NTotal: idx.NTotal()}, nil
}
