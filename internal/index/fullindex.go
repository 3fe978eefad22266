package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dzheng/digitalmemory/internal/memerr"
	"github.com/dzheng/digitalmemory/internal/store"
)

// FullResult summarizes a completed full-rebuild run.
type FullResult struct {
	RecordsRead   int
	SubChunks     int
	BatchesFailed int
}

// Full rebuilds the entire index from the chunk store (spec section
// 4.6): read all records, drop empty content, split via the smart-chunk
// splitter, assert sub-chunk ID uniqueness, embed in batches, build a
// fresh index in memory, and publish it atomically only on success. A
// per-batch embedding failure is logged and skipped rather than aborting
// the whole run; a run that embeds nothing at all is a catastrophic
// failure and leaves the existing on-disk index untouched.
func Full(ctx context.Context, deps Dependencies) (FullResult, error) {
	log := deps.logger()
	writeStatus(deps.StatusPath, store.StateRunning, 0, "starting full rebuild")

	records, err := deps.ChunkStore.Load()
	if err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to read chunk store")
		return FullResult{}, err
	}

	var subchunks []store.SubChunk
	seen := make(map[string]bool)
	for _, rec := range records {
		if rec.Content == "" {
			continue
		}
		for _, sc := range deps.Splitter.Split(rec) {
			if seen[sc.ID] {
				writeStatus(deps.StatusPath, store.StateFailed, 0, "duplicate sub-chunk id")
				return FullResult{}, memerr.New(memerr.ErrCodeDuplicateID,
					fmt.Sprintf("duplicate sub-chunk id %q during full rebuild", sc.ID), nil)
			}
			seen[sc.ID] = true
			subchunks = append(subchunks, sc)
		}
	}

	writeStatus(deps.StatusPath, store.StateRunning, 10,
		fmt.Sprintf("embedding %d sub-chunks", len(subchunks)))

	idx := store.NewFlatL2Index()
	var metadata []store.SubChunk
	var indexedIDs []string
	batchesFailed := 0

	batches := batchesOf(subchunks, deps.batchSize())
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			writeStatus(deps.StatusPath, store.StateFailed, 0, "cancelled")
			return FullResult{}, err
		}

		texts := make([]string, len(batch))
		for j, sc := range batch {
			texts[j] = sc.Content
		}

		vecs, err := deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			batchesFailed++
			log.Warn("embedding batch failed, skipping", slog.Int("batch", i), slog.String("error", err.Error()))
			continue
		}

		if _, err := idx.Add(vecs); err != nil {
			batchesFailed++
			log.Warn("index add failed for batch, skipping", slog.Int("batch", i), slog.String("error", err.Error()))
			continue
		}
		metadata = append(metadata, batch...)
		for _, sc := range batch {
			indexedIDs = append(indexedIDs, sc.ID)
		}

		pct := 10 + int(float64(i+1)/float64(len(batches))*70)
		writeStatus(deps.StatusPath, store.StateRunning, pct,
			fmt.Sprintf("embedded batch %d/%d", i+1, len(batches)))
	}

	if len(subchunks) > 0 && len(metadata) == 0 {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "embedding unavailable for every batch")
		return FullResult{}, memerr.New(memerr.ErrCodeEmbeddingFailed,
			"every batch failed to embed; existing index left intact", nil)
	}

	writeStatus(deps.StatusPath, store.StateRunning, 85, "building index")
	if err := idx.Save(deps.IndexPath); err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to write index")
		return FullResult{}, err
	}
	if err := store.SaveMetadata(deps.MetadataPath, metadata); err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to write metadata")
		return FullResult{}, err
	}
	if err := store.NewIDSet(indexedIDs).Save(deps.IndexedIDs); err != nil {
		writeStatus(deps.StatusPath, store.StateFailed, 0, "failed to write indexed-ids set")
		return FullResult{}, err
	}

	deps.Handle.Publish(&store.Snapshot{Index: idx, Metadata: metadata})

	if err := store.NewDirtyFlag(deps.DirtyFlag).Clear(); err != nil {
		log.Warn("failed to clear dirty flag", slog.String("error", err.Error()))
	}

	writeStatus(deps.StatusPath, store.StateCompleted, 100,
		fmt.Sprintf("indexed %d records into %d sub-chunks", len(records), len(metadata)))

	return FullResult{RecordsRead: len(records), SubChunks: len(metadata), BatchesFailed: batchesFailed}, nil
}
