// Package embed implements the embedding client (spec component C1): a
// single remote model behind embed(text) -> vector[D], with an LRU cache
// and retrying, timed-out HTTP calls.
package embed

import "context"

// Embedder turns text into dense vectors of a fixed dimension D. The first
// successful call fixes D for the lifetime of the embedder; later calls
// that observe a different dimension fail loudly rather than silently
// truncating or padding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}
