package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize matches spec section 4.1's default LRU bound.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedder wraps an Embedder with an LRU cache keyed by
// hash(model, text), avoiding repeat remote calls for identical text
// (e.g. re-embedding a query already seen, or re-indexing unchanged
// content during an incremental run).
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size
// (DefaultEmbeddingCacheSize if size <= 0).
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.ModelName(), text)
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// EmbedBatch splits texts into cached hits and uncached misses, calling the
// inner embedder only for the misses.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	model := c.inner.ModelName()
	for i, t := range texts {
		key := cacheKey(model, t)
		if v, ok := c.cache.Get(key); ok {
			c.hits.Add(1)
			out[i] = v
			continue
		}
		c.misses.Add(1)
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			out[missIdx[j]] = v
			c.cache.Add(cacheKey(model, missTexts[j]), v)
		}
	}

	return out, nil
}

func (c *CachedEmbedder) Dimensions() int    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string  { return c.inner.ModelName() }
func (c *CachedEmbedder) Close() error       { return c.inner.Close() }
func (c *CachedEmbedder) Inner() Embedder    { return c.inner }

// Stats returns cumulative hit/miss counts for observability.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
