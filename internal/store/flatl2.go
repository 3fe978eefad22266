package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// VectorResult is one nearest-neighbor hit: the index position and its L2
// distance to the query vector.
type VectorResult struct {
	Position int
	Distance float32
}

// FlatL2Index is an exact brute-force L2 index (spec component C3): no
// approximation, so nearest-neighbor order is always exact ascending
// distance. The persistence shape (gob-encoded payload, atomic
// tmp-then-rename publish) is adapted from the teacher's HNSW store
// (internal/store/hnsw.go's saveMetadata/loadMetadata), but the search
// algorithm itself is new — an ANN graph cannot honor the exact-neighbor
// ordering spec section 8 requires.
type FlatL2Index struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
}

// NewFlatL2Index returns an empty index; its dimension is fixed by the
// first Add call.
func NewFlatL2Index() *FlatL2Index {
	return &FlatL2Index{}
}

// Dim returns the established vector dimension, or 0 if nothing has been
// added yet.
func (idx *FlatL2Index) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// NTotal returns the number of vectors currently indexed.
func (idx *FlatL2Index) NTotal() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Add appends vectors to the index; the resulting position of the first
// appended vector is returned so callers can align it with their
// metadata list. All vectors must match the index's established
// dimension (or establish it, if the index is empty).
func (idx *FlatL2Index) Add(vecs [][]float32) (startPos int, err error) {
	if len(vecs) == 0 {
		return idx.NTotal(), nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dim == 0 {
		idx.dim = len(vecs[0])
	}
	for _, v := range vecs {
		if len(v) != idx.dim {
			return 0, &ErrDimensionMismatch{Expected: idx.dim, Got: len(v)}
		}
	}

	startPos = len(idx.vectors)
	idx.vectors = append(idx.vectors, vecs...)
	return startPos, nil
}

// Search returns the k nearest neighbors of query by ascending L2
// distance, an exact brute-force scan over every indexed vector.
func (idx *FlatL2Index) Search(query []float32, k int) ([]VectorResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dim != 0 && len(query) != idx.dim {
		return nil, &ErrDimensionMismatch{Expected: idx.dim, Got: len(query)}
	}
	if k <= 0 || len(idx.vectors) == 0 {
		return nil, nil
	}
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}

	results := make([]VectorResult, len(idx.vectors))
	for i, v := range idx.vectors {
		results[i] = VectorResult{Position: i, Distance: l2Distance(query, v)}
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].Position < results[b].Position
	})

	return results[:k], nil
}

func l2Distance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// flatL2Payload is the gob-serializable form of a FlatL2Index.
type flatL2Payload struct {
	Dim     int
	Vectors [][]float32
}

// Save persists the index to path using a tmp-file-then-rename so readers
// loading concurrently always see either the previous complete file or
// the new complete one, never a partial write.
func (idx *FlatL2Index) Save(path string) error {
	idx.mu.RLock()
	payload := flatL2Payload{Dim: idx.dim, Vectors: idx.vectors}
	idx.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if err := gob.NewEncoder(w).Encode(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// LoadFlatL2Index reads an index previously written by Save. A missing
// file returns a fresh empty index rather than an error, matching spec
// section 4.7's "bootstrap a new one" behavior for incremental indexing.
func LoadFlatL2Index(path string) (*FlatL2Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewFlatL2Index(), nil
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var payload flatL2Payload
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	return &FlatL2Index{dim: payload.Dim, vectors: payload.Vectors}, nil
}
