package store

import "sync/atomic"

// Snapshot pairs the vector index with its parallel metadata list, the
// two shared mutables that must always be read together (spec section
// 5: "Reads always see a consistent (index, metadata) pair"). It holds
// |metadata| == index.NTotal() as an invariant at publish time.
type Snapshot struct {
	Index    *FlatL2Index
	Metadata []SubChunk
}

// Handle publishes Snapshots under a single atomic pointer so concurrent
// readers never observe a half-updated (index, metadata) pair: a reader
// either sees the old complete snapshot or the new complete one.
type Handle struct {
	ptr atomic.Pointer[Snapshot]
}

// NewHandle creates a handle holding an empty snapshot.
func NewHandle() *Handle {
	h := &Handle{}
	h.Publish(&Snapshot{Index: NewFlatL2Index()})
	return h
}

// Publish atomically swaps in a new snapshot.
func (h *Handle) Publish(s *Snapshot) {
	h.ptr.Store(s)
}

// Load returns the current snapshot. Callers must not mutate it.
func (h *Handle) Load() *Snapshot {
	return h.ptr.Load()
}
