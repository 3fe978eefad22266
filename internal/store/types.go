// Package store implements the chunk store (spec component C2) and the
// exact L2 vector index (spec component C3): the on-disk journal of
// records, their derived sub-chunks, and the dense vectors built over
// them.
package store

import "fmt"

// Record is a journal entry, the source of truth (spec section 3). It is
// append-only: once ingested it is only edited in place or deleted, never
// silently rewritten.
type Record struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Date           string `json:"date,omitempty"` // YYYY-MM-DD, empty means null
	Time           string `json:"time,omitempty"` // HH:MM, may be absent
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// HasDate reports whether the record carries a non-null date.
func (r Record) HasDate() bool { return r.Date != "" }

// SubChunk is a derived, one-to-many window of a record's content (spec
// section 3). Sub-chunks are created by the indexer and never edited.
type SubChunk struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	Source         string `json:"source"`
	Date           string `json:"date,omitempty"`
	Time           string `json:"time,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`

	// Provenance, present only when the record was split.
	OriginalID  string `json:"_original_id,omitempty"`
	SplitIndex  int    `json:"_split_index,omitempty"`
	TotalSplits int    `json:"_total_splits,omitempty"`
}

// IsSplit reports whether this sub-chunk is part of a multi-window split.
func (c SubChunk) IsSplit() bool { return c.TotalSplits > 1 }

// SubChunkID builds the canonical {record_id}_part_{k} identifier used
// when a record's content spans more than one window (spec section 4.5).
func SubChunkID(recordID string, k int) string {
	return fmt.Sprintf("%s_part_%d", recordID, k)
}

// ErrDimensionMismatch is returned when a vector's dimension disagrees
// with the index's established dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
