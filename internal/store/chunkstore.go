package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/dzheng/digitalmemory/internal/memerr"
)

// ChunkStore is the append-only journal-record log (spec component C2).
// It is the only component allowed to mutate the on-disk record file; an
// advisory file lock (gofrs/flock) serializes writers across processes
// the way the teacher uses flock to guard its own on-disk state files.
type ChunkStore struct {
	path string
	lock *flock.Flock
}

// NewChunkStore opens (without loading) the record log at path.
func NewChunkStore(path string) *ChunkStore {
	return &ChunkStore{path: path, lock: flock.New(path + ".lock")}
}

// Load reads every record currently on disk, in stable insertion order.
// A missing file is treated as an empty store.
func (cs *ChunkStore) Load() ([]Record, error) {
	f, err := os.Open(cs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, memerr.IOError("open chunk store", err)
	}
	defer f.Close()

	var records []Record
	dec := json.NewDecoder(bufio.NewReader(f))
	if err := dec.Decode(&records); err != nil {
		return nil, memerr.New(memerr.ErrCodeCorruptIndex, "chunk store is corrupt", err)
	}
	return records, nil
}

// Append adds rec to the log, rejecting duplicate IDs. The whole file is
// rewritten atomically (tmp-then-rename); O(n) but simple and always
// internally consistent, matching spec section 4.2.
func (cs *ChunkStore) Append(rec Record) error {
	return cs.withLock(func() error {
		records, err := cs.Load()
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.ID == rec.ID {
				return memerr.New(memerr.ErrCodeDuplicateID, fmt.Sprintf("record id %q already exists", rec.ID), nil)
			}
		}
		records = append(records, rec)
		return cs.writeAll(records)
	})
}

// Delete removes every record whose ID is in ids. Returns the IDs that
// were actually found and removed.
func (cs *ChunkStore) Delete(ids []string) (removed []string, err error) {
	toDelete := make(map[string]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
	}

	err = cs.withLock(func() error {
		records, err := cs.Load()
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, r := range records {
			if toDelete[r.ID] {
				removed = append(removed, r.ID)
				continue
			}
			kept = append(kept, r)
		}
		return cs.writeAll(kept)
	})
	return removed, err
}

// Get returns a single record by ID.
func (cs *ChunkStore) Get(id string) (Record, bool, error) {
	records, err := cs.Load()
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

func (cs *ChunkStore) writeAll(records []Record) error {
	dir := filepath.Dir(cs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return memerr.IOError("create chunk store directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(cs.path)+".tmp-*")
	if err != nil {
		return memerr.IOError("create temp chunk store file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		tmp.Close()
		return memerr.IOError("encode chunk store", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return memerr.IOError("sync chunk store", err)
	}
	if err := tmp.Close(); err != nil {
		return memerr.IOError("close temp chunk store file", err)
	}

	if err := os.Rename(tmpPath, cs.path); err != nil {
		return memerr.IOError("publish chunk store", err)
	}
	return nil
}

func (cs *ChunkStore) withLock(fn func() error) error {
	if err := cs.lock.Lock(); err != nil {
		return memerr.New(memerr.ErrCodeInternal, "acquire chunk store lock", err)
	}
	defer cs.lock.Unlock()
	return fn()
}
