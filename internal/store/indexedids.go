package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dzheng/digitalmemory/internal/memerr"
)

// IDSet is the serialized indexed-IDs set (spec section 3): sub-chunk IDs
// already embedded, consulted only by the incremental indexer.
type IDSet map[string]struct{}

// NewIDSet builds a set from a slice of IDs.
func NewIDSet(ids []string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// LoadIDSet reads a previously saved set. A missing file yields an empty
// set, matching the bootstrap behavior of a fresh incremental index.
func LoadIDSet(path string) (IDSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return IDSet{}, nil
		}
		return nil, memerr.IOError("read indexed-ids set", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, memerr.New(memerr.ErrCodeCorruptIndex, "indexed-ids set is corrupt", err)
	}
	return NewIDSet(ids), nil
}

// Save persists the set atomically (tmp-then-rename).
func (s IDSet) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return memerr.IOError("create indexed-ids directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return memerr.IOError("create temp indexed-ids file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	data, err := json.Marshal(s.Slice())
	if err != nil {
		tmp.Close()
		return memerr.IOError("encode indexed-ids set", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return memerr.IOError("write indexed-ids set", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return memerr.IOError("sync indexed-ids set", err)
	}
	if err := tmp.Close(); err != nil {
		return memerr.IOError("close temp indexed-ids file", err)
	}
	return os.Rename(tmpPath, path)
}
