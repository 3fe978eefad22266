package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dzheng/digitalmemory/internal/memerr"
)

// LoadMetadata reads the metadata list (spec section 3): the ordered
// sub-chunk sequence parallel to the vector index. A missing file yields
// an empty list.
func LoadMetadata(path string) ([]SubChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, memerr.IOError("open metadata list", err)
	}
	defer f.Close()

	var chunks []SubChunk
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&chunks); err != nil {
		return nil, memerr.New(memerr.ErrCodeCorruptIndex, "metadata list is corrupt", err)
	}
	return chunks, nil
}

// SaveMetadata persists the metadata list atomically (tmp-then-rename),
// keeping it consistent with the vector index it describes.
func SaveMetadata(path string, chunks []SubChunk) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return memerr.IOError("create metadata directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return memerr.IOError("create temp metadata file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(chunks); err != nil {
		tmp.Close()
		return memerr.IOError("encode metadata list", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return memerr.IOError("sync metadata list", err)
	}
	if err := tmp.Close(); err != nil {
		return memerr.IOError("close temp metadata file", err)
	}
	return os.Rename(tmpPath, path)
}
