// Package store holds the durable JSON documents backing the job ledger,
// the video catalog, and user preferences. Each document is kept in memory
// and wholesale-rewritten to disk on every mutation; writes go through a
// temp file plus rename so readers never observe a partial document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Document is a persistent id-keyed JSON document.
type Document[T any] struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]T
}

// OpenDocument loads the document at path, creating an empty one when the
// file does not exist yet.
func OpenDocument[T any](path string) (*Document[T], error) {
	d := &Document[T]{filePath: path}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document[T]) load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(d.filePath)
	if errors.Is(err, os.ErrNotExist) {
		d.data = make(map[string]T)
		return nil
	} else if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&d.data); err != nil {
		if errors.Is(err, io.EOF) {
			d.data = make(map[string]T)
			return nil
		}
		return fmt.Errorf("decode document: %w", err)
	}
	if d.data == nil {
		d.data = make(map[string]T)
	}
	return nil
}

// Get returns the entry for id.
func (d *Document[T]) Get(id string) (T, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.data[id]
	return v, ok
}

// Put stores the entry for id and persists the whole document.
func (d *Document[T]) Put(id string, v T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[id] = v
	return d.persist()
}

// Delete removes the entry for id. Deleting an absent id is not an error;
// the returned bool reports whether an entry existed.
func (d *Document[T]) Delete(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[id]; !ok {
		return false, nil
	}
	delete(d.data, id)
	return true, d.persist()
}

// All returns a copy of every entry keyed by id.
func (d *Document[T]) All() map[string]T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]T, len(d.data))
	for id, v := range d.data {
		out[id] = v
	}
	return out
}

// Len returns the number of entries.
func (d *Document[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data)
}

func (d *Document[T]) persist() error {
	return writeAtomic(d.filePath, d.data)
}

// writeAtomic re-encodes v and atomically replaces the file at path.
func writeAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush document: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp document: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	success = true
	return nil
}
