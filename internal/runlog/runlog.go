// Package runlog persists run outputs as JSON array files: successful
// records, failed records, and not-found entries. Files are durable across
// runs; every append reads the existing array, extends it, and rewrites the
// file through a temp-and-rename so a crash never leaves a torn array.
package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSONLog is an append-only JSON array file of T.
type JSONLog[T any] struct {
	path string
}

// NewJSONLog returns a log backed by path. The file is created on first
// append.
func NewJSONLog[T any](path string) *JSONLog[T] {
	return &JSONLog[T]{path: path}
}

// Path returns the backing file path.
func (l *JSONLog[T]) Path() string {
	return l.path
}

// Read returns the current contents. A missing file reads as empty.
func (l *JSONLog[T]) Read() ([]T, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	return items, nil
}

// Append extends the array on disk with items. No-op for an empty batch.
func (l *JSONLog[T]) Append(items ...T) error {
	if len(items) == 0 {
		return nil
	}
	existing, err := l.Read()
	if err != nil {
		return err
	}
	return writeJSONFile(l.path, append(existing, items...))
}

// ProcessedInput marks one input file as fully processed, keyed by content
// hash so renamed copies of the same sheet are still caught.
type ProcessedInput struct {
	Path        string    `json:"path"`
	SHA256      string    `json:"sha256"`
	ProcessedAt time.Time `json:"processedAt"`
}

// InputLedger tracks which input files have already been migrated.
type InputLedger struct {
	log *JSONLog[ProcessedInput]
}

// NewInputLedger returns a ledger backed by path.
func NewInputLedger(path string) *InputLedger {
	return &InputLedger{log: NewJSONLog[ProcessedInput](path)}
}

// Seen reports whether an input with this content hash was already
// processed, and when.
func (l *InputLedger) Seen(sha256 string) (ProcessedInput, bool, error) {
	entries, err := l.log.Read()
	if err != nil {
		return ProcessedInput{}, false, err
	}
	for _, e := range entries {
		if e.SHA256 == sha256 {
			return e, true, nil
		}
	}
	return ProcessedInput{}, false, nil
}

// Record marks an input as processed.
func (l *InputLedger) Record(path, sha256 string) error {
	return l.log.Append(ProcessedInput{
		Path:        path,
		SHA256:      sha256,
		ProcessedAt: time.Now().UTC(),
	})
}

// writeJSONFile writes v to path atomically via a sibling temp file.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
