package store

import (
	"context"
	"fmt"
	"time"
)

type write struct {
	path   string
	fields Fields
	merge  bool
}

// SetOption changes how Tx.Set applies its fields.
type SetOption func(*write)

// Merge makes Set update only the given fields and keep every other field of the
// document. Without it Set replaces the whole document.
func Merge() SetOption {
	return func(w *write) { w.merge = true }
}

// Tx is one attempt of a transaction. It is not safe for concurrent use.
type Tx struct {
	ctx    context.Context
	r      reader
	now    time.Time
	writes []write
}

// Now is the timestamp ServerTimestamp resolves to in this attempt.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Get reads a document. All reads must happen before the first Set.
func (tx *Tx) Get(path string) (Snapshot, error) {
	if len(tx.writes) > 0 {
		return Snapshot{}, fmt.Errorf("%w: get %s", ErrReadAfterWrite, path)
	}
	if err := validatePath(path); err != nil {
		return Snapshot{}, err
	}
	fields, ok, err := tx.r.read(tx.ctx, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Snapshot{Path: path, Exists: ok, fields: fields}, nil
}

// Set buffers a write that is applied when the transaction commits.
func (tx *Tx) Set(path string, fields Fields, opts ...SetOption) error {
	if err := validatePath(path); err != nil {
		return err
	}
	w := write{path: path, fields: fields.clone()}
	for _, opt := range opts {
		opt(&w)
	}
	tx.writes = append(tx.writes, w)
	return nil
}

func (tx *Tx) resolvedWrites() []write {
	out := make([]write, len(tx.writes))
	for i, w := range tx.writes {
		for k, v := range w.fields {
			if _, ok := v.(serverTimestamp); ok {
				w.fields[k] = tx.now
			}
		}
		out[i] = w
	}
	return out
}
