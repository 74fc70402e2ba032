package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "doc:"

// badgerBackend keeps each document as one JSON value. Badger transactions are
// optimistic (SSI); a lost race surfaces as badger.ErrConflict on commit.
type badgerBackend struct {
	db *badger.DB
}

// NewBadger returns a Store backed by db. Close closes db.
func NewBadger(db *badger.DB, opts ...Option) *Store {
	return newStore(&badgerBackend{db: db}, opts)
}

func (b *badgerBackend) name() string { return "badger" }

func (b *badgerBackend) now(context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (b *badgerBackend) attempt(ctx context.Context, fn attemptFunc) error {
	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	writes, err := fn(badgerReader{txn: txn})
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	for _, w := range writes {
		base, _, err := readBadger(txn, w.path)
		if err != nil {
			return err
		}
		data, err := encodeFields(apply(base, w))
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.path, err)
		}
		if err := txn.Set(badgerKey(w.path), data); err != nil {
			return fmt.Errorf("set %s: %w", w.path, err)
		}
	}

	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *badgerBackend) get(_ context.Context, path string) (Fields, bool, error) {
	var (
		fields Fields
		ok     bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		fields, ok, err = readBadger(txn, path)
		return err
	})
	return fields, ok, err
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}

type badgerReader struct {
	txn *badger.Txn
}

func (r badgerReader) read(_ context.Context, path string) (Fields, bool, error) {
	return readBadger(r.txn, path)
}

func readBadger(txn *badger.Txn, path string) (Fields, bool, error) {
	item, err := txn.Get(badgerKey(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var fields Fields
	err = item.Value(func(val []byte) error {
		fields, err = decodeFields(val)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

func badgerKey(path string) []byte {
	return []byte(badgerKeyPrefix + path)
}
