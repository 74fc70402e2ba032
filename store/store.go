// Package store provides a small document store with optimistic, retried
// transactions over badger, redis or a SQL database through gorm.
//
// A transaction reads documents first and buffers writes; the buffered writes are
// applied atomically at commit. Reading after a write has been buffered is a
// programming error and fails with ErrReadAfterWrite. Conflicts detected by the
// backend are retried transparently up to the configured number of attempts.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/hoppin/metrics"
)

var (
	// ErrConflict reports that a concurrent transaction touched the same documents.
	ErrConflict = errors.New("store: transaction conflict")
	// ErrTooManyAttempts is returned when every attempt of a transaction conflicted.
	ErrTooManyAttempts = errors.New("store: transaction attempts exhausted")
	// ErrReadAfterWrite is returned by Tx.Get once the transaction buffered a write.
	ErrReadAfterWrite = errors.New("store: read after write in transaction")
	// ErrInvalidPath is returned for empty or malformed document paths.
	ErrInvalidPath = errors.New("store: invalid document path")
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 10 * time.Millisecond
)

// reader reads one document inside a backend transaction.
type reader interface {
	read(ctx context.Context, path string) (Fields, bool, error)
}

// attemptFunc runs the caller's transaction body against r and returns the writes
// to commit.
type attemptFunc func(r reader) ([]write, error)

type backend interface {
	name() string
	now(ctx context.Context) (time.Time, error)
	// attempt opens a backend transaction, runs fn and commits its writes. A lost
	// race must be reported as an error wrapping ErrConflict.
	attempt(ctx context.Context, fn attemptFunc) error
	get(ctx context.Context, path string) (Fields, bool, error)
	close() error
}

// Store runs transactions against one backend.
type Store struct {
	b           backend
	clock       func() time.Time
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the backend clock used for transaction timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMaxAttempts sets how many times a conflicting transaction is attempted.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between conflicting attempts.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func newStore(b backend, opts []Option) *Store {
	s := &Store{
		b:           b,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("store", b.name()))
	return s
}

// Driver names the backend, e.g. "badger".
func (s *Store) Driver() string {
	return s.b.name()
}

// Now returns the store clock.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	if s.clock != nil {
		return s.clock().UTC(), nil
	}
	now, err := s.b.now(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("store clock: %w", err)
	}
	return now.UTC(), nil
}

// RunTransaction runs fn in a transaction and commits the writes it buffered.
// fn may run several times when the backend reports a conflict, so it must not
// have side effects outside tx. An error returned by fn aborts the transaction
// without retry.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.b.attempt(ctx, func(r reader) ([]write, error) {
			now, err := s.Now(ctx)
			if err != nil {
				return nil, err
			}
			tx := &Tx{ctx: ctx, r: r, now: now}
			if err := fn(ctx, tx); err != nil {
				return nil, err
			}
			return tx.resolvedWrites(), nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}

		lastErr = err
		metrics.StoreConflicts.WithLabelValues(s.b.name()).Inc()
		s.log.Debug("transaction conflict", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.maxAttempts {
			if err := s.wait(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrTooManyAttempts, s.maxAttempts, lastErr)
}

func (s *Store) wait(ctx context.Context, attempt int) error {
	if s.backoff == 0 {
		return nil
	}
	d := s.backoff*time.Duration(attempt) + rand.N(s.backoff)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get reads one document outside of any transaction.
func (s *Store) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := validatePath(path); err != nil {
		return Snapshot{}, err
	}
	fields, ok, err := s.b.get(ctx, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	return Snapshot{Path: path, Exists: ok, fields: fields}, nil
}

// Close releases the backend handle.
func (s *Store) Close() error {
	return s.b.close()
}
