// Package ledger keeps the gamification bookkeeping of Hoppin users: per-day
// visit dedupe, per-category visit counts with badge tiers, and the daily
// check-in streak.
//
// Every mutation is one store transaction. RecordVisit runs the visit
// transaction and, once it committed a new visit, a separate check-in
// transaction. A failure between the two leaves the visit counted and the streak
// untouched for that day.
package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cppla/hoppin/store"
)

var (
	// ErrStreakNotAdvanced wraps the check-in failure that followed a committed visit.
	ErrStreakNotAdvanced = errors.New("visit recorded but streak not advanced")
	// ErrInvalidUser is returned by DailyCheckIn for an empty user id.
	ErrInvalidUser = errors.New("invalid user id")
)

// RecordStore is the transactional document store the ledger writes to.
type RecordStore interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error
	Get(ctx context.Context, path string) (store.Snapshot, error)
}

// Ledger records visits and check-ins.
type Ledger struct {
	store RecordStore
	log   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.log = l
		}
	}
}

// New returns a Ledger writing to s.
func New(s RecordStore, opts ...Option) *Ledger {
	l := &Ledger{store: s, log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func visitPath(userID, date, placeID string) string {
	return store.Path("userVisits", userID, "days", date, "places", placeID)
}

func progressPath(userID string) string {
	return store.Path("userProgress", userID)
}

func streakPath(userID string) string {
	return store.Path("userStreaks", userID)
}
