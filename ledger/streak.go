package ledger

import (
	"context"
	"fmt"

	"github.com/cppla/hoppin/metrics"
	"github.com/cppla/hoppin/models"
	"github.com/cppla/hoppin/store"
)

// CheckInResult tells how a check-in changed the streak.
type CheckInResult string

const (
	// CheckInSameDay: the user already checked in today; nothing was written.
	CheckInSameDay CheckInResult = "same_day"
	// CheckInContinued: the last check-in was yesterday; the streak grew by one.
	CheckInContinued CheckInResult = "continued"
	// CheckInReset: the last check-in was earlier or never; the streak restarted at 1.
	CheckInReset CheckInResult = "reset"
)

// CheckIn is the streak before and after a DailyCheckIn.
type CheckIn struct {
	Before models.StreakState `json:"before"`
	After  models.StreakState `json:"after"`
	Result CheckInResult      `json:"result"`
}

// Changed reports whether the check-in wrote a new streak state.
func (c CheckIn) Changed() bool {
	return c.Result != CheckInSameDay
}

// DailyCheckIn advances the user's streak when the last check-in was yesterday,
// restarts it at 1 when it was earlier or never, and leaves it untouched when the
// user already checked in today.
func (l *Ledger) DailyCheckIn(ctx context.Context, userID string) (CheckIn, error) {
	if userID == "" {
		return CheckIn{}, ErrInvalidUser
	}

	var ci CheckIn
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx *store.Tx) error {
		ref := streakPath(userID)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		before := streakFromSnapshot(snap)
		after, result := advanceStreak(before, DateKey(tx.Now()), previousDateKey(tx.Now()))
		ci = CheckIn{Before: before, After: after, Result: result}
		if result == CheckInSameDay {
			return nil
		}

		return tx.Set(ref, store.Fields{
			models.FieldCurrentStreak:   after.CurrentStreak,
			models.FieldBestStreak:      after.BestStreak,
			models.FieldLastCheckInDate: after.LastCheckInDate,
		}, store.Merge())
	})
	if err != nil {
		metrics.CheckInsTotal.WithLabelValues("failed").Inc()
		return CheckIn{}, fmt.Errorf("daily check-in: %w", err)
	}

	metrics.CheckInsTotal.WithLabelValues(string(ci.Result)).Inc()
	return ci, nil
}

func advanceStreak(cur models.StreakState, today, yesterday string) (models.StreakState, CheckInResult) {
	switch cur.LastCheckInDate {
	case today:
		return cur, CheckInSameDay
	case yesterday:
		next := models.StreakState{CurrentStreak: cur.CurrentStreak + 1, LastCheckInDate: today}
		next.BestStreak = max(cur.BestStreak, next.CurrentStreak)
		return next, CheckInContinued
	default:
		next := models.StreakState{CurrentStreak: 1, LastCheckInDate: today}
		next.BestStreak = max(cur.BestStreak, 1)
		return next, CheckInReset
	}
}

func streakFromSnapshot(snap store.Snapshot) models.StreakState {
	var s models.StreakState
	if !snap.Exists {
		return s
	}
	if v, ok := snap.Int(models.FieldCurrentStreak); ok {
		s.CurrentStreak = int(v)
	}
	if v, ok := snap.Int(models.FieldBestStreak); ok {
		s.BestStreak = int(v)
	}
	s.LastCheckInDate, _ = snap.String(models.FieldLastCheckInDate)
	return s
}
