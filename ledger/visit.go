package ledger

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/cppla/hoppin/metrics"
	"github.com/cppla/hoppin/models"
	"github.com/cppla/hoppin/store"
)

// VisitStatus is the outcome of a visit record attempt.
type VisitStatus string

const (
	// VisitIgnored: empty user or place id, or a category outside 1..8.
	VisitIgnored VisitStatus = "ignored"
	// VisitDuplicate: the user already visited the place today.
	VisitDuplicate VisitStatus = "duplicate"
	// VisitRecorded: the visit was counted.
	VisitRecorded VisitStatus = "recorded"
	// VisitFailed: the transaction did not commit.
	VisitFailed VisitStatus = "failed"
)

// VisitOutcome describes what RecordVisit did.
type VisitOutcome struct {
	Status     VisitStatus `json:"status"`
	Date       string      `json:"date,omitempty"`
	CategoryID int         `json:"category_id"`
	// Visits and BadgeTier are the category state after the visit; only set
	// when Status is VisitRecorded.
	Visits    int64 `json:"visits,omitempty"`
	BadgeTier int   `json:"badge_tier,omitempty"`
	TierUp    bool  `json:"tier_up"`
	// CheckIn is the streak update that followed a recorded visit.
	CheckIn *CheckIn `json:"check_in,omitempty"`
}

// RecordVisit counts a visit of userID to placeID in categoryID at most once per
// UTC day and, when the visit is new, runs DailyCheckIn for the user.
//
// Malformed input is ignored without error. When the check-in fails after the
// visit committed, the recorded outcome is returned with an error wrapping
// ErrStreakNotAdvanced.
func (l *Ledger) RecordVisit(ctx context.Context, userID, placeID string, categoryID int) (VisitOutcome, error) {
	out, err := l.RecordVisitOnly(ctx, userID, placeID, categoryID)
	if err != nil || out.Status != VisitRecorded {
		return out, err
	}

	checkIn, err := l.DailyCheckIn(ctx, userID)
	if err != nil {
		l.log.Warn("visit recorded but streak not advanced",
			zap.String("user_id", userID),
			zap.String("place_id", placeID),
			zap.Error(err),
		)
		return out, fmt.Errorf("%w: %w", ErrStreakNotAdvanced, err)
	}
	out.CheckIn = &checkIn
	return out, nil
}

// RecordVisitOnly runs the visit transaction of RecordVisit without the
// follow-up check-in.
func (l *Ledger) RecordVisitOnly(ctx context.Context, userID, placeID string, categoryID int) (VisitOutcome, error) {
	if !validVisit(userID, placeID, categoryID) {
		metrics.VisitsTotal.WithLabelValues(string(VisitIgnored)).Inc()
		return VisitOutcome{Status: VisitIgnored, CategoryID: categoryID}, nil
	}

	var out VisitOutcome
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx *store.Tx) error {
		out = VisitOutcome{CategoryID: categoryID, Date: DateKey(tx.Now())}

		visitRef := visitPath(userID, out.Date, placeID)
		visit, err := tx.Get(visitRef)
		if err != nil {
			return err
		}
		if visit.Exists {
			out.Status = VisitDuplicate
			return nil
		}

		progressRef := progressPath(userID)
		progress, err := tx.Get(progressRef)
		if err != nil {
			return err
		}

		oldVisits, _ := progress.Int(models.VisitsField(categoryID))
		newVisits := oldVisits + 1
		oldTier := TierForVisits(oldVisits)
		newTier := TierForVisits(newVisits)

		if err := tx.Set(visitRef, store.Fields{
			models.FieldPlaceID:    placeID,
			models.FieldCategoryID: categoryID,
			models.FieldTimestamp:  store.ServerTimestamp,
		}, store.Merge()); err != nil {
			return err
		}

		update := store.Fields{models.VisitsField(categoryID): newVisits}
		if newTier > oldTier {
			update[models.BadgeTierField(categoryID)] = newTier
		}
		if err := tx.Set(progressRef, update, store.Merge()); err != nil {
			return err
		}

		out.Status = VisitRecorded
		out.Visits = newVisits
		out.BadgeTier = newTier
		out.TierUp = newTier > oldTier
		return nil
	})
	if err != nil {
		metrics.VisitsTotal.WithLabelValues(string(VisitFailed)).Inc()
		return VisitOutcome{Status: VisitFailed, CategoryID: categoryID}, fmt.Errorf("record visit: %w", err)
	}

	metrics.VisitsTotal.WithLabelValues(string(out.Status)).Inc()
	if out.TierUp {
		metrics.BadgeTierUps.WithLabelValues(strconv.Itoa(categoryID)).Inc()
		l.log.Info("badge tier up",
			zap.String("user_id", userID),
			zap.Int("category_id", categoryID),
			zap.Int("tier", out.BadgeTier),
			zap.Int64("visits", out.Visits),
		)
	}
	return out, nil
}
