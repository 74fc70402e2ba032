package ledger

import (
	"context"
	"fmt"

	"github.com/cppla/hoppin/models"
)

// Progress returns the visit counts and badge tiers of every category. A user
// without visits gets zero progress.
func (l *Ledger) Progress(ctx context.Context, userID string) (models.CategoryProgress, error) {
	var p models.CategoryProgress
	if userID == "" {
		return p, ErrInvalidUser
	}
	snap, err := l.store.Get(ctx, progressPath(userID))
	if err != nil {
		return p, fmt.Errorf("load progress: %w", err)
	}
	for c := models.MinCategory; c <= models.MaxCategory; c++ {
		if v, ok := snap.Int(models.VisitsField(c)); ok {
			p.Visits[c] = v
		}
		if v, ok := snap.Int(models.BadgeTierField(c)); ok {
			p.BadgeTiers[c] = int(v)
		}
	}
	return p, nil
}

// Streak returns the stored streak of a user.
func (l *Ledger) Streak(ctx context.Context, userID string) (models.StreakState, error) {
	if userID == "" {
		return models.StreakState{}, ErrInvalidUser
	}
	snap, err := l.store.Get(ctx, streakPath(userID))
	if err != nil {
		return models.StreakState{}, fmt.Errorf("load streak: %w", err)
	}
	return streakFromSnapshot(snap), nil
}

// Visit loads the dedupe record of userID at placeID on date (YYYY-MM-DD).
func (l *Ledger) Visit(ctx context.Context, userID, date, placeID string) (models.VisitRecord, bool, error) {
	if userID == "" {
		return models.VisitRecord{}, false, ErrInvalidUser
	}
	snap, err := l.store.Get(ctx, visitPath(userID, date, placeID))
	if err != nil {
		return models.VisitRecord{}, false, fmt.Errorf("load visit: %w", err)
	}
	if !snap.Exists {
		return models.VisitRecord{}, false, nil
	}

	rec := models.VisitRecord{UserID: userID, Date: date, PlaceID: placeID}
	if id, ok := snap.String(models.FieldPlaceID); ok {
		rec.PlaceID = id
	}
	if c, ok := snap.Int(models.FieldCategoryID); ok {
		rec.CategoryID = int(c)
	}
	rec.Timestamp, _ = snap.Time(models.FieldTimestamp)
	return rec, true, nil
}
