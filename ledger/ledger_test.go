package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/hoppin/metrics"
	"github.com/cppla/hoppin/models"
	"github.com/cppla/hoppin/store"
)

// testClock is a settable store clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

var day0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newLedgerForTests(t *testing.T) (*Ledger, *store.Store, *testClock) {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	clock := &testClock{now: day0}
	s := store.NewBadger(db,
		store.WithClock(clock.Now),
		store.WithMaxAttempts(200),
		store.WithBackoff(time.Millisecond),
	)
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s, clock
}

// seed writes fields to a document outside of the ledger.
func seed(t *testing.T, s *store.Store, path string, fields store.Fields) {
	t.Helper()
	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		return tx.Set(path, fields, store.Merge())
	}))
}

func getDoc(t *testing.T, s *store.Store, path string) store.Snapshot {
	t.Helper()
	snap, err := s.Get(context.Background(), path)
	require.NoError(t, err)
	return snap
}

func TestFirstVisitCreatesRecordsAndStartsStreak(t *testing.T) {
	l, s, _ := newLedgerForTests(t)
	ctx := context.Background()

	out, err := l.RecordVisit(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, VisitRecorded, out.Status)
	assert.Equal(t, "2024-03-01", out.Date)
	assert.Equal(t, int64(1), out.Visits)
	assert.Equal(t, 0, out.BadgeTier)
	assert.False(t, out.TierUp)

	visit := getDoc(t, s, visitPath("u1", "2024-03-01", "p1"))
	require.True(t, visit.Exists)
	placeID, _ := visit.String(models.FieldPlaceID)
	categoryID, _ := visit.Int(models.FieldCategoryID)
	ts, ok := visit.Time(models.FieldTimestamp)
	assert.Equal(t, "p1", placeID)
	assert.Equal(t, int64(2), categoryID)
	require.True(t, ok)
	assert.True(t, ts.Equal(day0))

	progress := getDoc(t, s, progressPath("u1"))
	visits, _ := progress.Int(models.VisitsField(2))
	assert.Equal(t, int64(1), visits)
	_, hasTier := progress.Int(models.BadgeTierField(2))
	assert.False(t, hasTier, "tier 0 is never written")

	require.NotNil(t, out.CheckIn)
	assert.Equal(t, CheckInReset, out.CheckIn.Result)
	streak, err := l.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StreakState{CurrentStreak: 1, BestStreak: 1, LastCheckInDate: "2024-03-01"}, streak)
}

// countingStore counts transactions run through it.
type countingStore struct {
	RecordStore
	mu  sync.Mutex
	txs int
}

func (c *countingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	c.mu.Lock()
	c.txs++
	c.mu.Unlock()
	return c.RecordStore.RunTransaction(ctx, fn)
}

func TestDuplicateVisitSameDayCountsOnce(t *testing.T) {
	_, s, clock := newLedgerForTests(t)
	cs := &countingStore{RecordStore: s}
	l := New(cs)
	ctx := context.Background()

	_, err := l.RecordVisit(ctx, "u1", "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.txs, "visit plus check-in")

	before := testutil.ToFloat64(metrics.VisitsTotal.WithLabelValues(string(VisitDuplicate)))
	clock.Set(day0.Add(5 * time.Hour))
	out, err := l.RecordVisit(ctx, "u1", "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, VisitDuplicate, out.Status)
	assert.Nil(t, out.CheckIn, "duplicates do not touch the streak")
	assert.Equal(t, 3, cs.txs, "only the dedupe transaction ran")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.VisitsTotal.WithLabelValues(string(VisitDuplicate)))-before)

	visit := getDoc(t, s, visitPath("u1", "2024-03-01", "p1"))
	ts, _ := visit.Time(models.FieldTimestamp)
	assert.True(t, ts.Equal(day0), "the dedupe record is not rewritten")

	progress := getDoc(t, s, progressPath("u1"))
	visits, _ := progress.Int(models.VisitsField(3))
	assert.Equal(t, int64(1), visits)
}

func TestSamePlaceNextDayCountsAgain(t *testing.T) {
	l, _, clock := newLedgerForTests(t)
	ctx := context.Background()

	_, err := l.RecordVisit(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	clock.AddDays(1)
	out, err := l.RecordVisit(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, VisitRecorded, out.Status)
	assert.Equal(t, int64(2), out.Visits)
	require.NotNil(t, out.CheckIn)
	assert.Equal(t, CheckInContinued, out.CheckIn.Result)
	assert.Equal(t, 2, out.CheckIn.After.CurrentStreak)
}

func TestInvalidVisitsAreIgnored(t *testing.T) {
	l, s, _ := newLedgerForTests(t)
	ctx := context.Background()

	cases := []struct {
		user, place string
		category    int
	}{
		{"", "p1", 1},
		{"u1", "", 1},
		{"u1", "p1", 0},
		{"u1", "p1", 9},
		{"u1", "p1", -3},
	}
	for _, tc := range cases {
		out, err := l.RecordVisit(ctx, tc.user, tc.place, tc.category)
		require.NoError(t, err)
		assert.Equal(t, VisitIgnored, out.Status, "%+v", tc)
		assert.Nil(t, out.CheckIn)
	}

	assert.False(t, getDoc(t, s, progressPath("u1")).Exists)
	assert.False(t, getDoc(t, s, streakPath("u1")).Exists)
}

func TestBadgeTierWrittenWhenThresholdCrossed(t *testing.T) {
	l, s, clock := newLedgerForTests(t)
	ctx := context.Background()

	// Five distinct-day visits to category 2 places.
	for i := 1; i <= 5; i++ {
		out, err := l.RecordVisit(ctx, "u1", fmt.Sprintf("p%d", i), 2)
		require.NoError(t, err)
		assert.Equal(t, int64(i), out.Visits)

		tier, hasTier := getDoc(t, s, progressPath("u1")).Int(models.BadgeTierField(2))
		if i < 5 {
			assert.False(t, out.TierUp)
			assert.False(t, hasTier, "no tier before the fifth visit")
		} else {
			assert.True(t, out.TierUp)
			assert.Equal(t, 1, out.BadgeTier)
			assert.Equal(t, int64(1), tier)
		}
		clock.AddDays(1)
	}

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Visits[2])
	assert.Equal(t, 1, p.BadgeTiers[2])
}

func TestBadgeTierUntouchedBetweenThresholds(t *testing.T) {
	l, s, _ := newLedgerForTests(t)
	ctx := context.Background()

	// A tier value no count would produce shows whether the field was rewritten.
	seed(t, s, progressPath("u1"), store.Fields{
		models.VisitsField(4):    6,
		models.BadgeTierField(4): 42,
	})

	out, err := l.RecordVisit(ctx, "u1", "p9", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.Visits)
	assert.False(t, out.TierUp)

	tier, _ := getDoc(t, s, progressPath("u1")).Int(models.BadgeTierField(4))
	assert.Equal(t, int64(42), tier)
}

func TestBadgeTierCrossingFromSeededCount(t *testing.T) {
	l, s, _ := newLedgerForTests(t)
	ctx := context.Background()
	seed(t, s, progressPath("u1"), store.Fields{models.VisitsField(6): 4, models.VisitsField(1): 11})

	before := testutil.ToFloat64(metrics.BadgeTierUps.WithLabelValues("6"))
	out, err := l.RecordVisit(ctx, "u1", "p1", 6)
	require.NoError(t, err)
	assert.True(t, out.TierUp)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BadgeTierUps.WithLabelValues("6"))-before)

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.BadgeTiers[6])
	assert.Equal(t, int64(11), p.Visits[1], "other categories are left alone")
}

func TestStreakContinuesFromYesterday(t *testing.T) {
	l, s, _ := newLedgerForTests(t)
	seed(t, s, streakPath("u1"), store.Fields{
		models.FieldCurrentStreak:   6,
		models.FieldBestStreak:      6,
		models.FieldLastCheckInDate: "2024-02-29",
	})

	ci, err := l.DailyCheckIn(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, CheckInContinued, ci.Result)
	assert.True(t, ci.Changed())
	assert.Equal(t, models.StreakState{CurrentStreak: 7, BestStreak: 7, LastCheckInDate: "2024-03-01"}, ci.After)
}

func TestStreakSameDayLeavesStateUnchanged(t *testing.T) {
	l, s, clock := newLedgerForTests(t)
	ctx := context.Background()
	state := store.Fields{
		models.FieldCurrentStreak:   3,
		models.FieldBestStreak:      8,
		models.FieldLastCheckInDate: "2024-03-01",
	}
	seed(t, s, streakPath("u1"), state)

	clock.Set(day0.Add(13 * time.Hour)) // 23:00, same UTC day
	ci, err := l.DailyCheckIn(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, CheckInSameDay, ci.Result)
	assert.False(t, ci.Changed())

	streak, err := l.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StreakState{CurrentStreak: 3, BestStreak: 8, LastCheckInDate: "2024-03-01"}, streak)
}

func TestStreakResetsAfterSkippedDayKeepsBest(t *testing.T) {
	l, s, clock := newLedgerForTests(t)
	ctx := context.Background()
	seed(t, s, streakPath("u1"), store.Fields{models.FieldBestStreak: 10})

	_, err := l.DailyCheckIn(ctx, "u1") // D
	require.NoError(t, err)
	clock.AddDays(2) // D+2, D+1 skipped
	ci, err := l.DailyCheckIn(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, CheckInReset, ci.Result)
	assert.Equal(t, models.StreakState{CurrentStreak: 1, BestStreak: 10, LastCheckInDate: "2024-03-03"}, ci.After)
}

func TestBestStreakSurvivesReset(t *testing.T) {
	l, _, clock := newLedgerForTests(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.RecordVisit(ctx, "u1", "p1", 5)
		require.NoError(t, err)
		clock.AddDays(1)
	}
	clock.AddDays(3)
	_, err := l.RecordVisit(ctx, "u1", "p1", 5)
	require.NoError(t, err)

	streak, err := l.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 3, streak.BestStreak)
}

func TestDailyCheckInRejectsEmptyUser(t *testing.T) {
	l, _, _ := newLedgerForTests(t)
	_, err := l.DailyCheckIn(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidUser)
	_, err = l.Progress(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestConcurrentVisitsToDifferentPlacesAllCount(t *testing.T) {
	l, _, _ := newLedgerForTests(t)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.RecordVisit(ctx, "u1", fmt.Sprintf("place-%d", i), 7)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), p.Visits[7])
	assert.Equal(t, 1, p.BadgeTiers[7])

	streak, err := l.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak, "many visits on one day count as one streak day")
}

func TestConcurrentDuplicateVisitsRecordOnce(t *testing.T) {
	l, _, _ := newLedgerForTests(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make(chan VisitStatus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.RecordVisit(ctx, "u1", "same-place", 2)
			if err != nil {
				results <- VisitFailed
				return
			}
			results <- out.Status
		}()
	}
	wg.Wait()
	close(results)

	counts := map[VisitStatus]int{}
	for st := range results {
		counts[st]++
	}
	assert.Equal(t, 1, counts[VisitRecorded])
	assert.Equal(t, n-1, counts[VisitDuplicate])

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Visits[2])
}

// failingCheckInStore lets the visit transaction through and fails the next one.
type failingCheckInStore struct {
	RecordStore
	calls int
}

var errStoreDown = errors.New("store down")

func (f *failingCheckInStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	f.calls++
	if f.calls > 1 {
		return errStoreDown
	}
	return f.RecordStore.RunTransaction(ctx, fn)
}

func TestStreakFailureAfterCommittedVisit(t *testing.T) {
	_, s, _ := newLedgerForTests(t)
	l := New(&failingCheckInStore{RecordStore: s})

	out, err := l.RecordVisit(context.Background(), "u1", "p1", 1)
	require.ErrorIs(t, err, ErrStreakNotAdvanced)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, VisitRecorded, out.Status, "the visit stays committed")
	assert.Nil(t, out.CheckIn)

	visits, _ := getDoc(t, s, progressPath("u1")).Int(models.VisitsField(1))
	assert.Equal(t, int64(1), visits)
}

func TestRecordVisitOnlyLeavesStreakAlone(t *testing.T) {
	l, s, _ := newLedgerForTests(t)

	out, err := l.RecordVisitOnly(context.Background(), "u1", "p1", 8)
	require.NoError(t, err)
	assert.Equal(t, VisitRecorded, out.Status)
	assert.False(t, getDoc(t, s, streakPath("u1")).Exists)
}

func TestDateKeyFollowsStoreClockAcrossMidnight(t *testing.T) {
	l, s, clock := newLedgerForTests(t)
	ctx := context.Background()

	clock.Set(time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC))
	_, err := l.RecordVisit(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	clock.Set(time.Date(2024, 3, 2, 0, 0, 1, 0, time.UTC))
	out, err := l.RecordVisit(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, VisitRecorded, out.Status)
	assert.Equal(t, "2024-03-02", out.Date)

	ts, _ := getDoc(t, s, visitPath("u1", "2024-03-02", "p1")).Time(models.FieldTimestamp)
	assert.Equal(t, "2024-03-02", DateKey(ts), "dedupe key and timestamp agree on the day")
}

func TestVisitLoadsDedupeRecord(t *testing.T) {
	l, _, _ := newLedgerForTests(t)
	ctx := context.Background()

	_, found, err := l.Visit(ctx, "u1", "2024-03-01", "p/1")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = l.RecordVisit(ctx, "u1", "p/1", 4)
	require.NoError(t, err)

	rec, found, err := l.Visit(ctx, "u1", "2024-03-01", "p/1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "p/1", rec.PlaceID)
	assert.Equal(t, 4, rec.CategoryID)
	assert.True(t, rec.Timestamp.Equal(day0))
}
