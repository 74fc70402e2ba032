package ledger

import "time"

// DateLayout is the ISO calendar date used in dedupe keys and streak records.
const DateLayout = "2006-01-02"

// DateKey formats t as a UTC calendar date.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func previousDateKey(t time.Time) string {
	return t.UTC().AddDate(0, 0, -1).Format(DateLayout)
}
