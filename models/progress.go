package models

import "strconv"

const (
	// MinCategory and MaxCategory bound the place categories a visit can count toward.
	MinCategory = 1
	MaxCategory = 8
)

// CategoryProgress holds per-category visit counts and badge tiers for one user.
// Index 0 is unused so that Visits[c] addresses category c directly.
type CategoryProgress struct {
	Visits     [MaxCategory + 1]int64 `json:"visits"`
	BadgeTiers [MaxCategory + 1]int   `json:"badge_tiers"`
}

// ValidCategory reports whether c is a countable category id.
func ValidCategory(c int) bool {
	return c >= MinCategory && c <= MaxCategory
}

// VisitsField returns the progress document field holding the visit count of category c.
func VisitsField(c int) string {
	return "cat" + strconv.Itoa(c) + "_visits"
}

// BadgeTierField returns the progress document field holding the badge tier of category c.
func BadgeTierField(c int) string {
	return "cat" + strconv.Itoa(c) + "_badgeTier"
}
