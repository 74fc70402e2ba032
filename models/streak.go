package models

// StreakState is the per-user daily check-in streak stored at userStreaks/{userId}.
type StreakState struct {
	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`
	// LastCheckInDate is an ISO calendar date (YYYY-MM-DD) in UTC; empty when the
	// user never checked in.
	LastCheckInDate string `json:"last_checkin_date,omitempty"`
}

// Streak document field names.
const (
	FieldCurrentStreak   = "currentStreak"
	FieldBestStreak      = "bestStreak"
	FieldLastCheckInDate = "lastCheckInDate"
)
