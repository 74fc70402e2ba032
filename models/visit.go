package models

import "time"

// VisitRecord marks that a user visited a place on a calendar day. Its existence
// alone is the dedupe signal; it is written once and never updated.
type VisitRecord struct {
	UserID     string    `json:"user_id"`
	Date       string    `json:"date"`
	PlaceID    string    `json:"place_id"`
	CategoryID int       `json:"category_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Visit document field names.
const (
	FieldPlaceID    = "placeId"
	FieldCategoryID = "categoryId"
	FieldTimestamp  = "timestamp"
)
