package models

import "time"

// Document is one record of the relational store backend. Fields holds the JSON
// object of the document; Version increases on every committed write.
type Document struct {
	Path      string    `gorm:"primaryKey;size:512" json:"path"`
	Fields    string    `gorm:"type:text;not null" json:"fields"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name so that external tooling can read it.
func (Document) TableName() string {
	return "documents"
}
