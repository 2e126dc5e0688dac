package models

import "time"

// Setting is a key/value row for one-shot bootstrap markers.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
