package models

import "time"

// IngestionCursor holds the per-outlet fetch watermark.
type IngestionCursor struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	OutletID            uint       `gorm:"uniqueIndex;not null" json:"outlet_id"`
	LastFetchedAt       time.Time  `json:"last_fetched_at"`
	LastSuccessAt       *time.Time `json:"last_success_at"`
	LastError           string     `gorm:"size:500" json:"last_error"`
	ConsecutiveFailures int        `gorm:"default:0" json:"consecutive_failures"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (IngestionCursor) TableName() string { return "ingestion_cursors" }
