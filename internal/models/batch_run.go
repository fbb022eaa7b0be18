package models

import "time"

const (
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
	BatchStatusSkipped   = "skipped"
)

// BatchRun records one pass of the batch loop.
type BatchRun struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	Trigger           string     `gorm:"size:20" json:"trigger"` // startup, cron, manual
	Status            string     `gorm:"size:20;index" json:"status"`
	StartedAt         time.Time  `gorm:"index" json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	OutletsTotal      int        `json:"outlets_total"`
	OutletsFailed     int        `json:"outlets_failed"`
	ReviewsIngested   int        `json:"reviews_ingested"`
	DuplicatesSkipped int        `json:"duplicates_skipped"`
	AlreadyReplied    int        `json:"already_replied"`
	Resumed           int        `json:"resumed"`
	RemindersSent     int        `json:"reminders_sent"`
	Escalations       int        `json:"escalations"`
	Error             string     `gorm:"type:text" json:"error,omitempty"`
}

func (BatchRun) TableName() string { return "batch_runs" }
