package models

import "time"

// WorkflowState is the state-machine record paired 1:1 with a Review.
// Writes go through the workflow store only.
type WorkflowState struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ReviewID        uint       `gorm:"uniqueIndex;not null" json:"review_id"`
	State           string     `gorm:"size:20;not null;index" json:"state"`
	ReminderCount   int        `gorm:"default:0" json:"reminder_count"`
	LastActionAt    time.Time  `json:"last_action_at"`
	LastReminderAt  *time.Time `json:"last_reminder_at"`
	NextReminderDue *time.Time `gorm:"index" json:"next_reminder_due"`
	Version         int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (WorkflowState) TableName() string { return "workflow_states" }
