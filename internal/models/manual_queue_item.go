package models

import "time"

const (
	QueueStatusPending   = "pending"
	QueueStatusResponded = "responded"
	QueueStatusEscalated = "escalated"
)

// ManualQueueItem is a pending human-response work item.
type ManualQueueItem struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ReviewID        uint       `gorm:"uniqueIndex;not null" json:"review_id"`
	OutletID        uint       `gorm:"index;not null" json:"outlet_id"`
	AssignedTo      *uint      `gorm:"index" json:"assigned_to"`
	Status          string     `gorm:"size:20;default:pending;index:idx_queue_due,priority:1" json:"status"`
	ReminderCount   int        `gorm:"default:0" json:"reminder_count"`
	NextReminderDue *time.Time `gorm:"index:idx_queue_due,priority:2" json:"next_reminder_due"`
	LastReminderAt  *time.Time `json:"last_reminder_at"`
	RespondedAt     *time.Time `json:"responded_at"`
	EscalatedAt     *time.Time `json:"escalated_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Review *Review `gorm:"foreignKey:ReviewID" json:"review,omitempty"`
}

func (ManualQueueItem) TableName() string { return "manual_queue_items" }
