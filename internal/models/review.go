package models

import "time"

// Review status values mirror the workflow at a coarser grain.
const (
	ReviewStatusPending       = "pending"
	ReviewStatusAutoReplied   = "auto_replied"
	ReviewStatusManualPending = "manual_pending"
	ReviewStatusClosed        = "closed"
)

// Review is one ingested customer review.
type Review struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	OutletID           uint       `gorm:"index;not null" json:"outlet_id"`
	Rating             int        `gorm:"not null" json:"rating"`
	CustomerName       string     `gorm:"size:200" json:"customer_name"`
	Body               string     `gorm:"type:text" json:"body"`
	ExternalID         *string    `gorm:"size:255;uniqueIndex" json:"external_id"`
	Status             string     `gorm:"size:20;default:pending;index" json:"status"`
	AIReplyText        string     `gorm:"type:text" json:"ai_reply_text,omitempty"`
	SuggestedReplyText string     `gorm:"type:text" json:"suggested_reply_text,omitempty"`
	HumanReplyText     string     `gorm:"type:text" json:"human_reply_text,omitempty"`
	ResumeAttempts     int        `gorm:"default:0" json:"resume_attempts"`
	LastError          string     `gorm:"size:500" json:"last_error,omitempty"`
	SourceCreatedAt    *time.Time `json:"source_created_at"`
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Outlet *Outlet `gorm:"foreignKey:OutletID" json:"outlet,omitempty"`
}

func (Review) TableName() string { return "reviews" }

func (r *Review) IsClosed() bool { return r.Status == ReviewStatusClosed }
