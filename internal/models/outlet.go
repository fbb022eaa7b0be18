package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// Outlet is a tenant's place of business whose reviews are managed.
// Rows are owned by the admin surface; the engine only reads them.
type Outlet struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	Name                  string         `gorm:"size:200;not null" json:"name"`
	LocationID            string         `gorm:"size:200;index" json:"location_id"` // platform location identifier
	Category              string         `gorm:"size:100" json:"category"`
	Location              string         `gorm:"size:300" json:"location"`
	CountryCode           string         `gorm:"size:10;default:US" json:"country_code"`
	AutomationEnabled     bool           `gorm:"default:false" json:"automation_enabled"`
	OnboardingComplete    bool           `gorm:"default:false" json:"onboarding_complete"`
	SubscriptionStatus    string         `gorm:"size:20;default:active;index" json:"subscription_status"`
	SubscriptionExpiresAt *time.Time     `json:"subscription_expires_at"`
	ContactChannel        string         `gorm:"size:30" json:"contact_channel"` // slack, feishu, dingtalk, wechat_work, discord, teams, telegram, generic
	ContactAddress        string         `gorm:"size:500" json:"-"`
	ContactSecret         string         `gorm:"size:500" json:"-"`
	ContactExtra          string         `gorm:"type:text" json:"-"`
	HasContact            bool           `gorm:"-" json:"has_contact"`
	LLMConfigID           *uint          `json:"llm_config_id"`
	PromptTemplateID      *uint          `json:"prompt_template_id"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Outlet) TableName() string { return "outlets" }

func (o *Outlet) AfterFind(tx *gorm.DB) error {
	o.HasContact = o.ContactAddress != ""
	return nil
}
