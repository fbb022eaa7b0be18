package models

import (
	"fmt"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

// AllModels lists every table the engine owns, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Outlet{},
		&Review{},
		&WorkflowState{},
		&ManualQueueItem{},
		&IngestionCursor{},
		&BatchRun{},
		&SchedulerLock{},
		&LLMConfig{},
		&PromptTemplate{},
		&AIUsageLog{},
		&SystemConfig{},
		&SystemLog{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs AutoMigrate for all models against db.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// DefaultReplyPrompt is the system reply prompt seeded on first start.
const DefaultReplyPrompt = `You write short, warm public replies to customer reviews on behalf of a local business.

Business: {{outlet_name}} ({{outlet_category}}), {{outlet_location}}
Customer: {{customer_name}}
Rating: {{rating}} out of 5
Review:
{{review_text}}

Rules:
- Reply in the language of the review; default to English when the review is empty.
- Thank the customer by first name when one is available.
- For ratings of 3 or lower, apologise once, acknowledge the specific issue and invite them to get in touch. Never offer refunds or compensation.
- Keep it under 80 words. No hashtags, no emojis, no signatures.

Output only the reply text.`

func Seed(db *gorm.DB) error {
	var promptCount int64
	if err := db.Model(&PromptTemplate{}).Where(&PromptTemplate{IsSystem: true}).Count(&promptCount).Error; err != nil {
		return err
	}
	if promptCount == 0 {
		prompt := PromptTemplate{
			Name:        "Default Review Reply",
			Description: "Default public reply prompt for customer reviews",
			Content:     DefaultReplyPrompt,
			Variables:   `["outlet_name", "outlet_category", "outlet_location", "customer_name", "rating", "review_text"]`,
			IsDefault:   true,
			IsSystem:    true,
		}
		if err := db.Create(&prompt).Error; err != nil {
			return err
		}
	}

	defaultConfigs := []SystemConfig{
		{Key: "log_retention_days", Value: "30", Type: "int", Group: "system", Label: "System Log Retention Days"},
		{Key: "daily_digest_enabled", Value: "false", Type: "bool", Group: "digest", Label: "Enable Daily Digest"},
		{Key: "daily_digest_time", Value: "18:00", Type: "string", Group: "digest", Label: "Daily Digest Time (HH:MM)"},
		{Key: "daily_digest_skip_holidays", Value: "true", Type: "bool", Group: "digest", Label: "Skip Digest On Non-Workdays"},
	}

	for _, cfg := range defaultConfigs {
		var count int64
		if err := configByKey(db, cfg.Key).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// configByKey uses a struct condition so the reserved column name "key" is
// quoted by the dialect.
func configByKey(db *gorm.DB, key string) *gorm.DB {
	return db.Model(&SystemConfig{}).Where(&SystemConfig{Key: key})
}
