package models

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestSeed_Restart(t *testing.T) {
	db := openTestDB(t)

	if err := Seed(db); err != nil {
		t.Fatalf("first Seed() error: %v", err)
	}
	if err := Seed(db); err != nil {
		t.Fatalf("second Seed() error: %v", err)
	}

	var prompts, configs int64
	db.Model(&PromptTemplate{}).Count(&prompts)
	db.Model(&SystemConfig{}).Count(&configs)
	if prompts != 1 {
		t.Errorf("prompt templates = %d, expected 1", prompts)
	}
	if configs != 4 {
		t.Errorf("system configs = %d, expected 4", configs)
	}

	// a config removed between restarts is restored without touching the others
	db.Where(&SystemConfig{Key: "daily_digest_time"}).Delete(&SystemConfig{})
	db.Model(&SystemConfig{}).Where(&SystemConfig{Key: "log_retention_days"}).Update("value", "7")
	if err := Seed(db); err != nil {
		t.Fatalf("third Seed() error: %v", err)
	}

	var restored SystemConfig
	if err := configByKey(db, "daily_digest_time").First(&restored).Error; err != nil || restored.Value != "18:00" {
		t.Errorf("daily_digest_time = %+v, %v", restored, err)
	}
	var kept SystemConfig
	configByKey(db, "log_retention_days").First(&kept)
	if kept.Value != "7" {
		t.Errorf("log_retention_days = %q, expected operator value to survive", kept.Value)
	}
}

func TestConfigByKey_QuotesColumn(t *testing.T) {
	db := openTestDB(t)

	var rows []SystemConfig
	stmt := configByKey(db.Session(&gorm.Session{DryRun: true}), "daily_digest_time").Find(&rows).Statement
	sql := stmt.SQL.String()
	if !strings.Contains(sql, "`key`") {
		t.Errorf("SQL = %q, expected the key column to be quoted", sql)
	}
}
