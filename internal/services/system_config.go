package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SystemConfigService) GetBool(key string, defaultValue bool) bool {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return b
}

func (s *SystemConfigService) GetInt(key string, defaultValue int) int {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Group: group}).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// DigestSettings is the daily digest configuration.
type DigestSettings struct {
	Enabled      bool   `json:"enabled"`
	Time         string `json:"time"` // HH:MM
	SkipHolidays bool   `json:"skip_holidays"`
}

func (s *SystemConfigService) GetDigestSettings() DigestSettings {
	return DigestSettings{
		Enabled:      s.GetBool("daily_digest_enabled", false),
		Time:         s.GetWithDefault("daily_digest_time", "18:00"),
		SkipHolidays: s.GetBool("daily_digest_skip_holidays", true),
	}
}

type UpdateDigestSettingsRequest struct {
	Enabled      *bool   `json:"enabled"`
	Time         *string `json:"time"`
	SkipHolidays *bool   `json:"skip_holidays"`
}

// UpdateDigestSettings applies the non-nil fields. The time is validated
// before anything is written.
func (s *SystemConfigService) UpdateDigestSettings(req *UpdateDigestSettingsRequest) (DigestSettings, error) {
	if req.Time != nil {
		t := strings.TrimSpace(*req.Time)
		if _, err := digestCronExpr(t); err != nil {
			return DigestSettings{}, err
		}
		if err := s.Set("daily_digest_time", t); err != nil {
			return DigestSettings{}, err
		}
	}
	if req.Enabled != nil {
		if err := s.Set("daily_digest_enabled", strconv.FormatBool(*req.Enabled)); err != nil {
			return DigestSettings{}, err
		}
	}
	if req.SkipHolidays != nil {
		if err := s.Set("daily_digest_skip_holidays", strconv.FormatBool(*req.SkipHolidays)); err != nil {
			return DigestSettings{}, err
		}
	}
	return s.GetDigestSettings(), nil
}
