package services

import (
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
)

// AIUsageService tracks reply-generation calls.
type AIUsageService struct {
	db *gorm.DB
}

func NewAIUsageService(db *gorm.DB) *AIUsageService {
	return &AIUsageService{db: db}
}

// Record saves a usage entry. Failures are logged, never returned.
func (s *AIUsageService) Record(entry *models.AIUsageLog) {
	if err := s.db.Create(entry).Error; err != nil {
		logger.Warnf("[AIUsage] Failed to record usage: %v", err)
	}
}

type UsageStats struct {
	TotalCalls       int64   `json:"total_calls"`
	TotalTokens      int64   `json:"total_tokens"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	SuccessRate      float64 `json:"success_rate"`
	SuccessCount     int64   `json:"success_count"`
	FailureCount     int64   `json:"failure_count"`
}

// GetStats aggregates usage in [since, until). Zero bounds are open.
func (s *AIUsageService) GetStats(since, until time.Time, outletID uint) (*UsageStats, error) {
	query := s.db.Model(&models.AIUsageLog{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if !until.IsZero() {
		query = query.Where("created_at < ?", until)
	}
	if outletID > 0 {
		query = query.Where("outlet_id = ?", outletID)
	}

	var stats UsageStats
	err := query.Select(
		"COUNT(*) as total_calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(SUM(prompt_tokens), 0) as prompt_tokens, " +
			"COALESCE(SUM(completion_tokens), 0) as completion_tokens, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, " +
			"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) as success_count, " +
			"COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) as failure_count",
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	if stats.TotalCalls > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalCalls) * 100
	}
	return &stats, nil
}

type ProviderUsage struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	TotalTokens  int     `json:"total_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// GetProviderBreakdown groups usage since the given time by provider and model.
func (s *AIUsageService) GetProviderBreakdown(since time.Time) ([]ProviderUsage, error) {
	query := s.db.Model(&models.AIUsageLog{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var results []ProviderUsage
	err := query.Select(
		"provider, model, " +
			"COUNT(*) as calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms",
	).Group("provider, model").Order("calls DESC").Scan(&results).Error
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []ProviderUsage{}
	}
	return results, nil
}
