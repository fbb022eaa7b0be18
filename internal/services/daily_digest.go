package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DigestStats are one outlet's numbers for a day.
type DigestStats struct {
	OutletID      uint  `json:"outlet_id"`
	Ingested      int64 `json:"ingested"`
	AutoReplied   int64 `json:"auto_replied"`
	ManualPending int64 `json:"manual_pending"`
	Escalated     int64 `json:"escalated"`
}

type DigestResult struct {
	Date    string `json:"date"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// DailyDigestService sends each eligible outlet a summary of the day.
type DailyDigestService struct {
	db          *gorm.DB
	settings    *SystemConfigService
	eligibility *EligibilityService
	notifier    Notifier
	holidays    *HolidayService
	now         func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewDailyDigestService(db *gorm.DB, settings *SystemConfigService, eligibility *EligibilityService, notifier Notifier, holidays *HolidayService) *DailyDigestService {
	return &DailyDigestService{
		db:          db,
		settings:    settings,
		eligibility: eligibility,
		notifier:    notifier,
		holidays:    holidays,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *DailyDigestService) StartScheduler() {
	s.mu.Lock()
	s.cron = cron.New(cron.WithLocation(time.UTC), cron.WithLogger(logger.CronLogger{}))
	s.cron.Start()
	s.mu.Unlock()

	s.UpdateSchedule()
	logger.Infof("[DailyDigest] Scheduler started")
}

func (s *DailyDigestService) StopScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
	}
}

// UpdateSchedule re-reads daily_digest_time and replaces the cron entry.
func (s *DailyDigestService) UpdateSchedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	at := s.settings.GetDigestSettings().Time
	expr, err := digestCronExpr(at)
	if err != nil {
		logger.Warnf("[DailyDigest] Invalid daily_digest_time %q, using 18:00: %v", at, err)
		expr = "0 18 * * *"
	}

	entryID, err := s.cron.AddFunc(expr, func() {
		if _, err := s.Run(context.Background()); err != nil {
			logger.Errorf("[DailyDigest] Run failed: %v", err)
		}
	})
	if err != nil {
		logger.Errorf("[DailyDigest] Failed to add cron job: %v", err)
		return
	}
	s.entryID = entryID
	logger.Infof("[DailyDigest] Scheduled at %s UTC (cron: %s)", at, expr)
}

// digestCronExpr turns HH:MM into a daily cron expression.
func digestCronExpr(hhmm string) (string, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad minute %q", parts[1])
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Run sends today's digest to every eligible outlet with a contact channel.
// It is a no-op while the digest is disabled.
func (s *DailyDigestService) Run(ctx context.Context) (*DigestResult, error) {
	settings := s.settings.GetDigestSettings()
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	result := &DigestResult{Date: start.Format("2006-01-02")}
	if !settings.Enabled {
		return result, nil
	}

	outlets, err := s.eligibility.ListEligible(ctx)
	if err != nil {
		return result, fmt.Errorf("list eligible outlets: %w", err)
	}

	for i := range outlets {
		outlet := &outlets[i]
		dest := DestinationForOutlet(outlet)
		if dest.Address == "" {
			result.Skipped++
			continue
		}
		if settings.SkipHolidays && !s.holidays.IsWorkday(now, outlet.CountryCode) {
			result.Skipped++
			continue
		}

		stats, err := s.Stats(ctx, outlet.ID, start, start.Add(24*time.Hour))
		if err != nil {
			result.Failed++
			logger.Warn().Err(err).Uint("outlet_id", outlet.ID).Msg("[DailyDigest] stats failed")
			continue
		}

		err = s.notifier.Send(ctx, dest, TemplateDailyDigest, []string{
			outlet.Name,
			result.Date,
			strconv.FormatInt(stats.Ingested, 10),
			strconv.FormatInt(stats.AutoReplied, 10),
			strconv.FormatInt(stats.ManualPending, 10),
			strconv.FormatInt(stats.Escalated, 10),
		})
		if err != nil {
			result.Failed++
			logger.Warn().Err(err).Uint("outlet_id", outlet.ID).Msg("[DailyDigest] send failed")
			continue
		}
		result.Sent++
	}

	logger.Info().Str("date", result.Date).Int("sent", result.Sent).Int("failed", result.Failed).Int("skipped", result.Skipped).
		Msg("[DailyDigest] digest finished")
	return result, nil
}

// Stats counts the window [start, end) for one outlet. ManualPending is the
// current queue size, not a windowed count.
func (s *DailyDigestService) Stats(ctx context.Context, outletID uint, start, end time.Time) (*DigestStats, error) {
	stats := &DigestStats{OutletID: outletID}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Review{}).
		Where("outlet_id = ? AND created_at >= ? AND created_at < ?", outletID, start, end).
		Count(&stats.Ingested).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Review{}).
		Where("outlet_id = ? AND ai_reply_text <> '' AND status IN ? AND updated_at >= ? AND updated_at < ?",
			outletID, []string{models.ReviewStatusAutoReplied, models.ReviewStatusClosed}, start, end).
		Count(&stats.AutoReplied).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ManualQueueItem{}).
		Where("outlet_id = ? AND status = ?", outletID, models.QueueStatusPending).
		Count(&stats.ManualPending).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ManualQueueItem{}).
		Where("outlet_id = ? AND status = ? AND escalated_at >= ? AND escalated_at < ?", outletID, models.QueueStatusEscalated, start, end).
		Count(&stats.Escalated).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
