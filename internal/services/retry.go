package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
)

const (
	DefaultResumeAttempts = 3
	ResumeBatchSize       = 100
)

type ResumeStats struct {
	Attempted int `json:"attempted"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gave_up"`
	Skipped   int `json:"skipped"`
}

// ResumeService re-drives reviews left behind by a failed generation, post
// or routing step. Each review gets a bounded number of attempts.
type ResumeService struct {
	db          *gorm.DB
	router      *Router
	maxAttempts int
	now         func() time.Time
}

func NewResumeService(db *gorm.DB, router *Router, maxAttempts int) *ResumeService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultResumeAttempts
	}
	return &ResumeService{
		db:          db,
		router:      router,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run picks stuck reviews last touched before olderThan, so rows handled
// earlier in the same batch are not retried straight away.
func (s *ResumeService) Run(ctx context.Context, olderThan time.Time) (*ResumeStats, error) {
	stats := &ResumeStats{}

	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.WorkflowState{}).
		Joins("JOIN reviews ON reviews.id = workflow_states.review_id").
		Where("workflow_states.last_action_at < ?", olderThan).
		Where("reviews.resume_attempts < ?", s.maxAttempts).
		Where("(workflow_states.state = ?) OR (workflow_states.state = ? AND reviews.status <> ?)",
			string(workflow.Pending), string(workflow.AutoReplied), models.ReviewStatusClosed).
		Order("workflow_states.last_action_at ASC").
		Limit(ResumeBatchSize).
		Pluck("workflow_states.review_id", &ids).Error
	if err != nil {
		return stats, fmt.Errorf("select stuck reviews: %w", err)
	}
	if len(ids) == 0 {
		return stats, nil
	}

	logger.Infof("[Resume] Processing %d stuck reviews", len(ids))
	now := s.now()
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		s.resumeOne(ctx, id, now, stats)
	}
	return stats, nil
}

func (s *ResumeService) resumeOne(ctx context.Context, reviewID uint, now time.Time, stats *ResumeStats) {
	var review models.Review
	if err := s.db.WithContext(ctx).Preload("Outlet").First(&review, reviewID).Error; err != nil {
		logger.Warn().Err(err).Uint("review_id", reviewID).Msg("[Resume] review not found")
		stats.Skipped++
		return
	}
	if review.Outlet == nil || !IsEligible(review.Outlet, now) {
		stats.Skipped++
		return
	}

	review.ResumeAttempts++
	if err := s.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", review.ID).
		Update("resume_attempts", review.ResumeAttempts).Error; err != nil {
		logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[Resume] failed to count attempt")
		stats.Skipped++
		return
	}
	stats.Attempted++

	logger.Info().Uint("review_id", review.ID).Int("attempt", review.ResumeAttempts).Int("max", s.maxAttempts).Msg("[Resume] retrying review")

	if _, err := s.router.Route(ctx, &review, review.Outlet); err != nil {
		stats.Failed++
		if review.ResumeAttempts >= s.maxAttempts {
			stats.GaveUp++
			logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[Resume] attempts exhausted, needs manual intervention")
			LogWarning("resume", "give_up",
				fmt.Sprintf("Review %d still stuck after %d attempts: %v", review.ID, review.ResumeAttempts, err),
				LogRef{OutletID: review.OutletID, ReviewID: review.ID}, nil)
		}
		return
	}
	stats.Recovered++
}

// Reset gives an operator-selected review a fresh attempt budget.
func (s *ResumeService) Reset(ctx context.Context, reviewID uint) error {
	var review models.Review
	if err := s.db.WithContext(ctx).Select("id").First(&review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReviewNotFound
		}
		return err
	}
	return s.db.WithContext(ctx).Model(&review).Update("resume_attempts", 0).Error
}
