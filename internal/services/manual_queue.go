package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManualQueueService routes low-rated reviews to a human.
type ManualQueueService struct {
	db        *gorm.DB
	states    *workflow.Store
	generator ReplyGenerator
	notifier  Notifier
	cfg       config.ManualConfig
	timeout   time.Duration
	now       func() time.Time
}

func NewManualQueueService(db *gorm.DB, states *workflow.Store, generator ReplyGenerator, notifier Notifier, cfg config.ManualConfig, callTimeout time.Duration) *ManualQueueService {
	return &ManualQueueService{
		db:        db,
		states:    states,
		generator: generator,
		notifier:  notifier,
		cfg:       cfg,
		timeout:   callTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue creates the pending queue item, moves the workflow to
// MANUAL_PENDING with the first reminder 15 minutes out, then best-effort
// drafts a suggestion and alerts the outlet contact.
func (s *ManualQueueService) Enqueue(ctx context.Context, review *models.Review, outlet *models.Outlet) error {
	now := s.now()
	due := workflow.FirstReminderDue(now)

	err := s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		item := &models.ManualQueueItem{
			ReviewID:        review.ID,
			OutletID:        review.OutletID,
			Status:          models.QueueStatusPending,
			ReminderCount:   0,
			NextReminderDue: &due,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "review_id"}},
			DoNothing: true,
		}).Create(item)
		if res.Error != nil {
			return fmt.Errorf("create queue item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("review %d is already queued", review.ID)
		}

		if err := tx.Model(&models.Review{}).Where("id = ?", review.ID).
			Update("status", models.ReviewStatusManualPending).Error; err != nil {
			return err
		}

		_, err := states.Transition(ctx, review.ID, workflow.ManualPending,
			workflow.WithReminderCount(0),
			workflow.WithLastReminder(nil),
			workflow.WithNextReminderDue(&due))
		return err
	})
	if err != nil {
		return err
	}
	review.Status = models.ReviewStatusManualPending

	s.refreshPendingGauge(ctx)
	logger.Info().Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Int("rating", review.Rating).
		Time("next_reminder_due", due).Msg("[ManualQueue] review queued for a human reply")

	suggestion := s.suggest(ctx, review, outlet)
	s.alert(ctx, review, outlet, suggestion)
	return nil
}

func (s *ManualQueueService) suggest(ctx context.Context, review *models.Review, outlet *models.Outlet) string {
	if !s.cfg.SuggestReply || s.generator == nil {
		return ""
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	text, err := s.generator.GenerateReply(callCtx, NewReplyRequest(review, outlet, PurposeSuggestion))
	cancel()
	if err != nil || text == "" {
		logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[ManualQueue] suggested reply unavailable")
		return ""
	}

	if err := s.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", review.ID).
		Update("suggested_reply_text", text).Error; err != nil {
		logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[ManualQueue] failed to store suggested reply")
	}
	review.SuggestedReplyText = text
	return text
}

func (s *ManualQueueService) alert(ctx context.Context, review *models.Review, outlet *models.Outlet, suggestion string) {
	dest := DestinationForOutlet(outlet)
	if dest.Address == "" || s.notifier == nil {
		return
	}
	if suggestion == "" {
		suggestion = "(none)"
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	err := s.notifier.Send(callCtx, dest, TemplateManualReviewAlert, []string{
		outlet.Name,
		customerLabel(review.CustomerName),
		strconv.Itoa(review.Rating),
		reviewExcerpt(review.Body),
		suggestion,
	})
	if err != nil {
		logger.Warn().Err(err).Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Msg("[ManualQueue] initial alert failed")
	}
}

func (s *ManualQueueService) refreshPendingGauge(ctx context.Context) {
	if n, err := s.PendingCount(ctx); err == nil {
		metrics.ManualQueuePending.Set(float64(n))
	}
}

func (s *ManualQueueService) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ManualQueueItem{}).
		Where("status = ?", models.QueueStatusPending).Count(&n).Error
	return n, err
}

type ManualQueueListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status"`
	OutletID uint   `form:"outlet_id"`
}

type ManualQueueListResponse struct {
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
	Items    []models.ManualQueueItem `json:"items"`
}

func (s *ManualQueueService) List(ctx context.Context, req *ManualQueueListRequest) (*ManualQueueListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.ManualQueueItem{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.OutletID != 0 {
		query = query.Where("outlet_id = ?", req.OutletID)
	}

	var total int64
	query.Count(&total)

	var items []models.ManualQueueItem
	offset := (req.Page - 1) * req.PageSize
	err := query.Preload("Review").
		Order("next_reminder_due ASC, id ASC").
		Offset(offset).Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &ManualQueueListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

func customerLabel(name string) string {
	if name == "" {
		return "a customer"
	}
	return name
}

func reviewExcerpt(body string) string {
	if body == "" {
		return "(no text)"
	}
	if len([]rune(body)) > 300 {
		return string([]rune(body)[:300]) + "..."
	}
	return body
}
