package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrEmptyReply     = errors.New("reply text is required")
	ErrReviewNotFound = errors.New("review not found")
)

type HumanReplyResult struct {
	Review   *models.Review        `json:"review"`
	State    *models.WorkflowState `json:"state"`
	Reopened bool                  `json:"reopened"`
	Posted   bool                  `json:"posted"`
}

// HumanReplyService applies an operator's reply to a review.
type HumanReplyService struct {
	db      *gorm.DB
	states  *workflow.Store
	source  ReviewSource
	cfg     config.ManualConfig
	timeout time.Duration
	now     func() time.Time
}

func NewHumanReplyService(db *gorm.DB, states *workflow.Store, source ReviewSource, cfg config.ManualConfig, callTimeout time.Duration) *HumanReplyService {
	return &HumanReplyService{
		db:      db,
		states:  states,
		source:  source,
		cfg:     cfg,
		timeout: callTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit closes the review with the human reply. On a review that is
// already COMPLETED the text is treated as a correction and the review is
// reopened into MANUAL_PENDING.
func (s *HumanReplyService) Submit(ctx context.Context, reviewID uint, text string, handlerID *uint) (*HumanReplyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyReply
	}

	var review models.Review
	if err := s.db.WithContext(ctx).Preload("Outlet").First(&review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}

	st, err := s.states.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	if workflow.State(st.State) == workflow.Completed {
		return s.reopen(ctx, &review, text, handlerID)
	}
	return s.complete(ctx, &review, text, handlerID)
}

func (s *HumanReplyService) complete(ctx context.Context, review *models.Review, text string, handlerID *uint) (*HumanReplyResult, error) {
	now := s.now()
	var next *models.WorkflowState

	err := s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		if err := tx.Model(&models.Review{}).Where("id = ?", review.ID).Updates(map[string]interface{}{
			"human_reply_text": text,
			"status":           models.ReviewStatusClosed,
		}).Error; err != nil {
			return err
		}

		queue := map[string]interface{}{
			"status":            models.QueueStatusResponded,
			"responded_at":      now,
			"next_reminder_due": nil,
		}
		if handlerID != nil {
			queue["assigned_to"] = *handlerID
		}
		if err := tx.Model(&models.ManualQueueItem{}).Where("review_id = ?", review.ID).Updates(queue).Error; err != nil {
			return err
		}

		var err error
		next, err = states.Transition(ctx, review.ID, workflow.Completed, workflow.WithNextReminderDue(nil))
		return err
	})
	if err != nil {
		return nil, err
	}

	review.HumanReplyText = text
	review.Status = models.ReviewStatusClosed
	s.refreshPendingGauge(ctx)

	logger.Info().Uint("review_id", review.ID).Uint("outlet_id", review.OutletID).Msg("[HumanReply] review closed by operator")
	LogInfo("human_reply", "submit", fmt.Sprintf("Review %d closed with a human reply", review.ID),
		LogRef{OutletID: review.OutletID, ReviewID: review.ID}, handlerExtra(handlerID))

	result := &HumanReplyResult{Review: review, State: next}
	result.Posted = s.post(ctx, review, text)
	return result, nil
}

func (s *HumanReplyService) reopen(ctx context.Context, review *models.Review, text string, handlerID *uint) (*HumanReplyResult, error) {
	now := s.now()
	due := workflow.FirstReminderDue(now)
	var next *models.WorkflowState

	err := s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		if err := tx.Model(&models.Review{}).Where("id = ?", review.ID).Updates(map[string]interface{}{
			"human_reply_text": text,
			"status":           models.ReviewStatusManualPending,
		}).Error; err != nil {
			return err
		}

		var item models.ManualQueueItem
		err := tx.Where("review_id = ?", review.ID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.ManualQueueItem{ReviewID: review.ID, OutletID: review.OutletID}
		case err != nil:
			return err
		}
		item.Status = models.QueueStatusPending
		item.ReminderCount = 0
		item.NextReminderDue = &due
		item.LastReminderAt = nil
		item.RespondedAt = nil
		item.EscalatedAt = nil
		if handlerID != nil {
			item.AssignedTo = handlerID
		}
		if err := tx.Save(&item).Error; err != nil {
			return err
		}

		next, err = states.Transition(ctx, review.ID, workflow.ManualPending,
			workflow.WithReminderCount(0),
			workflow.WithLastReminder(nil),
			workflow.WithNextReminderDue(&due))
		return err
	})
	if err != nil {
		return nil, err
	}

	review.HumanReplyText = text
	review.Status = models.ReviewStatusManualPending
	s.refreshPendingGauge(ctx)

	logger.Info().Uint("review_id", review.ID).Time("next_reminder_due", due).Msg("[HumanReply] closed review reopened for correction")
	LogInfo("human_reply", "reopen", fmt.Sprintf("Review %d reopened by a late correction", review.ID),
		LogRef{OutletID: review.OutletID, ReviewID: review.ID}, handlerExtra(handlerID))

	return &HumanReplyResult{Review: review, State: next, Reopened: true}, nil
}

// post is best-effort; the review is already closed locally.
func (s *HumanReplyService) post(ctx context.Context, review *models.Review, text string) bool {
	if !s.cfg.PostHumanReply || s.source == nil || review.ExternalID == nil || review.Outlet == nil {
		return false
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.source.PostReply(callCtx, review.Outlet.LocationID, *review.ExternalID, text); err != nil {
		msg := truncate("post human reply: "+err.Error(), 500)
		review.LastError = msg
		s.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", review.ID).Update("last_error", msg)
		logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[HumanReply] failed to post reply to platform")
		return false
	}
	return true
}

func (s *HumanReplyService) refreshPendingGauge(ctx context.Context) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ManualQueueItem{}).
		Where("status = ?", models.QueueStatusPending).Count(&n).Error; err == nil {
		metrics.ManualQueuePending.Set(float64(n))
	}
}

func handlerExtra(handlerID *uint) interface{} {
	if handlerID == nil {
		return nil
	}
	return map[string]uint{"handler_id": *handlerID}
}
