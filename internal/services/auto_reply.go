package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
)

// AutoReplyService answers high-rated reviews without a human.
type AutoReplyService struct {
	db        *gorm.DB
	states    *workflow.Store
	generator ReplyGenerator
	source    ReviewSource
	timeout   time.Duration
}

func NewAutoReplyService(db *gorm.DB, states *workflow.Store, generator ReplyGenerator, source ReviewSource, callTimeout time.Duration) *AutoReplyService {
	return &AutoReplyService{
		db:        db,
		states:    states,
		generator: generator,
		source:    source,
		timeout:   callTimeout,
	}
}

// Handle drives a review through PENDING -> AUTO_REPLIED -> COMPLETED.
// A generation failure leaves it PENDING; a post failure leaves it
// AUTO_REPLIED with the review still open. Both return the error.
func (s *AutoReplyService) Handle(ctx context.Context, review *models.Review, outlet *models.Outlet) error {
	st, err := s.states.Get(ctx, review.ID)
	if err != nil {
		return err
	}

	switch workflow.State(st.State) {
	case workflow.Pending:
		if err := s.generate(ctx, review, outlet); err != nil {
			return err
		}
	case workflow.AutoReplied:
		if review.IsClosed() {
			return nil
		}
		if review.AIReplyText == "" {
			// nothing to post; cannot go back to PENDING
			return fmt.Errorf("review %d is AUTO_REPLIED without reply text", review.ID)
		}
	default:
		return nil
	}

	return s.post(ctx, review, outlet)
}

func (s *AutoReplyService) generate(ctx context.Context, review *models.Review, outlet *models.Outlet) error {
	callCtx, cancel := withTimeout(ctx, s.timeout)
	text, err := s.generator.GenerateReply(callCtx, NewReplyRequest(review, outlet, PurposeAutoReply))
	cancel()
	if err == nil && text == "" {
		err = ErrGenerationEmpty
	}
	if err != nil {
		metrics.AutoReplies.WithLabelValues("generation_failed").Inc()
		s.recordError(ctx, review, "generation: "+err.Error())
		logger.Warn().Err(err).Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Msg("[AutoReply] generation failed, review stays PENDING")
		return fmt.Errorf("generate reply: %w", err)
	}

	err = s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		res := tx.Model(&models.Review{}).Where("id = ?", review.ID).Updates(map[string]interface{}{
			"ai_reply_text": text,
			"status":        models.ReviewStatusAutoReplied,
			"last_error":    "",
		})
		if res.Error != nil {
			return res.Error
		}
		_, err := states.Transition(ctx, review.ID, workflow.AutoReplied)
		return err
	})
	if err != nil {
		return err
	}

	review.AIReplyText = text
	review.Status = models.ReviewStatusAutoReplied
	review.LastError = ""
	return nil
}

func (s *AutoReplyService) post(ctx context.Context, review *models.Review, outlet *models.Outlet) error {
	if review.ExternalID == nil || *review.ExternalID == "" {
		return errors.New("review has no external id to reply to")
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	err := s.source.PostReply(callCtx, outlet.LocationID, *review.ExternalID, review.AIReplyText)
	cancel()
	if err != nil {
		metrics.AutoReplies.WithLabelValues("post_failed").Inc()
		s.recordError(ctx, review, "post: "+err.Error())
		logger.Warn().Err(err).Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Msg("[AutoReply] post failed, review stays AUTO_REPLIED")
		return fmt.Errorf("post reply: %w", err)
	}

	err = s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		res := tx.Model(&models.Review{}).Where("id = ?", review.ID).Updates(map[string]interface{}{
			"status":     models.ReviewStatusClosed,
			"last_error": "",
		})
		if res.Error != nil {
			return res.Error
		}
		_, err := states.Transition(ctx, review.ID, workflow.Completed)
		return err
	})
	if err != nil {
		return err
	}

	review.Status = models.ReviewStatusClosed
	review.LastError = ""
	metrics.AutoReplies.WithLabelValues("posted").Inc()
	logger.Info().Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Msg("[AutoReply] reply posted")
	return nil
}

func (s *AutoReplyService) recordError(ctx context.Context, review *models.Review, msg string) {
	msg = truncate(msg, 500)
	review.LastError = msg
	if err := s.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", review.ID).Update("last_error", msg).Error; err != nil {
		logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[AutoReply] failed to record error")
	}
}
