package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
)

const reminderBatchSize = 200

var errQueueItemChanged = errors.New("queue item changed concurrently")

type ReminderStats struct {
	Processed  int `json:"processed"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	NoChannel  int `json:"no_channel"`
	Skipped    int `json:"skipped"`
	Reconciled int `json:"reconciled"`
	Escalated  int `json:"escalated"`
}

// ReminderService sends reminders for due queue items and escalates once
// the reminder budget is spent.
type ReminderService struct {
	db       *gorm.DB
	states   *workflow.Store
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
}

func NewReminderService(db *gorm.DB, states *workflow.Store, notifier Notifier, callTimeout time.Duration) *ReminderService {
	return &ReminderService{
		db:       db,
		states:   states,
		notifier: notifier,
		timeout:  callTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDue handles every pending item whose reminder is due. Each item is
// isolated; one failure never stops the rest.
func (s *ReminderService) ProcessDue(ctx context.Context) (*ReminderStats, error) {
	now := s.now()
	stats := &ReminderStats{}

	var items []models.ManualQueueItem
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_reminder_due IS NOT NULL AND next_reminder_due <= ?", models.QueueStatusPending, now).
		Order("next_reminder_due ASC, id ASC").
		Limit(reminderBatchSize).
		Find(&items).Error
	if err != nil {
		return stats, fmt.Errorf("select due reminders: %w", err)
	}

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		stats.Processed++
		if err := s.processItem(ctx, &items[i], now, stats); err != nil {
			stats.Skipped++
			logger.Error().Err(err).Uint("review_id", items[i].ReviewID).Uint("queue_item_id", items[i].ID).Msg("[Reminder] item failed")
		}
	}

	if n, err := s.pendingCount(ctx); err == nil {
		metrics.ManualQueuePending.Set(float64(n))
	}
	if stats.Processed > 0 {
		logger.Info().Int("processed", stats.Processed).Int("sent", stats.Sent).Int("failed", stats.Failed).
			Int("no_channel", stats.NoChannel).Int("escalated", stats.Escalated).Int("reconciled", stats.Reconciled).
			Msg("[Reminder] cycle finished")
	}
	return stats, nil
}

func (s *ReminderService) processItem(ctx context.Context, item *models.ManualQueueItem, now time.Time, stats *ReminderStats) error {
	st, err := s.states.Get(ctx, item.ReviewID)
	if err != nil {
		return fmt.Errorf("load workflow state: %w", err)
	}

	switch workflow.State(st.State) {
	case workflow.Escalated, workflow.Completed:
		// the two stores drifted; the workflow wins
		metrics.Reminders.WithLabelValues("skipped").Inc()
		stats.Reconciled++
		return s.reconcile(ctx, item, workflow.State(st.State), now)
	case workflow.ManualPending:
	default:
		metrics.Reminders.WithLabelValues("skipped").Inc()
		return fmt.Errorf("queue item pending but workflow is %s", st.State)
	}

	var review models.Review
	if err := s.db.WithContext(ctx).Preload("Outlet").First(&review, item.ReviewID).Error; err != nil {
		return fmt.Errorf("load review: %w", err)
	}
	outlet := review.Outlet
	if outlet == nil {
		outlet = &models.Outlet{ID: item.OutletID}
	}

	if item.ReminderCount >= workflow.MaxReminders {
		if err := s.escalate(ctx, item, &review, outlet, now); err != nil {
			return err
		}
		stats.Escalated++
		return nil
	}

	result := s.sendReminder(ctx, item, &review, outlet)
	switch result {
	case "sent":
		stats.Sent++
	case "no_channel":
		stats.NoChannel++
	default:
		stats.Failed++
	}
	metrics.Reminders.WithLabelValues(result).Inc()

	return s.advance(ctx, item, now)
}

// sendReminder returns sent, failed or no_channel. A missing channel counts
// as a failed send for escalation purposes.
func (s *ReminderService) sendReminder(ctx context.Context, item *models.ManualQueueItem, review *models.Review, outlet *models.Outlet) string {
	dest := DestinationForOutlet(outlet)
	if dest.Address == "" || s.notifier == nil {
		logger.Debug().Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Msg("[Reminder] no contact channel on file")
		return "no_channel"
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	err := s.notifier.Send(callCtx, dest, TemplateReviewReminder, []string{
		outlet.Name,
		customerLabel(review.CustomerName),
		strconv.Itoa(review.Rating),
		strconv.Itoa(item.ReminderCount + 1),
		strconv.Itoa(workflow.MaxReminders),
	})
	if err != nil {
		logger.Warn().Err(err).Uint("review_id", review.ID).Int("reminder", item.ReminderCount+1).Msg("[Reminder] send failed")
		return "failed"
	}
	return "sent"
}

// advance bumps the count and schedules the next reminder in both stores.
func (s *ReminderService) advance(ctx context.Context, item *models.ManualQueueItem, sentAt time.Time) error {
	count := item.ReminderCount + 1
	nextDue := sentAt.Add(workflow.NextReminderDelay(count))

	err := s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		res := tx.Model(&models.ManualQueueItem{}).
			Where("id = ? AND status = ? AND reminder_count = ?", item.ID, models.QueueStatusPending, item.ReminderCount).
			Updates(map[string]interface{}{
				"reminder_count":    count,
				"next_reminder_due": nextDue,
				"last_reminder_at":  sentAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errQueueItemChanged
		}
		_, err := states.RecordReminder(ctx, item.ReviewID, count, sentAt, &nextDue)
		return err
	})
	if err != nil {
		return fmt.Errorf("advance reminder: %w", err)
	}

	item.ReminderCount = count
	item.NextReminderDue = &nextDue
	item.LastReminderAt = &sentAt
	return nil
}

func (s *ReminderService) escalate(ctx context.Context, item *models.ManualQueueItem, review *models.Review, outlet *models.Outlet, now time.Time) error {
	err := s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		res := tx.Model(&models.ManualQueueItem{}).
			Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
			Updates(map[string]interface{}{
				"status":            models.QueueStatusEscalated,
				"next_reminder_due": nil,
				"escalated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errQueueItemChanged
		}
		_, err := states.Transition(ctx, item.ReviewID, workflow.Escalated, workflow.WithNextReminderDue(nil))
		return err
	})
	if err != nil {
		return fmt.Errorf("escalate: %w", err)
	}

	item.Status = models.QueueStatusEscalated
	item.NextReminderDue = nil
	item.EscalatedAt = &now
	metrics.Escalations.Inc()

	logger.Warn().Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Int("reminders", item.ReminderCount).Msg("[Reminder] review escalated")
	LogWarning("reminder", "escalate",
		fmt.Sprintf("Review %d escalated after %d reminders", review.ID, item.ReminderCount),
		LogRef{OutletID: outlet.ID, ReviewID: review.ID}, nil)

	s.notifyEscalation(ctx, item, review, outlet)
	return nil
}

func (s *ReminderService) notifyEscalation(ctx context.Context, item *models.ManualQueueItem, review *models.Review, outlet *models.Outlet) {
	dest := DestinationForOutlet(outlet)
	if dest.Address == "" || s.notifier == nil {
		return
	}
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	err := s.notifier.Send(callCtx, dest, TemplateReviewEscalated, []string{
		outlet.Name,
		customerLabel(review.CustomerName),
		strconv.Itoa(review.Rating),
		strconv.Itoa(item.ReminderCount),
	})
	if err != nil {
		logger.Warn().Err(err).Uint("review_id", review.ID).Msg("[Reminder] escalation notice failed")
	}
}

// reconcile aligns a pending queue item with a workflow that already
// finished or escalated. No reminder is sent.
func (s *ReminderService) reconcile(ctx context.Context, item *models.ManualQueueItem, state workflow.State, now time.Time) error {
	values := map[string]interface{}{"next_reminder_due": nil}
	if state == workflow.Completed {
		values["status"] = models.QueueStatusResponded
		values["responded_at"] = now
	} else {
		values["status"] = models.QueueStatusEscalated
		values["escalated_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&models.ManualQueueItem{}).
		Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}

	logger.Warn().Uint("review_id", item.ReviewID).Str("state", string(state)).Msg("[Reminder] queue item out of sync with workflow, reconciled")
	LogWarning("reminder", "reconcile",
		fmt.Sprintf("Queue item for review %d was pending while workflow is %s", item.ReviewID, state),
		LogRef{OutletID: item.OutletID, ReviewID: item.ReviewID}, nil)
	return nil
}

func (s *ReminderService) pendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ManualQueueItem{}).
		Where("status = ?", models.QueueStatusPending).Count(&n).Error
	return n, err
}
