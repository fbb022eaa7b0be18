package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"gorm.io/gorm"
)

// Event describes one applied transition.
type Event struct {
	ReviewID      uint
	From          State
	To            State
	ReminderCount int
	At            time.Time
}

type Observer func(ctx context.Context, ev Event)

// Store is the only writer of workflow_states rows. Every write is a
// compare-and-swap on (review_id, version).
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu        *sync.RWMutex
	observers *[]Observer

	// buffered is non-nil on tx-bound stores; events wait for Flush.
	buffered *[]Event
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		now:       func() time.Time { return time.Now().UTC() },
		mu:        &sync.RWMutex{},
		observers: &[]Observer{},
	}
}

func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) OnTransition(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.observers = append(*s.observers, fn)
}

// WithTx returns a store bound to tx. Its events are held until Flush so
// observers never see a transition that was rolled back.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{
		db:        tx,
		now:       s.now,
		mu:        s.mu,
		observers: s.observers,
		buffered:  &[]Event{},
	}
}

// Flush delivers events buffered by a tx-bound store.
func (s *Store) Flush(ctx context.Context) {
	if s.buffered == nil {
		return
	}
	events := *s.buffered
	*s.buffered = nil
	for _, ev := range events {
		s.notify(ctx, ev)
	}
}

// RunInTx runs fn in a transaction with a tx-bound store and flushes its
// events after commit.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *gorm.DB, states *Store) error) error {
	var txStore *Store
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore = s.WithTx(tx)
		return fn(tx, txStore)
	})
	if err != nil {
		return err
	}
	txStore.Flush(ctx)
	return nil
}

func (s *Store) emit(ctx context.Context, ev Event) {
	if s.buffered != nil {
		*s.buffered = append(*s.buffered, ev)
		return
	}
	s.notify(ctx, ev)
}

func (s *Store) notify(ctx context.Context, ev Event) {
	s.mu.RLock()
	observers := append([]Observer(nil), *s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, ev)
	}
}

// Create inserts the PENDING row for a new review.
func (s *Store) Create(ctx context.Context, reviewID uint) (*models.WorkflowState, error) {
	now := s.now()
	st := &models.WorkflowState{
		ReviewID:     reviewID,
		State:        string(Pending),
		LastActionAt: now,
	}
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		return nil, fmt.Errorf("create workflow state for review %d: %w", reviewID, err)
	}
	return st, nil
}

func (s *Store) Get(ctx context.Context, reviewID uint) (*models.WorkflowState, error) {
	var st models.WorkflowState
	err := s.db.WithContext(ctx).Where("review_id = ?", reviewID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type update struct {
	reminderCount   *int
	lastReminder    **time.Time
	nextReminderDue **time.Time
}

type Option func(*update)

func WithReminderCount(n int) Option {
	return func(u *update) { u.reminderCount = &n }
}

func WithLastReminder(t *time.Time) Option {
	return func(u *update) { u.lastReminder = &t }
}

// WithNextReminderDue sets the due time; nil clears it.
func WithNextReminderDue(t *time.Time) Option {
	return func(u *update) { u.nextReminderDue = &t }
}

// Transition moves the review to state to. Illegal edges return a
// *TransitionError and leave the row untouched; a lost race returns
// ErrStaleState.
func (s *Store) Transition(ctx context.Context, reviewID uint, to State, opts ...Option) (*models.WorkflowState, error) {
	cur, err := s.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	from := State(cur.State)
	if !CanTransition(from, to) {
		metrics.IllegalTransitions.WithLabelValues(string(from), string(to)).Inc()
		return cur, &TransitionError{ReviewID: reviewID, From: from, To: to}
	}

	var u update
	for _, opt := range opts {
		opt(&u)
	}

	now := s.now()
	values := map[string]interface{}{
		"state":          string(to),
		"last_action_at": now,
		"version":        cur.Version + 1,
	}
	next := *cur
	next.State = string(to)
	next.LastActionAt = now
	next.Version = cur.Version + 1
	applyUpdate(&next, values, u)

	if err := s.compareAndSwap(ctx, cur, values); err != nil {
		return cur, err
	}

	s.emit(ctx, Event{ReviewID: reviewID, From: from, To: to, ReminderCount: next.ReminderCount, At: now})
	return &next, nil
}

// RecordReminder updates reminder bookkeeping without changing state.
// Only MANUAL_PENDING rows accept it.
func (s *Store) RecordReminder(ctx context.Context, reviewID uint, count int, sentAt time.Time, nextDue *time.Time) (*models.WorkflowState, error) {
	cur, err := s.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if State(cur.State) != ManualPending {
		return cur, &TransitionError{ReviewID: reviewID, From: State(cur.State), To: ManualPending}
	}

	values := map[string]interface{}{
		"last_action_at": s.now(),
		"version":        cur.Version + 1,
	}
	next := *cur
	next.LastActionAt = values["last_action_at"].(time.Time)
	next.Version = cur.Version + 1
	applyUpdate(&next, values, update{
		reminderCount:   &count,
		lastReminder:    ptrTo(&sentAt),
		nextReminderDue: &nextDue,
	})

	if err := s.compareAndSwap(ctx, cur, values); err != nil {
		return cur, err
	}
	return &next, nil
}

func (s *Store) compareAndSwap(ctx context.Context, cur *models.WorkflowState, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.WorkflowState{}).
		Where("review_id = ? AND version = ?", cur.ReviewID, cur.Version).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update workflow state for review %d: %w", cur.ReviewID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func applyUpdate(st *models.WorkflowState, values map[string]interface{}, u update) {
	if u.reminderCount != nil {
		st.ReminderCount = *u.reminderCount
		values["reminder_count"] = *u.reminderCount
	}
	if u.lastReminder != nil {
		st.LastReminderAt = *u.lastReminder
		values["last_reminder_at"] = *u.lastReminder
	}
	if u.nextReminderDue != nil {
		st.NextReminderDue = *u.nextReminderDue
		values["next_reminder_due"] = *u.nextReminderDue
	}
}

func ptrTo(t *time.Time) **time.Time { return &t }

// ListByState returns rows in state whose last action is before olderThan,
// oldest first. A zero olderThan disables that filter.
func (s *Store) ListByState(ctx context.Context, state State, olderThan time.Time, limit int) ([]models.WorkflowState, error) {
	query := s.db.WithContext(ctx).Where("state = ?", string(state))
	if !olderThan.IsZero() {
		query = query.Where("last_action_at < ?", olderThan)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.WorkflowState
	if err := query.Order("last_action_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByState returns row counts for every state, zero-filled.
func (s *Store) CountByState(ctx context.Context) (map[State]int64, error) {
	type row struct {
		State string
		Count int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.WorkflowState{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[State]int64, len(transitions))
	for _, st := range AllStates() {
		out[st] = 0
	}
	for _, r := range rows {
		out[State(r.State)] = r.Count
	}
	return out, nil
}
