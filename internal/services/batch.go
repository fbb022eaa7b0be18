package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	TriggerStartup = "startup"
	TriggerCron    = "cron"
	TriggerManual  = "manual"

	batchLockName = "batch"
	batchLockKey  = "global"
)

var ErrBatchInProgress = errors.New("a batch run is already in progress")

// BatchService is the periodic driver: ingestion for every eligible outlet,
// then the resume pass, then reminders.
type BatchService struct {
	db          *gorm.DB
	cfg         config.SchedulerConfig
	eligibility *EligibilityService
	ingestion   *IngestionService
	resume      *ResumeService
	reminders   *ReminderService
	locks       *SchedulerLockService
	queue       TaskQueue
	instanceID  string
	now         func() time.Time

	cron    *cron.Cron
	cancel  context.CancelFunc
	mu      sync.Mutex
	running atomic.Bool
}

func NewBatchService(
	db *gorm.DB,
	cfg config.SchedulerConfig,
	eligibility *EligibilityService,
	ingestion *IngestionService,
	resume *ResumeService,
	reminders *ReminderService,
	locks *SchedulerLockService,
	queue TaskQueue,
) *BatchService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = config.Duration(30 * time.Minute)
	}
	return &BatchService{
		db:          db,
		cfg:         cfg,
		eligibility: eligibility,
		ingestion:   ingestion,
		resume:      resume,
		reminders:   reminders,
		locks:       locks,
		queue:       queue,
		instanceID:  uuid.NewString(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce executes one full batch. It returns ErrBatchInProgress when
// another run, in this process or elsewhere, holds the lock.
func (s *BatchService) RunOnce(ctx context.Context, trigger string) (*models.BatchRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.BatchRuns.WithLabelValues(models.BatchStatusSkipped).Inc()
		logger.Info().Str("trigger", trigger).Msg("[Batch] a run is already active in this process, skipping")
		return nil, ErrBatchInProgress
	}
	defer s.running.Store(false)

	// the lease belongs to this run, so only this run can release it
	runID := uuid.NewString()
	owner := s.instanceID + "/" + runID
	acquired, err := s.locks.Acquire(ctx, batchLockName, batchLockKey, owner, s.cfg.LockTTL.Std())
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !acquired {
		metrics.BatchRuns.WithLabelValues(models.BatchStatusSkipped).Inc()
		logger.Info().Str("trigger", trigger).Msg("[Batch] previous run still holds the lock, skipping")
		return nil, ErrBatchInProgress
	}
	defer func() {
		if err := s.locks.Release(context.Background(), batchLockName, batchLockKey, owner); err != nil {
			logger.Warn().Err(err).Msg("[Batch] failed to release lock")
		}
	}()

	started := s.now()
	run := &models.BatchRun{
		ID:        runID,
		Trigger:   trigger,
		Status:    models.BatchStatusRunning,
		StartedAt: started,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create batch run: %w", err)
	}
	logger.Info().Str("batch_id", run.ID).Str("trigger", trigger).Msg("[Batch] run started")

	outlets, err := s.eligibility.ListEligible(ctx)
	if err != nil {
		return s.finish(ctx, run, started, fmt.Errorf("list eligible outlets: %w", err))
	}
	run.OutletsTotal = len(outlets)
	s.db.WithContext(ctx).Model(&models.BatchRun{}).Where("id = ?", run.ID).Update("outlets_total", run.OutletsTotal)

	s.fanOut(ctx, run, outlets)

	var errs []error
	if resumed, err := s.resume.Run(ctx, started); err != nil {
		errs = append(errs, err)
	} else {
		run.Resumed = resumed.Attempted
	}

	if rem, err := s.reminders.ProcessDue(ctx); err != nil {
		errs = append(errs, err)
	} else {
		run.RemindersSent = rem.Sent
		run.Escalations = rem.Escalated
	}

	return s.finish(ctx, run, started, errors.Join(errs...))
}

func (s *BatchService) fanOut(ctx context.Context, run *models.BatchRun, outlets []models.Outlet) {
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	var enqueueFailures int64
	for i := range outlets {
		task := &OutletTask{BatchID: run.ID, OutletID: outlets[i].ID}
		g.Go(func() error {
			err := s.queue.Enqueue(ctx, task)
			if err != nil && s.queue.IsAsync() {
				// inline failures are already counted by ProcessOutletTask
				atomic.AddInt64(&enqueueFailures, 1)
				logger.Error().Err(err).Uint("outlet_id", task.OutletID).Msg("[Batch] enqueue failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := atomic.LoadInt64(&enqueueFailures); n > 0 {
		s.bumpRun(ctx, run.ID, map[string]int{"outlets_failed": int(n)})
	}
}

// ProcessOutletTask ingests one outlet and folds its counters into the
// batch run row. Panics are contained to the outlet.
func (s *BatchService) ProcessOutletTask(ctx context.Context, task *OutletTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic ingesting outlet %d: %v", task.OutletID, r)
			logger.Error().Str("stack", string(debug.Stack())).Uint("outlet_id", task.OutletID).Msgf("[Batch] %v", err)
			s.bumpRun(ctx, task.BatchID, map[string]int{"outlets_failed": 1})
			LogError("batch", "outlet_panic", err.Error(), LogRef{OutletID: task.OutletID}, nil)
		}
	}()

	outlet, eligible, err := s.eligibility.Check(ctx, task.OutletID)
	if err != nil {
		s.bumpRun(ctx, task.BatchID, map[string]int{"outlets_failed": 1})
		return fmt.Errorf("load outlet %d: %w", task.OutletID, err)
	}
	if !eligible {
		logger.Info().Uint("outlet_id", task.OutletID).Msg("[Batch] outlet no longer eligible, skipped")
		return nil
	}

	stats, err := s.ingestion.IngestOutlet(ctx, outlet)
	counters := map[string]int{
		"reviews_ingested":   stats.Ingested,
		"duplicates_skipped": stats.Duplicates,
		"already_replied":    stats.AlreadyReplied,
	}
	if err != nil {
		counters["outlets_failed"] = 1
	}
	s.bumpRun(ctx, task.BatchID, counters)

	if err != nil {
		logger.Error().Err(err).Uint("outlet_id", outlet.ID).Str("batch_id", task.BatchID).Msg("[Batch] outlet ingestion failed")
		LogError("batch", "ingest_outlet", err.Error(), LogRef{OutletID: outlet.ID}, nil)
	}
	return err
}

func (s *BatchService) bumpRun(ctx context.Context, batchID string, counters map[string]int) {
	if batchID == "" {
		return
	}
	values := make(map[string]interface{}, len(counters))
	for col, n := range counters {
		if n != 0 {
			values[col] = gorm.Expr(col+" + ?", n)
		}
	}
	if len(values) == 0 {
		return
	}
	if err := s.db.WithContext(ctx).Model(&models.BatchRun{}).Where("id = ?", batchID).Updates(values).Error; err != nil {
		logger.Warn().Err(err).Str("batch_id", batchID).Msg("[Batch] failed to update run counters")
	}
}

func (s *BatchService) finish(ctx context.Context, run *models.BatchRun, started time.Time, runErr error) (*models.BatchRun, error) {
	completed := s.now()
	status := models.BatchStatusCompleted
	values := map[string]interface{}{
		"completed_at":   completed,
		"resumed":        run.Resumed,
		"reminders_sent": run.RemindersSent,
		"escalations":    run.Escalations,
	}
	if runErr != nil {
		status = models.BatchStatusFailed
		values["error"] = truncate(runErr.Error(), 2000)
		LogError("batch", "run", runErr.Error(), LogRef{}, map[string]string{"batch_id": run.ID})
	}
	values["status"] = status

	// the caller's context may already be done; the run row must still close
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.BatchRun{}).Where("id = ?", run.ID).Updates(values).Error; err != nil {
		logger.Error().Err(err).Str("batch_id", run.ID).Msg("[Batch] failed to record completion")
	}
	s.db.WithContext(context.WithoutCancel(ctx)).First(run, "id = ?", run.ID)

	metrics.ObserveBatch(status, started)
	logger.Info().Str("batch_id", run.ID).Str("status", status).Dur("took", completed.Sub(started)).
		Int("outlets", run.OutletsTotal).Int("outlets_failed", run.OutletsFailed).
		Int("ingested", run.ReviewsIngested).Int("duplicates", run.DuplicatesSkipped).
		Int("resumed", run.Resumed).Int("reminders_sent", run.RemindersSent).Int("escalations", run.Escalations).
		Msg("[Batch] run finished")
	return run, runErr
}

// Start schedules RunOnce every interval and optionally once right away.
func (s *BatchService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger.CronLogger{}),
		cron.WithChain(cron.Recover(logger.CronLogger{}), cron.SkipIfStillRunning(logger.CronLogger{})),
	)

	job := cron.FuncJob(func() { s.runScheduled(ctx, TriggerCron) })
	if _, err := s.cron.AddJob(fmt.Sprintf("@every %s", s.cfg.Interval.Std()), job); err != nil {
		cancel()
		s.cron = nil
		return fmt.Errorf("schedule batch loop: %w", err)
	}
	s.cron.Start()
	logger.Infof("[Batch] Scheduler started, interval: %v, concurrency: %d", s.cfg.Interval.Std(), s.cfg.Concurrency)

	if s.cfg.RunOnStartup {
		go s.runScheduled(ctx, TriggerStartup)
	}
	return nil
}

func (s *BatchService) runScheduled(ctx context.Context, trigger string) {
	if _, err := s.RunOnce(ctx, trigger); err != nil && !errors.Is(err, ErrBatchInProgress) {
		logger.Error().Err(err).Str("trigger", trigger).Msg("[Batch] run failed")
	}
}

// Stop cancels in-flight work and waits for the running job, bounded by ctx.
func (s *BatchService) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		logger.Warnf("[Batch] Stop timed out waiting for the running batch")
	}
}

type BatchRunListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.BatchRun `json:"items"`
}

func (s *BatchService) ListRuns(ctx context.Context, page, pageSize int) (*BatchRunListResponse, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var total int64
	s.db.WithContext(ctx).Model(&models.BatchRun{}).Count(&total)

	var runs []models.BatchRun
	err := s.db.WithContext(ctx).Order("started_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return &BatchRunListResponse{Total: total, Page: page, PageSize: pageSize, Items: runs}, nil
}

// LastCompleted returns the most recent completed run, the batch-level
// completion watermark shown to operators.
func (s *BatchService) LastCompleted(ctx context.Context) (*models.BatchRun, error) {
	var run models.BatchRun
	err := s.db.WithContext(ctx).Where("status = ?", models.BatchStatusCompleted).
		Order("completed_at DESC").First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}
