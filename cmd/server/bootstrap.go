package main

import (
	"context"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/Nk110820004/freddie-backend-sub000/internal/services/platform"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// appServices holds every long-lived component the HTTP layer and the
// schedulers share.
type appServices struct {
	cfg *config.Config
	db  *gorm.DB

	states      *workflow.Store
	hub         *services.SSEHub
	taskQueue   services.TaskQueue
	worker      *services.Worker
	settings    *services.SystemConfigService
	holidays    *services.HolidayService
	usage       *services.AIUsageService
	systemLogs  *services.SystemLogService
	reviews     *services.ReviewService
	manual      *services.ManualQueueService
	humanReply  *services.HumanReplyService
	resume      *services.ResumeService
	batch       *services.BatchService
	digest      *services.DailyDigestService
	maintenance *cron.Cron
}

// bootstrap opens the database and wires the engine. Schedulers are started
// separately by start.
func bootstrap(cfg *config.Config) *appServices {
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.Seed(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	services.InitSystemLogger(db)

	timeout := cfg.External.CallTimeout.Std()
	hub := services.NewSSEHub()

	states := workflow.NewStore(db)
	states.OnTransition(func(_ context.Context, ev workflow.Event) {
		metrics.Transitions.WithLabelValues(string(ev.From), string(ev.To)).Inc()
	})
	states.OnTransition(hub.Observe)

	source := platform.NewClient(&cfg.Platform)
	ai := services.NewAIService(db, &cfg.OpenAI)
	notifier := services.NewNotificationService()
	settings := services.NewSystemConfigService(db)
	holidays := services.NewHolidayService()

	eligibility := services.NewEligibilityService(db)
	auto := services.NewAutoReplyService(db, states, ai, source, timeout)
	manual := services.NewManualQueueService(db, states, ai, notifier, cfg.Manual, timeout)
	router := services.NewRouter(auto, manual)
	ingestion := services.NewIngestionService(db, states, source, router, cfg.Scheduler.InitialLookback.Std(), timeout)
	resume := services.NewResumeService(db, router, cfg.Scheduler.ResumeMaxAttempts)
	reminders := services.NewReminderService(db, states, notifier, timeout)
	locks := services.NewSchedulerLockService(db)

	// Redis when enabled and reachable, inline otherwise
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	batch := services.NewBatchService(db, cfg.Scheduler, eligibility, ingestion, resume, reminders, locks, taskQueue)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(batch.ProcessOutletTask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, cfg.Scheduler.Concurrency)
		worker.SetProcessor(batch.ProcessOutletTask)
	}

	metrics.RegisterRuntime(prometheus.DefaultRegisterer, metrics.RuntimeSource{
		SSEClients: hub.ClientCount,
		AsyncQueue: taskQueue.IsAsync,
		DBOpenConn: func() int {
			sqlDB, err := db.DB()
			if err != nil {
				return 0
			}
			return sqlDB.Stats().OpenConnections
		},
	})

	return &appServices{
		cfg:        cfg,
		db:         db,
		states:     states,
		hub:        hub,
		taskQueue:  taskQueue,
		worker:     worker,
		settings:   settings,
		holidays:   holidays,
		usage:      services.NewAIUsageService(db),
		systemLogs: services.NewSystemLogService(db),
		reviews:    services.NewReviewService(db, states),
		manual:     manual,
		humanReply: services.NewHumanReplyService(db, states, source, cfg.Manual, timeout),
		resume:     resume,
		batch:      batch,
		digest:     services.NewDailyDigestService(db, settings, eligibility, notifier, holidays),
	}
}

// start launches the worker, the batch loop, the digest and log retention.
func (s *appServices) start(ctx context.Context) {
	if s.worker != nil {
		if err := s.worker.Start(); err != nil {
			logger.Fatalf("Failed to start worker: %v", err)
		}
	}

	if err := s.batch.Start(ctx); err != nil {
		logger.Fatalf("Failed to start batch loop: %v", err)
	}

	s.digest.StartScheduler()

	s.maintenance = cron.New(cron.WithLocation(time.UTC), cron.WithLogger(logger.CronLogger{}))
	if _, err := s.maintenance.AddFunc("@daily", s.systemLogs.RunCleanup); err != nil {
		logger.Warn().Err(err).Msg("Failed to schedule log cleanup")
	}
	s.maintenance.Start()
	go s.systemLogs.RunCleanup()
}

// shutdown stops the schedulers first so no new batch starts, then drains
// the worker and closes the queue.
func (s *appServices) shutdown(ctx context.Context) {
	s.batch.Stop(ctx)
	s.digest.StopScheduler()
	if s.maintenance != nil {
		<-s.maintenance.Stop().Done()
	}
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
