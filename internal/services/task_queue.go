package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeOutletIngest = "outlet:ingest"
)

// OutletTask asks for one outlet's ingestion within a batch run.
type OutletTask struct {
	BatchID  string `json:"batch_id"`
	OutletID uint   `json:"outlet_id"`
}

type TaskProcessor func(context.Context, *OutletTask) error

// TaskQueue fans outlet ingestion out, either through Redis or inline.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *OutletTask) error
	// IsAsync reports whether Enqueue returns before the task ran.
	IsAsync() bool
	Close() error
}

// NewTaskQueue picks asynq when Redis is enabled and reachable, otherwise
// an inline queue.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if !cfg.Enabled {
		logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue()
	}
	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
		return NewSyncQueue()
	}
	logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Addr)
	return queue
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *OutletTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	// one live task per outlet per batch
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeOutletIngest, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(1),
		asynq.TaskID(fmt.Sprintf("%s:%d", task.BatchID, task.OutletID)),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Uint("outlet_id", task.OutletID).Msg("[AsyncQueue] task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool { return true }

func (q *AsyncQueue) Close() error { return q.client.Close() }

// SyncQueue runs the processor inside Enqueue and returns its error.
type SyncQueue struct {
	processor TaskProcessor
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

func (q *SyncQueue) Enqueue(ctx context.Context, task *OutletTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] no processor set, outlet %d dropped", task.OutletID)
		return nil
	}
	return q.processor(ctx, task)
}

func (q *SyncQueue) IsAsync() bool { return false }

func (q *SyncQueue) Close() error { return nil }
