package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/hibiken/asynq"
)

func TestTaskTypeOutletIngest_Constant(t *testing.T) {
	if TaskTypeOutletIngest != "outlet:ingest" {
		t.Errorf("TaskTypeOutletIngest = %q, expected %q", TaskTypeOutletIngest, "outlet:ingest")
	}
}

func TestNewTaskQueue_RedisDisabled(t *testing.T) {
	q := NewTaskQueue(&config.RedisConfig{Enabled: false})
	if q.IsAsync() {
		t.Error("queue should be sync when Redis is disabled")
	}
	if err := q.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()
	if err := queue.Enqueue(context.Background(), &OutletTask{OutletID: 1}); err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
}

func TestSyncQueue_RunsInline(t *testing.T) {
	queue := NewSyncQueue()
	boom := errors.New("boom")

	var got *OutletTask
	queue.SetProcessor(func(ctx context.Context, task *OutletTask) error {
		got = task
		return boom
	})

	err := queue.Enqueue(context.Background(), &OutletTask{BatchID: "b1", OutletID: 7})
	if !errors.Is(err, boom) {
		t.Errorf("Enqueue() error = %v, expected processor error", err)
	}
	if got == nil || got.OutletID != 7 || got.BatchID != "b1" {
		t.Errorf("processor got %+v", got)
	}
}

func TestAsyncQueue_IsAsync(t *testing.T) {
	queue := &AsyncQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncQueue.IsAsync() should return true")
	}
}

func TestNewWorker_DisabledReturnsNil(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}, 4); w != nil {
		t.Error("NewWorker should return nil when Redis is disabled")
	}
}

func TestWorker_HandleOutletTask(t *testing.T) {
	w := &Worker{}
	var got uint
	w.SetProcessor(func(ctx context.Context, task *OutletTask) error {
		got = task.OutletID
		return nil
	})

	if err := w.handleOutletTask(context.Background(), asynq.NewTask(TaskTypeOutletIngest, []byte(`{"batch_id":"b","outlet_id":3}`))); err != nil {
		t.Fatalf("handleOutletTask() error: %v", err)
	}
	if got != 3 {
		t.Errorf("processed outlet = %d, expected 3", got)
	}

	err := w.handleOutletTask(context.Background(), asynq.NewTask(TaskTypeOutletIngest, []byte(`not json`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("bad payload error = %v, expected SkipRetry", err)
	}
}
