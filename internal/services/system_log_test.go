package services

import (
	"testing"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
)

func TestSystemLog_WriteAndList(t *testing.T) {
	db := newTestDB(t)
	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	LogInfo("human_reply", "submit", "closed", LogRef{OutletID: 1, ReviewID: 10}, map[string]uint{"handler_id": 4})
	LogWarning("reminder", "escalate", "escalated", LogRef{OutletID: 1, ReviewID: 11}, nil)
	LogError("batch", "run", "failed", LogRef{}, nil)

	svc := NewSystemLogService(db)
	all, err := svc.List(t.Context(), &SystemLogListRequest{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if all.Total != 3 || all.Page != 1 || all.PageSize != 20 {
		t.Errorf("List() = total %d page %d size %d", all.Total, all.Page, all.PageSize)
	}

	tests := []struct {
		name     string
		req      SystemLogListRequest
		expected int64
	}{
		{"by level", SystemLogListRequest{Level: "warning"}, 1},
		{"by module", SystemLogListRequest{Module: "batch"}, 1},
		{"by outlet", SystemLogListRequest{OutletID: 1}, 2},
		{"by review", SystemLogListRequest{ReviewID: 10}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.List(t.Context(), &tt.req)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if res.Total != tt.expected {
				t.Errorf("total = %d, expected %d", res.Total, tt.expected)
			}
		})
	}

	var entry models.SystemLog
	db.Where("action = ?", "submit").First(&entry)
	if entry.Extra != `{"handler_id":4}` {
		t.Errorf("extra = %q", entry.Extra)
	}
	var batch models.SystemLog
	db.Where("module = ?", "batch").First(&batch)
	if batch.OutletID != nil || batch.ReviewID != nil {
		t.Error("zero refs should be stored as NULL")
	}
}

func TestSystemLog_WithoutDB(t *testing.T) {
	InitSystemLogger(nil)
	LogInfo("any", "thing", "dropped", LogRef{}, nil)
}

func TestSystemLog_CleanupOldLogs(t *testing.T) {
	db := newTestDB(t)
	svc := NewSystemLogService(db)
	now := testNow

	for _, age := range []time.Duration{time.Hour, 10 * 24 * time.Hour, 40 * 24 * time.Hour, 90 * 24 * time.Hour} {
		if err := db.Create(&models.SystemLog{Level: "info", Module: "m", Action: "a", CreatedAt: now.Add(-age)}).Error; err != nil {
			t.Fatalf("create log: %v", err)
		}
	}

	if n, err := svc.CleanupOldLogs(0, now); err != nil || n != 0 {
		t.Errorf("retention 0 = %d, %v; expected cleanup disabled", n, err)
	}
	n, err := svc.CleanupOldLogs(30, now)
	if err != nil {
		t.Fatalf("CleanupOldLogs() error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, expected 2", n)
	}
	var left int64
	db.Model(&models.SystemLog{}).Count(&left)
	if left != 2 {
		t.Errorf("remaining = %d, expected 2", left)
	}

	if got := svc.GetRetentionDays(); got != 30 {
		t.Errorf("GetRetentionDays() default = %d", got)
	}
	_ = NewSystemConfigService(db).Set("log_retention_days", "7")
	if got := svc.GetRetentionDays(); got != 7 {
		t.Errorf("GetRetentionDays() = %d, expected 7", got)
	}
}
