package services

import (
	"errors"
	"testing"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
)

func reviewByExternalID(t *testing.T, env *testEnv, extID string) *models.Review {
	t.Helper()
	var r models.Review
	if err := env.db.Where("external_id = ?", extID).First(&r).Error; err != nil {
		t.Fatalf("load review %q: %v", extID, err)
	}
	return &r
}

func TestIngestion_RoutesByRating(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")
	created := testNow.Add(-time.Hour)
	env.source.reviews[outlet.LocationID] = append(env.source.reviews[outlet.LocationID],
		platformReview("r5", 5, created),
		platformReview("r4", 4, created),
		platformReview("r3", 3, created),
		platformReview("r1", 1, created),
	)

	stats, err := env.ingestion.IngestOutlet(ctx, outlet)
	if err != nil {
		t.Fatalf("IngestOutlet() error: %v", err)
	}
	if stats.Fetched != 4 || stats.Ingested != 4 || stats.Auto != 2 || stats.Manual != 2 || stats.RouteFailed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	tests := []struct {
		extID string
		state workflow.State
	}{
		{"r5", workflow.Completed},
		{"r4", workflow.Completed},
		{"r3", workflow.ManualPending},
		{"r1", workflow.ManualPending},
	}
	for _, tt := range tests {
		r := reviewByExternalID(t, env, tt.extID)
		if st := env.state(t, r.ID); st.State != string(tt.state) {
			t.Errorf("%s: state = %s, expected %s", tt.extID, st.State, tt.state)
		}
		if r.SourceCreatedAt == nil || !r.SourceCreatedAt.Equal(created) {
			t.Errorf("%s: source created at = %v", tt.extID, r.SourceCreatedAt)
		}
	}
	if env.source.postCount() != 2 {
		t.Errorf("posts = %d, expected 2", env.source.postCount())
	}
	if n := env.countRows(t, &models.ManualQueueItem{}); n != 2 {
		t.Errorf("queue items = %d, expected 2", n)
	}
}

func TestIngestion_RedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")
	env.source.reviews[outlet.LocationID] = append(env.source.reviews[outlet.LocationID],
		platformReview("r5", 5, testNow.Add(-time.Hour)))

	if _, err := env.ingestion.IngestOutlet(ctx, outlet); err != nil {
		t.Fatalf("first IngestOutlet() error: %v", err)
	}
	env.clock.Advance(15 * time.Minute)
	stats, err := env.ingestion.IngestOutlet(ctx, outlet)
	if err != nil {
		t.Fatalf("second IngestOutlet() error: %v", err)
	}

	if stats.Duplicates != 1 || stats.Ingested != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if n := env.countRows(t, &models.Review{}); n != 1 {
		t.Errorf("reviews = %d, expected 1", n)
	}
	if n := env.countRows(t, &models.WorkflowState{}); n != 1 {
		t.Errorf("workflow states = %d, expected 1", n)
	}
	if env.gen.callCount() != 1 || env.source.postCount() != 1 {
		t.Errorf("generator calls %d, posts %d; expected one each", env.gen.callCount(), env.source.postCount())
	}
}

func TestIngestion_SkipsAlreadyRepliedAndInvalid(t *testing.T) {
	env := newTestEnv(t)
	outlet := env.createOutlet(t, "bistro")
	replied := platformReview("r-replied", 2, testNow)
	replied.HasReply = true
	noID := platformReview("", 4, testNow)
	badRating := platformReview("r-zero", 0, testNow)
	env.source.reviews[outlet.LocationID] = append(env.source.reviews[outlet.LocationID], replied, noID, badRating)

	stats, err := env.ingestion.IngestOutlet(t.Context(), outlet)
	if err != nil {
		t.Fatalf("IngestOutlet() error: %v", err)
	}
	if stats.AlreadyReplied != 1 || stats.Invalid != 2 || stats.Ingested != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if n := env.countRows(t, &models.Review{}); n != 0 {
		t.Errorf("reviews = %d, expected 0", n)
	}
	if n := env.countRows(t, &models.WorkflowState{}); n != 0 {
		t.Errorf("workflow states = %d, expected 0", n)
	}
}

func TestIngestion_WatermarkProgression(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")

	if got := env.ingestion.Watermark(ctx, outlet.ID); !got.Equal(testNow.Add(-24 * time.Hour)) {
		t.Errorf("initial watermark = %v, expected the lookback window", got)
	}

	if _, err := env.ingestion.IngestOutlet(ctx, outlet); err != nil {
		t.Fatalf("IngestOutlet() error: %v", err)
	}
	firstRun := env.clock.Now()

	env.clock.Advance(15 * time.Minute)
	if _, err := env.ingestion.IngestOutlet(ctx, outlet); err != nil {
		t.Fatalf("IngestOutlet() error: %v", err)
	}

	sinces := env.source.sinces[outlet.LocationID]
	if len(sinces) != 2 {
		t.Fatalf("fetches = %d, expected 2", len(sinces))
	}
	if !sinces[0].Equal(testNow.Add(-24 * time.Hour)) {
		t.Errorf("first since = %v", sinces[0])
	}
	if !sinces[1].Equal(firstRun) {
		t.Errorf("second since = %v, expected the first fetch start %v", sinces[1], firstRun)
	}
}

func TestIngestion_FetchFailureKeepsWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")

	if _, err := env.ingestion.IngestOutlet(ctx, outlet); err != nil {
		t.Fatalf("IngestOutlet() error: %v", err)
	}
	mark := env.ingestion.Watermark(ctx, outlet.ID)

	env.clock.Advance(15 * time.Minute)
	env.source.listErr[outlet.LocationID] = errors.New("503 from platform")
	if _, err := env.ingestion.IngestOutlet(ctx, outlet); err == nil {
		t.Fatal("IngestOutlet() should fail when the fetch fails")
	}

	if got := env.ingestion.Watermark(ctx, outlet.ID); !got.Equal(mark) {
		t.Errorf("watermark moved to %v on failure, expected %v", got, mark)
	}
	var cursor models.IngestionCursor
	env.db.Where("outlet_id = ?", outlet.ID).First(&cursor)
	if cursor.ConsecutiveFailures != 1 || cursor.LastError == "" {
		t.Errorf("cursor = %+v", cursor)
	}

	delete(env.source.listErr, outlet.LocationID)
	env.clock.Advance(15 * time.Minute)
	if _, err := env.ingestion.IngestOutlet(ctx, outlet); err != nil {
		t.Fatalf("IngestOutlet() error: %v", err)
	}
	sinces := env.source.sinces[outlet.LocationID]
	if !sinces[len(sinces)-1].Equal(mark) {
		t.Errorf("retry since = %v, expected %v", sinces[len(sinces)-1], mark)
	}
	env.db.Where("outlet_id = ?", outlet.ID).First(&cursor)
	if cursor.ConsecutiveFailures != 0 || cursor.LastError != "" {
		t.Errorf("cursor after recovery = %+v", cursor)
	}
}

func TestIngestion_GenerationFailureLeavesPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")
	env.gen.err = errors.New("provider unavailable")
	env.source.reviews[outlet.LocationID] = append(env.source.reviews[outlet.LocationID],
		platformReview("r5", 5, testNow))

	stats, err := env.ingestion.IngestOutlet(ctx, outlet)
	if err != nil {
		t.Fatalf("IngestOutlet() should not fail on routing errors: %v", err)
	}
	if stats.RouteFailed != 1 || stats.Ingested != 1 {
		t.Errorf("stats = %+v", stats)
	}

	r := reviewByExternalID(t, env, "r5")
	if st := env.state(t, r.ID); st.State != string(workflow.Pending) {
		t.Errorf("state = %s, expected PENDING", st.State)
	}
	if got := env.ingestion.Watermark(ctx, outlet.ID); !got.Equal(testNow) {
		t.Errorf("watermark = %v, expected it to advance to %v", got, testNow)
	}
}
