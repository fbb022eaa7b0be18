package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/services/platform"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type postedReply struct {
	LocationID string
	ExternalID string
	Text       string
}

type fakeSource struct {
	mu      sync.Mutex
	reviews map[string][]platform.Review
	listErr map[string]error
	postErr error
	panicOn string
	sinces  map[string][]time.Time
	posts   []postedReply
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		reviews: map[string][]platform.Review{},
		listErr: map[string]error{},
		sinces:  map[string][]time.Time{},
	}
}

func (f *fakeSource) ListReviews(ctx context.Context, locationID string, since time.Time) ([]platform.Review, error) {
	if f.panicOn != "" && locationID == f.panicOn {
		panic("source exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces[locationID] = append(f.sinces[locationID], since)
	if err := f.listErr[locationID]; err != nil {
		return nil, err
	}
	return append([]platform.Review(nil), f.reviews[locationID]...), nil
}

func (f *fakeSource) PostReply(ctx context.Context, locationID, externalID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, postedReply{LocationID: locationID, ExternalID: externalID, Text: text})
	return nil
}

func (f *fakeSource) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	reqs  []ReplyRequest
}

func (g *fakeGenerator) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type sentNotification struct {
	Dest     Destination
	Template string
	Params   []string
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []sentNotification
}

func (n *fakeNotifier) Send(ctx context.Context, dest Destination, template string, params []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := RenderNotification(template, params); err != nil {
		return err
	}
	n.sent = append(n.sent, sentNotification{Dest: dest, Template: template, Params: params})
	return n.err
}

func (n *fakeNotifier) byTemplate(template string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Template == template {
			out = append(out, s)
		}
	}
	return out
}

// testEnv wires the whole engine against sqlite and fakes on one clock.
type testEnv struct {
	db       *gorm.DB
	clock    *testClock
	states   *workflow.Store
	source   *fakeSource
	gen      *fakeGenerator
	notifier *fakeNotifier

	eligibility *EligibilityService
	auto        *AutoReplyService
	manual      *ManualQueueService
	router      *Router
	ingestion   *IngestionService
	reminders   *ReminderService
	resume      *ResumeService
	human       *HumanReplyService
	locks       *SchedulerLockService
	queue       *SyncQueue
	batch       *BatchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	e := &testEnv{
		db:       db,
		clock:    &testClock{t: testNow},
		source:   newFakeSource(),
		gen:      &fakeGenerator{text: "Thank you for the kind words!"},
		notifier: &fakeNotifier{},
	}
	now := e.clock.Now

	e.states = workflow.NewStore(db)
	e.states.SetClock(now)

	manualCfg := config.ManualConfig{SuggestReply: true, PostHumanReply: true}
	timeout := 5 * time.Second

	e.eligibility = NewEligibilityService(db)
	e.eligibility.now = now
	e.auto = NewAutoReplyService(db, e.states, e.gen, e.source, timeout)
	e.manual = NewManualQueueService(db, e.states, e.gen, e.notifier, manualCfg, timeout)
	e.manual.now = now
	e.router = NewRouter(e.auto, e.manual)
	e.ingestion = NewIngestionService(db, e.states, e.source, e.router, 24*time.Hour, timeout)
	e.ingestion.now = now
	e.reminders = NewReminderService(db, e.states, e.notifier, timeout)
	e.reminders.now = now
	e.resume = NewResumeService(db, e.router, 3)
	e.resume.now = now
	e.human = NewHumanReplyService(db, e.states, e.source, manualCfg, timeout)
	e.human.now = now
	e.locks = NewSchedulerLockService(db)
	e.locks.now = now

	e.queue = NewSyncQueue()
	e.batch = NewBatchService(db, config.SchedulerConfig{
		Interval:    config.Duration(15 * time.Minute),
		Concurrency: 1,
		LockTTL:     config.Duration(30 * time.Minute),
	}, e.eligibility, e.ingestion, e.resume, e.reminders, e.locks, e.queue)
	e.batch.now = now
	e.queue.SetProcessor(e.batch.ProcessOutletTask)
	return e
}

func (e *testEnv) createOutlet(t *testing.T, name string, mutate ...func(*models.Outlet)) *models.Outlet {
	t.Helper()
	outlet := &models.Outlet{
		Name:               name,
		LocationID:         "locations/" + name,
		Category:           "cafe",
		Location:           "Springfield",
		CountryCode:        "US",
		AutomationEnabled:  true,
		OnboardingComplete: true,
		SubscriptionStatus: models.SubscriptionActive,
	}
	for _, fn := range mutate {
		fn(outlet)
	}
	if err := e.db.Create(outlet).Error; err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	return outlet
}

func withContact(address string) func(*models.Outlet) {
	return func(o *models.Outlet) {
		o.ContactChannel = "slack"
		o.ContactAddress = address
	}
}

// seedReview inserts a review with its PENDING workflow row, as ingestion would.
func (e *testEnv) seedReview(t *testing.T, outlet *models.Outlet, rating int, externalID string) *models.Review {
	t.Helper()
	ext := externalID
	review := &models.Review{
		OutletID:     outlet.ID,
		Rating:       rating,
		CustomerName: "Sam",
		Body:         "It was fine",
		ExternalID:   &ext,
		Status:       models.ReviewStatusPending,
	}
	if err := e.db.Create(review).Error; err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, err := e.states.Create(context.Background(), review.ID); err != nil {
		t.Fatalf("create state: %v", err)
	}
	review.Outlet = outlet
	return review
}

func (e *testEnv) state(t *testing.T, reviewID uint) *models.WorkflowState {
	t.Helper()
	st, err := e.states.Get(context.Background(), reviewID)
	if err != nil {
		t.Fatalf("get state for review %d: %v", reviewID, err)
	}
	return st
}

func (e *testEnv) review(t *testing.T, id uint) *models.Review {
	t.Helper()
	var r models.Review
	if err := e.db.First(&r, id).Error; err != nil {
		t.Fatalf("load review %d: %v", id, err)
	}
	return &r
}

func (e *testEnv) queueItem(t *testing.T, reviewID uint) *models.ManualQueueItem {
	t.Helper()
	var item models.ManualQueueItem
	if err := e.db.Where("review_id = ?", reviewID).First(&item).Error; err != nil {
		t.Fatalf("load queue item for review %d: %v", reviewID, err)
	}
	return &item
}

func (e *testEnv) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func platformReview(id string, rating int, created time.Time) platform.Review {
	return platform.Review{
		ExternalID:   id,
		Rating:       rating,
		CustomerName: "Customer " + id,
		Body:         "review " + id,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}
