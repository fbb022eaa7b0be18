package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReviewsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_reviews_ingested_total",
			Help: "Reviews ingested by routing branch",
		},
		[]string{"branch"},
	)

	IngestSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_ingest_skipped_total",
			Help: "Candidates skipped during ingestion by reason",
		},
		[]string{"reason"}, // duplicate, already_replied, no_external_id
	)

	AutoReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_auto_replies_total",
			Help: "Auto-reply attempts by result",
		},
		[]string{"result"}, // posted, generation_failed, post_failed
	)

	Reminders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_reminders_total",
			Help: "Reminder dispatches by result",
		},
		[]string{"result"}, // sent, failed, no_channel, skipped
	)

	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewflow_escalations_total",
			Help: "Manual queue items escalated after exhausting reminders",
		},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_workflow_transitions_total",
			Help: "Applied workflow transitions",
		},
		[]string{"from", "to"},
	)

	IllegalTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_workflow_illegal_transitions_total",
			Help: "Rejected workflow transitions",
		},
		[]string{"from", "to"},
	)

	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_batch_runs_total",
			Help: "Batch loop runs by final status",
		},
		[]string{"status"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewflow_batch_duration_seconds",
			Help:    "Batch loop duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	OutletIngestions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_outlet_ingestions_total",
			Help: "Per-outlet ingestion passes by result",
		},
		[]string{"result"},
	)

	AIGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_ai_generations_total",
			Help: "Reply generation calls by provider and result",
		},
		[]string{"provider", "result"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewflow_notifications_total",
			Help: "Notifications by template and result",
		},
		[]string{"template", "result"},
	)

	ManualQueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewflow_manual_queue_pending",
			Help: "Manual queue items awaiting a human reply",
		},
	)
)

func ObserveBatch(status string, started time.Time) {
	BatchRuns.WithLabelValues(status).Inc()
	BatchDuration.Observe(time.Since(started).Seconds())
}

// RuntimeSource provides values for scrape-time gauges.
type RuntimeSource struct {
	SSEClients func() int
	AsyncQueue func() bool
	DBOpenConn func() int
}

var startTime = time.Now()

// RegisterRuntime registers gauges evaluated on every scrape.
func RegisterRuntime(reg prometheus.Registerer, src RuntimeSource) {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "reviewflow_uptime_seconds",
		Help: "Time since server start in seconds",
	}, func() float64 { return time.Since(startTime).Seconds() })

	if src.SSEClients != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "reviewflow_sse_active_clients",
			Help: "Number of active SSE connections",
		}, func() float64 { return float64(src.SSEClients()) })
	}
	if src.AsyncQueue != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "reviewflow_queue_async_enabled",
			Help: "Whether async outlet fan-out (Redis) is enabled (1=yes, 0=no)",
		}, func() float64 {
			if src.AsyncQueue() {
				return 1
			}
			return 0
		})
	}
	if src.DBOpenConn != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "reviewflow_db_open_connections",
			Help: "Number of open DB connections",
		}, func() float64 { return float64(src.DBOpenConn()) })
	}
}
