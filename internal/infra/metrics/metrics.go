package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_submissions_total",
			Help: "Submissions by admission outcome",
		},
		[]string{"outcome"}, // outcome: "accepted" or a rejection reason
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_runs_total",
			Help: "Runs that reached a terminal state",
		},
		[]string{"environment", "state"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexec_run_duration_ms",
			Help:    "Run duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"environment", "phase"}, // phase: "build", "run", "total"
	)

	PeakMemory = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexec_peak_memory_kb",
			Help:    "Peak memory usage per sandbox in KB",
			Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144, 524288},
		},
		[]string{"environment"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codexec_queue_depth",
			Help: "Submissions waiting for a worker slot",
		},
	)

	BusySlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codexec_busy_slots",
			Help: "Worker slots currently running a submission",
		},
	)

	SandboxCreation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codexec_sandbox_creation_ms",
			Help:    "Time to create and populate a sandbox",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	SandboxTeardown = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codexec_sandbox_teardown_ms",
			Help:    "Time to destroy a sandbox",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	SandboxTeardownFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codexec_sandbox_teardown_failures_total",
			Help: "Sandboxes whose removal failed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codexec_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codexec_event_publish_failures_total",
			Help: "Run events that could not be published after retries",
		},
	)
)
