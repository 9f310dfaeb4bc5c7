package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by method (password|google) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	// RoleChecks counts admin authorization decisions (allowed|denied).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_role_checks_total",
			Help: "Total number of role hierarchy checks",
		},
		[]string{"required", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eternal_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// CacheEvents counts in-process cache outcomes (hit|miss|expired|evicted|set|delete).
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_cache_events_total",
			Help: "In-memory cache events",
		},
		[]string{"event"},
	)

	// ViewIncrements counts memorial view counter writes by outcome (ok|error).
	ViewIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_memorial_view_increments_total",
			Help: "Memorial view counter increments",
		},
		[]string{"result"},
	)

	// MemorialLookups counts slug resolutions by source (cache|database|not_found|error).
	MemorialLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_memorial_lookups_total",
			Help: "Memorial slug lookups by resolution source",
		},
		[]string{"source"},
	)

	// BackgroundTasks counts detached task completions by task name and result.
	BackgroundTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_background_tasks_total",
			Help: "Detached background task completions",
		},
		[]string{"task", "result"},
	)

	// LLMRequests tracks calls to the language model provider.
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_llm_requests_total",
			Help: "Requests sent to the language model provider",
		},
		[]string{"purpose", "result"},
	)

	// ImageUploads counts processed uploads by result.
	ImageUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_image_uploads_total",
			Help: "Processed memorial image uploads",
		},
		[]string{"result"},
	)

	// MaintenanceRuns counts maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eternal_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// MaintenanceDuration observes how long maintenance jobs take.
	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eternal_maintenance_duration_seconds",
			Help:    "Maintenance job duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"job"},
	)
)
