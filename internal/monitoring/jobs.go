package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/eternalmemory/eternal/pkg/metrics"
)

// JobStatus summarises the recent history of one maintenance job.
type JobStatus struct {
	Job                 string        `json:"job"`
	LastResult          string        `json:"lastResult"`
	LastRunAt           time.Time     `json:"lastRunAt"`
	LastDuration        time.Duration `json:"lastDuration"`
	LastError           string        `json:"lastError,omitempty"`
	LastSuccessAt       time.Time     `json:"lastSuccessAt"`
	ConsecutiveFailures uint64        `json:"consecutiveFailures"`
	TotalRuns           uint64        `json:"totalRuns"`
}

// JobTracker records maintenance runs for health probes and exports them to Prometheus.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobStatus
	now  func() time.Time
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobStatus), now: time.Now}
}

// Register makes a job visible before its first run so probes can report it as pending.
func (t *JobTracker) Register(job string) {
	if t == nil || job == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job]; !ok {
		t.jobs[job] = &JobStatus{Job: job}
	}
}

// Record stores the outcome of a run. err == nil marks success.
func (t *JobTracker) Record(job string, err error, duration time.Duration) {
	if t == nil || job == "" {
		return
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
	metrics.MaintenanceDuration.WithLabelValues(job).Observe(duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.jobs[job]
	if !ok {
		status = &JobStatus{Job: job}
		t.jobs[job] = status
	}
	now := t.now()
	status.LastResult = result
	status.LastRunAt = now
	status.LastDuration = duration
	status.TotalRuns++
	if err != nil {
		status.LastError = err.Error()
		status.ConsecutiveFailures++
		return
	}
	status.LastError = ""
	status.LastSuccessAt = now
	status.ConsecutiveFailures = 0
}

// Snapshot returns a copy of every job sorted by name.
func (t *JobTracker) Snapshot() []JobStatus {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobStatus, 0, len(t.jobs))
	for _, status := range t.jobs {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
