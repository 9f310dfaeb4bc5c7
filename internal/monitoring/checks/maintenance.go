package checks

import (
	"context"
	"strings"
	"time"

	"github.com/eternalmemory/eternal/internal/monitoring"
)

const defaultMaintenanceMaxAge = 26 * time.Hour

// Maintenance reports background jobs that keep failing or have not run within maxAge.
// The default window covers the daily audit retention job.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		jobs := tracker.Snapshot()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "no maintenance jobs registered",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			switch {
			case job.TotalRuns == 0:
				problems = append(problems, job.Job+": pending first run")
			case job.ConsecutiveFailures > 0:
				status = worstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": "+job.LastError)
			case start.Sub(job.LastRunAt) > maxAge:
				status = worstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(problems, "; "),
			Duration: time.Since(start),
		}
	})
}

func worstStatus(current, candidate monitoring.ProbeStatus) monitoring.ProbeStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
