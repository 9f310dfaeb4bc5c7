package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/database/testutil"
	"github.com/eternalmemory/eternal/internal/monitoring"
	"github.com/eternalmemory/eternal/internal/monitoring/checks"
)

type fakeBreaker struct {
	enabled bool
	state   string
}

func (f fakeBreaker) Enabled() bool { return f.enabled }
func (f fakeBreaker) State() string { return f.state }

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("storage", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "permission denied"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "storage", report.Checks[1].Component)
}

func TestHealthManagerDegradedStillSucceeds(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.LLM(fakeBreaker{enabled: true, state: "open"}))

	report := manager.EvaluateReadiness(context.Background())
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("boom", func(context.Context) monitoring.ProbeResult {
		panic("probe exploded")
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Component)
	require.Equal(t, monitoring.StatusDown, report.Checks[0].Status)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
}

func TestHealthManagerPanickingReadinessCheckIsDown(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("ok", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
		panic(errors.New("driver crashed"))
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "database", report.Checks[1].Component)
	require.Equal(t, "driver crashed", report.Checks[1].Details)
}

func TestMaintenanceCheck(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	tracker.Register("cache_purge")
	result := checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "pending first run")

	tracker.Record("session_cleanup", nil, time.Millisecond)
	tracker.Record("cache_purge", errors.New("database is locked"), time.Millisecond)

	result = checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "database is locked")

	tracker.Record("cache_purge", nil, time.Millisecond)
	result = checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 2)
	require.Equal(t, "cache_purge", jobs[0].Job)
	require.Equal(t, uint64(2), jobs[0].TotalRuns)
	require.Zero(t, jobs[0].ConsecutiveFailures)
}

func TestLocalStorageCheck(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, checks.LocalStorage(t.TempDir()).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDown, checks.LocalStorage("/nonexistent/eternal/uploads").Run(context.Background()).Status)
}

func TestDatabaseCheck(t *testing.T) {
	t.Parallel()

	db := testutil.MustOpenTestDB(t)
	result := checks.Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "open=")

	result = checks.Database(nil, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}
