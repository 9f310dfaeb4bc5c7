package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eternalmemory/eternal/internal/monitoring"
	"github.com/eternalmemory/eternal/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultCacheSpec          = "@hourly"
	defaultAuditSpec          = "@daily"

	JobSessions     = "sessions"
	JobOAuthStates  = "oauth_states"
	JobCacheEntries = "cache_entries"
	JobAuditLogs    = "audit_logs"
)

// SessionCleaner removes expired or revoked refresh sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CachePurger removes expired rows from the database cache backend.
type CachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditPruner enforces audit log retention.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Dependencies lists the stores the Cleaner prunes. Nil members skip their job.
type Dependencies struct {
	Sessions    SessionCleaner
	OAuthStates SessionCleaner
	Cache       CachePurger
	Audit       AuditPruner
}

// Cleaner coordinates background maintenance tasks such as purging expired sessions,
// pruning stale audit logs, and dropping expired cache rows.
type Cleaner struct {
	deps      Dependencies
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	sessionSchedule string
	cacheSchedule   string
	auditSchedule   string
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTracker records each run so health checks can report stale or failing jobs.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		if tracker != nil {
			cleaner.tracker = tracker
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron specification for session and OAuth state cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache row purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(deps Dependencies, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		deps:            deps,
		now:             time.Now,
		retention:       defaultAuditRetentionDays,
		sessionSchedule: defaultSessionSpec,
		cacheSchedule:   defaultCacheSpec,
		auditSchedule:   defaultAuditSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	if cleaner.tracker == nil {
		cleaner.tracker = monitoring.NewJobTracker()
	}

	for _, j := range cleaner.jobs() {
		cleaner.tracker.Register(j.name)
	}

	return cleaner
}

// Tracker exposes run history for health reporting.
func (c *Cleaner) Tracker() *monitoring.JobTracker {
	return c.tracker
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			if err := c.execute(context.Background(), j); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and combines their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	started := time.Now()
	removed, err := j.run(ctx)
	c.tracker.Record(j.name, err, time.Since(started))
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("maintenance job removed rows", zap.String("job", j.name), zap.Int64("removed", removed))
	}
	return nil
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.deps.Sessions != nil {
		jobs = append(jobs, job{name: JobSessions, schedule: c.sessionSchedule, run: c.deps.Sessions.CleanupExpired})
	}
	if c.deps.OAuthStates != nil {
		jobs = append(jobs, job{name: JobOAuthStates, schedule: c.sessionSchedule, run: c.deps.OAuthStates.CleanupExpired})
	}
	if c.deps.Cache != nil {
		jobs = append(jobs, job{name: JobCacheEntries, schedule: c.cacheSchedule, run: func(ctx context.Context) (int64, error) {
			return c.deps.Cache.PurgeExpired(ctx, c.now())
		}})
	}
	if c.deps.Audit != nil && c.retention > 0 {
		jobs = append(jobs, job{name: JobAuditLogs, schedule: c.auditSchedule, run: func(ctx context.Context) (int64, error) {
			return c.deps.Audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	return jobs
}
