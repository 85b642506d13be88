package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// Job names reported to the tracker and the maintenance health probe.
const (
	JobSessionPurge = "session_purge"
	JobRoleExpiry   = "role_expiry"
)

const (
	defaultSessionRetention = 7 * 24 * time.Hour
	defaultSessionSpec      = "@hourly"
	defaultRoleSpec         = "@daily"
	defaultJobTimeout       = time.Minute
)

// RoleJanitor removes role assignments whose expiry has passed.
type RoleJanitor interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner purges session rows that stopped being valid more than a retention window ago and
// drops expired role assignments. It never decides token validity; rotation treats revoked and
// expired rows as dead whether or not they were purged yet.
type Cleaner struct {
	sessions  iauth.SessionStore
	roles     RoleJanitor
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	timeout   time.Duration

	sessionSchedule string
	roleSchedule    string
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

// WithRoleJanitor enables the expired role assignment job.
func WithRoleJanitor(roles RoleJanitor) Option {
	return func(cleaner *Cleaner) {
		cleaner.roles = roles
	}
}

// WithTracker records job outcomes for the maintenance health probe.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithSessionRetention sets how long dead session rows are kept for forensics.
func WithSessionRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.retention = retention
		}
	}
}

// WithSessionSchedule overrides the cron expression for the session purge.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithRoleSchedule overrides the cron expression for role assignment cleanup.
func WithRoleSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.roleSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil session store disables the purge.
func NewCleaner(sessions iauth.SessionStore, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		now:             time.Now,
		retention:       defaultSessionRetention,
		timeout:         defaultJobTimeout,
		sessionSchedule: defaultSessionSpec,
		roleSchedule:    defaultRoleSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, job := range jobs {
		job := job
		if c.tracker != nil {
			c.tracker.Register(job.name)
		}
		if _, err := c.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			if err := c.runJob(ctx, job); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		done, cancel := context.WithCancel(context.Background())
		cancel()
		return done
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in tests and during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, job := range c.jobs() {
		errs = multierr.Append(errs, c.runJob(ctx, job))
	}
	return errs
}

// PurgeSessions deletes session rows dead for longer than the retention window and refreshes the
// active session gauge.
func (c *Cleaner) PurgeSessions(ctx context.Context) (int64, error) {
	now := c.now()
	purged, err := c.sessions.PurgeBefore(ctx, now.Add(-c.retention))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	metrics.PurgedSessions.Add(float64(purged))

	active, err := c.sessions.CountActive(ctx, now)
	if err != nil {
		return purged, fmt.Errorf("count active sessions: %w", err)
	}
	metrics.ActiveSessions.Set(float64(active))

	if purged > 0 {
		c.log.Info("purged dead sessions", zap.Int64("purged", purged), zap.Int64("active", active))
	}
	return purged, nil
}

// PurgeRoles removes expired role assignments.
func (c *Cleaner) PurgeRoles(ctx context.Context) (int64, error) {
	purged, err := c.roles.PurgeExpired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		c.log.Info("purged expired role assignments", zap.Int64("purged", purged))
	}
	return purged, nil
}

type job struct {
	name string
	spec string
	run  func(context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.sessions != nil {
		jobs = append(jobs, job{name: JobSessionPurge, spec: c.sessionSchedule, run: c.PurgeSessions})
	}
	if c.roles != nil {
		jobs = append(jobs, job{name: JobRoleExpiry, spec: c.roleSchedule, run: c.PurgeRoles})
	}
	return jobs
}

func (c *Cleaner) runJob(ctx context.Context, j job) error {
	start := time.Now()
	_, err := j.run(ctx)
	if c.tracker != nil {
		c.tracker.Record(j.name, err, time.Since(start))
	}
	return err
}
