package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/authcore/internal/auth"
	testutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/permissions"
	"github.com/charlesng35/authcore/pkg/metrics"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func seedSession(t *testing.T, db *gorm.DB, userID string, createdAt, expiresAt time.Time, revokedAt *time.Time) *models.Session {
	t.Helper()

	session := &models.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		FamilyID:         uuid.NewString(),
		RefreshTokenHash: uuid.NewString(),
		CreatedAt:        createdAt,
		LastUsedAt:       createdAt,
		ExpiresAt:        expiresAt,
		RevokedAt:        revokedAt,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{ID: uuid.NewString(), Email: email, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCleanerRunOnce(t *testing.T) {
	table, err := permissions.DefaultRoleTable()
	require.NoError(t, err)
	db := testutil.MustOpenTestDB(t, testutil.WithSeeders(permissions.Seeder(table)))

	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	now := clock.Now()
	user := seedUser(t, db, "cleanup@example.com")

	longExpired := seedSession(t, db, user.ID, now.Add(-30*24*time.Hour), now.Add(-10*24*time.Hour), nil)
	recentlyExpired := seedSession(t, db, user.ID, now.Add(-2*24*time.Hour), now.Add(-time.Hour), nil)
	oldRevocation := now.Add(-9 * 24 * time.Hour)
	longRevoked := seedSession(t, db, user.ID, now.Add(-10*24*time.Hour), now.Add(time.Hour), &oldRevocation)
	active := seedSession(t, db, user.ID, now, now.Add(time.Hour), nil)

	reader := permissions.NewGormAssignmentReader(db)
	expired := now.Add(-time.Minute)
	require.NoError(t, reader.Grant(context.Background(), user.ID, "admin", &expired, ""))
	require.NoError(t, reader.Grant(context.Background(), user.ID, "user", nil, ""))

	tracker := monitoring.NewJobTracker(clock.Now)
	purgedBefore := promtestutil.ToFloat64(metrics.PurgedSessions)

	c := NewCleaner(iauth.NewGormSessionStore(db),
		WithNow(clock.Now),
		WithRoleJanitor(reader),
		WithTracker(tracker),
		WithSessionRetention(7*24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var remaining []string
	require.NoError(t, db.Model(&models.Session{}).Order("id").Pluck("id", &remaining).Error)
	require.ElementsMatch(t, []string{recentlyExpired.ID, active.ID}, remaining)
	require.NotContains(t, remaining, longExpired.ID)
	require.NotContains(t, remaining, longRevoked.ID)

	require.Equal(t, purgedBefore+2, promtestutil.ToFloat64(metrics.PurgedSessions))
	require.Equal(t, float64(1), promtestutil.ToFloat64(metrics.ActiveSessions))

	assignments, err := reader.Assignments(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, "user", assignments[0].Role)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		require.EqualValues(t, 1, job.TotalRuns)
		require.Empty(t, job.LastError)
	}
}

type failingStore struct {
	iauth.SessionStore
}

func (failingStore) PurgeBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

type failingJanitor struct{}

func (failingJanitor) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("role table unavailable")
}

func TestCleanerRunOnceCollectsErrors(t *testing.T) {
	tracker := monitoring.NewJobTracker(nil)
	c := NewCleaner(failingStore{}, WithRoleJanitor(failingJanitor{}), WithTracker(tracker))

	err := c.RunOnce(context.Background())
	require.ErrorContains(t, err, "database is locked")
	require.ErrorContains(t, err, "role table unavailable")

	for _, job := range tracker.Snapshot() {
		require.EqualValues(t, 1, job.ConsecutiveFailures)
	}
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	tracker := monitoring.NewJobTracker(nil)
	c := NewCleaner(failingStore{},
		WithCron(scheduler),
		WithTracker(tracker),
		WithSessionSchedule("*/5 * * * *"),
	)

	require.NoError(t, c.Start())
	<-c.Stop().Done()

	require.Len(t, scheduler.Entries(), 1)
	jobs := tracker.Snapshot()
	require.Len(t, jobs, 1)
	require.Equal(t, JobSessionPurge, jobs[0].Job)
	require.Zero(t, jobs[0].TotalRuns)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(failingStore{}, WithSessionSchedule("whenever"))
	require.ErrorContains(t, c.Start(), "schedule session_purge")
}

func TestCleanerWithoutJobsIsNoop(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}
