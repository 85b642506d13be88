package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/permissions"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func newTestCodec(t *testing.T, clock *testClock) *TokenCodec {
	t.Helper()

	codec, err := NewTokenCodec(TokenCodecConfig{
		Secret: testSecret,
		Issuer: "authcore",
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	return codec
}

func newTestHasher(t *testing.T) *RefreshHasher {
	t.Helper()

	hasher, err := NewRefreshHasher("test-pepper-0123456789abcdef012345")
	require.NoError(t, err)
	return hasher
}

func createTestUser(t *testing.T, db *gorm.DB, email string, guest bool) *models.User {
	t.Helper()

	user := &models.User{Email: email, IsGuest: guest, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	table, err := permissions.DefaultRoleTable()
	require.NoError(t, err)
	return testutil.MustOpenTestDB(t, testutil.WithSeeders(permissions.Seeder(table)))
}

func grantRole(t *testing.T, db *gorm.DB, userID, role string) {
	t.Helper()
	require.NoError(t, permissions.NewGormAssignmentReader(db).Grant(context.Background(), userID, role, nil, ""))
}

func newTestSubjects(t *testing.T, db *gorm.DB, clock *testClock) *GormSubjectLoader {
	t.Helper()

	table, err := permissions.DefaultRoleTable()
	require.NoError(t, err)
	resolver, err := permissions.NewResolver(table, clock.Now)
	require.NoError(t, err)
	checker, err := permissions.NewChecker(permissions.NewGormAssignmentReader(db), resolver)
	require.NoError(t, err)
	return NewGormSubjectLoader(db, checker)
}
