package auth

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/database/migrate"
)

const postgresURLEnv = "AUTHCORE_TEST_DATABASE_URL"

func openPostgresStore(t *testing.T) *PostgresSessionStore {
	t.Helper()

	dsn := os.Getenv(postgresURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	require.NoError(t, migrate.Run(dsn, migrate.Up))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.OpenPool(ctx, database.Config{Driver: "postgres", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewPostgresSessionStore(pool)
}

func TestPostgresSessionStoreLifecycle(t *testing.T) {
	store := openPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	userID := uuid.NewString()
	familyID := uuid.NewString()

	session := newTestSession(userID, familyID, now, time.Hour)
	require.NoError(t, store.Insert(ctx, session))
	require.ErrorIs(t, store.Insert(ctx, session), ErrConflict)

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, familyID, got.FamilyID)
	require.True(t, got.ExpiresAt.Equal(session.ExpiresAt))

	_, err = store.FindActive(ctx, session.ID, uuid.NewString(), now)
	require.ErrorIs(t, err, ErrNotFound)

	predecessor := session.ID
	successor := newTestSession(userID, familyID, now, time.Hour)
	successor.RotatedFrom = &predecessor

	err = store.WithinTx(ctx, func(tx SessionStore) error {
		won, err := tx.RevokeOne(ctx, session.ID, now, ReasonRotated)
		if err != nil {
			return err
		}
		require.True(t, won)
		return tx.Insert(ctx, successor)
	})
	require.NoError(t, err)

	active, err := store.ListActive(ctx, userID, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, successor.ID, active[0].ID)
	require.Equal(t, predecessor, *active[0].RotatedFrom)

	revoked, err := store.RevokeFamily(ctx, familyID, now, ReasonReuseDetected)
	require.NoError(t, err)
	require.EqualValues(t, 1, revoked)

	purged, err := store.PurgeBefore(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.GreaterOrEqual(t, purged, int64(2))
}

func TestPostgresSessionStoreSerialisesRotation(t *testing.T) {
	store := openPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	session := newTestSession(uuid.NewString(), uuid.NewString(), now, time.Hour)
	require.NoError(t, store.Insert(ctx, session))

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(tx SessionStore) error {
				row, err := tx.Get(ctx, session.ID)
				if err != nil {
					return err
				}
				if row.RevokedAt != nil {
					return reject(ReasonReuseDetected, errSessionRevoked)
				}
				won, err := tx.RevokeOne(ctx, row.ID, now, ReasonRotated)
				if err != nil {
					return err
				}
				if !won {
					return reject(ReasonReuseDetected, errLostRace)
				}
				return tx.Insert(ctx, newTestSession(row.UserID, row.FamilyID, now, time.Hour))
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrRejected) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)

	rows, err := store.ListActive(ctx, session.UserID, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
