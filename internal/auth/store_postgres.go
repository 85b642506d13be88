package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/charlesng35/authcore/internal/models"
)

const pgUniqueViolation = "23505"

const sessionColumns = `
	id, user_id, family_id, rotated_from, refresh_token_hash,
	user_agent, ip, created_at, last_used_at, expires_at,
	revoked_at, revoked_reason`

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSessionStore implements SessionStore with native pgx queries against the sessions
// table created by the embedded migrations.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
	q    pgxQuerier
	inTx bool
}

// NewPostgresSessionStore creates a pgx-backed session store.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool, q: pool}
}

func (s *PostgresSessionStore) Insert(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session store: session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		session.ID, session.UserID, session.FamilyID, session.RotatedFrom, session.RefreshTokenHash,
		session.UserAgent, session.IPAddress, session.CreatedAt, session.LastUsedAt, session.ExpiresAt,
		session.RevokedAt, session.RevokedReason,
	)
	return translatePgError("insert session", err)
}

func (s *PostgresSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	session, err := scanSession(s.q.QueryRow(ctx, query, sessionID))
	if err != nil {
		return nil, translatePgError("get session", err)
	}
	return session, nil
}

func (s *PostgresSessionStore) FindActive(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > $3`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	session, err := scanSession(s.q.QueryRow(ctx, query, sessionID, userID, now))
	if err != nil {
		return nil, translatePgError("find active session", err)
	}
	return session, nil
}

func (s *PostgresSessionStore) RevokeOne(ctx context.Context, sessionID string, now time.Time, reason RevokeReason) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, sessionID, now, string(reason))
	if err != nil {
		return false, translatePgError("revoke session", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresSessionStore) RevokeFamily(ctx context.Context, familyID string, now time.Time, reason RevokeReason) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $2, revoked_reason = $3
		WHERE family_id = $1 AND revoked_at IS NULL
	`, familyID, now, string(reason))
	if err != nil {
		return 0, translatePgError("revoke family", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresSessionStore) RevokeUser(ctx context.Context, userID string, now time.Time, reason RevokeReason) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now, string(reason))
	if err != nil {
		return 0, translatePgError("revoke user sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresSessionStore) ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, now)
	if err != nil {
		return nil, translatePgError("list sessions", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, translatePgError("list sessions", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError("list sessions", err)
	}
	return sessions, nil
}

func (s *PostgresSessionStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`, cutoff)
	if err != nil {
		return 0, translatePgError("purge sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresSessionStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions WHERE revoked_at IS NULL AND expires_at > $1
	`, now).Scan(&count)
	if err != nil {
		return 0, translatePgError("count sessions", err)
	}
	return count, nil
}

// WithinTx runs fn inside a pgx transaction; row reads lock with FOR UPDATE.
func (s *PostgresSessionStore) WithinTx(ctx context.Context, fn func(SessionStore) error) error {
	if s.inTx {
		return fn(s)
	}

	var fnErr error
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		fnErr = fn(&PostgresSessionStore{pool: s.pool, q: tx, inTx: true})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return translatePgError("transaction", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.FamilyID,
		&session.RotatedFrom,
		&session.RefreshTokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.CreatedAt,
		&session.LastUsedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.RevokedReason,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func translatePgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return unavailable(op, err)
}
