package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authcore/internal/models"
)

// SessionStore persists session rows. Implementations translate driver errors into
// ErrNotFound, ErrConflict and ErrStoreUnavailable.
type SessionStore interface {
	Insert(ctx context.Context, session *models.Session) error
	// Get returns the row in any state. Inside WithinTx the row is locked for update where
	// the engine supports it.
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	FindActive(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error)
	// RevokeOne reports whether this call performed the revocation.
	RevokeOne(ctx context.Context, sessionID string, now time.Time, reason RevokeReason) (bool, error)
	RevokeFamily(ctx context.Context, familyID string, now time.Time, reason RevokeReason) (int64, error)
	RevokeUser(ctx context.Context, userID string, now time.Time, reason RevokeReason) (int64, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
	WithinTx(ctx context.Context, fn func(SessionStore) error) error
}

// GormSessionStore implements SessionStore on any gorm dialect the service can open.
type GormSessionStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormSessionStore wraps db. The handle should be opened with TranslateError enabled so
// duplicate keys surface as ErrConflict.
func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Insert(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session store: session is required")
	}
	return translateGormError("insert session", s.db.WithContext(ctx).Create(session).Error)
}

func (s *GormSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	query := s.db.WithContext(ctx)
	if s.inTx && supportsRowLocks(s.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var session models.Session
	if err := query.Take(&session, "id = ?", sessionID).Error; err != nil {
		return nil, translateGormError("get session", err)
	}
	return &session, nil
}

func (s *GormSessionStore) FindActive(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error) {
	query := s.db.WithContext(ctx)
	if s.inTx && supportsRowLocks(s.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var session models.Session
	err := query.
		Where("id = ? AND user_id = ?", sessionID, userID).
		Where("revoked_at IS NULL AND expires_at > ?", now).
		Take(&session).Error
	if err != nil {
		return nil, translateGormError("find active session", err)
	}
	return &session, nil
}

func (s *GormSessionStore) RevokeOne(ctx context.Context, sessionID string, now time.Time, reason RevokeReason) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Updates(revokeColumns(now, reason))
	if result.Error != nil {
		return false, translateGormError("revoke session", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormSessionStore) RevokeFamily(ctx context.Context, familyID string, now time.Time, reason RevokeReason) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Updates(revokeColumns(now, reason))
	if result.Error != nil {
		return 0, translateGormError("revoke family", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) RevokeUser(ctx context.Context, userID string, now time.Time, reason RevokeReason) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(revokeColumns(now, reason))
	if result.Error != nil {
		return 0, translateGormError("revoke user sessions", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, translateGormError("list sessions", err)
	}
	return sessions, nil
}

// PurgeBefore deletes rows that expired, or were revoked, before cutoff.
func (s *GormSessionStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Or("revoked_at IS NOT NULL AND revoked_at < ?", cutoff).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, translateGormError("purge sessions", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("revoked_at IS NULL AND expires_at > ?", now).
		Count(&count).Error
	if err != nil {
		return 0, translateGormError("count sessions", err)
	}
	return count, nil
}

// WithinTx runs fn in a transaction. Nested calls reuse the outer transaction.
func (s *GormSessionStore) WithinTx(ctx context.Context, fn func(SessionStore) error) error {
	if s.inTx {
		return fn(s)
	}

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormSessionStore{db: tx, inTx: true})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return translateGormError("transaction", err)
	}
	return nil
}

func revokeColumns(now time.Time, reason RevokeReason) map[string]any {
	return map[string]any{
		"revoked_at":     now,
		"revoked_reason": string(reason),
	}
}

func supportsRowLocks(db *gorm.DB) bool {
	return !strings.Contains(db.Dialector.Name(), "sqlite")
}

func translateGormError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return unavailable(op, err)
	}
}
