package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// DefaultStoreTimeout bounds every store round trip made by the rotator.
const DefaultStoreTimeout = 5 * time.Second

const (
	maxUserAgentLength = 512
	maxIPLength        = 64
)

var (
	errBindingMismatch = errors.New("token binding does not match request")
	errHashMismatch    = errors.New("refresh token hash mismatch")
	errSessionRevoked  = errors.New("session already revoked")
	errSessionExpired  = errors.New("session expired")
	errLostRace        = errors.New("session revoked concurrently")
)

// Client describes the device a session was issued to.
type Client struct {
	UserAgent string
	IP        string
}

// Tokens is the credential set returned on login and rotation.
type Tokens struct {
	AccessToken  string
	AccessTTL    int
	RefreshToken string
	RefreshTTL   int
	SessionID    string
	FamilyID     string
}

// RotateRequest carries the presented refresh token and the identifiers the caller expects it
// to be bound to. Empty identifiers are taken from the token.
type RotateRequest struct {
	UserID       string
	RefreshToken string
	SessionID    string
	FamilyID     string
	UserAgent    string
	IP           string
}

// RotatorConfig describes tunable behaviour for the SessionRotator.
type RotatorConfig struct {
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// SessionRotator issues session families and rotates refresh tokens within them. A refresh token
// can be exchanged exactly once; any other presentation revokes the whole family.
type SessionRotator struct {
	codec    *TokenCodec
	store    SessionStore
	hasher   *RefreshHasher
	subjects SubjectLoader
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewSessionRotator wires the rotator dependencies.
func NewSessionRotator(codec *TokenCodec, store SessionStore, hasher *RefreshHasher, subjects SubjectLoader, cfg RotatorConfig) (*SessionRotator, error) {
	if codec == nil {
		return nil, errors.New("session rotator: token codec is required")
	}
	if store == nil {
		return nil, errors.New("session rotator: session store is required")
	}
	if hasher == nil {
		return nil, errors.New("session rotator: refresh hasher is required")
	}
	if subjects == nil {
		return nil, errors.New("session rotator: subject loader is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionRotator{
		codec:    codec,
		store:    store,
		hasher:   hasher,
		subjects: subjects,
		timeout:  orDefault(cfg.StoreTimeout, DefaultStoreTimeout),
		now:      clock,
		log:      logger.WithModule("session"),
	}, nil
}

// IssueInitial opens a new family for subject. The refresh token is minted before the insert so
// the row is written once with its final hash.
func (r *SessionRotator) IssueInitial(ctx context.Context, subject Subject, client Client) (Tokens, error) {
	if strings.TrimSpace(subject.UserID) == "" {
		return Tokens{}, errors.New("session rotator: subject user id is required")
	}

	sessionID := uuid.NewString()
	familyID := uuid.NewString()

	refreshToken, refreshTTL, err := r.codec.MintRefresh(subject.UserID, sessionID, familyID, subject.IsGuest)
	if err != nil {
		return Tokens{}, err
	}
	hash, err := r.hasher.Hash(refreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("session rotator: hash refresh token: %w", err)
	}

	now := r.now()
	row := &models.Session{
		ID:               sessionID,
		UserID:           subject.UserID,
		FamilyID:         familyID,
		RefreshTokenHash: hash,
		UserAgent:        truncate(client.UserAgent, maxUserAgentLength),
		IPAddress:        truncate(client.IP, maxIPLength),
		CreatedAt:        now,
		LastUsedAt:       now,
		ExpiresAt:        now.Add(r.codec.RefreshTTL(subject.IsGuest)),
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Insert(storeCtx, row); err != nil {
		return Tokens{}, fmt.Errorf("session rotator: insert session: %w", err)
	}

	accessToken, accessTTL, err := r.codec.MintAccess(subject.UserID, subject.Email, subject.Roles, subject.IsGuest)
	if err != nil {
		return Tokens{}, err
	}

	metrics.SessionsIssued.WithLabelValues(subjectKind(subject.IsGuest)).Inc()
	r.log.Info("session family opened",
		zap.String("user_id", subject.UserID),
		zap.String("family_id", familyID),
		zap.String("session_id", sessionID),
	)

	return Tokens{
		AccessToken:  accessToken,
		AccessTTL:    accessTTL,
		RefreshToken: refreshToken,
		RefreshTTL:   refreshTTL,
		SessionID:    sessionID,
		FamilyID:     familyID,
	}, nil
}

// Rotate exchanges a refresh token for a new token pair. Every failure other than a store outage
// is reported as ErrRejected and revokes the family the token claims to belong to.
func (r *SessionRotator) Rotate(ctx context.Context, req RotateRequest) (Tokens, error) {
	claims, err := r.codec.VerifyRefresh(req.RefreshToken)
	if err != nil {
		metrics.Rotations.WithLabelValues("rejected").Inc()
		r.log.Debug("refresh token failed verification", zap.Error(err))
		return Tokens{}, reject(ReasonInvalidToken, err)
	}

	if !bound(req.UserID, claims.UserID) || !bound(req.SessionID, claims.SessionID) || !bound(req.FamilyID, claims.FamilyID) {
		return Tokens{}, r.rejectFamily(ctx, claims, reject(ReasonTamperDetected, errBindingMismatch))
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	subject, err := r.subjects.LoadSubject(storeCtx, claims.UserID)
	if errors.Is(err, ErrSubjectNotFound) {
		return Tokens{}, r.rejectFamily(ctx, claims, reject(ReasonSubjectGone, err))
	}
	if err != nil {
		return Tokens{}, r.unavailable(claims, err)
	}

	now := r.now()
	var (
		successor    *models.Session
		refreshToken string
		refreshTTL   int
	)

	err = r.store.WithinTx(storeCtx, func(tx SessionStore) error {
		row, err := tx.Get(storeCtx, claims.SessionID)
		if errors.Is(err, ErrNotFound) {
			return reject(ReasonUnknownSession, err)
		}
		if err != nil {
			return err
		}

		switch {
		case row.UserID != claims.UserID || row.FamilyID != claims.FamilyID:
			return reject(ReasonTamperDetected, errBindingMismatch)
		case row.RevokedAt != nil:
			return reject(ReasonReuseDetected, errSessionRevoked)
		case !row.ExpiresAt.After(now):
			return reject(ReasonUnknownSession, errSessionExpired)
		case !r.hasher.Equal(req.RefreshToken, row.RefreshTokenHash):
			return reject(ReasonTamperDetected, errHashMismatch)
		}

		won, err := tx.RevokeOne(storeCtx, row.ID, now, ReasonRotated)
		if err != nil {
			return err
		}
		if !won {
			return reject(ReasonReuseDetected, errLostRace)
		}

		successorID := uuid.NewString()
		refreshToken, refreshTTL, err = r.codec.MintRefresh(subject.UserID, successorID, row.FamilyID, subject.IsGuest)
		if err != nil {
			return err
		}
		hash, err := r.hasher.Hash(refreshToken)
		if err != nil {
			return err
		}

		predecessor := row.ID
		successor = &models.Session{
			ID:               successorID,
			UserID:           row.UserID,
			FamilyID:         row.FamilyID,
			RotatedFrom:      &predecessor,
			RefreshTokenHash: hash,
			UserAgent:        truncate(firstNonEmpty(req.UserAgent, row.UserAgent), maxUserAgentLength),
			IPAddress:        firstNonEmpty(truncate(req.IP, maxIPLength), row.IPAddress),
			CreatedAt:        now,
			LastUsedAt:       now,
			ExpiresAt:        now.Add(r.codec.RefreshTTL(subject.IsGuest)),
		}
		return tx.Insert(storeCtx, successor)
	})
	if err != nil {
		if RejectionReason(err) != "" {
			return Tokens{}, r.rejectFamily(ctx, claims, err)
		}
		return Tokens{}, r.unavailable(claims, err)
	}

	accessToken, accessTTL, err := r.codec.MintAccess(subject.UserID, subject.Email, subject.Roles, subject.IsGuest)
	if err != nil {
		return Tokens{}, err
	}

	metrics.Rotations.WithLabelValues("success").Inc()
	metrics.Revocations.WithLabelValues(string(ReasonRotated)).Inc()
	r.log.Debug("refresh token rotated",
		zap.String("user_id", successor.UserID),
		zap.String("family_id", successor.FamilyID),
		zap.String("rotated_from", claims.SessionID),
		zap.String("session_id", successor.ID),
	)

	return Tokens{
		AccessToken:  accessToken,
		AccessTTL:    accessTTL,
		RefreshToken: refreshToken,
		RefreshTTL:   refreshTTL,
		SessionID:    successor.ID,
		FamilyID:     successor.FamilyID,
	}, nil
}

// rejectFamily revokes the family named by the signed claims. It runs after the rotation
// transaction rolled back and must not inherit the caller's cancellation.
func (r *SessionRotator) rejectFamily(ctx context.Context, claims *RefreshClaims, rejection error) error {
	reason := RejectionReason(rejection)

	revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	revoked, err := r.store.RevokeFamily(revokeCtx, claims.FamilyID, r.now(), reason)
	if err != nil {
		r.log.Error("failed to revoke session family after rejected refresh",
			zap.String("family_id", claims.FamilyID),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		metrics.Rotations.WithLabelValues("unavailable").Inc()
		return err
	}

	metrics.Rotations.WithLabelValues("rejected").Inc()
	metrics.Revocations.WithLabelValues(string(reason)).Add(float64(revoked))
	r.log.Warn("refresh rejected, session family revoked",
		zap.String("user_id", claims.UserID),
		zap.String("family_id", claims.FamilyID),
		zap.String("session_id", claims.SessionID),
		zap.String("reason", string(reason)),
		zap.Int64("revoked", revoked),
		zap.Error(rejection),
	)
	return rejection
}

func (r *SessionRotator) unavailable(claims *RefreshClaims, err error) error {
	metrics.Rotations.WithLabelValues("unavailable").Inc()
	r.log.Error("session store unavailable during refresh",
		zap.String("family_id", claims.FamilyID),
		zap.Error(err),
	)
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return unavailable("rotate", err)
}

// RevokeOne revokes a single session as a logout.
func (r *SessionRotator) RevokeOne(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	won, err := r.store.RevokeOne(ctx, sessionID, r.now(), ReasonLogout)
	if err != nil {
		return err
	}
	if won {
		metrics.Revocations.WithLabelValues(string(ReasonLogout)).Inc()
	}
	return nil
}

// Logout revokes sessionID only when it is an active session owned by userID.
func (r *SessionRotator) Logout(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.store.FindActive(ctx, sessionID, userID, r.now()); err != nil {
		return err
	}
	return r.RevokeOne(ctx, sessionID)
}

// RevokeFamily revokes every session descending from the same login.
func (r *SessionRotator) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	return r.revokeMany(ctx, ReasonAdmin, "family_id", familyID, r.store.RevokeFamily)
}

// RevokeUser revokes every session of userID.
func (r *SessionRotator) RevokeUser(ctx context.Context, userID string) (int64, error) {
	return r.revokeMany(ctx, ReasonLogoutAll, "user_id", userID, r.store.RevokeUser)
}

func (r *SessionRotator) revokeMany(
	ctx context.Context,
	reason RevokeReason,
	field, id string,
	revoke func(context.Context, string, time.Time, RevokeReason) (int64, error),
) (int64, error) {
	if strings.TrimSpace(id) == "" {
		return 0, fmt.Errorf("session rotator: %s is required", field)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	revoked, err := revoke(ctx, id, r.now(), reason)
	if err != nil {
		return 0, err
	}

	metrics.Revocations.WithLabelValues(string(reason)).Add(float64(revoked))
	r.log.Info("sessions revoked",
		zap.String(field, id),
		zap.String("reason", string(reason)),
		zap.Int64("revoked", revoked),
	)
	return revoked, nil
}

// ListSessions returns the active sessions of userID, newest first.
func (r *SessionRotator) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.store.ListActive(ctx, userID, r.now())
}

func bound(requested, signed string) bool {
	return requested == "" || requested == signed
}

func subjectKind(guest bool) string {
	if guest {
		return "guest"
	}
	return "user"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate bounds value to max bytes without splitting a UTF-8 sequence. Invalid bytes are
// dropped first since server databases refuse them.
func truncate(value string, max int) string {
	value = strings.ToValidUTF8(strings.TrimSpace(value), "")
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
