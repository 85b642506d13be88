package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature covers malformed tokens, foreign signatures and disallowed algorithms.
	ErrInvalidSignature = errors.New("auth: invalid token")
	// ErrExpired marks a well-signed token whose exp lies in the past.
	ErrExpired = errors.New("auth: token expired")
	// ErrTypeMismatch is returned when an access token is presented as refresh or vice versa.
	ErrTypeMismatch = errors.New("auth: token type mismatch")
	// ErrRejected is the single outward verdict for a refused rotation.
	ErrRejected = errors.New("auth: refresh rejected")
	// ErrStoreUnavailable signals the session store could not answer in time.
	ErrStoreUnavailable = errors.New("auth: session store unavailable")
	// ErrNotFound is returned when a session row does not exist.
	ErrNotFound = errors.New("auth: session not found")
	// ErrConflict is returned when inserting a session whose id already exists.
	ErrConflict = errors.New("auth: session conflict")
	// ErrCSRF marks a failed double-submit comparison.
	ErrCSRF = errors.New("auth: csrf token invalid")
)

// RevokeReason records why a session row was revoked.
type RevokeReason string

const (
	ReasonLogout         RevokeReason = "logout"
	ReasonLogoutAll      RevokeReason = "logout_all"
	ReasonRotated        RevokeReason = "rotated"
	ReasonReuseDetected  RevokeReason = "reuse_detected"
	ReasonTamperDetected RevokeReason = "tamper_detected"
	ReasonUnknownSession RevokeReason = "unknown_session"
	ReasonInvalidToken   RevokeReason = "invalid_token"
	ReasonSubjectGone    RevokeReason = "subject_inactive"
	ReasonAdmin          RevokeReason = "admin"
)

// RejectionError carries the internal reason behind ErrRejected for logs and metrics.
// Callers outside the package should only match it with errors.Is(err, ErrRejected).
type RejectionError struct {
	Reason RevokeReason
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: refresh rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: refresh rejected (%s)", e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRejected) match any rejection.
func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

func reject(reason RevokeReason, err error) error {
	return &RejectionError{Reason: reason, Err: err}
}

// RejectionReason extracts the reason from a rotation error, or "" when err is not a rejection.
func RejectionReason(err error) RevokeReason {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
