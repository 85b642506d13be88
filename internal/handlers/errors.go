package handlers

import (
	"errors"

	iauth "github.com/charlesng35/authcore/internal/auth"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
)

// authError maps core errors to API errors. Every token and rotation failure is reported as the
// same 401 so clients cannot probe which check failed.
func authError(err error) *apperrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, iauth.ErrStoreUnavailable):
		return apperrors.ErrServiceUnavailable.WithInternal(err)
	case errors.Is(err, iauth.ErrRejected),
		errors.Is(err, iauth.ErrInvalidSignature),
		errors.Is(err, iauth.ErrExpired),
		errors.Is(err, iauth.ErrTypeMismatch):
		return apperrors.ErrUnauthorized.WithInternal(err)
	case errors.Is(err, iauth.ErrNotFound):
		return apperrors.ErrNotFound.WithInternal(err)
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
}
