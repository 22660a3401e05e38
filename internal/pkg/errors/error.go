package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
)

// Not-found errors that name their subject. Both match ErrNotFound.
var (
	ErrUserNotFound    = fmt.Errorf("user: %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session: %w", ErrNotFound)
)

// Authentication and session errors. Handlers collapse these into a
// generic unauthorized / bad request response.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrExpiredToken        = errors.New("token expired")
	ErrEmailNotConfirmed   = errors.New("email is not confirmed")
)

// External identity errors
var (
	ErrConflictingLink      = errors.New("external account is already linked to a different user")
	ErrEmailRequired        = errors.New("external provider did not return an email address")
	ErrProviderUnavailable  = errors.New("external provider unavailable")
	ErrInvalidProviderToken = errors.New("invalid external provider token")
	ErrUnsupportedProvider  = errors.New("unsupported external provider")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsAny reports whether err matches any of the targets.
func IsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Validation returns an error that matches ErrValidation and carries a
// client-safe message.
func Validation(message string) error {
	return fmt.Errorf("%w: %s", ErrValidation, message)
}
