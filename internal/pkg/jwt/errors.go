package jwt

import (
	"errors"
	"fmt"

	xerrors "lovi-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Kind tells apart the reasons a token was rejected. It is meant for logs
// and metrics; clients only ever see a generic unauthorized response.
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindExpired
	KindSignature
	KindClaims
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindSignature:
		return "signature"
	case KindClaims:
		return "claims"
	default:
		return "unknown"
	}
}

// InvalidTokenError is returned by every verification failure.
type InvalidTokenError struct {
	Kind Kind
	Err  error
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid token (%s): %v", e.Kind, e.Err)
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// Is matches xerrors.ErrInvalidToken for every kind, and
// xerrors.ErrExpiredToken for expired tokens.
func (e *InvalidTokenError) Is(target error) bool {
	if target == xerrors.ErrInvalidToken {
		return true
	}
	return e.Kind == KindExpired && target == xerrors.ErrExpiredToken
}

// Classify converts a golang-jwt parse error into an *InvalidTokenError.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var typed *InvalidTokenError
	if errors.As(err, &typed) {
		return typed
	}

	kind := KindClaims
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		kind = KindExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		kind = KindSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		kind = KindMalformed
	}
	return &InvalidTokenError{Kind: kind, Err: err}
}

// KindOf returns the rejection kind of err, or 0 when err is not a token error.
func KindOf(err error) Kind {
	var typed *InvalidTokenError
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return 0
}
