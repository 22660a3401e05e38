// Package actiontoken mints and checks stateless, purpose-bound tokens used
// by account recovery flows. A token is a compact HS256 JWT whose key is
// derived from the server secret, the user id and the user's current
// security stamp, so rotating the stamp invalidates every outstanding token.
package actiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	xerrors "lovi-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

type Purpose string

const (
	PurposeEmailConfirm  Purpose = "email-confirm"
	PurposePasswordReset Purpose = "password-reset"
	PurposeEmailChange   Purpose = "email-change"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailConfirm, PurposePasswordReset, PurposeEmailChange:
		return true
	}
	return false
}

// RotatesStamp reports whether consuming a token of this purpose must bump
// the user's security stamp.
func (p Purpose) RotatesStamp() bool {
	return p == PurposePasswordReset || p == PurposeEmailChange
}

const issuer = "lovi-action"

type claims struct {
	Purpose Purpose `json:"purpose"`
	Target  string  `json:"target,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the server secret and per-purpose validity windows.
type Config struct {
	Secret          string
	EmailConfirmTTL time.Duration
	PasswordReset   time.Duration
	EmailChangeTTL  time.Duration
}

func (c Config) Validate() error {
	if len(c.Secret) < 32 {
		return fmt.Errorf("action token secret must be at least 32 bytes")
	}
	if c.EmailConfirmTTL <= 0 || c.PasswordReset <= 0 || c.EmailChangeTTL <= 0 {
		return fmt.Errorf("action token windows must be positive")
	}
	return nil
}

type Codec struct {
	secret []byte
	ttls   map[Purpose]time.Duration
	now    func() time.Time
}

func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		secret: []byte(cfg.Secret),
		ttls: map[Purpose]time.Duration{
			PurposeEmailConfirm:  cfg.EmailConfirmTTL,
			PurposePasswordReset: cfg.PasswordReset,
			PurposeEmailChange:   cfg.EmailChangeTTL,
		},
		now: time.Now,
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// TTL returns the validity window of a purpose.
func (c *Codec) TTL(p Purpose) time.Duration {
	return c.ttls[p]
}

// Issue mints a token for (userID, purpose, target) under the given stamp.
func (c *Codec) Issue(userID string, purpose Purpose, target, stamp string) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("unknown action token purpose %q", purpose)
	}
	if userID == "" || stamp == "" {
		return "", fmt.Errorf("user id and security stamp are required")
	}

	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		Purpose: purpose,
		Target:  target,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttls[purpose])),
		},
	})

	signed, err := tok.SignedString(c.userKey(userID, stamp))
	if err != nil {
		return "", fmt.Errorf("failed to sign action token: %w", err)
	}
	return signed, nil
}

// Verify checks a presented token. Every failure, including expiry, is
// reported as xerrors.ErrInvalidToken.
func (c *Codec) Verify(token, userID string, purpose Purpose, target, stamp string) error {
	if token == "" || userID == "" || stamp == "" {
		return xerrors.ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(userID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(c.now),
	)

	parsed, err := parser.ParseWithClaims(token, &claims{}, func(*jwt.Token) (interface{}, error) {
		return c.userKey(userID, stamp), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrInvalidToken, err)
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return xerrors.ErrInvalidToken
	}
	if cl.Purpose != purpose {
		return fmt.Errorf("%w: purpose mismatch", xerrors.ErrInvalidToken)
	}
	if subtle.ConstantTimeCompare([]byte(cl.Target), []byte(target)) != 1 {
		return fmt.Errorf("%w: target mismatch", xerrors.ErrInvalidToken)
	}
	return nil
}

// userKey binds the signing key to the user's current stamp.
func (c *Codec) userKey(userID, stamp string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(stamp))
	return mac.Sum(nil)
}

// IsInvalid reports whether err is a token rejection.
func IsInvalid(err error) bool {
	return errors.Is(err, xerrors.ErrInvalidToken)
}
