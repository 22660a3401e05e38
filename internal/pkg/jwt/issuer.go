// internal/pkg/jwt/issuer.go
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Issuer mints HS256 access tokens. It holds no state besides its key.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(key []byte, issuer, audience string, ttl time.Duration) *Issuer {
	return &Issuer{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the configured access token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs the claim set with an absolute expiry and returns the token
// together with that expiry. The caller's claims are not modified.
func (i *Issuer) Issue(claims *Claims) (string, time.Time, error) {
	if len(i.key) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt issuer has empty signing key")
	}
	if claims == nil || claims.Subject == "" {
		return "", time.Time{}, fmt.Errorf("claims must carry a subject")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)

	c := claims.clone()
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	c.Issuer = i.issuer
	c.Audience = jwt.ClaimStrings{i.audience}
	c.IssuedAt = jwt.NewNumericDate(now)
	c.NotBefore = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}
