// internal/pkg/jwt/verifier.go
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Verifier struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewVerifier(key []byte, issuer, audience string) *Verifier {
	return &Verifier{
		key:      key,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Verify validates signature, algorithm, issuer, audience and expiry with no
// clock skew allowance. Every failure is an *InvalidTokenError.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.key) == 0 {
		return nil, fmt.Errorf("jwt verifier has empty signing key")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(v.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, Classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &InvalidTokenError{Kind: KindClaims, Err: errors.New("invalid token claims")}
	}
	if claims.Subject == "" || claims.Username == "" || claims.ID == "" {
		return nil, &InvalidTokenError{Kind: KindClaims, Err: errors.New("token is missing identity claims")}
	}

	return claims, nil
}
