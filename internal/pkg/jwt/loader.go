// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"time"
)

// MinKeyLength is the minimum HS256 key size in bytes.
const MinKeyLength = 32

type Config struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// Validate checks the configuration once at startup.
func (c Config) Validate() error {
	if len(c.SigningKey) < MinKeyLength {
		return fmt.Errorf("jwt signing key must be at least %d bytes", MinKeyLength)
	}
	if c.Issuer == "" || c.Audience == "" {
		return fmt.Errorf("jwt issuer and audience are required")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("jwt ttl must be positive")
	}
	return nil
}

type Manager struct {
	Issuer   *Issuer
	Verifier *Verifier
}

func LoadAndBuild(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid jwt config: %w", err)
	}

	key := []byte(cfg.SigningKey)
	return &Manager{
		Issuer:   NewIssuer(key, cfg.Issuer, cfg.Audience, cfg.TTL),
		Verifier: NewVerifier(key, cfg.Issuer, cfg.Audience),
	}, nil
}

// WithClock replaces the time source of both halves. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.Issuer.now = now
	m.Verifier.now = now
	return m
}
