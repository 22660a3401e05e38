// internal/service/auth/coordinator.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/security"
	"lovi-service/internal/pkg/session"

	"go.uber.org/zap"
)

const tokenTypeBearer = "Bearer"

// RefreshCoordinator binds logins to device sessions and rotates refresh
// secrets. Secrets are stored hashed; the plain value only ever leaves
// through the returned TokenPair.
type RefreshCoordinator struct {
	store         CredentialStore
	registry      session.Registry
	assembler     *ClaimsAssembler
	issuer        *jwt.Issuer
	secrets       security.SecretGenerator
	refreshTTL    time.Duration
	revokeOnReuse bool
	now           func() time.Time
	metrics       *Metrics
	logger        *zap.Logger
}

type CoordinatorConfig struct {
	RefreshTTL    time.Duration
	RevokeOnReuse bool
}

func NewRefreshCoordinator(
	store CredentialStore,
	registry session.Registry,
	assembler *ClaimsAssembler,
	issuer *jwt.Issuer,
	cfg CoordinatorConfig,
	metrics *Metrics,
	logger *zap.Logger,
) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:         store,
		registry:      registry,
		assembler:     assembler,
		issuer:        issuer,
		secrets:       security.RandomSecrets{},
		refreshTTL:    cfg.RefreshTTL,
		revokeOnReuse: cfg.RevokeOnReuse,
		now:           time.Now,
		metrics:       metrics,
		logger:        logger,
	}
}

// Login creates or overwrites the session for (user, deviceID) and issues
// a fresh access token. Any earlier secret on that device stops working.
func (c *RefreshCoordinator) Login(ctx context.Context, user *auth.User, deviceID string) (*auth.TokenPair, *jwt.Claims, error) {
	if deviceID == "" {
		return nil, nil, xerrors.Validation("device id is required")
	}

	secret, err := c.secrets.New()
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	rec, err := c.registry.Upsert(ctx, user.Username, deviceID, security.HashSecret(secret), now, now.Add(c.refreshTTL))
	if err != nil {
		return nil, nil, err
	}

	return c.issue(ctx, user, secret, rec)
}

// Refresh exchanges a refresh secret for a new access token and a new
// secret. The presented secret is single use: the compare-and-rotate in
// the registry lets exactly one of several concurrent calls through.
func (c *RefreshCoordinator) Refresh(ctx context.Context, presented, deviceID string) (*auth.TokenPair, *jwt.Claims, error) {
	if presented == "" || deviceID == "" {
		c.metrics.refresh("invalid")
		return nil, nil, xerrors.ErrInvalidRefreshToken
	}

	next, err := c.secrets.New()
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	presentedHash := security.HashSecret(presented)
	rec, err := c.registry.Rotate(ctx, deviceID, presentedHash, security.HashSecret(next), now, now.Add(c.refreshTTL))
	if errors.Is(err, xerrors.ErrNotFound) {
		c.metrics.refresh("invalid")
		c.detectReuse(ctx, deviceID, presentedHash)
		return nil, nil, xerrors.ErrInvalidRefreshToken
	}
	if err != nil {
		c.metrics.refresh("error")
		return nil, nil, err
	}

	user, err := c.store.FindByUsername(ctx, rec.Username)
	if errors.Is(err, xerrors.ErrNotFound) || (err == nil && predates(rec, user)) {
		// the account behind this session is gone or was re-registered
		c.metrics.refresh("invalid")
		if _, derr := c.registry.Delete(ctx, rec.Username, deviceID); derr != nil {
			c.logger.Warn("failed to drop orphaned session", zap.String("device_id", deviceID), zap.Error(derr))
		}
		return nil, nil, xerrors.ErrInvalidRefreshToken
	}
	if err != nil {
		c.metrics.refresh("error")
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}

	pair, claims, err := c.issue(ctx, user, next, rec)
	if err != nil {
		c.metrics.refresh("error")
		return nil, nil, err
	}
	c.metrics.refresh("success")
	return pair, claims, nil
}

// predates reports whether the session was issued before the account
// existed. Registries keep issue times at millisecond precision.
func predates(rec *session.Record, user *auth.User) bool {
	return rec.IssuedAt.Before(user.RegisteredAt.Truncate(time.Millisecond))
}

// detectReuse checks whether a rejected secret is one that was already
// rotated away, which means it was copied.
func (c *RefreshCoordinator) detectReuse(ctx context.Context, deviceID, presentedHash string) {
	rec, err := c.registry.FindRotatedAway(ctx, deviceID, presentedHash)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			c.logger.Error("reuse lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		}
		return
	}

	c.metrics.reuse()
	c.logger.Warn("rotated refresh secret presented again",
		zap.String("username", rec.Username),
		zap.String("device_id", deviceID),
		zap.Bool("revoking", c.revokeOnReuse),
	)

	if c.revokeOnReuse {
		if _, err := c.registry.Delete(ctx, rec.Username, deviceID); err != nil {
			c.logger.Error("failed to revoke reused session", zap.String("device_id", deviceID), zap.Error(err))
		}
	}
}

func (c *RefreshCoordinator) issue(ctx context.Context, user *auth.User, secret string, rec *session.Record) (*auth.TokenPair, *jwt.Claims, error) {
	claims, err := c.assembler.Assemble(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	access, expiresAt, err := c.issuer.Issue(claims)
	if err != nil {
		return nil, nil, err
	}

	return &auth.TokenPair{
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshToken:    secret,
		RefreshExpires:  rec.ExpiresAt,
		TokenType:       tokenTypeBearer,
	}, claims, nil
}
