// internal/service/auth/service.go
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

	"go.uber.org/zap"
)

type AuthService struct {
	store       CredentialStore
	coordinator *RefreshCoordinator
	revocation  *RevocationManager
	actions     *ActionTokenService
	linker      *ExternalIdentityLinker
	hasher      *security.Hasher
	limiter     LoginLimiter
	mail        *EmailHelper
	metrics     *Metrics
	now         func() time.Time
	logger      *zap.Logger
}

func NewAuthService(
	store CredentialStore,
	coordinator *RefreshCoordinator,
	revocation *RevocationManager,
	actions *ActionTokenService,
	linker *ExternalIdentityLinker,
	hasher *security.Hasher,
	limiter LoginLimiter,
	mail *EmailHelper,
	metrics *Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		store:       store,
		coordinator: coordinator,
		revocation:  revocation,
		actions:     actions,
		linker:      linker,
		hasher:      hasher,
		limiter:     limiter,
		mail:        mail,
		metrics:     metrics,
		now:         time.Now,
		logger:      logger,
	}
}

// ========== Login ==========

// Login authenticates with username and password and binds a session to
// the device.
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	if req.DeviceID == "" {
		return nil, xerrors.Validation("device id is required")
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.CheckLoginAttempt(ctx, req.IPAddress, req.Username)
		if err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
		if !allowed {
			s.metrics.login("password", "rate_limited")
			return nil, xerrors.ErrRateLimited
		}
	}

	user, err := s.store.FindByUsername(ctx, req.Username)
	if errors.Is(err, xerrors.ErrNotFound) {
		s.hasher.Burn(req.Password)
		s.metrics.login("password", "invalid")
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, security.ErrMismatch) {
			s.metrics.login("password", "invalid")
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.EmailConfirmed {
		s.metrics.login("password", "unconfirmed")
		return nil, xerrors.ErrEmailNotConfirmed
	}

	if s.limiter != nil {
		if err := s.limiter.ResetLoginAttempts(ctx, req.IPAddress, req.Username); err != nil {
			s.logger.Warn("failed to reset login attempts", zap.Error(err))
		}
	}

	resp, err := s.startSession(ctx, user, req.DeviceID)
	if err != nil {
		return nil, err
	}
	s.metrics.login("password", "success")
	return resp, nil
}

// ExternalLogin exchanges a provider access token, links or creates the
// local user, and binds a session to the device.
func (s *AuthService) ExternalLogin(ctx context.Context, req *auth.ExternalLoginRequest) (*auth.LoginResponse, error) {
	if req.DeviceID == "" {
		return nil, xerrors.Validation("device id is required")
	}

	ident, err := s.linker.Exchange(ctx, req.Provider, req.AccessToken)
	if err != nil {
		s.metrics.login("external", "rejected")
		return nil, err
	}

	user, err := s.linker.LinkOrCreate(ctx, ident)
	if err != nil {
		if errors.Is(err, xerrors.ErrConflictingLink) {
			s.metrics.login("external", "conflict")
		}
		return nil, err
	}

	resp, err := s.startSession(ctx, user, req.DeviceID)
	if err != nil {
		return nil, err
	}
	s.metrics.login("external", "success")
	return resp, nil
}

func (s *AuthService) startSession(ctx context.Context, user *auth.User, deviceID string) (*auth.LoginResponse, error) {
	if err := s.store.UpdateLoggedInAt(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update login time", zap.String("user_id", user.ID), zap.Error(err))
	}

	pair, claims, err := s.coordinator.Login(ctx, user, deviceID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("device_id", deviceID))
	return &auth.LoginResponse{TokenPair: *pair, User: userInfo(user, claims.Roles)}, nil
}

// ========== Refresh & Revocation ==========

func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID string) (*auth.TokenPair, error) {
	pair, _, err := s.coordinator.Refresh(ctx, refreshToken, deviceID)
	return pair, err
}

// Revoke ends the caller's session on one device.
func (s *AuthService) Revoke(ctx context.Context, claims *jwt.Claims, deviceID string) error {
	return s.revocation.RevokeOne(ctx, claims.Username, deviceID)
}

// RevokeAll ends every session of the caller.
func (s *AuthService) RevokeAll(ctx context.Context, claims *jwt.Claims) (int64, error) {
	return s.revocation.RevokeAll(ctx, claims.Username)
}

// RevokeUserSessions is the administrative variant of RevokeAll.
func (s *AuthService) RevokeUserSessions(ctx context.Context, username string) (int64, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, xerrors.ErrNotFound) {
		return 0, xerrors.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return s.revocation.RevokeAll(ctx, user.Username)
}

// Sessions lists the caller's devices. Secrets never leave the registry.
func (s *AuthService) Sessions(ctx context.Context, claims *jwt.Claims, currentDevice string) ([]auth.SessionInfo, error) {
	records, err := s.revocation.List(ctx, claims.Username)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]auth.SessionInfo, 0, len(records))
	for _, rec := range records {
		if rec.Expired(now) {
			continue
		}
		out = append(out, auth.SessionInfo{
			DeviceID:  rec.DeviceID,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
			RotatedAt: rec.RotatedAt,
			Current:   rec.DeviceID == currentDevice,
		})
	}
	return out, nil
}

// Me returns the caller's profile with freshly read roles and the
// providers linked to the account.
func (s *AuthService) Me(ctx context.Context, claims *jwt.Claims) (*auth.UserInfo, error) {
	user, err := s.store.FindByID(ctx, claims.UserID())
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	roles, err := s.store.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to load roles")
	}
	logins, err := s.store.ListExternalLogins(ctx, user.ID)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to load external logins")
	}

	info := userInfo(user, roles)
	for _, l := range logins {
		info.Providers = append(info.Providers, l.Provider)
	}
	return &info, nil
}

func userInfo(u *auth.User, roles []string) auth.UserInfo {
	if roles == nil {
		roles = []string{}
	}
	return auth.UserInfo{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Name:           u.Name,
		EmailConfirmed: u.EmailConfirmed,
		Roles:          roles,
	}
}
