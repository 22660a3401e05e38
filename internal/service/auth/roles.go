// internal/service/auth/roles.go
package auth

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

var roleNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// AssignRole grants a role to the named account. The change shows up in the
// account's next issued access token; tokens already handed out keep their
// roles until they expire.
func (s *AuthService) AssignRole(ctx context.Context, username, role string) error {
	user, roles, err := s.userWithRoles(ctx, username, role)
	if err != nil {
		return err
	}
	if slices.Contains(roles, role) {
		return xerrors.Validation("user already has role " + role)
	}
	if err := s.store.AssignRole(ctx, user.ID, role); err != nil {
		return xerrors.Wrap(err, "failed to assign role")
	}
	s.logger.Info("role assigned", zap.String("user_id", user.ID), zap.String("role", role))
	return nil
}

// RemoveRole takes a role away from the named account.
func (s *AuthService) RemoveRole(ctx context.Context, username, role string) error {
	user, _, err := s.userWithRoles(ctx, username, role)
	if err != nil {
		return err
	}
	removed, err := s.store.RemoveRole(ctx, user.ID, role)
	if err != nil {
		return xerrors.Wrap(err, "failed to remove role")
	}
	if !removed {
		return xerrors.Validation("user does not have role " + role)
	}
	s.logger.Info("role removed", zap.String("user_id", user.ID), zap.String("role", role))
	return nil
}

func (s *AuthService) userWithRoles(ctx context.Context, username, role string) (*auth.User, []string, error) {
	if !roleNamePattern.MatchString(role) {
		return nil, nil, xerrors.Validation("invalid role name")
	}
	user, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil, xerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	roles, err := s.store.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, nil, xerrors.Wrap(err, "failed to load roles")
	}
	return user, roles, nil
}

// UpdateProfile changes the caller's display name and returns the updated
// profile.
func (s *AuthService) UpdateProfile(ctx context.Context, claims *jwt.Claims, req *auth.UpdateProfileRequest) (*auth.UserInfo, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerrors.Validation("name is required")
	}
	err := s.store.UpdateName(ctx, claims.UserID(), name)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to update profile")
	}
	return s.Me(ctx, claims)
}
