// internal/service/auth/admin_create.go
package auth

import (
	"context"
	"errors"
	"fmt"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnsureAdminExists makes sure an account with the given email exists and
// holds the Admin role (called on startup). An existing account keeps its
// password.
func (s *AuthService) EnsureAdminExists(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		return fmt.Errorf("admin email and password must be provided via environment variables")
	}
	if len(password) < 8 {
		return fmt.Errorf("admin password must be at least 8 characters")
	}

	user, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		s.logger.Info("creating admin account", zap.String("email", email))

		hash, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		stamp, err := security.NewStamp()
		if err != nil {
			return err
		}

		user = &auth.User{
			ID:             uuid.NewString(),
			Username:       email,
			Email:          email,
			Name:           name,
			EmailConfirmed: true, // admin is pre-verified
			PasswordHash:   hash,
			SecurityStamp:  stamp,
			RegisteredAt:   s.now().UTC(),
		}
		if err := s.store.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to check admin existence: %w", err)
	}

	if err := s.store.AssignRole(ctx, user.ID, jwt.RoleAdmin); err != nil {
		return fmt.Errorf("failed to assign admin role: %w", err)
	}

	s.logger.Info("admin account ready", zap.String("user_id", user.ID))
	return nil
}
