// internal/service/auth/recovery.go
package auth

import (
	"context"
	"errors"
	"strings"

	"lovi-service/internal/domain/auth"
	"lovi-service/internal/pkg/actiontoken"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recovery flows work on the credential store only. None of them touch
// device sessions, except account deletion.

// ========== Registration ==========

// Register creates an unconfirmed account whose username is its email and
// mails a confirmation link.
func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.UserInfo, error) {
	email := strings.TrimSpace(req.Email)

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	stamp, err := security.NewStamp()
	if err != nil {
		return nil, err
	}

	user := &auth.User{
		ID:            uuid.NewString(),
		Username:      email,
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		PasswordHash:  hash,
		SecurityStamp: stamp,
		RegisteredAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))

	s.sendConfirmation(user)

	info := userInfo(user, nil)
	return &info, nil
}

func (s *AuthService) sendConfirmation(user *auth.User) {
	token, err := s.actions.Issue(user, actiontoken.PurposeEmailConfirm, "")
	if err != nil {
		s.logger.Error("failed to issue confirmation token", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	s.mail.SendConfirmation(user.Email, user.Name, user.ID, token, s.actions.Window(actiontoken.PurposeEmailConfirm))
}

// ConfirmEmail consumes an email-confirm token. Confirming twice is harmless.
func (s *AuthService) ConfirmEmail(ctx context.Context, req *auth.ConfirmEmailRequest) error {
	_, err := s.actions.Consume(ctx, req.UserID, actiontoken.PurposeEmailConfirm, req.Token, "", nil)
	return err
}

// ResendConfirmation answers the same for unknown, confirmed and
// unconfirmed addresses. Only the last get a mail.
func (s *AuthService) ResendConfirmation(ctx context.Context, email string) error {
	if err := s.checkMail(ctx, "confirm_email", email); err != nil {
		return err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.EmailConfirmed {
		return nil
	}

	s.sendConfirmation(user)
	return nil
}

// ========== Password ==========

// ForgotPassword answers the same whether or not the account exists. A
// reset token is minted only for confirmed accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if err := s.checkMail(ctx, "password_reset", email); err != nil {
		return err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.EmailConfirmed {
		return nil
	}

	token, err := s.actions.Issue(user, actiontoken.PurposePasswordReset, "")
	if err != nil {
		return err
	}
	s.mail.SendPasswordReset(user.Email, user.Name, token, s.actions.Window(actiontoken.PurposePasswordReset))
	return nil
}

// ResetPassword sets a new password with a reset token. The stamp moves in
// the same write, so the token cannot be used again. An unknown email gets
// the success answer.
func (s *AuthService) ResetPassword(ctx context.Context, req *auth.ResetPasswordRequest) error {
	user, err := s.store.FindByEmail(ctx, req.Email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	user, err = s.actions.Consume(ctx, user.ID, actiontoken.PurposePasswordReset, req.Token, "",
		func(ctx context.Context, u *auth.User, newStamp string) error {
			return s.store.UpdatePassword(ctx, u.ID, hash, u.SecurityStamp, newStamp)
		})
	if err != nil {
		return err
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	s.mail.SendPasswordChanged(user.Email, user.Name)
	return nil
}

// ChangePassword requires the current password and moves the stamp, which
// voids outstanding recovery tokens. Device sessions stay.
func (s *AuthService) ChangePassword(ctx context.Context, claims *jwt.Claims, req *auth.ChangePasswordRequest) error {
	user, err := s.verifyPassword(ctx, claims.UserID(), req.CurrentPassword)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	stamp, err := security.NewStamp()
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash, user.SecurityStamp, stamp); err != nil {
		return err
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID))
	s.mail.SendPasswordChanged(user.Email, user.Name)
	return nil
}

// ========== Email change ==========

// ChangeEmail mails a confirmation link to the new address and a notice to
// the current one. Nothing changes until the link is used.
func (s *AuthService) ChangeEmail(ctx context.Context, claims *jwt.Claims, req *auth.ChangeEmailRequest) error {
	user, err := s.verifyPassword(ctx, claims.UserID(), req.Password)
	if err != nil {
		return err
	}

	newEmail := strings.TrimSpace(req.NewEmail)
	if strings.EqualFold(newEmail, user.Email) {
		return xerrors.Validation("new email must differ from the current one")
	}

	_, err = s.store.FindByEmail(ctx, newEmail)
	if err == nil {
		return xerrors.ErrDuplicateEntry
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return err
	}

	token, err := s.actions.Issue(user, actiontoken.PurposeEmailChange, newEmail)
	if err != nil {
		return err
	}
	s.mail.SendEmailChange(user.Email, newEmail, user.Name, user.ID, token, s.actions.Window(actiontoken.PurposeEmailChange))
	return nil
}

// ConfirmChangeEmail applies an email-change token: email and username move
// to the new address together with the stamp. An unknown user gets the
// success answer.
func (s *AuthService) ConfirmChangeEmail(ctx context.Context, req *auth.ConfirmChangeEmailRequest) error {
	user, err := s.store.FindByID(ctx, req.UserID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	oldEmail := user.Email
	newEmail := strings.TrimSpace(req.NewEmail)

	user, err = s.actions.Consume(ctx, user.ID, actiontoken.PurposeEmailChange, req.Token, newEmail,
		func(ctx context.Context, u *auth.User, newStamp string) error {
			return s.store.UpdateEmail(ctx, u.ID, newEmail, u.SecurityStamp, newStamp)
		})
	if err != nil {
		return err
	}

	s.logger.Info("email changed", zap.String("user_id", user.ID))
	s.mail.SendEmailChanged(oldEmail, newEmail, user.Name)
	return nil
}

// ========== Account ==========

// DeleteAccount removes the user after checking the password and ends
// every device session.
func (s *AuthService) DeleteAccount(ctx context.Context, claims *jwt.Claims, req *auth.DeleteAccountRequest) error {
	user, err := s.verifyPassword(ctx, claims.UserID(), req.Password)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, user.ID); err != nil {
		return err
	}
	if _, err := s.revocation.RevokeAll(ctx, user.Username); err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		s.logger.Error("failed to revoke sessions of deleted user", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("account deleted", zap.String("user_id", user.ID))
	return nil
}

func (s *AuthService) verifyPassword(ctx context.Context, userID, password string) (*auth.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, security.ErrMismatch) {
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

// checkMail applies the per-address mail limit. It is keyed on the
// address alone, so it says nothing about whether an account exists.
func (s *AuthService) checkMail(ctx context.Context, kind, email string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.CheckMailAttempt(ctx, kind, email)
	if err != nil {
		return err
	}
	if !allowed {
		return xerrors.ErrRateLimited
	}
	return nil
}
