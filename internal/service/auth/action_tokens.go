// internal/service/auth/action_tokens.go
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"lovi-service/internal/domain/auth"
	"lovi-service/internal/pkg/actiontoken"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/security"
)

// Effect applies what a consumed token authorizes. For purposes that
// rotate the stamp, it must swap user.SecurityStamp for newStamp in the
// same conditional write, so a token works at most once.
type Effect func(ctx context.Context, user *auth.User, newStamp string) error

// ActionTokenService issues and consumes recovery tokens against the
// user's current security stamp. Nothing is persisted per token.
type ActionTokenService struct {
	codec *actiontoken.Codec
	store CredentialStore
}

func NewActionTokenService(codec *actiontoken.Codec, store CredentialStore) *ActionTokenService {
	return &ActionTokenService{codec: codec, store: store}
}

func (s *ActionTokenService) Issue(user *auth.User, purpose actiontoken.Purpose, target string) (string, error) {
	return s.codec.Issue(user.ID, purpose, normalizeTarget(target), user.SecurityStamp)
}

// Window returns how long tokens of the purpose stay valid.
func (s *ActionTokenService) Window(purpose actiontoken.Purpose) time.Duration {
	return s.codec.TTL(purpose)
}

// Consume verifies the token and runs effect. A nil effect falls back to
// the purpose's default: confirming the email, or just rotating the stamp.
// Unknown users, bad tokens and lost races all yield ErrInvalidToken.
func (s *ActionTokenService) Consume(ctx context.Context, userID string, purpose actiontoken.Purpose, token, target string, effect Effect) (*auth.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if err := s.codec.Verify(token, user.ID, purpose, normalizeTarget(target), user.SecurityStamp); err != nil {
		return nil, err
	}

	var newStamp string
	if purpose.RotatesStamp() {
		if newStamp, err = security.NewStamp(); err != nil {
			return nil, err
		}
	}

	if effect == nil {
		effect = s.defaultEffect(purpose)
	}
	err = effect(ctx, user, newStamp)
	if errors.Is(err, xerrors.ErrConflict) {
		return nil, xerrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if newStamp != "" {
		user.SecurityStamp = newStamp
	}
	return user, nil
}

func (s *ActionTokenService) defaultEffect(purpose actiontoken.Purpose) Effect {
	if purpose == actiontoken.PurposeEmailConfirm {
		return func(ctx context.Context, user *auth.User, _ string) error {
			return s.store.ConfirmEmail(ctx, user.ID)
		}
	}
	return func(ctx context.Context, user *auth.User, newStamp string) error {
		return s.store.RotateSecurityStamp(ctx, user.ID, user.SecurityStamp, newStamp)
	}
}

// normalizeTarget makes email targets compare case-insensitively.
func normalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
