// internal/service/auth/claims.go
package auth

import (
	"context"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/jwt"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ClaimsAssembler builds the access token claim set. Roles are read from
// the store on every call, never carried over from an earlier token.
type ClaimsAssembler struct {
	store CredentialStore
}

func NewClaimsAssembler(store CredentialStore) *ClaimsAssembler {
	return &ClaimsAssembler{store: store}
}

func (a *ClaimsAssembler) Assemble(ctx context.Context, user *auth.User) (*jwt.Claims, error) {
	roles, err := a.store.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to load roles")
	}

	return &jwt.Claims{
		Username: user.Username,
		Roles:    roles,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject: user.ID,
			ID:      ulid.Make().String(),
		},
	}, nil
}
