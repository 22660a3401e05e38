// internal/service/auth/store.go
package auth

import (
	"context"
	"time"

	"lovi-service/internal/domain/auth"
)

// CredentialStore persists users, their roles and their external logins.
// Lookups that find nothing return xerrors.ErrNotFound. The stamp-guarded
// updates return xerrors.ErrConflict when the stamp has already moved.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
	FindByUsername(ctx context.Context, username string) (*auth.User, error)
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	Create(ctx context.Context, u *auth.User) error
	Delete(ctx context.Context, id string) error

	GetRoles(ctx context.Context, userID string) ([]string, error)
	AssignRole(ctx context.Context, userID, role string) error
	RemoveRole(ctx context.Context, userID, role string) (bool, error)

	UpdateLoggedInAt(ctx context.Context, id string, at time.Time) error
	UpdateName(ctx context.Context, id, name string) error
	ConfirmEmail(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash, oldStamp, newStamp string) error
	UpdateEmail(ctx context.Context, id, email, oldStamp, newStamp string) error
	RotateSecurityStamp(ctx context.Context, id, oldStamp, newStamp string) error

	LinkOrCreate(ctx context.Context, ident auth.ExternalIdentity, candidate *auth.User) (*auth.User, bool, error)
	ListExternalLogins(ctx context.Context, userID string) ([]auth.ExternalLogin, error)
}

// Notifier delivers a message to a recipient. Delivery failures never
// fail the calling flow.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SessionEvents is told about revocations so connected clients can react.
type SessionEvents interface {
	SessionRevoked(username, deviceID string)
	AllSessionsRevoked(username string)
}

// LoginLimiter throttles password attempts and outbound recovery mail.
type LoginLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip, username string) (bool, int64, error)
	ResetLoginAttempts(ctx context.Context, ip, username string) error
	CheckMailAttempt(ctx context.Context, kind, email string) (bool, error)
}
