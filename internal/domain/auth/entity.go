// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

// User is the local account. Username equals the email at registration and
// follows it through a confirmed email change.
type User struct {
	ID             string       `json:"id" db:"id"`
	Username       string       `json:"username" db:"username"`
	Email          string       `json:"email" db:"email"`
	Name           string       `json:"name" db:"name"`
	EmailConfirmed bool         `json:"email_confirmed" db:"email_confirmed"`
	PasswordHash   string       `json:"-" db:"password_hash"` // empty for external-only accounts
	SecurityStamp  string       `json:"-" db:"security_stamp"`
	RegisteredAt   time.Time    `json:"registered_at" db:"registered_at"`
	LoggedInAt     sql.NullTime `json:"-" db:"logged_in_at"`
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ExternalLogin links a third-party identity to a local user.
type ExternalLogin struct {
	Provider       string    `json:"provider" db:"provider"`
	ProviderUserID string    `json:"provider_user_id" db:"provider_user_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ExternalIdentity is what a provider's userinfo endpoint says about the
// holder of an access token.
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
}

// External providers
const (
	ProviderGoogle    = "google"
	ProviderSpotify   = "spotify"
	ProviderFacebook  = "facebook"
	ProviderInstagram = "instagram"
)
