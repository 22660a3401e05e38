// internal/domain/auth/dto.go
package auth

import "time"

// RegisterRequest for user registration
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest for user login. DeviceID comes from the X-DeviceId header.
type LoginRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	DeviceID  string `json:"-"`
	IPAddress string `json:"-"`
}

type ExternalLoginRequest struct {
	Provider    string `json:"provider" binding:"required"`
	AccessToken string `json:"accessToken" binding:"required"`
	DeviceID    string `json:"-"`
}

// RefreshRequest is only bound in body transport mode.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ConfirmEmailRequest struct {
	UserID string `json:"userId" binding:"required"`
	Token  string `json:"token" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

type ChangeEmailRequest struct {
	Password string `json:"password" binding:"required"`
	NewEmail string `json:"newEmail" binding:"required,email"`
}

type ConfirmChangeEmailRequest struct {
	UserID   string `json:"userId" binding:"required"`
	NewEmail string `json:"newEmail" binding:"required,email"`
	Token    string `json:"token" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

type UpdateProfileRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type DeleteAccountRequest struct {
	Password string `json:"password" binding:"required"`
}

// TokenPair is what login and refresh hand back to the handler. The
// refresh secret only leaves the handler in body transport mode.
type TokenPair struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessTokenExpiresAt"`
	RefreshToken    string    `json:"refreshToken,omitempty"`
	RefreshExpires  time.Time `json:"refreshTokenExpiresAt"`
	TokenType       string    `json:"tokenType"`
}

// UserInfo minimal user information
type UserInfo struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	EmailConfirmed bool     `json:"emailConfirmed"`
	Roles          []string `json:"roles"`
	Providers      []string `json:"providers,omitempty"`
}

// LoginResponse successful login response
type LoginResponse struct {
	TokenPair
	User UserInfo `json:"user"`
}

type SessionInfo struct {
	DeviceID  string     `json:"deviceId"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RotatedAt *time.Time `json:"rotatedAt,omitempty"`
	Current   bool       `json:"current"`
}
