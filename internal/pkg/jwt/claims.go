// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the administrative role name stored in the roles table.
const RoleAdmin = "Admin"

// Claims represents the access token claim set. Subject carries the user id
// and ID carries the per-issuance token id.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// HasRole checks if the claims contain a specific role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks if user is an admin
func (c *Claims) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}

// clone returns a copy safe to decorate with registered claims.
func (c *Claims) clone() *Claims {
	out := *c
	if c.Roles != nil {
		out.Roles = append([]string(nil), c.Roles...)
	}
	return &out
}
