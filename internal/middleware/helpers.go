// internal/middleware/helpers.go
package middleware

import (
	"strings"

	"lovi-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// DeviceIDHeader names the header every session-bound call must carry.
const DeviceIDHeader = "X-DeviceId"

// GetClaims returns the verified access token claims.
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}

// MustGetClaims gets claims from context or panics
func MustGetClaims(c *gin.Context) *jwt.Claims {
	claims, ok := GetClaims(c)
	if !ok {
		panic("claims not found in context")
	}
	return claims
}

// GetUsername gets the username from context
func GetUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	for _, r := range GetRoles(c) {
		if r == jwt.RoleAdmin {
			return true
		}
	}
	return false
}

// DeviceID returns the trimmed X-DeviceId header, or "" when absent.
func DeviceID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(DeviceIDHeader))
}

// RequestID returns the id assigned by the RequestID middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}
