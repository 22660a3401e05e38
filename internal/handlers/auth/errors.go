// internal/handlers/auth/errors.go
package auth

import (
	"errors"
	"net/http"

	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fail maps service errors onto the response envelope. Authentication
// failures carry no detail beyond their status.
func (h *AuthHandler) fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, xerrors.ErrEmailNotConfirmed):
		response.ErrorCode(c, http.StatusBadRequest, "EmailNotConfirmed", "email is not confirmed")
	case errors.Is(err, xerrors.ErrEmailRequired):
		response.ErrorCode(c, http.StatusBadRequest, "EmailRequired", "the provider did not share an email address")
	case errors.Is(err, xerrors.ErrUnsupportedProvider):
		response.ErrorCode(c, http.StatusBadRequest, "UnsupportedProvider", "unsupported provider")
	case errors.Is(err, xerrors.ErrValidation):
		response.ValidationError(c, message, err)

	case xerrors.IsAny(err, xerrors.ErrInvalidCredentials, xerrors.ErrInvalidRefreshToken, xerrors.ErrInvalidProviderToken):
		response.Unauthorized(c, message)
	case errors.Is(err, xerrors.ErrInvalidToken):
		response.Error(c, http.StatusBadRequest, "invalid or expired token", nil)

	case errors.Is(err, xerrors.ErrConflictingLink):
		response.ErrorCode(c, http.StatusConflict, "ConflictingLink", "this external account is linked to another user")
	case errors.Is(err, xerrors.ErrDuplicateEntry):
		response.Error(c, http.StatusConflict, "email is already in use", nil)
	case errors.Is(err, xerrors.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, xerrors.ErrSessionNotFound):
		response.NotFound(c, "no matching session")
	case errors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "resource not found")
	case errors.Is(err, xerrors.ErrConflict):
		response.ErrorCode(c, http.StatusConflict, "ConcurrentUpdate", "the account changed while this request ran, please retry")
	case errors.Is(err, xerrors.ErrRateLimited):
		response.TooManyRequests(c, "too many attempts, try again later")
	case errors.Is(err, xerrors.ErrProviderUnavailable):
		h.logger.Warn("external provider unavailable", zap.Error(err))
		response.Error(c, http.StatusBadGateway, "external provider unavailable", nil)

	default:
		h.logger.Error(message,
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "internal server error", nil)
	}
}
