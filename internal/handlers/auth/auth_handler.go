// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"
	"time"

	"lovi-service/internal/domain/auth"
	"lovi-service/internal/middleware"
	"lovi-service/internal/pkg/response"
	authUsecase "lovi-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const refreshCookie = "refreshToken"

// CookieOptions controls how the refresh secret travels. In cookie mode it
// never appears in a response body.
type CookieOptions struct {
	BodyTransport bool
	Secure        bool
	SameSite      http.SameSite
	Path          string
}

type AuthHandler struct {
	authService *authUsecase.AuthService
	cookies     CookieOptions
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, cookies CookieOptions, logger *zap.Logger) *AuthHandler {
	if cookies.Path == "" {
		cookies.Path = "/"
	}
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// requireDevice reads X-DeviceId and answers 400 when it is missing.
func requireDevice(c *gin.Context) (string, bool) {
	deviceID := middleware.DeviceID(c)
	if deviceID == "" {
		response.ValidationError(c, "missing "+middleware.DeviceIDHeader+" header", nil)
		return "", false
	}
	return deviceID, true
}

// ========== Registration ==========

// Register handles user registration (public endpoint)
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "registration failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "registration successful, please confirm your email", user)
}

func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	var req auth.ConfirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ConfirmEmail(c.Request.Context(), &req); err != nil {
		h.fail(c, "email confirmation failed", err)
		return
	}

	response.Success(c, http.StatusOK, "email confirmed", nil)
}

func (h *AuthHandler) ResendConfirmation(c *gin.Context) {
	var req auth.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ResendConfirmation(c.Request.Context(), req.Email); err != nil {
		h.fail(c, "resend failed", err)
		return
	}

	response.Success(c, http.StatusOK, "if the account exists and is not confirmed, a new link has been sent", nil)
}

// ========== Login ==========

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}

	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	req.DeviceID = deviceID
	req.IPAddress = c.ClientIP()

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "login failed", err)
		return
	}

	resp.TokenPair = h.deliver(c, resp.TokenPair)
	response.Success(c, http.StatusOK, "login successful", resp)
}

func (h *AuthHandler) ExternalLogin(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}

	var req auth.ExternalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	req.DeviceID = deviceID

	resp, err := h.authService.ExternalLogin(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "external login failed", err)
		return
	}

	resp.TokenPair = h.deliver(c, resp.TokenPair)
	response.Success(c, http.StatusOK, "login successful", resp)
}

// ========== Refresh & Revocation ==========

func (h *AuthHandler) Refresh(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), h.presentedSecret(c), deviceID)
	if err != nil {
		h.clearCookie(c)
		h.fail(c, "refresh failed", err)
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", h.deliver(c, *pair))
}

// Revoke ends the session of the device named by X-DeviceId (requires auth)
func (h *AuthHandler) Revoke(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	claims := middleware.MustGetClaims(c)

	if err := h.authService.Revoke(c.Request.Context(), claims, deviceID); err != nil {
		h.fail(c, "revoke failed", err)
		return
	}

	h.clearCookie(c)
	response.Success(c, http.StatusOK, "session revoked", nil)
}

// RevokeAll ends every session of the caller (requires auth)
func (h *AuthHandler) RevokeAll(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	n, err := h.authService.RevokeAll(c.Request.Context(), claims)
	if err != nil {
		h.fail(c, "revoke all failed", err)
		return
	}

	h.clearCookie(c)
	response.Success(c, http.StatusOK, "all sessions revoked", gin.H{"revoked": n})
}

func (h *AuthHandler) Sessions(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	sessions, err := h.authService.Sessions(c.Request.Context(), claims, middleware.DeviceID(c))
	if err != nil {
		h.fail(c, "failed to list sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "sessions retrieved", sessions)
}

func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	user, err := h.authService.Me(c.Request.Context(), claims)
	if err != nil {
		h.fail(c, "failed to load profile", err)
		return
	}

	response.Success(c, http.StatusOK, "profile retrieved", user)
}

// UpdateProfile changes the caller's display name (requires auth)
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	var req auth.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), claims, &req)
	if err != nil {
		h.fail(c, "profile update failed", err)
		return
	}

	response.Success(c, http.StatusOK, "profile updated", user)
}

// ========== Password Management ==========

// ChangePassword handles password change (requires auth)
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	var req auth.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), claims, &req); err != nil {
		h.fail(c, "password change failed", err)
		return
	}

	response.Success(c, http.StatusOK, "password changed successfully", nil)
}

// ForgotPassword handles password reset request
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req auth.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, "password reset request failed", err)
		return
	}

	response.Success(c, http.StatusOK, "if the email exists, a password reset link has been sent", nil)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		h.fail(c, "password reset failed", err)
		return
	}

	response.Success(c, http.StatusOK, "password reset successfully", nil)
}

// ========== Email change & account ==========

func (h *AuthHandler) ChangeEmail(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	var req auth.ChangeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ChangeEmail(c.Request.Context(), claims, &req); err != nil {
		h.fail(c, "email change failed", err)
		return
	}

	response.Success(c, http.StatusOK, "a confirmation link has been sent to the new address", nil)
}

func (h *AuthHandler) ConfirmChangeEmail(c *gin.Context) {
	var req auth.ConfirmChangeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ConfirmChangeEmail(c.Request.Context(), &req); err != nil {
		h.fail(c, "email change confirmation failed", err)
		return
	}

	response.Success(c, http.StatusOK, "email changed", nil)
}

func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	var req auth.DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.DeleteAccount(c.Request.Context(), claims, &req); err != nil {
		h.fail(c, "account deletion failed", err)
		return
	}

	h.clearCookie(c)
	response.Success(c, http.StatusOK, "account deleted", nil)
}

// ========== Admin ==========

// RevokeUserSessions ends every session of the named user (Admin only)
func (h *AuthHandler) RevokeUserSessions(c *gin.Context) {
	username := c.Param("username")

	n, err := h.authService.RevokeUserSessions(c.Request.Context(), username)
	if err != nil {
		h.fail(c, "revoke sessions failed", err)
		return
	}

	h.logger.Info("admin revoked sessions",
		zap.String("admin", middleware.GetUsername(c)),
		zap.String("username", username),
		zap.Int64("count", n),
	)
	response.Success(c, http.StatusOK, "sessions revoked", gin.H{"revoked": n})
}

// ========== Refresh secret transport ==========

// AssignRole grants :role to the named user (Admin only)
func (h *AuthHandler) AssignRole(c *gin.Context) {
	username, role := c.Param("username"), c.Param("role")

	if err := h.authService.AssignRole(c.Request.Context(), username, role); err != nil {
		h.fail(c, "role assignment failed", err)
		return
	}

	h.logger.Info("admin assigned role",
		zap.String("admin", middleware.GetUsername(c)),
		zap.String("username", username),
		zap.String("role", role),
	)
	response.Success(c, http.StatusOK, "role assigned", nil)
}

// RemoveRole takes :role away from the named user (Admin only)
func (h *AuthHandler) RemoveRole(c *gin.Context) {
	username, role := c.Param("username"), c.Param("role")

	if err := h.authService.RemoveRole(c.Request.Context(), username, role); err != nil {
		h.fail(c, "role removal failed", err)
		return
	}

	h.logger.Info("admin removed role",
		zap.String("admin", middleware.GetUsername(c)),
		zap.String("username", username),
		zap.String("role", role),
	)
	response.Success(c, http.StatusOK, "role removed", nil)
}

func (h *AuthHandler) presentedSecret(c *gin.Context) string {
	if !h.cookies.BodyTransport {
		if v, err := c.Cookie(refreshCookie); err == nil && v != "" {
			return v
		}
	}

	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// deliver moves the refresh secret into an HttpOnly cookie unless body
// transport is configured.
func (h *AuthHandler) deliver(c *gin.Context, pair auth.TokenPair) auth.TokenPair {
	if h.cookies.BodyTransport {
		return pair
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Path:     h.cookies.Path,
		Expires:  pair.RefreshExpires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
	pair.RefreshToken = ""
	return pair
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	if h.cookies.BodyTransport {
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     h.cookies.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
}
