// internal/app/router.go
package app

import (
	"net/http"

	authHandler "lovi-service/internal/handlers/auth"
	wsHandler "lovi-service/internal/handlers/websocket"
	"lovi-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        http.Handler
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	// ==================== Health & Metrics ====================
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	// ==================== WebSocket ====================
	r.GET("/ws", h.AuthMiddleware.Auth(), h.WSHandler.HandleConnection)

	api := r.Group("/api/v1")

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", h.AuthHandler.Register)
		authPublic.POST("/confirm-email", h.AuthHandler.ConfirmEmail)
		authPublic.POST("/resend-confirm-email", h.AuthHandler.ResendConfirmation)
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/external-login", h.AuthHandler.ExternalLogin)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/forgot-password", h.AuthHandler.ForgotPassword)
		authPublic.POST("/reset-password", h.AuthHandler.ResetPassword)
		authPublic.POST("/confirm-change-email", h.AuthHandler.ConfirmChangeEmail)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/revoke", h.AuthHandler.Revoke)
		authProtected.POST("/revoke-all", h.AuthHandler.RevokeAll)
		authProtected.GET("/sessions", h.AuthHandler.Sessions)
		authProtected.GET("/me", h.AuthHandler.Me)
		authProtected.POST("/change-email", h.AuthHandler.ChangeEmail)
		authProtected.POST("/change-password", h.AuthHandler.ChangePassword)
		authProtected.POST("/delete-account", h.AuthHandler.DeleteAccount)
	}

	// ==================== Profiles ====================
	profiles := api.Group("/profiles")
	profiles.Use(h.AuthMiddleware.Auth())
	{
		profiles.GET("/me", h.AuthHandler.Me)
		profiles.PUT("/me", h.AuthHandler.UpdateProfile)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.POST("/users/:username/revoke-sessions", h.AuthHandler.RevokeUserSessions)
		admin.POST("/users/:username/roles/:role", h.AuthHandler.AssignRole)
		admin.DELETE("/users/:username/roles/:role", h.AuthHandler.RemoveRole)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
