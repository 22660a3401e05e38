// internal/handlers/websocket/websocket.go
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"lovi-service/internal/middleware"
	"lovi-service/internal/pkg/response"
	ws "lovi-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access tokens are never cookies, so a foreign origin gains nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleConnection upgrades an authenticated request. It must run after
// the Auth middleware; the device comes from device_id or X-DeviceId.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	claims := middleware.MustGetClaims(c)

	deviceID := strings.TrimSpace(c.Query("device_id"))
	if deviceID == "" {
		deviceID = middleware.DeviceID(c)
	}

	auth, err := h.hub.AuthenticateClient(c.Request.Context(), claims, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, ws.ErrMissingDevice):
			response.ValidationError(c, "missing device_id", nil)
		case errors.Is(err, ws.ErrSessionNotFound):
			response.Unauthorized(c, "no active session for this device")
		default:
			h.logger.Error("websocket authentication failed", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns WebSocket connection statistics (admin only)
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"total_connections": h.hub.TotalClients(),
		"events":            h.hub.Events(),
		"timestamp":         time.Now(),
	}

	response.Success(c, http.StatusOK, "websocket stats", stats)
}
