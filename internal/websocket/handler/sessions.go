// internal/websocket/handler/sessions.go
package handlers

import (
	"context"
	"time"

	wstypes "lovi-service/internal/domain/websocket"
	"lovi-service/internal/pkg/session"
	ws "lovi-service/internal/websocket"
)

// SessionHandler answers session:list with the caller's live devices.
type SessionHandler struct {
	registry session.Registry
	now      func() time.Time
}

func NewSessionHandler(registry session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry, now: time.Now}
}

// Register routes the session events on hub.
func (h *SessionHandler) Register(hub *ws.Hub) {
	hub.Handle(wstypes.EventTypeSessionList, h.List)
}

type deviceSession struct {
	DeviceID  string     `json:"device_id"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
	Current   bool       `json:"current"`
}

// List replies with the unexpired sessions of the connected user, marking
// the one the socket belongs to.
func (h *SessionHandler) List(ctx context.Context, client *ws.Client, _ *wstypes.WSMessage) error {
	records, err := h.registry.List(ctx, client.Username())
	if err != nil {
		return &ws.ClientError{Code: "list_failed", Message: "Failed to list sessions", Err: err}
	}

	now := h.now()
	sessions := make([]deviceSession, 0, len(records))
	for _, rec := range records {
		if rec.Expired(now) {
			continue
		}
		sessions = append(sessions, deviceSession{
			DeviceID:  rec.DeviceID,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
			RotatedAt: rec.RotatedAt,
			Current:   rec.DeviceID == client.DeviceID(),
		})
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeSessionList, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	}))
	return nil
}
