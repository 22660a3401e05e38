// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"
	"time"

	wstypes "lovi-service/internal/domain/websocket"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/session"

	"go.uber.org/zap"
)

type Hub struct {
	// Registered clients by username
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	router *Router

	registry session.Registry
	now      func() time.Time
	logger   *zap.Logger
}

func NewHub(registry session.Registry, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		router:     newRouter(),
		registry:   registry,
		now:        time.Now,
		logger:     logger,
	}
}

// AuthenticateClient binds verified claims to a device that still holds a
// live session.
func (h *Hub) AuthenticateClient(ctx context.Context, claims *jwt.Claims, deviceID string) (*ClientAuth, error) {
	if deviceID == "" {
		return nil, ErrMissingDevice
	}

	records, err := h.registry.List(ctx, claims.Username)
	if err != nil {
		return nil, err
	}

	now := h.now()
	for _, rec := range records {
		if rec.DeviceID == deviceID && !rec.Expired(now) {
			return &ClientAuth{
				UserID:   claims.UserID(),
				Username: claims.Username,
				DeviceID: deviceID,
				TokenID:  claims.ID,
				Roles:    claims.Roles,
			}, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Handle routes an inbound event type to fn. Call it before Run.
func (h *Hub) Handle(event wstypes.EventType, fn HandlerFunc) {
	h.router.Handle(event, fn)
}

// Events lists the inbound event types clients may send.
func (h *Hub) Events() []wstypes.EventType {
	return h.router.Events()
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	username := client.auth.Username
	if h.clients[username] == nil {
		h.clients[username] = make(map[*Client]bool)
	}
	h.clients[username][client] = true

	h.logger.Info("websocket client connected",
		zap.String("username", username),
		zap.String("device_id", client.auth.DeviceID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id":   client.auth.UserID,
		"username":  username,
		"device_id": client.auth.DeviceID,
		"roles":     client.auth.Roles,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	username := client.auth.Username
	clients, ok := h.clients[username]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, username)
	}

	h.logger.Info("websocket client disconnected",
		zap.String("username", username),
		zap.String("device_id", client.auth.DeviceID),
		zap.Int("total", h.totalClients()),
	)
}

// SessionRevoked tells the clients of one device that their session is
// gone and disconnects them.
func (h *Hub) SessionRevoked(username, deviceID string) {
	msg := wstypes.NewMessage(wstypes.EventTypeSessionRevoked, wstypes.SessionEventData{
		DeviceID: deviceID,
		Reason:   "revoked",
		Message:  "This device has been signed out",
	})
	h.disconnect(username, msg, func(c *Client) bool { return c.auth.DeviceID == deviceID })
}

// AllSessionsRevoked forces every client of the user to log out.
func (h *Hub) AllSessionsRevoked(username string) {
	msg := wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
		Reason:  "revoked_all",
		Message: "You have been logged out",
	})
	h.disconnect(username, msg, func(*Client) bool { return true })
}

func (h *Hub) disconnect(username string, msg *wstypes.WSMessage, match func(*Client) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[username] {
		if !match(client) {
			continue
		}
		if client.IsSubscribed(wstypes.ChannelSessions) {
			client.SendMessage(msg)
		}
		h.removeLocked(client)
	}
}

func (h *Hub) GetConnectedClients(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[username])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(username string) bool {
	return h.GetConnectedClients(username) > 0
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
