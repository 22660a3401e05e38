package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	wstypes "lovi-service/internal/domain/websocket"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) (*Hub, session.Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := session.NewRedisRegistry(client)
	hub := NewHub(registry, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, registry
}

func claimsFor(username string) *jwt.Claims {
	c := &jwt.Claims{Username: username}
	c.Subject = "id-" + username
	return c
}

// serve upgrades every request as username on the device in ?device_id.
func serve(t *testing.T, hub *Hub, username string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := hub.AuthenticateClient(r.Context(), claimsFor(username), r.URL.Query().Get("device_id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, auth)
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, device string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?device_id="+device, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", device, err)
	}
	t.Cleanup(func() { conn.Close() })
	expect(t, conn, wstypes.EventTypeConnected)
	return conn
}

func expect(t *testing.T, conn *websocket.Conn, want wstypes.EventType) *wstypes.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read %s: %v", want, err)
	}
	msg, err := wstypes.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != want {
		t.Fatalf("expected %s, got %s", want, msg.Type)
	}
	return msg
}

func upsert(t *testing.T, registry session.Registry, username, device string) {
	t.Helper()
	now := time.Now()
	if _, err := registry.Upsert(context.Background(), username, device, "hash-"+device, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestAuthenticateClientRequiresLiveSession(t *testing.T) {
	hub, registry := newTestHub(t)
	upsert(t, registry, "alice", "phoneA")
	ctx := context.Background()

	if _, err := hub.AuthenticateClient(ctx, claimsFor("alice"), ""); !errors.Is(err, ErrMissingDevice) {
		t.Fatalf("expected missing device, got %v", err)
	}
	if _, err := hub.AuthenticateClient(ctx, claimsFor("alice"), "laptop"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected no session, got %v", err)
	}
	auth, err := hub.AuthenticateClient(ctx, claimsFor("alice"), "phoneA")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.Username != "alice" || auth.UserID != "id-alice" || auth.DeviceID != "phoneA" {
		t.Fatalf("unexpected auth %+v", auth)
	}
}

func TestPingPong(t *testing.T) {
	hub, registry := newTestHub(t)
	upsert(t, registry, "alice", "phoneA")
	conn := dial(t, serve(t, hub, "alice"), "phoneA")

	if err := conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(t, conn, wstypes.EventTypePong)
}

func TestSessionRevokedTargetsOneDevice(t *testing.T) {
	hub, registry := newTestHub(t)
	upsert(t, registry, "alice", "phoneA")
	upsert(t, registry, "alice", "laptop")
	url := serve(t, hub, "alice")

	phone := dial(t, url, "phoneA")
	laptop := dial(t, url, "laptop")
	if n := hub.GetConnectedClients("alice"); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	hub.SessionRevoked("alice", "phoneA")

	msg := expect(t, phone, wstypes.EventTypeSessionRevoked)
	if data, ok := msg.Data.(map[string]interface{}); !ok || data["device_id"] != "phoneA" {
		t.Fatalf("unexpected payload %#v", msg.Data)
	}
	if n := hub.GetConnectedClients("alice"); n != 1 {
		t.Fatalf("expected laptop to stay connected, got %d clients", n)
	}

	// laptop still answers
	laptop.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil))
	expect(t, laptop, wstypes.EventTypePong)
}

func TestAllSessionsRevokedForcesLogout(t *testing.T) {
	hub, registry := newTestHub(t)
	upsert(t, registry, "alice", "phoneA")
	upsert(t, registry, "alice", "laptop")
	upsert(t, registry, "bob", "phoneA")

	aliceURL := serve(t, hub, "alice")
	phone := dial(t, aliceURL, "phoneA")
	laptop := dial(t, aliceURL, "laptop")
	dial(t, serve(t, hub, "bob"), "phoneA")

	hub.AllSessionsRevoked("alice")

	expect(t, phone, wstypes.EventTypeForceLogout)
	expect(t, laptop, wstypes.EventTypeForceLogout)

	if hub.IsUserConnected("alice") {
		t.Fatalf("alice must be disconnected")
	}
	if !hub.IsUserConnected("bob") {
		t.Fatalf("bob must stay connected")
	}
}

func TestSessionsChannelCannotBeLeft(t *testing.T) {
	c := &Client{subscriptions: map[wstypes.ChannelType]bool{wstypes.ChannelSessions: true}}

	c.Unsubscribe(wstypes.ChannelSessions)
	if !c.IsSubscribed(wstypes.ChannelSessions) {
		t.Fatalf("sessions channel must stay subscribed")
	}
	if c.Subscribe("audit") {
		t.Fatalf("unknown channels must be refused")
	}
	if !c.Subscribe(wstypes.ChannelSystem) {
		t.Fatalf("system channel must be allowed")
	}
}

func TestDuplicateRoutePanics(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	defer func() {
		if recover() == nil {
			t.Fatalf("routing ping twice must panic")
		}
	}()
	hub.Handle(wstypes.EventTypePing, handlePing)
}

func TestRoutedEvents(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	hub.Handle(wstypes.EventTypeSessionList, func(context.Context, *Client, *wstypes.WSMessage) error { return nil })

	got := hub.Events()
	want := []wstypes.EventType{wstypes.EventTypePing, wstypes.EventTypeSessionList, wstypes.EventTypeSubscribe, wstypes.EventTypeUnsubscribe}
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v, want %v", got, want)
		}
	}
}

func TestHandlerFailuresBecomeErrorEvents(t *testing.T) {
	hub, registry := newTestHub(t)
	upsert(t, registry, "alice", "phoneA")
	hub.Handle("test:client_error", func(context.Context, *Client, *wstypes.WSMessage) error {
		return &ClientError{Code: "nope", Message: "Refused", Err: errors.New("internal detail")}
	})
	hub.Handle("test:plain_error", func(context.Context, *Client, *wstypes.WSMessage) error {
		return errors.New("database exploded")
	})
	conn := dial(t, serve(t, hub, "alice"), "phoneA")

	cases := []struct {
		event   wstypes.EventType
		code    string
		details string
	}{
		{"test:client_error", "nope", ""},
		{"test:plain_error", "handler_error", ""},
		{"test:missing", "unknown_event", "test:missing"},
	}
	for _, tc := range cases {
		if err := conn.WriteJSON(wstypes.NewMessage(tc.event, nil)); err != nil {
			t.Fatalf("write: %v", err)
		}
		msg := expect(t, conn, wstypes.EventTypeError)
		data, _ := msg.Data.(map[string]interface{})
		if data["code"] != tc.code {
			t.Fatalf("%s: code %v, want %s", tc.event, data["code"], tc.code)
		}
		if details, _ := data["details"].(string); details != tc.details {
			t.Fatalf("%s: details %q, want %q", tc.event, details, tc.details)
		}
	}

	// the connection survives every failure
	conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil))
	expect(t, conn, wstypes.EventTypePong)
}

func TestSubscribeReportsAcceptedChannels(t *testing.T) {
	hub, registry := newTestHub(t)
	upsert(t, registry, "alice", "phoneA")
	conn := dial(t, serve(t, hub, "alice"), "phoneA")

	conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeSubscribe, map[string]interface{}{
		"channels": []string{"system", "audit"},
	}))
	msg := expect(t, conn, wstypes.EventTypeSubscribe)
	data, _ := msg.Data.(map[string]interface{})
	channels, _ := data["channels"].([]interface{})
	if len(channels) != 1 || channels[0] != "system" {
		t.Fatalf("accepted channels %v, want [system]", data["channels"])
	}

	conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeSubscribe, "not-an-object"))
	msg = expect(t, conn, wstypes.EventTypeError)
	if data, _ := msg.Data.(map[string]interface{}); data["code"] != "invalid_subscribe" {
		t.Fatalf("unexpected error payload %#v", msg.Data)
	}
}
