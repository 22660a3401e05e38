// internal/websocket/router.go
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	wstypes "lovi-service/internal/domain/websocket"
)

// HandlerFunc answers one inbound event type.
type HandlerFunc func(ctx context.Context, client *Client, msg *wstypes.WSMessage) error

// Router maps inbound event types to handlers. Routes are added before the
// hub starts serving, so lookups take no lock.
type Router struct {
	routes map[wstypes.EventType]HandlerFunc
}

func newRouter() *Router {
	r := &Router{routes: make(map[wstypes.EventType]HandlerFunc)}
	r.Handle(wstypes.EventTypePing, handlePing)
	r.Handle(wstypes.EventTypeSubscribe, handleSubscribe)
	r.Handle(wstypes.EventTypeUnsubscribe, handleUnsubscribe)
	return r
}

// Handle routes event to fn. Routing the same event twice panics.
func (r *Router) Handle(event wstypes.EventType, fn HandlerFunc) {
	if fn == nil {
		panic("websocket: nil handler for " + string(event))
	}
	if _, dup := r.routes[event]; dup {
		panic("websocket: duplicate handler for " + string(event))
	}
	r.routes[event] = fn
}

// Events returns the routed event types, sorted.
func (r *Router) Events() []wstypes.EventType {
	events := make([]wstypes.EventType, 0, len(r.routes))
	for e := range r.routes {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}

func (r *Router) dispatch(ctx context.Context, client *Client, msg *wstypes.WSMessage) error {
	fn, ok := r.routes[msg.Type]
	if !ok {
		return &ClientError{Code: "unknown_event", Message: "Unsupported event type", Details: string(msg.Type)}
	}
	return fn(ctx, client, msg)
}

// ClientError is a handler failure the client is told about with its own
// code. Err, when set, is logged and never sent.
type ClientError struct {
	Code    string
	Message string
	Details string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *ClientError) Unwrap() error { return e.Err }

// decodeData re-reads a message payload, which ParseMessage leaves as
// generic JSON, into T.
func decodeData[T any](msg *wstypes.WSMessage) (T, error) {
	var out T
	if msg.Data == nil {
		return out, nil
	}
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// ========== Built-in events ==========

func handlePing(_ context.Context, c *Client, _ *wstypes.WSMessage) error {
	c.SendMessage(wstypes.NewMessage(wstypes.EventTypePong, nil))
	return nil
}

func handleSubscribe(_ context.Context, c *Client, msg *wstypes.WSMessage) error {
	req, err := decodeData[wstypes.SubscribeRequest](msg)
	if err != nil {
		return &ClientError{Code: "invalid_subscribe", Message: "Invalid subscribe request", Details: err.Error()}
	}

	accepted := make([]wstypes.ChannelType, 0, len(req.Channels))
	for _, channel := range req.Channels {
		if c.Subscribe(channel) {
			accepted = append(accepted, channel)
		}
	}
	c.SendMessage(wstypes.NewMessage(wstypes.EventTypeSubscribe, map[string]interface{}{
		"channels": accepted,
		"status":   "subscribed",
	}))
	return nil
}

func handleUnsubscribe(_ context.Context, c *Client, msg *wstypes.WSMessage) error {
	req, err := decodeData[wstypes.UnsubscribeRequest](msg)
	if err != nil {
		return &ClientError{Code: "invalid_unsubscribe", Message: "Invalid unsubscribe request", Details: err.Error()}
	}
	for _, channel := range req.Channels {
		c.Unsubscribe(channel)
	}
	c.SendMessage(wstypes.NewMessage(wstypes.EventTypeUnsubscribe, map[string]interface{}{
		"channels": req.Channels,
		"status":   "unsubscribed",
	}))
	return nil
}
