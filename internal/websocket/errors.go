// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrSessionNotFound = errors.New("no active session for this device")
	ErrMissingDevice   = errors.New("device id is required")
)
