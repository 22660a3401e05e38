// internal/service/auth/revocation.go
package auth

import (
	"context"

	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/session"

	"go.uber.org/zap"
)

// RevocationManager hard-deletes sessions. There is no soft delete and no
// audit trail.
type RevocationManager struct {
	registry session.Registry
	events   SessionEvents
	metrics  *Metrics
	logger   *zap.Logger
}

func NewRevocationManager(registry session.Registry, events SessionEvents, metrics *Metrics, logger *zap.Logger) *RevocationManager {
	return &RevocationManager{registry: registry, events: events, metrics: metrics, logger: logger}
}

// RevokeOne deletes the session of one device. ErrSessionNotFound when
// there is none.
func (m *RevocationManager) RevokeOne(ctx context.Context, username, deviceID string) error {
	if deviceID == "" {
		return xerrors.Validation("device id is required")
	}

	deleted, err := m.registry.Delete(ctx, username, deviceID)
	if err != nil {
		return err
	}
	if !deleted {
		return xerrors.ErrSessionNotFound
	}

	m.metrics.revoked("device", 1)
	m.logger.Info("session revoked", zap.String("username", username), zap.String("device_id", deviceID))
	if m.events != nil {
		m.events.SessionRevoked(username, deviceID)
	}
	return nil
}

// RevokeAll deletes every session of the user and returns how many there
// were. ErrSessionNotFound when there were none.
func (m *RevocationManager) RevokeAll(ctx context.Context, username string) (int64, error) {
	n, err := m.registry.DeleteAll(ctx, username)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, xerrors.ErrSessionNotFound
	}

	m.metrics.revoked("all", n)
	m.logger.Info("all sessions revoked", zap.String("username", username), zap.Int64("count", n))
	if m.events != nil {
		m.events.AllSessionsRevoked(username)
	}
	return n, nil
}

// List returns the user's live sessions.
func (m *RevocationManager) List(ctx context.Context, username string) ([]*session.Record, error) {
	return m.registry.List(ctx, username)
}
