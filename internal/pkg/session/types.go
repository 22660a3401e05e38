// internal/pkg/session/types.go
package session

import (
	"context"
	"time"
)

// Record is the persisted binding of one (username, device) pair to its
// current refresh secret. SecretHash is never serialized to clients.
type Record struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	DeviceID   string     `json:"device_id"`
	SecretHash string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RotatedAt  *time.Time `json:"rotated_at,omitempty"`
}

// Expired reports whether the record is no longer usable at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Registry stores at most one Record per (username, deviceID).
//
// Rotate must be atomic: of two concurrent calls presenting the same hash,
// exactly one may succeed. Lookups that find nothing return xerrors.ErrNotFound.
type Registry interface {
	// Upsert creates or unconditionally overwrites the record for the pair.
	Upsert(ctx context.Context, username, deviceID, secretHash string, issuedAt, expiresAt time.Time) (*Record, error)

	// Rotate swaps presentedHash for newHash on the live record of deviceID
	// holding presentedHash, and moves its expiry to expiresAt.
	Rotate(ctx context.Context, deviceID, presentedHash, newHash string, now, expiresAt time.Time) (*Record, error)

	// FindRotatedAway returns the record whose previous secret was presentedHash.
	FindRotatedAway(ctx context.Context, deviceID, presentedHash string) (*Record, error)

	Delete(ctx context.Context, username, deviceID string) (bool, error)
	DeleteAll(ctx context.Context, username string) (int64, error)
	List(ctx context.Context, username string) ([]*Record, error)
}
