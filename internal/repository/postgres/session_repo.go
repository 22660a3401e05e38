// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/session"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRepository is the postgres session.Registry. The unique index on
// (username, device_id) backs the upsert; rotation is one conditional UPDATE
// so concurrent refreshes serialize on the row lock.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ session.Registry = (*SessionRepository)(nil)

const sessionColumns = `id, username, device_id, secret_hash, issued_at, expires_at, rotated_at`

func scanSession(row pgx.Row) (*session.Record, error) {
	var rec session.Record
	err := row.Scan(&rec.ID, &rec.Username, &rec.DeviceID, &rec.SecretHash,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.RotatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SessionRepository) Upsert(ctx context.Context, username, deviceID, secretHash string, issuedAt, expiresAt time.Time) (*session.Record, error) {
	query := `
		INSERT INTO auth_sessions (id, username, device_id, secret_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username, device_id) DO UPDATE SET
			secret_hash = EXCLUDED.secret_hash,
			previous_secret_hash = NULL,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			rotated_at = NULL
		RETURNING ` + sessionColumns

	rec, err := scanSession(r.db.pool.QueryRow(ctx, query,
		uuid.NewString(), username, deviceID, secretHash, issuedAt, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return rec, nil
}

func (r *SessionRepository) Rotate(ctx context.Context, deviceID, presentedHash, newHash string, now, expiresAt time.Time) (*session.Record, error) {
	query := `
		UPDATE auth_sessions SET
			previous_secret_hash = secret_hash,
			secret_hash = $3,
			expires_at = $5,
			rotated_at = $4
		WHERE device_id = $1 AND secret_hash = $2 AND expires_at > $4
		RETURNING ` + sessionColumns

	rec, err := scanSession(r.db.pool.QueryRow(ctx, query, deviceID, presentedHash, newHash, now, expiresAt))
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	return rec, nil
}

func (r *SessionRepository) FindRotatedAway(ctx context.Context, deviceID, presentedHash string) (*session.Record, error) {
	query := `SELECT ` + sessionColumns + ` FROM auth_sessions
		WHERE device_id = $1 AND previous_secret_hash = $2`

	rec, err := scanSession(r.db.pool.QueryRow(ctx, query, deviceID, presentedHash))
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up rotated secret: %w", err)
	}
	return rec, nil
}

func (r *SessionRepository) Delete(ctx context.Context, username, deviceID string) (bool, error) {
	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM auth_sessions WHERE username = $1 AND device_id = $2`, username, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepository) DeleteAll(ctx context.Context, username string) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns the user's sessions that have not expired yet.
func (r *SessionRepository) List(ctx context.Context, username string) ([]*session.Record, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT `+sessionColumns+` FROM auth_sessions
		WHERE username = $1 AND expires_at > NOW() ORDER BY issued_at`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	records := []*session.Record{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
