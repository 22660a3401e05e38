// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, name, email_confirmed, password_hash,
	security_stamp, registered_at, logged_in_at`

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Name, &u.EmailConfirmed, &u.PasswordHash,
		&u.SecurityStamp, &u.RegisteredAt, &u.LoggedInAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ========== Lookups ==========

// FindByID retrieves a user by id
func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.pool.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, err
}

// FindByUsername retrieves a user by username, case-insensitively
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`

	u, err := scanUser(r.db.pool.QueryRow(ctx, query, username))
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, err
}

// FindByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return findByEmail(ctx, r.db.pool, email, false)
}

func findByEmail(ctx context.Context, q querier, email string, lock bool) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	if lock {
		query += ` FOR UPDATE`
	}

	u, err := scanUser(q.QueryRow(ctx, query, email))
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, err
}

// ========== Writes ==========

// Create inserts a new user. A taken username or email yields ErrDuplicateEntry.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	return createUser(ctx, r.db.pool, u)
}

func createUser(ctx context.Context, q querier, u *auth.User) error {
	query := `
		INSERT INTO users (id, username, email, name, email_confirmed, password_hash,
		                   security_stamp, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query,
		u.ID, u.Username, u.Email, u.Name, u.EmailConfirmed, u.PasswordHash,
		u.SecurityStamp, u.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateLoggedInAt(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `UPDATE users SET logged_in_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update login time: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateName(ctx context.Context, id, name string) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE users SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("failed to update name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ConfirmEmail marks the email as confirmed. It is idempotent.
func (r *UserRepository) ConfirmEmail(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE users SET email_confirmed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdatePassword stores a new hash and swaps the security stamp, but only if
// the stamp is still oldStamp. A lost race yields ErrConflict.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash, oldStamp, newStamp string) error {
	query := `
		UPDATE users SET password_hash = $2, security_stamp = $4
		WHERE id = $1 AND security_stamp = $3
	`
	tag, err := r.db.pool.Exec(ctx, query, id, passwordHash, oldStamp, newStamp)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrConflict
	}
	return nil
}

// UpdateEmail moves both email and username to the new address, marks it
// confirmed and swaps the security stamp under the same condition as
// UpdatePassword.
func (r *UserRepository) UpdateEmail(ctx context.Context, id, email, oldStamp, newStamp string) error {
	query := `
		UPDATE users SET email = $2, username = $2, email_confirmed = TRUE, security_stamp = $4
		WHERE id = $1 AND security_stamp = $3
	`
	tag, err := r.db.pool.Exec(ctx, query, id, email, oldStamp, newStamp)
	if isUniqueViolation(err) {
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrConflict
	}
	return nil
}

// RotateSecurityStamp swaps the stamp without touching anything else.
func (r *UserRepository) RotateSecurityStamp(ctx context.Context, id, oldStamp, newStamp string) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE users SET security_stamp = $3 WHERE id = $1 AND security_stamp = $2`,
		id, oldStamp, newStamp,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate security stamp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrConflict
	}
	return nil
}

// Delete removes the user together with role memberships and external logins.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ========== Roles ==========

// GetRoles returns the names of the roles the user currently belongs to.
func (r *UserRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		INNER JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`
	rows, err := r.db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// AssignRole adds the user to a role, creating the role if it does not exist.
func (r *UserRepository) AssignRole(ctx context.Context, userID, role string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var roleID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO roles (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, role).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("failed to ensure role: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, userID, roleID)
		if err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return nil
	})
}

// RemoveRole takes the user out of a role and reports whether they held it.
func (r *UserRepository) RemoveRole(ctx context.Context, userID, role string) (bool, error) {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM user_roles ur
		USING roles r
		WHERE ur.role_id = r.id AND ur.user_id = $1 AND r.name = $2
	`, userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to remove role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ========== External logins ==========

// LinkOrCreate resolves the local user for an external identity in a single
// transaction. The user is found by email; if none exists, candidate is
// inserted. A (provider, provider user id) pair already linked to another
// user yields ErrConflictingLink.
func (r *UserRepository) LinkOrCreate(ctx context.Context, ident auth.ExternalIdentity, candidate *auth.User) (*auth.User, bool, error) {
	var (
		user    *auth.User
		created bool
	)

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		user, err = findByEmail(ctx, tx, ident.Email, true)
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			if err := createUser(ctx, tx, candidate); err != nil {
				return err
			}
			user, created = candidate, true
		case err != nil:
			return err
		}

		linkedTo, err := linkedUser(ctx, tx, ident.Provider, ident.ProviderUserID)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}
		if err == nil {
			if linkedTo != user.ID {
				return xerrors.ErrConflictingLink
			}
			return nil
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO user_logins (provider, provider_user_id, user_id, display_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (provider, provider_user_id) DO NOTHING
		`, ident.Provider, ident.ProviderUserID, user.ID, ident.DisplayName)
		if err != nil {
			return fmt.Errorf("failed to link external login: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// linked concurrently, by someone
			linkedTo, err := linkedUser(ctx, tx, ident.Provider, ident.ProviderUserID)
			if err != nil {
				return err
			}
			if linkedTo != user.ID {
				return xerrors.ErrConflictingLink
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func linkedUser(ctx context.Context, q querier, provider, providerUserID string) (string, error) {
	var userID string
	err := q.QueryRow(ctx,
		`SELECT user_id FROM user_logins WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find external login: %w", err)
	}
	return userID, nil
}

// ListExternalLogins returns every provider linked to the user.
func (r *UserRepository) ListExternalLogins(ctx context.Context, userID string) ([]auth.ExternalLogin, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT provider, provider_user_id, user_id, display_name, created_at
		FROM user_logins WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list external logins: %w", err)
	}
	defer rows.Close()

	logins := []auth.ExternalLogin{}
	for rows.Next() {
		var l auth.ExternalLogin
		if err := rows.Scan(&l.Provider, &l.ProviderUserID, &l.UserID, &l.DisplayName, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan external login: %w", err)
		}
		logins = append(logins, l)
	}
	return logins, rows.Err()
}
