package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/shared"
)

// Repository defines persistence for account security state. Every mutation
// is a single-statement transaction; multi-step decisions live in Service.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, username, passwordHash string, role rbac.Role, status Status) (*User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	IncrementLoginFailure(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error
	Unlock(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status Status) (*User, error)
	SetRole(ctx context.Context, id int64, role rbac.Role) (*User, error)
	BumpSessionVersion(ctx context.Context, id int64) (int64, error)
	SetForcePasswordReset(ctx context.Context, id int64, force bool) (*User, error)
	Delete(ctx context.Context, id int64) error
}

const userColumns = `id, username, password_hash, role, status, failed_login_attempts,
	locked_until, session_version, force_password_reset, last_login_at, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role, status string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &status,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.SessionVersion,
		&u.ForcePasswordReset, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Role = rbac.NormalizeRole(role)
	u.Status = Status(status)
	return &u, nil
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByUsername fetches a user by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// Count returns the total number of accounts.
func (r *PGRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// Create inserts a new account. A username conflict maps to ErrDuplicate.
func (r *PGRepository) Create(ctx context.Context, username, passwordHash string, role rbac.Role, status Status) (*User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role, status, session_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW(), NOW())
		RETURNING `+userColumns,
		username, passwordHash, string(role), string(status)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// List returns accounts ordered by creation time.
func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// IncrementLoginFailure bumps the failure counter and, when the new count
// reaches maxAttempts, sets the lock in the same statement. Returns the
// post-increment count and the lock expiry, if any.
func (r *PGRepository) IncrementLoginFailure(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`,
		id, maxAttempts, lockUntil.UTC()).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, shared.ErrNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

// RecordLoginSuccess clears the failure counter and the lock and stamps the
// login time.
func (r *PGRepository) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = NOW()
		WHERE id = $1`, id, at.UTC())
	return err
}

// Unlock clears the lock and the failure counter.
func (r *PGRepository) Unlock(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus changes the lifecycle status and bumps the session version so
// previously issued credentials die with the old status.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET status = $2, session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, string(status)))
}

// SetRole changes the role and bumps the session version.
func (r *PGRepository) SetRole(ctx context.Context, id int64, role rbac.Role) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET role = $2, session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, string(role)))
}

// BumpSessionVersion invalidates every outstanding credential for the user.
func (r *PGRepository) BumpSessionVersion(ctx context.Context, id int64) (int64, error) {
	var version int64
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING session_version`, id).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

// SetForcePasswordReset toggles the forced-reset flag, bumping the session
// version so the user must re-authenticate into the reset flow.
func (r *PGRepository) SetForcePasswordReset(ctx context.Context, id int64, force bool) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET force_password_reset = $2, session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, force))
}

// Delete removes an account.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
