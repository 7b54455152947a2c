package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snipvault/snipvault/internal/shared"
)

// Repository defines durable storage for settings and flags.
type Repository interface {
	GetSetting(ctx context.Context, key string) (Setting, error)
	UpsertSetting(ctx context.Context, key, value, updatedBy string, at time.Time) (Setting, error)
	ListSettings(ctx context.Context, prefix string) ([]Setting, error)
	GetFlag(ctx context.Context, key string) (Flag, error)
	UpsertFlag(ctx context.Context, key string, enabled bool, description, updatedBy string, at time.Time) (Flag, error)
	ListFlags(ctx context.Context) ([]Flag, error)
	SeedDefaults(ctx context.Context) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetSetting fetches a single setting row.
func (r *PGRepository) GetSetting(ctx context.Context, key string) (Setting, error) {
	var s Setting
	err := r.pool.QueryRow(ctx,
		`SELECT key, value, updated_at, updated_by FROM settings WHERE key = $1`, key,
	).Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Setting{}, shared.ErrNotFound
		}
		return Setting{}, err
	}
	return s, nil
}

// UpsertSetting writes a setting synchronously, returning the stored row.
func (r *PGRepository) UpsertSetting(ctx context.Context, key, value, updatedBy string, at time.Time) (Setting, error) {
	var s Setting
	err := r.pool.QueryRow(ctx, `
		INSERT INTO settings (key, value, updated_at, updated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
		RETURNING key, value, updated_at, updated_by`,
		key, value, at.UTC(), updatedBy,
	).Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy)
	return s, err
}

// ListSettings returns settings whose key starts with prefix; an empty
// prefix returns everything.
func (r *PGRepository) ListSettings(ctx context.Context, prefix string) ([]Setting, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, value, updated_at, updated_by FROM settings WHERE key LIKE $1 || '%' ORDER BY key`,
		prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetFlag fetches a single feature flag row.
func (r *PGRepository) GetFlag(ctx context.Context, key string) (Flag, error) {
	var f Flag
	err := r.pool.QueryRow(ctx,
		`SELECT key, enabled, description, updated_at, updated_by FROM feature_flags WHERE key = $1`, key,
	).Scan(&f.Key, &f.Enabled, &f.Description, &f.UpdatedAt, &f.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flag{}, shared.ErrNotFound
		}
		return Flag{}, err
	}
	return f, nil
}

// UpsertFlag writes a feature flag synchronously, returning the stored row.
func (r *PGRepository) UpsertFlag(ctx context.Context, key string, enabled bool, description, updatedBy string, at time.Time) (Flag, error) {
	var f Flag
	err := r.pool.QueryRow(ctx, `
		INSERT INTO feature_flags (key, enabled, description, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET enabled = EXCLUDED.enabled, description = EXCLUDED.description,
		    updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
		RETURNING key, enabled, description, updated_at, updated_by`,
		key, enabled, description, at.UTC(), updatedBy,
	).Scan(&f.Key, &f.Enabled, &f.Description, &f.UpdatedAt, &f.UpdatedBy)
	return f, err
}

// ListFlags returns every feature flag ordered by key.
func (r *PGRepository) ListFlags(ctx context.Context) ([]Flag, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, enabled, description, updated_at, updated_by FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Flag
	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.Key, &f.Enabled, &f.Description, &f.UpdatedAt, &f.UpdatedBy); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SeedDefaults inserts the documented default settings without overwriting
// operator changes.
func (r *PGRepository) SeedDefaults(ctx context.Context) error {
	for key, value := range defaultSettings {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO settings (key, value, updated_at, updated_by)
			VALUES ($1, $2, NOW(), 'system')
			ON CONFLICT (key) DO NOTHING`, key, value)
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
