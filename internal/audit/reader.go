package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// Querier is the slice of pgxpool.Pool the reader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Reader serves paginated, newest-first audit listings.
type Reader struct {
	db Querier
}

// NewReader constructs a Reader.
func NewReader(db Querier) *Reader {
	return &Reader{db: db}
}

// List returns entries newest-first with the acting username resolved when
// the actor still exists.
func (r *Reader) List(ctx context.Context, limit, offset int) ([]ListEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.actor_id, a.action, a.target_type, a.target_id,
		       a.metadata, a.ip_address, a.user_agent, a.created_at, u.username
		FROM audit_log a
		LEFT JOIN users u ON u.id = a.actor_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListEntry
	for rows.Next() {
		var (
			e          ListEntry
			targetType *string
			targetID   *string
			metaJSON   []byte
			ip         *string
			ua         *string
			username   *string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &targetType, &targetID,
			&metaJSON, &ip, &ua, &e.CreatedAt, &username); err != nil {
			return nil, err
		}
		if targetType != nil {
			e.TargetType = *targetType
		}
		if targetID != nil {
			e.TargetID = *targetID
		}
		if ip != nil {
			e.IPAddress = *ip
		}
		if ua != nil {
			e.UserAgent = *ua
		}
		if username != nil {
			e.ActorUsername = *username
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
