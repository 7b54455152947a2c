package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the slice of pgxpool.Pool the recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder appends audit rows. A failed append is logged and dropped;
// audit is observability, not a transactional guarantee, and must not
// become a new source of outage.
type Recorder struct {
	db     Execer
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(db Execer, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Record appends one audit row. Never returns an error to the caller.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.db == nil {
		return
	}
	var metaJSON []byte
	if e.Metadata != nil {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("audit metadata marshal", slog.String("action", e.Action), slog.Any("error", err))
			}
		} else {
			metaJSON = raw
		}
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = r.now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (actor_id, action, target_type, target_id, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ActorID, e.Action, nullable(e.TargetType), nullable(e.TargetID),
		metaJSON, nullable(e.IPAddress), nullable(e.UserAgent), at.UTC())
	if err != nil && r.logger != nil {
		r.logger.Error("audit append failed", slog.String("action", e.Action), slog.Any("error", err))
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
