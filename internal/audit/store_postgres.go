package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DefaultRecentLimit caps how many events Recent returns when no limit is given.
const DefaultRecentLimit = 100

// PostgresSink persists events to audit_events so the admin view can read them
// back. Writes are idempotent on the event id.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Write(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var sigID sql.NullInt64
	if e.SignatureID != 0 {
		sigID = sql.NullInt64{Int64: e.SignatureID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, nation, signature_id, actor, client, client_ip, request_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Action), e.Nation, sigID, e.Actor, e.Client, e.ClientIP, e.RequestID, e.Detail, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", e.Action, err)
	}
	return nil
}

// Recent returns the newest events first, optionally filtered by action.
func (s *PostgresSink) Recent(ctx context.Context, action Action, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, nation, signature_id, actor, client, client_ip, request_id, detail, occurred_at
		FROM audit_events
		WHERE $1::text = '' OR action = $1::text
		ORDER BY occurred_at DESC, id
		LIMIT $2`,
		string(action), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			act   string
			sigID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &act, &e.Nation, &sigID, &e.Actor, &e.Client, &e.ClientIP, &e.RequestID, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(act)
		e.SignatureID = sigID.Int64
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
