package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq        BIGSERIAL PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	process_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_process_idx ON audit_events (process_id, seq);
`

// PostgresStore is the durable audit trail. Rows are append-only; nothing
// updates or deletes them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the audit table when missing. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (ts, process_id, user_id, action, actor, reason, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.Timestamp, event.ProcessID, event.UserID, string(event.Action),
		event.Actor, event.Reason, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByProcess(ctx context.Context, processID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, process_id, user_id, action, actor, reason, request_id
		 FROM audit_events WHERE process_id = $1 ORDER BY seq`,
		processID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var action string
		if err := rows.Scan(&e.Timestamp, &e.ProcessID, &e.UserID, &action, &e.Actor, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		events = append(events, e)
	}
	return events, rows.Err()
}
