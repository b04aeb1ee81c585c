package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// EventsTable is the table written by the recorder.
const EventsTable = "realtime_events"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + EventsTable + ` (
		id          UUID PRIMARY KEY,
		event       TEXT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		payload     JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ` + EventsTable + `_event_received_idx
		ON ` + EventsTable + ` (event, received_at DESC)`,
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the recorder table and its index if missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
