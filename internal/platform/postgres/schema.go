package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// createStatements builds the schema. Statements are idempotent so EnsureSchema
// can run on every start.
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS people (
		id               BIGSERIAL PRIMARY KEY,
		first_name       TEXT NOT NULL,
		last_name        TEXT NOT NULL,
		full_name        TEXT NOT NULL UNIQUE,
		submission_count INTEGER NOT NULL DEFAULT 1 CHECK (submission_count >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id              TEXT PRIMARY KEY,
		person_id       BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		sequence_number INTEGER NOT NULL CHECK (sequence_number > 0),
		created_at      TIMESTAMPTZ NOT NULL,
		first_name      TEXT NOT NULL,
		last_name       TEXT NOT NULL,
		full_name       TEXT NOT NULL,
		bank            TEXT NOT NULL,
		id_file_path    TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'complete' CHECK (status IN ('complete', 'incomplete')),
		UNIQUE (person_id, sequence_number)
	)`,
	`CREATE INDEX IF NOT EXISTS submissions_created_at_idx ON submissions (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS submissions_person_idx ON submissions (person_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		published_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (created_at) WHERE published_at IS NULL`,
}

var dropStatements = []string{
	`DROP TABLE IF EXISTS submissions`,
	`DROP TABLE IF EXISTS people`,
	`DROP TABLE IF EXISTS outbox`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range createStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ResetSchema drops every table and recreates the schema. Run it inside a
// transaction so a failure leaves the previous schema in place.
func ResetSchema(ctx context.Context, db Execer) error {
	for _, stmt := range dropStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset schema: %w", err)
		}
	}
	return EnsureSchema(ctx, db)
}
