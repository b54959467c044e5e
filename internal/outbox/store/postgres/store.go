package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"formvault/internal/outbox"
	platformpg "formvault/internal/platform/postgres"
	txcontext "formvault/pkg/platform/tx"
)

// Store implements outbox.Store on the outbox table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL outbox store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts event using the transaction in ctx when there is one, so the
// event commits or rolls back with the write it describes.
func (s *Store) Append(ctx context.Context, event outbox.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := txcontext.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.Type,
		[]byte(event.Payload),
		event.CreatedAt,
	)
	if err != nil {
		return platformpg.Translate(err, "insert outbox entry")
	}
	return nil
}

// Process locks a batch of pending rows with SKIP LOCKED, so several relays can
// run against one database without publishing the same row concurrently.
func (s *Store) Process(ctx context.Context, limit int, fn func(ctx context.Context, events []outbox.Event) error) (n int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, platformpg.Translate(err, "begin outbox batch")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, platformpg.Translate(err, "query pending outbox")
	}
	events, err := scanEvents(rows)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, tx.Commit()
	}

	if err = fn(ctx, events); err != nil {
		return 0, err
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID.String()
	}
	if _, err = tx.ExecContext(ctx, `UPDATE outbox SET published_at = now() WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return 0, platformpg.Translate(err, "mark outbox published")
	}
	if err = tx.Commit(); err != nil {
		return 0, platformpg.Translate(err, "commit outbox batch")
	}
	return len(events), nil
}

// Pending counts unpublished rows.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, platformpg.Translate(err, "count pending outbox")
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]outbox.Event, error) {
	defer rows.Close()
	var events []outbox.Event
	for rows.Next() {
		var (
			e       outbox.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return events, nil
}
