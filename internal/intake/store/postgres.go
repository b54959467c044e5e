package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"formvault/internal/intake/models"
	"formvault/internal/intake/service"
	platformpg "formvault/internal/platform/postgres"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/sentinel"
	txcontext "formvault/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

const submissionColumns = `id, person_id, sequence_number, created_at, first_name, last_name, full_name, bank, id_file_path, status`

// PostgresStore implements service.Repository on PostgreSQL.
//
// Transactions run at READ COMMITTED: the upsert in ReconcilePerson takes the
// person's row lock, which is what orders concurrent submissions for the same
// name. Lock waits are bounded by lock_timeout.
type PostgresStore struct {
	db          *sql.DB
	q           txcontext.Execer
	txTimeout   time.Duration
	lockTimeout time.Duration
	inTx        bool
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTxTimeout bounds transactions whose context has no deadline.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithLockTimeout sets lock_timeout for every transaction. Zero waits forever.
func WithLockTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		s.lockTimeout = d
	}
}

// NewPostgres builds a store on an open pool. The caller owns db.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:        db,
		q:         db,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) bind(tx *sql.Tx) *PostgresStore {
	bound := *s
	bound.q = tx
	bound.inTx = true
	return &bound
}

// RunInTx runs fn in a transaction, committing when fn returns nil. A store
// already bound to a transaction, or a ctx carrying one, joins it instead.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if tx, ok := txcontext.From(ctx); ok {
		return fn(ctx, s.bind(tx))
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return platformpg.Translate(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return platformpg.Translate(err, "set lock timeout")
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), s.bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return platformpg.Translate(err, "commit transaction")
	}
	return nil
}

// ReconcilePerson finds or creates the person and bumps the counter in one
// statement; the returned count is the new submission's sequence.
func (s *PostgresStore) ReconcilePerson(ctx context.Context, firstName, lastName string) (models.Reconciliation, error) {
	query := `
		INSERT INTO people (first_name, last_name, full_name, submission_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (full_name) DO UPDATE SET
			submission_count = people.submission_count + 1
		RETURNING id, submission_count
	`
	var rec models.Reconciliation
	err := s.q.QueryRowContext(ctx, query, firstName, lastName, models.FullName(firstName, lastName)).
		Scan(&rec.PersonID, &rec.Sequence)
	if err != nil {
		return models.Reconciliation{}, platformpg.Translate(err, "reconcile person")
	}
	return rec, nil
}

// InsertSubmission never overwrites: an existing id fails with ErrConflict.
func (s *PostgresStore) InsertSubmission(ctx context.Context, sub *models.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.q.ExecContext(ctx, query,
		sub.ID,
		sub.PersonID,
		sub.Sequence,
		sub.Timestamp,
		sub.FirstName,
		sub.LastName,
		sub.FullName,
		sub.Bank,
		sub.IDFilePath,
		string(sub.Status),
	)
	return platformpg.Translate(err, "insert submission")
}

func (s *PostgresStore) WithdrawSubmission(ctx context.Context, personID int64, sequence int) (int, error) {
	query := `
		UPDATE people SET submission_count = submission_count - 1
		WHERE id = $1 AND submission_count = $2
		RETURNING submission_count
	`
	var remaining int
	err := s.q.QueryRowContext(ctx, query, personID, sequence).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("withdraw submission %d of person %d: %w", sequence, personID, sentinel.ErrInvalidState)
	}
	if err != nil {
		return 0, platformpg.Translate(err, "withdraw submission")
	}
	return remaining, nil
}

func (s *PostgresStore) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return platformpg.Translate(err, "delete submission")
	}
	return expectRow(res, "delete submission")
}

func (s *PostgresStore) MarkSubmission(ctx context.Context, id string, status models.SubmissionStatus) error {
	res, err := s.q.ExecContext(ctx, `UPDATE submissions SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return platformpg.Translate(err, "mark submission")
	}
	return expectRow(res, "mark submission")
}

func (s *PostgresStore) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, platformpg.Translate(err, "list submissions")
	}
	return scanSubmissions(rows)
}

func (s *PostgresStore) CountSubmissions(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n); err != nil {
		return 0, platformpg.Translate(err, "count submissions")
	}
	return n, nil
}

func (s *PostgresStore) FindSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, platformpg.Translate(err, "find submission")
	}
	return sub, nil
}

func (s *PostgresStore) FindPerson(ctx context.Context, id int64) (*models.Person, error) {
	var p models.Person
	err := s.q.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, full_name, submission_count FROM people WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.FullName, &p.SubmissionCount)
	if err != nil {
		return nil, platformpg.Translate(err, "find person")
	}
	return &p, nil
}

func (s *PostgresStore) ListSubmissionsByPerson(ctx context.Context, personID int64) ([]*models.Submission, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE person_id = $1 ORDER BY created_at DESC, sequence_number DESC`,
		personID)
	if err != nil {
		return nil, platformpg.Translate(err, "list person submissions")
	}
	return scanSubmissions(rows)
}

func (s *PostgresStore) ListPeople(ctx context.Context) ([]*models.Person, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, first_name, last_name, full_name, submission_count
		FROM people
		ORDER BY submission_count DESC, full_name ASC
	`)
	if err != nil {
		return nil, platformpg.Translate(err, "list people")
	}
	defer rows.Close()

	people := []*models.Person{}
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.FullName, &p.SubmissionCount); err != nil {
			return nil, platformpg.Translate(err, "scan person")
		}
		people = append(people, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, platformpg.Translate(err, "list people")
	}
	return people, nil
}

// DeletePerson removes the person; submissions follow by ON DELETE CASCADE.
func (s *PostgresStore) DeletePerson(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return platformpg.Translate(err, "delete person")
	}
	return expectRow(res, "delete person")
}

// Reset drops and recreates every table. Call it inside RunInTx so a failure
// keeps the old schema.
func (s *PostgresStore) Reset(ctx context.Context) error {
	return platformpg.Translate(platformpg.ResetSchema(ctx, s.q), "reset store")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return platformpg.Translate(s.db.PingContext(ctx), "ping")
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return platformpg.Translate(err, op)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub    models.Submission
		status string
	)
	err := row.Scan(
		&sub.ID,
		&sub.PersonID,
		&sub.Sequence,
		&sub.Timestamp,
		&sub.FirstName,
		&sub.LastName,
		&sub.FullName,
		&sub.Bank,
		&sub.IDFilePath,
		&status,
	)
	if err != nil {
		return nil, err
	}
	sub.Timestamp = sub.Timestamp.UTC()
	sub.Status = models.SubmissionStatus(status)
	return &sub, nil
}

func scanSubmissions(rows *sql.Rows) ([]*models.Submission, error) {
	defer rows.Close()
	subs := []*models.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, platformpg.Translate(err, "scan submission")
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, platformpg.Translate(err, "iterate submissions")
	}
	return subs, nil
}
