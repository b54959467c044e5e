package service

import (
	"context"
	"io"
	"os"

	"formvault/internal/intake/models"
	"formvault/internal/outbox"
)

// Store is the persistence contract of the intake service. Implementations
// return pkg/platform/sentinel errors.
//
// ReconcilePerson must be a single atomic find-or-create-and-increment: two
// concurrent calls for one full name never observe the same sequence.
type Store interface {
	ReconcilePerson(ctx context.Context, firstName, lastName string) (models.Reconciliation, error)
	InsertSubmission(ctx context.Context, submission *models.Submission) error
	// WithdrawSubmission decrements the person's counter only if it still
	// equals sequence, returning the new count. ErrInvalidState means a later
	// submission already took the next number.
	WithdrawSubmission(ctx context.Context, personID int64, sequence int) (int, error)
	DeleteSubmission(ctx context.Context, id string) error
	MarkSubmission(ctx context.Context, id string, status models.SubmissionStatus) error

	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
	CountSubmissions(ctx context.Context) (int, error)
	FindSubmission(ctx context.Context, id string) (*models.Submission, error)
	FindPerson(ctx context.Context, id int64) (*models.Person, error)
	ListSubmissionsByPerson(ctx context.Context, personID int64) ([]*models.Submission, error)
	ListPeople(ctx context.Context) ([]*models.Person, error)

	DeletePerson(ctx context.Context, id int64) error
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Repository is a Store that can run a unit of work atomically. Inside fn,
// store and ctx are bound to the transaction; nested RunInTx calls join it.
type Repository interface {
	Store
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// FileStore is the storage root holding ID photos.
type FileStore interface {
	Stage(src io.Reader, originalName string) (string, error)
	Relocate(tempPath, slug string, sequence int, ext string) (string, error)
	Discard(tempPath string)
	Open(name string) (*os.File, error)
	Remove(name string) error
	Purge(live func() (map[string]bool, error)) (int, error)
}

// EventRecorder appends outbox events within the caller's transaction.
type EventRecorder interface {
	Append(ctx context.Context, event outbox.Event) error
}
