package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"formvault/internal/intake/models"
	"formvault/internal/intake/uploads"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/requestcontext"
)

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Photo is the uploaded ID image of a submission.
type Photo struct {
	Content  io.Reader
	Filename string
}

// Submit records one form submission.
//
// The person is reconciled and the submission inserted in one transaction.
// The photo is moved to its final name only after commit; if that fails the
// submission is withdrawn (or marked incomplete when its number can no longer
// be released) and the caller gets incomplete_submission.
func (s *Service) Submit(ctx context.Context, form models.Form, photo *Photo) (sub *models.Submission, err error) {
	ctx, span := s.tracer.Start(ctx, "intake.Submit")
	defer func() {
		if err != nil {
			s.metrics.IncrementSubmissionsFailed(string(dErrors.CodeOf(err)))
		}
		endSpan(span, err)
	}()

	form.Normalize()
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if photo == nil || photo.Content == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "idPhoto is required")
	}

	tempPath, err := s.files.Stage(photo.Content, photo.Filename)
	if err != nil {
		return nil, err
	}
	ext := photoExt(photo.Filename)

	var (
		slug    string
		created bool
	)
	err = s.repo.RunInTx(ctx, func(ctx context.Context, store Store) error {
		rec, err := store.ReconcilePerson(ctx, form.FirstName, form.LastName)
		if err != nil {
			return translateStoreErr(err, "reconcile person")
		}
		created = rec.Created()
		slug = fileSlug(form.FullName(), rec.PersonID)

		sub, err = models.NewSubmission(rec, form, uploads.FinalName(slug, rec.Sequence, ext), requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := store.InsertSubmission(ctx, sub); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeDuplicateSubmission,
					fmt.Sprintf("submission %q already exists", sub.ID))
			}
			return translateStoreErr(err, "record submission")
		}
		return s.recordEvent(ctx, models.EventSubmissionRecorded, sub.PersonID, s.submissionEvent(ctx, sub))
	})
	if err != nil {
		err = translateStoreErr(err, "record submission")
		s.files.Discard(tempPath)
		s.logger.WarnContext(ctx, "submission rejected",
			"request_id", requestcontext.RequestID(ctx),
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("submission.id", sub.ID),
		attribute.Int64("person.id", sub.PersonID),
		attribute.Int("submission.sequence", sub.Sequence),
	)

	if _, err := s.files.Relocate(tempPath, slug, sub.Sequence, ext); err != nil {
		return nil, s.compensate(ctx, sub, tempPath, err)
	}

	if created {
		s.metrics.IncrementPeopleCreated()
	}
	s.metrics.IncrementSubmissionsRecorded()
	s.logger.InfoContext(ctx, "submission recorded",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", sub.ID,
		"person_id", sub.PersonID,
		"sequence", sub.Sequence,
	)
	return sub, nil
}

// fileSlug picks the slug of the stored file name without looking at the
// filesystem. Distinct full names can share a slug ("Ann Lee" and "ann lee");
// only the name that owns it uses it bare, the others get their person ID
// after an underscore, which no bare slug contains.
func fileSlug(fullName string, personID int64) string {
	if models.OwnsSlug(fullName) {
		return models.Slug(fullName)
	}
	slug := models.Slug(fullName)
	if slug == "" {
		slug = "submission"
	}
	return fmt.Sprintf("%s_p%d", slug, personID)
}

// compensate undoes a committed submission whose photo could not be moved.
// It runs detached from the request so a client disconnect cannot leave the
// submission half withdrawn.
func (s *Service) compensate(ctx context.Context, sub *models.Submission, tempPath string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	defer s.files.Discard(tempPath)

	outcome := "withdrawn"
	err := s.repo.RunInTx(ctx, func(ctx context.Context, store Store) error {
		remaining, err := store.WithdrawSubmission(ctx, sub.PersonID, sub.Sequence)
		switch {
		case err == nil:
			if err := store.DeleteSubmission(ctx, sub.ID); err != nil {
				return err
			}
			if remaining == 0 {
				if err := store.DeletePerson(ctx, sub.PersonID); err != nil {
					return err
				}
			}
			return s.recordEvent(ctx, models.EventSubmissionWithdrawn, sub.PersonID, s.submissionEvent(ctx, sub))
		case errors.Is(err, sentinel.ErrInvalidState):
			outcome = "marked_incomplete"
			if err := store.MarkSubmission(ctx, sub.ID, models.StatusIncomplete); err != nil {
				return err
			}
			sub.Status = models.StatusIncomplete
			return s.recordEvent(ctx, models.EventSubmissionIncomplete, sub.PersonID, s.submissionEvent(ctx, sub))
		default:
			return err
		}
	})
	if err != nil {
		outcome = "failed"
	}
	s.logger.ErrorContext(ctx, "photo relocation failed",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", sub.ID,
		"outcome", outcome,
		"error", cause,
		"compensation_error", err,
	)
	return dErrors.Wrap(cause, dErrors.CodeIncompleteSubmission,
		"the ID photo could not be stored; please submit the form again")
}

// photoExt keeps the original extension when it is a plain lowercase token.
func photoExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !safeExt.MatchString(ext) {
		return ""
	}
	return ext
}
