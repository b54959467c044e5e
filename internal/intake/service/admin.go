package service

import (
	"context"
	"errors"
	"io/fs"

	"go.opentelemetry.io/otel/attribute"

	"formvault/internal/intake/models"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/requestcontext"
)

// DeleteResult reports a person deletion.
type DeleteResult struct {
	PersonID     int64
	FullName     string
	Submissions  int
	FilesRemoved int
}

// DeletePerson removes a person and, by cascade, their submissions. Stored
// photos are removed after commit on a best-effort basis.
func (s *Service) DeletePerson(ctx context.Context, id int64) (result *DeleteResult, err error) {
	ctx, span := s.tracer.Start(ctx, "intake.DeletePerson")
	span.SetAttributes(attribute.Int64("person.id", id))
	defer func() { endSpan(span, err) }()

	if id <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "person id must be a positive integer")
	}

	var paths []string
	result = &DeleteResult{PersonID: id}
	err = s.repo.RunInTx(ctx, func(ctx context.Context, store Store) error {
		person, err := store.FindPerson(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "person not found")
			}
			return translateStoreErr(err, "load person")
		}
		subs, err := store.ListSubmissionsByPerson(ctx, id)
		if err != nil {
			return translateStoreErr(err, "list person submissions")
		}
		if err := store.DeletePerson(ctx, id); err != nil {
			return translateStoreErr(err, "delete person")
		}

		ids := make([]string, 0, len(subs))
		for _, sub := range subs {
			ids = append(ids, sub.ID)
			paths = append(paths, sub.IDFilePath)
		}
		result.FullName = person.FullName
		result.Submissions = len(subs)
		return s.recordEvent(ctx, models.EventPersonDeleted, id, models.PersonDeletedEvent{
			PersonID:      id,
			FullName:      person.FullName,
			SubmissionIDs: ids,
			RequestID:     requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, translateStoreErr(err, "delete person")
	}

	for _, path := range paths {
		if err := s.files.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.WarnContext(ctx, "failed to remove stored photo",
					"request_id", requestcontext.RequestID(ctx),
					"path", path,
					"error", err,
				)
			}
			continue
		}
		result.FilesRemoved++
	}

	s.metrics.IncrementPeopleDeleted()
	s.logger.InfoContext(ctx, "person deleted",
		"request_id", requestcontext.RequestID(ctx),
		"person_id", id,
		"submissions", result.Submissions,
		"files_removed", result.FilesRemoved,
	)
	return result, nil
}

// Reset drops and recreates the schema, then deletes the stored files no
// submission references. Photos of submissions that commit while the reset
// runs are kept, and uploads still staged by other requests are left alone.
func (s *Service) Reset(ctx context.Context) (filesRemoved int, err error) {
	ctx, span := s.tracer.Start(ctx, "intake.Reset")
	defer func() { endSpan(span, err) }()

	err = s.repo.RunInTx(ctx, func(ctx context.Context, store Store) error {
		if err := store.Reset(ctx); err != nil {
			return translateStoreErr(err, "reset store")
		}
		return s.recordEvent(ctx, models.EventStoreReset, 0, map[string]string{
			"requestId": requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return 0, translateStoreErr(err, "reset store")
	}

	filesRemoved, purgeErr := s.files.Purge(func() (map[string]bool, error) {
		subs, err := s.repo.ListSubmissions(ctx)
		if err != nil {
			return nil, err
		}
		live := make(map[string]bool, len(subs))
		for _, sub := range subs {
			live[sub.IDFilePath] = true
		}
		return live, nil
	})
	if purgeErr != nil {
		s.logger.WarnContext(ctx, "failed to purge some stored files",
			"request_id", requestcontext.RequestID(ctx),
			"error", purgeErr,
		)
	}
	s.logger.InfoContext(ctx, "store reset",
		"request_id", requestcontext.RequestID(ctx),
		"files_removed", filesRemoved,
	)
	return filesRemoved, nil
}
