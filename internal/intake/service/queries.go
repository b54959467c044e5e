package service

import (
	"context"
	"errors"
	"strings"

	"formvault/internal/intake/models"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/sentinel"
)

// ListSubmissions returns every submission, newest first.
func (s *Service) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	subs, err := s.repo.ListSubmissions(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "list submissions")
	}
	return subs, nil
}

func (s *Service) CountSubmissions(ctx context.Context) (int, error) {
	n, err := s.repo.CountSubmissions(ctx)
	if err != nil {
		return 0, translateStoreErr(err, "count submissions")
	}
	return n, nil
}

// GetSubmission looks a submission up by its "<fullName> <seq>" id.
func (s *Service) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "submission id is required")
	}
	sub, err := s.repo.FindSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, translateStoreErr(err, "load submission")
	}
	return sub, nil
}

// GetPerson returns the person with their submissions, newest first.
func (s *Service) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	if id <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "person id must be a positive integer")
	}
	person, err := s.repo.FindPerson(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "person not found")
		}
		return nil, translateStoreErr(err, "load person")
	}
	subs, err := s.repo.ListSubmissionsByPerson(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "list person submissions")
	}
	person.Submissions = subs
	return person, nil
}

// ListPeople returns people by submission count, then full name.
func (s *Service) ListPeople(ctx context.Context) ([]*models.Person, error) {
	people, err := s.repo.ListPeople(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "list people")
	}
	return people, nil
}
