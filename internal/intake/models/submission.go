package models

import (
	"strings"
	"time"

	dErrors "formvault/pkg/domain-errors"
)

// SubmissionStatus tracks whether the ID photo of a submission was stored.
type SubmissionStatus string

const (
	StatusComplete SubmissionStatus = "complete"
	// StatusIncomplete marks a committed submission whose photo could not be
	// moved into place after its sequence number was already superseded.
	StatusIncomplete SubmissionStatus = "incomplete"
)

// Submission is one immutable intake event.
type Submission struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	FirstName  string           `json:"firstName"`
	LastName   string           `json:"lastName"`
	FullName   string           `json:"fullName"`
	Bank       string           `json:"bank"`
	IDFilePath string           `json:"idFilePath"`
	PersonID   int64            `json:"personId"`
	Sequence   int              `json:"sequenceNumber"`
	Status     SubmissionStatus `json:"status"`
}

// Form holds the user-entered fields of a submission.
type Form struct {
	FirstName string
	LastName  string
	Bank      string
}

// Normalize trims surrounding whitespace from every field.
func (f *Form) Normalize() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Bank = strings.TrimSpace(f.Bank)
}

// Validate requires both name parts; bank may be empty.
func (f Form) Validate() error {
	if f.FirstName == "" {
		return dErrors.New(dErrors.CodeValidation, "firstName is required")
	}
	if f.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "lastName is required")
	}
	return nil
}

// FullName of the person this form identifies.
func (f Form) FullName() string {
	return FullName(f.FirstName, f.LastName)
}

// NewSubmission builds the record for the reconciled sequence number.
func NewSubmission(rec Reconciliation, form Form, idFilePath string, now time.Time) (*Submission, error) {
	if rec.PersonID <= 0 || rec.Sequence <= 0 {
		return nil, dErrors.New(dErrors.CodeConstraintViolation, "reconciliation returned an invalid person or sequence")
	}
	if idFilePath == "" {
		return nil, dErrors.New(dErrors.CodeConstraintViolation, "stored file path is required")
	}
	fullName := form.FullName()
	return &Submission{
		ID:         SubmissionID(fullName, rec.Sequence),
		Timestamp:  now.UTC(),
		FirstName:  form.FirstName,
		LastName:   form.LastName,
		FullName:   fullName,
		Bank:       form.Bank,
		IDFilePath: idFilePath,
		PersonID:   rec.PersonID,
		Sequence:   rec.Sequence,
		Status:     StatusComplete,
	}, nil
}
