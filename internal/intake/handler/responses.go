package handler

import (
	"mime"

	"formvault/internal/intake/models"
)

// SubmitResponse is the JSON reply to POST /submit.
type SubmitResponse struct {
	ID             string `json:"id"`
	PersonID       int64  `json:"personId"`
	SequenceNumber int    `json:"sequenceNumber"`
	IDFilePath     string `json:"idFilePath"`
}

// PersonResponse is a person with their submissions, newest first.
type PersonResponse struct {
	*models.Person
	Submissions []*models.Submission `json:"submissions"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type DeleteResponse struct {
	Status       string `json:"status"`
	PersonID     int64  `json:"personId"`
	FilesRemoved int    `json:"filesRemoved"`
}

type ResetResponse struct {
	Status       string `json:"status"`
	FilesRemoved int    `json:"filesRemoved"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func FromSubmission(sub *models.Submission) *SubmitResponse {
	return &SubmitResponse{
		ID:             sub.ID,
		PersonID:       sub.PersonID,
		SequenceNumber: sub.Sequence,
		IDFilePath:     sub.IDFilePath,
	}
}

// FromPerson always emits a submissions array, even when empty.
func FromPerson(p *models.Person) *PersonResponse {
	subs := p.Submissions
	if subs == nil {
		subs = []*models.Submission{}
	}
	return &PersonResponse{Person: p, Submissions: subs}
}

// contentDisposition names the download after the submission id. Non-ASCII
// ids are sent in the RFC 2231 filename* form.
func contentDisposition(id string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": id + ".pdf"}); v != "" {
		return v
	}
	return `attachment; filename="submission.pdf"`
}
