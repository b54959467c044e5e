package models

// Person is the deduplicated identity behind one or more submissions.
// SubmissionCount always equals the number of submissions referencing it.
type Person struct {
	ID              int64         `json:"id"`
	FirstName       string        `json:"firstName"`
	LastName        string        `json:"lastName"`
	FullName        string        `json:"fullName"`
	SubmissionCount int           `json:"submissionCount"`
	Submissions     []*Submission `json:"submissions,omitempty"`
}

// Reconciliation is the outcome of mapping a name onto a person: the person
// and the sequence number the new submission must carry.
type Reconciliation struct {
	PersonID int64
	Sequence int
}

// Created reports whether reconciliation created the person.
func (r Reconciliation) Created() bool {
	return r.Sequence == 1
}
