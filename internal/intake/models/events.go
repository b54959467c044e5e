package models

// Event types written to the outbox.
const (
	EventSubmissionRecorded   = "submission.recorded"
	EventSubmissionWithdrawn  = "submission.withdrawn"
	EventSubmissionIncomplete = "submission.incomplete"
	EventPersonDeleted        = "person.deleted"
	EventStoreReset           = "store.reset"
)

// ClientInfo describes the browser that sent a submission.
type ClientInfo struct {
	IP      string `json:"ip,omitempty"`
	Browser string `json:"browser,omitempty"`
	Version string `json:"browserVersion,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile"`
	Bot     bool   `json:"bot"`
}

// SubmissionEvent is the payload of submission.* events.
type SubmissionEvent struct {
	SubmissionID string      `json:"submissionId"`
	PersonID     int64       `json:"personId"`
	Sequence     int         `json:"sequenceNumber"`
	FullName     string      `json:"fullName"`
	Bank         string      `json:"bank"`
	IDFilePath   string      `json:"idFilePath"`
	Timestamp    string      `json:"timestamp"`
	RequestID    string      `json:"requestId,omitempty"`
	Client       *ClientInfo `json:"client,omitempty"`
}

// PersonDeletedEvent is the payload of person.deleted.
type PersonDeletedEvent struct {
	PersonID      int64    `json:"personId"`
	FullName      string   `json:"fullName"`
	SubmissionIDs []string `json:"submissionIds"`
	RequestID     string   `json:"requestId,omitempty"`
}
