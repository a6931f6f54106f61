package models

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends a run.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type IngestionJob struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"documentId"`
	VersionNumber *int       `json:"versionNumber,omitempty"`
	Status        JobStatus  `json:"status"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// JobFilter narrows job listings. When ReaderID is set only jobs of documents
// that user can read are returned.
type JobFilter struct {
	ReaderID   string
	DocumentID string
	Status     JobStatus
	Page
}
