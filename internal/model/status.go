package model

// JobStatus represents the state of a conversion job
type JobStatus string

const (
	// JobStatusPending means the job is waiting for a free extraction slot
	JobStatusPending JobStatus = "pending"

	// JobStatusDownloading means the extractor is fetching the source
	JobStatusDownloading JobStatus = "downloading"

	// JobStatusCompleted means the artifact was registered under a token
	JobStatusCompleted JobStatus = "completed"

	// JobStatusError means the job failed and no token was issued
	JobStatusError JobStatus = "error"
)

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsActive returns true if the job still occupies or awaits an extraction slot
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusDownloading
}

// IsFinished returns true if the job reached a terminal state
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusError
}
