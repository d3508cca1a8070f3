package model

import "time"

// Job tracks a single in-flight conversion. The job ID names the working
// directory and is never handed out as a download token.
type Job struct {
	ID         string
	URL        string
	Format     Format
	WorkDir    string
	Status     JobStatus
	Title      string
	LastError  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the job ran, or zero while it is unfinished.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt.IsZero() || j.StartedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
