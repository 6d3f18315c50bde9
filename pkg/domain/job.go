package domain

import (
	"time"
)

// JobStatus represents the lifecycle status of a solving job
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// IsTerminal reports whether the status can no longer change
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	}
	return false
}

// Job is one quiz chain solving session started by a POST /quiz request
type Job struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Secret     string    `json:"secret,omitempty"`
	StartURL   string    `json:"start_url"`
	CurrentURL string    `json:"current_url"`
	Status     JobStatus `json:"status"`
	Attempts   []Attempt `json:"attempts"`
	Error      string    `json:"error,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Deadline    time.Time  `json:"deadline"`
}

// Attempt records a single answer submission
type Attempt struct {
	QuizURL   string        `json:"quiz_url"`
	SubmitURL string        `json:"submit_url"`
	Answer    interface{}   `json:"answer"`
	Correct   bool          `json:"correct"`
	Reason    string        `json:"reason,omitempty"`
	NextURL   string        `json:"next_url,omitempty"`
	Try       int           `json:"try"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Clone returns a copy of the job that shares no mutable state with j
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Attempts = append([]Attempt(nil), j.Attempts...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Public returns a copy safe to expose over the API (secret removed)
func (j *Job) Public() *Job {
	c := j.Clone()
	if c != nil {
		c.Secret = ""
	}
	return c
}

// CorrectCount returns the number of correct attempts
func (j *Job) CorrectCount() int {
	n := 0
	for _, a := range j.Attempts {
		if a.Correct {
			n++
		}
	}
	return n
}
