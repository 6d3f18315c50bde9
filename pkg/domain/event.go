package domain

import "time"

// EventType identifies the kind of job event
type EventType string

const (
	EventTypeJobSubmitted     EventType = "job.submitted"
	EventTypeJobStarted       EventType = "job.started"
	EventTypeJobCompleted     EventType = "job.completed"
	EventTypeJobFailed        EventType = "job.failed"
	EventTypeJobCancelled     EventType = "job.cancelled"
	EventTypeJobTimedOut      EventType = "job.timed_out"
	EventTypeAttemptSubmitted EventType = "attempt.submitted"
)

// Event is published on the event bus for job lifecycle changes
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	JobID     string                 `json:"job_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// TerminalEventType maps a terminal job status to its event type
func TerminalEventType(status JobStatus) EventType {
	switch status {
	case JobStatusCompleted:
		return EventTypeJobCompleted
	case JobStatusCancelled:
		return EventTypeJobCancelled
	case JobStatusTimedOut:
		return EventTypeJobTimedOut
	default:
		return EventTypeJobFailed
	}
}
