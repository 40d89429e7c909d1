package domain

import "time"

// EventKind is the fixed set of notifications the engine fans out.
// Collaborators (aggregation, export, analytics, storage) consume these and
// make no assumptions about internal state.
type EventKind string

const (
	EventJobAdded       EventKind = "job_added"
	EventJobStarted     EventKind = "job_started"
	EventJobProgress    EventKind = "job_progress"
	EventJobCompleted   EventKind = "job_completed"
	EventJobFailed      EventKind = "job_failed"
	EventJobCancelled   EventKind = "job_cancelled"
	EventJobRetry       EventKind = "job_retry"
	EventQueueEmpty     EventKind = "queue_empty"
	EventQueueFull      EventKind = "queue_full"
	EventBatchCompleted EventKind = "batch_completed"
	EventAlert          EventKind = "alert"
)

// Event is a single notification.
type Event struct {
	Kind      EventKind    `json:"kind"`
	JobID     string       `json:"job_id,omitempty"`
	BatchID   string       `json:"batch_id,omitempty"`
	Attempt   int          `json:"attempt,omitempty"`
	Progress  *Progress    `json:"progress,omitempty"`
	Error     *ErrorRecord `json:"error,omitempty"`
	Result    any          `json:"result,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
