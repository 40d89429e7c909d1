package domain

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// BatchProgress is recomputed whenever any constituent job changes status.
type BatchProgress struct {
	TotalJobs     int `json:"total_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	Percentage    int `json:"percentage"`
}

// Batch is a named grouping of jobs whose aggregate progress is tracked.
// Status is derived from constituent jobs, never set directly.
type Batch struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	JobIDs    []string      `json:"job_ids"`
	Status    BatchStatus   `json:"status"`
	Progress  BatchProgress `json:"progress"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a copy safe to hand out of the queue.
func (b *Batch) Clone() *Batch {
	c := *b
	c.JobIDs = append([]string(nil), b.JobIDs...)
	return &c
}
