package domain

import (
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeParse    JobType = "parse"
	JobTypeAnalyze  JobType = "analyze"
	JobTypeValidate JobType = "validate"
	JobTypeExport   JobType = "export"
)

// ValidJobType reports whether t is one of the supported job types.
func ValidJobType(t JobType) bool {
	switch t {
	case JobTypeParse, JobTypeAnalyze, JobTypeValidate, JobTypeExport:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
// No transition ever leaves a terminal state except failed→pending via retry.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Priority is a 5-level ordinal; higher values are scheduled first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityUrgent   Priority = 4
	PriorityCritical Priority = 5
)

// ParsePriority maps the symbolic submission levels to ordinals.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	case "critical":
		return PriorityCritical, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Progress describes where a job currently is inside its handler.
type Progress struct {
	Percentage int    `json:"percentage"`
	Stage      string `json:"stage"`
	Message    string `json:"message,omitempty"`
}

// Job is a single unit of work owned by the queue.
type Job struct {
	ID       string    `json:"id"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Priority Priority  `json:"priority"`

	FileName      string `json:"file_name"`
	FileType      string `json:"file_type"`
	FileSizeBytes int64  `json:"file_size_bytes"`

	Profile  ResourceProfile `json:"profile"`
	Progress Progress        `json:"progress"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	RetryAttempt     int `json:"retry_attempt"`
	MaxRetryAttempts int `json:"max_retry_attempts"`

	Error *ErrorRecord `json:"error,omitempty"`

	// Result is opaque to the queue; handlers own its shape.
	Result any `json:"result,omitempty"`

	DependsOn []string          `json:"depends_on,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`

	// Set when recovery exhausts every strategy and an operator must step in.
	RequiresIntervention bool `json:"requires_intervention,omitempty"`
}

// Clone returns a deep copy so callers can hold a job without racing the queue.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.DependsOn != nil {
		c.DependsOn = append([]string(nil), j.DependsOn...)
	}
	if j.Tags != nil {
		c.Tags = append([]string(nil), j.Tags...)
	}
	if j.Metadata != nil {
		c.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
