package domain

import (
	"errors"
	"time"
)

// Sentinel errors returned synchronously to queue callers. These never enter
// the recovery pipeline.
var (
	ErrQueueFull   = errors.New("queue is full")
	ErrJobNotFound = errors.New("job not found")
)

// ErrorCode identifies an entry in the classification taxonomy.
type ErrorCode string

const (
	CodeMemoryExhaustion ErrorCode = "MEMORY_EXHAUSTION"
	CodeFileCorruption   ErrorCode = "FILE_CORRUPTION"
	CodeNetworkTimeout   ErrorCode = "NETWORK_TIMEOUT"
	CodeParserError      ErrorCode = "PARSER_ERROR"
	CodeQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeUnknown          ErrorCode = "UNKNOWN_ERROR"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeParsing    ErrorType = "parsing"
	ErrorTypeAnalysis   ErrorType = "analysis"
	ErrorTypeExport     ErrorType = "export"
	ErrorTypeSystem     ErrorType = "system"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorContext snapshots where the failure happened.
type ErrorContext struct {
	JobID         string  `json:"job_id"`
	JobType       JobType `json:"job_type,omitempty"`
	FileName      string  `json:"file_name,omitempty"`
	FileType      string  `json:"file_type,omitempty"`
	FileSizeBytes int64   `json:"file_size_bytes,omitempty"`
	RetryAttempt  int     `json:"retry_attempt"`
}

// ErrorRecord is a classified failure attached to a job.
type ErrorRecord struct {
	Code             ErrorCode    `json:"code"`
	Message          string       `json:"message"`
	Type             ErrorType    `json:"type"`
	Severity         Severity     `json:"severity"`
	IsRetriable      bool         `json:"is_retriable"`
	SuggestedActions []string     `json:"suggested_actions,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
	Context          ErrorContext `json:"context"`
}
