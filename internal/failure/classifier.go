package failure

import (
	"strings"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/metrics"
)

// rule maps trigger substrings to a taxonomy entry. Rules are scanned
// top-to-bottom and the first match wins, so order is part of the contract.
type rule struct {
	code        domain.ErrorCode
	substrings  []string
	errType     domain.ErrorType
	severity    domain.Severity
	isRetriable bool
	actions     []string
}

var rules = []rule{
	{
		code:        domain.CodeMemoryExhaustion,
		substrings:  []string{"out of memory", "heap overflow", "cannot allocate"},
		errType:     domain.ErrorTypeSystem,
		severity:    domain.SeverityCritical,
		isRetriable: false,
		actions:     []string{"reduce concurrency", "split the input file", "lower job priority"},
	},
	{
		code:        domain.CodeFileCorruption,
		substrings:  []string{"invalid xml", "malformed", "unexpected end of file", "corrupt"},
		errType:     domain.ErrorTypeValidation,
		severity:    domain.SeverityHigh,
		isRetriable: false,
		actions:     []string{"re-export the source file", "try a fallback parser"},
	},
	{
		code:        domain.CodeNetworkTimeout,
		substrings:  []string{"timeout", "connection refused", "connection reset"},
		errType:     domain.ErrorTypeSystem,
		severity:    domain.SeverityMedium,
		isRetriable: true,
		actions:     []string{"retry with backoff", "check network connectivity"},
	},
	{
		code:        domain.CodeParserError,
		substrings:  []string{"parse error", "schema validation", "unexpected token"},
		errType:     domain.ErrorTypeParsing,
		severity:    domain.SeverityMedium,
		isRetriable: false,
		actions:     []string{"try a fallback parser", "disable strict validation"},
	},
	{
		code:        domain.CodeQuotaExceeded,
		substrings:  []string{"quota exceeded", "rate limit", "too many requests"},
		errType:     domain.ErrorTypeSystem,
		severity:    domain.SeverityMedium,
		isRetriable: true,
		actions:     []string{"retry with backoff", "reduce submission rate"},
	},
	{
		code:        domain.CodePermissionDenied,
		substrings:  []string{"permission denied", "unauthorized", "forbidden"},
		errType:     domain.ErrorTypeSystem,
		severity:    domain.SeverityHigh,
		isRetriable: false,
		actions:     []string{"check credentials", "verify file permissions"},
	},
}

// unknownRule catches everything that matched nothing above.
var unknownRule = rule{
	code:        domain.CodeUnknown,
	errType:     domain.ErrorTypeSystem,
	severity:    domain.SeverityMedium,
	isRetriable: true,
	actions:     []string{"retry once", "inspect the handler logs"},
}

// Classify maps a raw handler failure to a taxonomy entry, stamping in the
// job context.
func Classify(err error, job *domain.Job) *domain.ErrorRecord {
	msg := err.Error()
	matched := unknownRule

	lower := strings.ToLower(msg)
	for _, r := range rules {
		if matches(lower, r.substrings) {
			matched = r
			break
		}
	}

	rec := &domain.ErrorRecord{
		Code:             matched.code,
		Message:          msg,
		Type:             matched.errType,
		Severity:         matched.severity,
		IsRetriable:      matched.isRetriable,
		SuggestedActions: matched.actions,
		Timestamp:        time.Now(),
	}
	if job != nil {
		rec.Context = domain.ErrorContext{
			JobID:         job.ID,
			JobType:       job.Type,
			FileName:      job.FileName,
			FileType:      job.FileType,
			FileSizeBytes: job.FileSizeBytes,
			RetryAttempt:  job.RetryAttempt,
		}
	}

	metrics.ErrorsClassifiedTotal.WithLabelValues(string(rec.Code), string(rec.Type)).Inc()
	return rec
}

func matches(lowerMsg string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(lowerMsg, s) {
			return true
		}
	}
	return false
}
