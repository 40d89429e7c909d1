package recovery

import (
	"fmt"
	"math"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

// Action is the disposition a recovery strategy decides for a failed job.
type Action string

const (
	// ActionRequeue bounces the job back to pending, optionally after Delay.
	ActionRequeue Action = "requeue"
	// ActionSkip cancels the job with an explanatory message.
	ActionSkip Action = "skip"
	// ActionEscalate leaves the job failed and raises an alert.
	ActionEscalate Action = "escalate"
)

// Result is what the orchestrator executes after a recovery decision.
type Result struct {
	Strategy string
	Action   Action
	Delay    time.Duration
	Message  string
	// Adjust is applied to the stored job before requeueing (priority drops,
	// lenient-mode flags, parser switches).
	Adjust func(*domain.Job)
}

// Strategy decides how to respond to one class of classified failure.
// Strategies are tried in descending Priority order.
type Strategy interface {
	Name() string
	Priority() int
	CanHandle(rec *domain.ErrorRecord, job *domain.Job) bool
	Recover(rec *domain.ErrorRecord, job *domain.Job) Result
}

// memoryRecovery relieves memory pressure: wait for reclaim, then run the
// job again at a lower priority.
type memoryRecovery struct{}

func (memoryRecovery) Name() string  { return "memory_recovery" }
func (memoryRecovery) Priority() int { return 9 }

func (memoryRecovery) CanHandle(rec *domain.ErrorRecord, _ *domain.Job) bool {
	return rec.Code == domain.CodeMemoryExhaustion
}

func (memoryRecovery) Recover(_ *domain.ErrorRecord, _ *domain.Job) Result {
	return Result{
		Strategy: "memory_recovery",
		Action:   ActionRequeue,
		Delay:    30 * time.Second,
		Message:  "waiting for memory reclaim before rerun",
		Adjust: func(j *domain.Job) {
			if j.Priority > domain.PriorityLow {
				j.Priority--
			}
			setFlag(j, "memory_reclaim", "requested")
		},
	}
}

// backoffRetry retries transient failures with exponential backoff:
// min(1s * 2^attempt, 30s).
type backoffRetry struct{}

func (backoffRetry) Name() string  { return "exponential_backoff" }
func (backoffRetry) Priority() int { return 8 }

func (backoffRetry) CanHandle(rec *domain.ErrorRecord, _ *domain.Job) bool {
	if !rec.IsRetriable {
		return false
	}
	return rec.Code == domain.CodeNetworkTimeout || rec.Code == domain.CodeQuotaExceeded
}

func (backoffRetry) Recover(_ *domain.ErrorRecord, job *domain.Job) Result {
	delayMs := math.Min(1000*math.Pow(2, float64(job.RetryAttempt)), 30000)
	delay := time.Duration(delayMs) * time.Millisecond
	return Result{
		Strategy: "exponential_backoff",
		Action:   ActionRequeue,
		Delay:    delay,
		Message:  fmt.Sprintf("retrying after %s backoff", delay),
	}
}

// fallbackParser switches a job that broke the primary parser to the
// next-best format handler with strict validation off.
type fallbackParser struct{}

func (fallbackParser) Name() string  { return "fallback_parser" }
func (fallbackParser) Priority() int { return 7 }

func (fallbackParser) CanHandle(rec *domain.ErrorRecord, job *domain.Job) bool {
	if rec.Code != domain.CodeParserError && rec.Code != domain.CodeFileCorruption {
		return false
	}
	// Already on the fallback parser: nothing left to switch to.
	return job.Metadata["parser"] != "fallback"
}

func (fallbackParser) Recover(_ *domain.ErrorRecord, _ *domain.Job) Result {
	return Result{
		Strategy: "fallback_parser",
		Action:   ActionRequeue,
		Message:  "switching to fallback parser with strict validation disabled",
		Adjust: func(j *domain.Job) {
			setFlag(j, "parser", "fallback")
			setFlag(j, "strict_validation", "disabled")
		},
	}
}

// lenientProcessing disables schema and content validation for one more run.
type lenientProcessing struct{}

func (lenientProcessing) Name() string  { return "lenient_processing" }
func (lenientProcessing) Priority() int { return 6 }

func (lenientProcessing) CanHandle(rec *domain.ErrorRecord, job *domain.Job) bool {
	applicable := rec.Code == domain.CodeParserError ||
		rec.Code == domain.CodeFileCorruption ||
		rec.Type == domain.ErrorTypeValidation
	if !applicable {
		return false
	}
	// Lenient mode is a single extra chance.
	return job.Metadata["lenient"] != "true"
}

func (lenientProcessing) Recover(_ *domain.ErrorRecord, _ *domain.Job) Result {
	return Result{
		Strategy: "lenient_processing",
		Action:   ActionRequeue,
		Message:  "retrying once with validation disabled",
		Adjust: func(j *domain.Job) {
			setFlag(j, "lenient", "true")
			setFlag(j, "skip_schema_validation", "true")
			setFlag(j, "skip_content_validation", "true")
		},
	}
}

// skipJob is the last resort: cancel the job with an explanation.
type skipJob struct{}

func (skipJob) Name() string  { return "skip_job" }
func (skipJob) Priority() int { return 1 }

func (skipJob) CanHandle(_ *domain.ErrorRecord, _ *domain.Job) bool { return true }

func (skipJob) Recover(rec *domain.ErrorRecord, _ *domain.Job) Result {
	return Result{
		Strategy: "skip_job",
		Action:   ActionSkip,
		Message:  fmt.Sprintf("skipped after unrecoverable %s: %s", rec.Code, rec.Message),
	}
}

func setFlag(j *domain.Job, key, value string) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]string)
	}
	j.Metadata[key] = value
}

// DefaultStrategies returns the built-in chain, highest priority first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		memoryRecovery{},
		backoffRetry{},
		fallbackParser{},
		lenientProcessing{},
		skipJob{},
	}
}
