package failure

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/metrics"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           // failures within the window that open the breaker
	Timeout          time.Duration // open → half-open after this
	HalfOpenMax      int           // probes admitted while half-open
}

// DefaultBreakerConfig returns the standard thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		HalfOpenMax:      3,
	}
}

type breakerPhase int

const (
	phaseClosed breakerPhase = iota
	phaseOpen
	phaseHalfOpen
)

// BreakerState is the externally visible state of one category's breaker.
type BreakerState struct {
	Category         string    `json:"category"`
	IsOpen           bool      `json:"is_open"`
	FailureCount     int       `json:"failure_count"`
	SuccessCount     int       `json:"success_count"`
	LastFailureTime  time.Time `json:"last_failure_time"`
	HalfOpenAttempts int       `json:"half_open_attempts"`
}

type breaker struct {
	phase            breakerPhase
	failureCount     int
	successCount     int
	lastFailure      time.Time
	openedAt         time.Time
	halfOpenAttempts int
}

// BreakerRegistry holds one circuit breaker per category. Categories are
// free-form strings; the orchestrator uses the job type, the file type, and
// "system".
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*breaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*breaker),
	}
}

// Categories returns the breaker keys checked for a job: its type, its file
// type, and the system-wide gate.
func Categories(job *domain.Job) []string {
	cats := []string{"type:" + string(job.Type)}
	if job.FileType != "" {
		cats = append(cats, "file:"+job.FileType)
	}
	return append(cats, "system")
}

func (r *BreakerRegistry) get(category string) *breaker {
	b, ok := r.breakers[category]
	if !ok {
		b = &breaker{}
		r.breakers[category] = b
	}
	return b
}

// CanProcess reports whether the category admits work right now. While open
// it returns a reason string; once the timeout elapses the breaker moves to
// half-open and admits a limited number of probes.
func (r *BreakerRegistry) CanProcess(category string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(category)
	switch b.phase {
	case phaseClosed:
		return true, ""

	case phaseOpen:
		if time.Since(b.openedAt) < r.cfg.Timeout {
			remaining := r.cfg.Timeout - time.Since(b.openedAt)
			return false, fmt.Sprintf("circuit breaker open for %q, retry in %s", category, remaining.Round(time.Second))
		}
		// Timeout elapsed with no intervening failure: probe.
		b.phase = phaseHalfOpen
		b.halfOpenAttempts = 0
		slog.Info("Circuit breaker half-open", "category", category)
		fallthrough

	case phaseHalfOpen:
		if b.halfOpenAttempts >= r.cfg.HalfOpenMax {
			return false, fmt.Sprintf("circuit breaker half-open for %q, probe quota used", category)
		}
		b.halfOpenAttempts++
		return true, ""
	}
	return true, ""
}

// CanProcessJob checks every category the job belongs to; the first open
// breaker blocks admission.
func (r *BreakerRegistry) CanProcessJob(job *domain.Job) (bool, string) {
	for _, cat := range Categories(job) {
		if ok, reason := r.CanProcess(cat); !ok {
			return false, reason
		}
	}
	return true, ""
}

// RecordFailure counts a failure against the category, opening the breaker
// once the threshold is reached within the observation window. A failure
// during half-open reopens immediately.
func (r *BreakerRegistry) RecordFailure(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(category)
	now := time.Now()

	// Failures outside the observation window don't accumulate.
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > r.cfg.Timeout {
		b.failureCount = 0
	}
	b.failureCount++
	b.lastFailure = now

	switch b.phase {
	case phaseHalfOpen:
		b.phase = phaseOpen
		b.openedAt = now
		metrics.BreakerOpen.WithLabelValues(category).Set(1)
		slog.Warn("Circuit breaker reopened", "category", category)

	case phaseClosed:
		if b.failureCount >= r.cfg.FailureThreshold {
			b.phase = phaseOpen
			b.openedAt = now
			metrics.BreakerOpen.WithLabelValues(category).Set(1)
			slog.Warn("Circuit breaker opened", "category", category, "failures", b.failureCount)
		}
	}
}

// RecordSuccess counts a success; during half-open one success closes the
// breaker.
func (r *BreakerRegistry) RecordSuccess(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(category)
	b.successCount++

	if b.phase == phaseHalfOpen {
		b.phase = phaseClosed
		b.failureCount = 0
		b.halfOpenAttempts = 0
		metrics.BreakerOpen.WithLabelValues(category).Set(0)
		slog.Info("Circuit breaker closed", "category", category)
	}
}

// RecordJobFailure updates every category the job belongs to.
func (r *BreakerRegistry) RecordJobFailure(job *domain.Job) {
	for _, cat := range Categories(job) {
		r.RecordFailure(cat)
	}
}

// RecordJobSuccess updates every category the job belongs to.
func (r *BreakerRegistry) RecordJobSuccess(job *domain.Job) {
	for _, cat := range Categories(job) {
		r.RecordSuccess(cat)
	}
}

// States returns a copy of every breaker's state, for the status endpoints.
func (r *BreakerRegistry) States() []BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BreakerState, 0, len(r.breakers))
	for cat, b := range r.breakers {
		out = append(out, BreakerState{
			Category:         cat,
			IsOpen:           b.phase == phaseOpen,
			FailureCount:     b.failureCount,
			SuccessCount:     b.successCount,
			LastFailureTime:  b.lastFailure,
			HalfOpenAttempts: b.halfOpenAttempts,
		})
	}
	return out
}
