package failure

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

const (
	recurringWindow    = time.Hour
	recurringThreshold = 3 // more than this within the window is recurring
	escalateEvery      = 5 // every Nth recurrence raises an alert
)

// Pattern tracks repeated occurrences of one (code, type) failure.
type Pattern struct {
	Code           domain.ErrorCode `json:"code"`
	Type           domain.ErrorType `json:"type"`
	Frequency      int              `json:"frequency"`
	LastOccurrence time.Time        `json:"last_occurrence"`
	AffectedJobs   []string         `json:"affected_jobs"`
	IsRecurring    bool             `json:"is_recurring"`

	windowStart time.Time
}

// PatternTracker groups classified errors by (code, type) and flags
// recurring ones.
type PatternTracker struct {
	mu       sync.Mutex
	patterns map[string]*Pattern
}

// NewPatternTracker creates an empty tracker.
func NewPatternTracker() *PatternTracker {
	return &PatternTracker{patterns: make(map[string]*Pattern)}
}

func patternKey(rec *domain.ErrorRecord) string {
	return fmt.Sprintf("%s/%s", rec.Code, rec.Type)
}

// Record counts an occurrence. It returns whether the pattern is now
// recurring and whether this occurrence should raise an escalation alert.
func (t *PatternTracker) Record(rec *domain.ErrorRecord) (recurring, escalate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	key := patternKey(rec)
	p, ok := t.patterns[key]
	if !ok {
		p = &Pattern{Code: rec.Code, Type: rec.Type, windowStart: now}
		t.patterns[key] = p
	}

	// Occurrences outside the window start a fresh count.
	if now.Sub(p.windowStart) > recurringWindow {
		p.Frequency = 0
		p.windowStart = now
		p.IsRecurring = false
	}

	p.Frequency++
	p.LastOccurrence = now
	if rec.Context.JobID != "" {
		p.AffectedJobs = append(p.AffectedJobs, rec.Context.JobID)
	}

	p.IsRecurring = p.Frequency > recurringThreshold
	escalate = p.IsRecurring && p.Frequency%escalateEvery == 0
	return p.IsRecurring, escalate
}

// Patterns returns a copy of every tracked pattern.
func (t *PatternTracker) Patterns() []Pattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Pattern, 0, len(t.patterns))
	for _, p := range t.patterns {
		c := *p
		c.AffectedJobs = append([]string(nil), p.AffectedJobs...)
		out = append(out, c)
	}
	return out
}
