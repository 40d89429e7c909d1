package recovery

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/metrics"
)

// Config bounds the recovery chain per job.
type Config struct {
	HistoryLimit        int // attempt records kept per job
	AttemptsPerStrategy int // per-job cap for each strategy
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{HistoryLimit: 20, AttemptsPerStrategy: 3}
}

// Attempt is one recovery decision recorded against a job.
type Attempt struct {
	Strategy  string           `json:"strategy"`
	Action    Action           `json:"action"`
	ErrorCode domain.ErrorCode `json:"error_code"`
	Timestamp time.Time        `json:"timestamp"`
}

// Manager walks the strategy chain for every classified failure and keeps
// per-job attempt bookkeeping.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	strategies []Strategy
	attempts   map[string]map[string]int // job id → strategy name → uses
	history    map[string][]Attempt
}

// NewManager creates a manager over the given strategies, sorted by
// descending priority. Nil strategies means the default chain.
func NewManager(cfg Config, strategies []Strategy) *Manager {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.AttemptsPerStrategy <= 0 {
		cfg.AttemptsPerStrategy = 3
	}
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	sorted := append([]Strategy(nil), strategies...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Manager{
		cfg:        cfg,
		strategies: sorted,
		attempts:   make(map[string]map[string]int),
		history:    make(map[string][]Attempt),
	}
}

// AttemptRecovery returns the first applicable strategy's decision. When
// every strategy is exhausted the result is an escalation and the job is
// flagged for operator intervention by the caller.
func (m *Manager) AttemptRecovery(rec *domain.ErrorRecord, job *domain.Job) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.strategies {
		if !s.CanHandle(rec, job) {
			continue
		}
		if m.uses(job.ID, s.Name()) >= m.cfg.AttemptsPerStrategy {
			continue
		}

		result := s.Recover(rec, job)
		m.record(job.ID, s.Name(), result.Action, rec.Code)
		metrics.RecoveriesTotal.WithLabelValues(s.Name(), string(result.Action)).Inc()
		slog.Info("Recovery strategy selected",
			"job", job.ID, "strategy", s.Name(), "action", result.Action, "code", rec.Code)
		return result
	}

	m.record(job.ID, "none", ActionEscalate, rec.Code)
	metrics.RecoveriesTotal.WithLabelValues("none", string(ActionEscalate)).Inc()
	return Result{
		Strategy: "none",
		Action:   ActionEscalate,
		Message:  "all recovery strategies exhausted, operator intervention required",
	}
}

func (m *Manager) uses(jobID, strategy string) int {
	if byStrategy, ok := m.attempts[jobID]; ok {
		return byStrategy[strategy]
	}
	return 0
}

func (m *Manager) record(jobID, strategy string, action Action, code domain.ErrorCode) {
	byStrategy, ok := m.attempts[jobID]
	if !ok {
		byStrategy = make(map[string]int)
		m.attempts[jobID] = byStrategy
	}
	byStrategy[strategy]++

	h := append(m.history[jobID], Attempt{
		Strategy:  strategy,
		Action:    action,
		ErrorCode: code,
		Timestamp: time.Now(),
	})
	if len(h) > m.cfg.HistoryLimit {
		h = h[len(h)-m.cfg.HistoryLimit:]
	}
	m.history[jobID] = h
}

// History returns the recorded attempts for a job, oldest first.
func (m *Manager) History(jobID string) []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attempt(nil), m.history[jobID]...)
}

// Forget drops bookkeeping for a job, called when it completes or is purged.
func (m *Manager) Forget(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, jobID)
	delete(m.history, jobID)
}
