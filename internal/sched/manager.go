package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/metrics"
)

// Manager owns the active strategy and a cached host snapshot. The snapshot
// refreshes on a fixed interval so strategy decisions never block on the
// probe.
type Manager struct {
	mu        sync.RWMutex
	probe     ResourceProbe
	current   Strategy
	resources domain.HostResources
	auto      bool
}

// NewManager creates a manager with the named initial strategy.
func NewManager(probe ResourceProbe, initial string, auto bool) (*Manager, error) {
	strat, ok := ByName(initial)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", initial)
	}
	return &Manager{
		probe:     probe,
		current:   strat,
		resources: probe.Snapshot(),
		auto:      auto,
	}, nil
}

// Current returns the active strategy.
func (m *Manager) Current() Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Resources returns the cached host snapshot.
func (m *Manager) Resources() domain.HostResources {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resources
}

// Refresh re-reads the probe.
func (m *Manager) Refresh() {
	res := m.probe.Snapshot()
	m.mu.Lock()
	m.resources = res
	m.mu.Unlock()
}

// SetStrategy switches to the named strategy.
func (m *Manager) SetStrategy(name string) error {
	strat, ok := ByName(name)
	if !ok {
		return fmt.Errorf("unknown strategy %q", name)
	}
	m.mu.Lock()
	prev := m.current.Name()
	m.current = strat
	m.mu.Unlock()

	if prev != strat.Name() {
		metrics.StrategySwitchesTotal.WithLabelValues(strat.Name()).Inc()
		slog.Info("Strategy switched", "from", prev, "to", strat.Name())
	}
	return nil
}

// Optimize applies the auto-switch rules against the latest stats and
// returns the name of the strategy now active. Rules, in order:
//   - error rate above 15%: drop to conservative
//   - idle host (cpu<50%, mem<60%) and error rate below 5%: go aggressive
//   - stressed host (cpu>80% or mem>80%) while aggressive: fall back to balanced
func (m *Manager) Optimize(stats Stats) string {
	m.mu.RLock()
	res := m.resources
	name := m.current.Name()
	auto := m.auto
	m.mu.RUnlock()

	if !auto {
		return name
	}

	switch {
	case stats.ErrorRate > 0.15 && name != "conservative":
		_ = m.SetStrategy("conservative")
		return "conservative"

	case res.CPUUsage < 0.5 && res.MemoryUsage < 0.6 && stats.ErrorRate < 0.05 && name != "aggressive":
		_ = m.SetStrategy("aggressive")
		return "aggressive"

	case (res.CPUUsage > 0.8 || res.MemoryUsage > 0.8) && name == "aggressive":
		_ = m.SetStrategy("balanced")
		return "balanced"
	}
	return name
}

// Run refreshes the host snapshot on the given interval until the context
// ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh()
		}
	}
}
