package sched

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

// ResourceProbe supplies host capacity figures to the strategy layer.
type ResourceProbe interface {
	Snapshot() domain.HostResources
}

// HostProbe reads capacity from the running host: core count from the
// runtime, memory and load from /proc where available. On hosts without
// /proc it falls back to conservative fixed figures.
type HostProbe struct {
	fallbackMemMB float64
}

// NewHostProbe creates a probe with a fallback total-memory figure used when
// /proc/meminfo cannot be read.
func NewHostProbe() *HostProbe {
	return &HostProbe{fallbackMemMB: 4096}
}

func (p *HostProbe) Snapshot() domain.HostResources {
	res := domain.HostResources{
		CPUCores:  runtime.NumCPU(),
		SampledAt: time.Now(),
	}

	total, avail, ok := readMeminfo()
	if !ok {
		total = p.fallbackMemMB
		avail = p.fallbackMemMB / 2
	}
	res.TotalMemoryMB = total
	res.AvailableMemoryMB = avail
	if total > 0 {
		res.MemoryUsage = 1 - avail/total
	}

	// Approximate CPU usage from the 1-minute load average.
	if load, ok := readLoadavg(); ok && res.CPUCores > 0 {
		usage := load / float64(res.CPUCores)
		if usage > 1 {
			usage = 1
		}
		res.CPUUsage = usage
	}
	return res
}

// readMeminfo returns total and available memory in MB.
func readMeminfo() (totalMB, availMB float64, ok bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalMB = kb / 1024
		case "MemAvailable:":
			availMB = kb / 1024
		}
	}
	return totalMB, availMB, totalMB > 0 && availMB > 0
}

func readLoadavg() (float64, bool) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return load, true
}

// FakeProbe returns a fixed snapshot, for tests.
type FakeProbe struct {
	mu  sync.Mutex
	Res domain.HostResources
}

// NewFakeProbe creates a deterministic probe.
func NewFakeProbe(res domain.HostResources) *FakeProbe {
	return &FakeProbe{Res: res}
}

func (p *FakeProbe) Snapshot() domain.HostResources {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.Res
	res.SampledAt = time.Now()
	return res
}

// Set replaces the fixed snapshot.
func (p *FakeProbe) Set(res domain.HostResources) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Res = res
}
