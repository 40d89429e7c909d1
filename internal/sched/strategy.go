package sched

import (
	"math"
	"sort"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

// Stats is the slice of queue metrics the strategies care about.
type Stats struct {
	ErrorRate   float64
	Utilization float64
	PendingJobs int
}

// Impact is a strategy's forecast for running a candidate batch.
type Impact struct {
	ThroughputScore float64       `json:"throughput_score"` // jobs per minute, estimated
	Utilization     float64       `json:"utilization"`      // 0..1 of the CPU budget
	ETA             time.Duration `json:"eta"`
	Bottlenecks     []string      `json:"bottlenecks,omitempty"`
}

// Strategy is a policy governing concurrency level and job-selection order.
type Strategy interface {
	Name() string

	// OptimalConcurrency computes how many jobs should run at once given the
	// current host snapshot and queue stats.
	OptimalConcurrency(res domain.HostResources, stats Stats) int

	// SelectBatch picks and orders the next jobs to dispatch, staying within
	// maxConcurrency and the strategy's memory budget.
	SelectBatch(pending []*domain.Job, maxConcurrency int, res domain.HostResources) []*domain.Job

	// CanAdmit gates a single job against current resources.
	CanAdmit(job *domain.Job, inFlight int, res domain.HostResources) bool

	// EstimateImpact forecasts throughput, utilization, and ETA for a batch.
	EstimateImpact(jobs []*domain.Job, res domain.HostResources) Impact
}

type ordering int

const (
	orderSmallestFirst ordering = iota
	orderRoundRobin
	orderLargestFirst
)

// nominalJobMemMB bounds concurrency when no per-job profile is available.
const nominalJobMemMB = 256

type tunables struct {
	name          string
	cpuBudget     float64 // fraction of cores
	memBudget     float64 // fraction of available memory
	oversubscribe float64 // cpu budget under light load, 0 = never oversubscribe
	loadSensitive bool    // adjust cpu budget with measured load
	reduceUnder   float64 // halve the budget above this cpu usage, 0 = off
	order         ordering
}

type strategy struct {
	t tunables
}

// Conservative runs well inside the host's capacity and prefers small files,
// trading throughput for stability.
func Conservative() Strategy {
	return &strategy{t: tunables{
		name:        "conservative",
		cpuBudget:   0.6,
		memBudget:   0.5,
		reduceUnder: 0.7,
		order:       orderSmallestFirst,
	}}
}

// Balanced targets three quarters of the host, adjusting with measured load,
// and round-robins across job types so no type starves.
func Balanced() Strategy {
	return &strategy{t: tunables{
		name:          "balanced",
		cpuBudget:     0.75,
		memBudget:     0.7,
		loadSensitive: true,
		order:         orderRoundRobin,
	}}
}

// Aggressive oversubscribes the CPU when the host is idle and front-loads
// large, high-priority files.
func Aggressive() Strategy {
	return &strategy{t: tunables{
		name:          "aggressive",
		cpuBudget:     0.9,
		memBudget:     0.8,
		oversubscribe: 1.2,
		order:         orderLargestFirst,
	}}
}

// ByName resolves a configured strategy name.
func ByName(name string) (Strategy, bool) {
	switch name {
	case "conservative":
		return Conservative(), true
	case "balanced", "":
		return Balanced(), true
	case "aggressive":
		return Aggressive(), true
	}
	return nil, false
}

func (s *strategy) Name() string { return s.t.name }

func (s *strategy) OptimalConcurrency(res domain.HostResources, stats Stats) int {
	cores := res.CPUCores
	if cores < 1 {
		cores = 1
	}

	budget := s.t.cpuBudget
	if s.t.oversubscribe > 0 && res.CPUUsage < 0.5 {
		budget = s.t.oversubscribe
	}
	if s.t.loadSensitive {
		// Scale the budget down as measured load climbs, up when idle.
		budget *= 1.25 - res.CPUUsage*0.5
	}
	if s.t.reduceUnder > 0 && res.CPUUsage > s.t.reduceUnder {
		budget /= 2
	}

	n := int(math.Floor(float64(cores) * budget))
	if s.t.oversubscribe > 0 && res.CPUUsage < 0.5 {
		n = int(math.Ceil(float64(cores) * budget))
	}

	if memBound := s.memoryBound(res); memBound < n {
		n = memBound
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (s *strategy) memoryBound(res domain.HostResources) int {
	usable := res.AvailableMemoryMB * s.t.memBudget
	if usable <= 0 {
		return 1
	}
	return int(usable / nominalJobMemMB)
}

func (s *strategy) SelectBatch(pending []*domain.Job, maxConcurrency int, res domain.HostResources) []*domain.Job {
	if maxConcurrency <= 0 || len(pending) == 0 {
		return nil
	}

	ordered := s.orderJobs(pending)
	memBudget := res.AvailableMemoryMB * s.t.memBudget

	var batch []*domain.Job
	var memUsed float64
	for _, job := range ordered {
		if len(batch) >= maxConcurrency {
			break
		}
		est := job.Profile.MemoryEstimateMB
		if est <= 0 {
			est = nominalJobMemMB
		}
		if memBudget > 0 && memUsed+est > memBudget && len(batch) > 0 {
			continue
		}
		memUsed += est
		batch = append(batch, job)
	}
	return batch
}

// orderJobs applies the strategy's heuristic. Priority always dominates;
// within a tier the heuristic decides, falling back to FIFO by creation.
func (s *strategy) orderJobs(pending []*domain.Job) []*domain.Job {
	out := append([]*domain.Job(nil), pending...)

	switch s.t.order {
	case orderSmallestFirst:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority > out[j].Priority
			}
			if out[i].FileSizeBytes != out[j].FileSizeBytes {
				return out[i].FileSizeBytes < out[j].FileSizeBytes
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})

	case orderLargestFirst:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority > out[j].Priority
			}
			if out[i].FileSizeBytes != out[j].FileSizeBytes {
				return out[i].FileSizeBytes > out[j].FileSizeBytes
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})

	case orderRoundRobin:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority > out[j].Priority
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
		out = roundRobinByType(out)
	}
	return out
}

// roundRobinByType interleaves jobs across types, preserving relative order
// within each type.
func roundRobinByType(jobs []*domain.Job) []*domain.Job {
	byType := make(map[domain.JobType][]*domain.Job)
	var types []domain.JobType
	for _, j := range jobs {
		if _, ok := byType[j.Type]; !ok {
			types = append(types, j.Type)
		}
		byType[j.Type] = append(byType[j.Type], j)
	}

	out := make([]*domain.Job, 0, len(jobs))
	for len(out) < len(jobs) {
		for _, t := range types {
			if q := byType[t]; len(q) > 0 {
				out = append(out, q[0])
				byType[t] = q[1:]
			}
		}
	}
	return out
}

func (s *strategy) CanAdmit(job *domain.Job, inFlight int, res domain.HostResources) bool {
	// CPU gate: never admit past the budget unless nothing is running.
	cpuCeiling := s.t.cpuBudget + 0.15
	if s.t.oversubscribe > 0 {
		cpuCeiling = 1.0
	}
	if res.CPUUsage > cpuCeiling && inFlight > 0 {
		return false
	}

	// Memory gate: the job's estimate must fit in the budgeted headroom.
	est := job.Profile.MemoryEstimateMB
	if est <= 0 {
		est = nominalJobMemMB
	}
	if budget := res.AvailableMemoryMB * s.t.memBudget; budget > 0 && est > budget {
		return false
	}
	return true
}

func (s *strategy) EstimateImpact(jobs []*domain.Job, res domain.HostResources) Impact {
	if len(jobs) == 0 {
		return Impact{}
	}

	cores := res.CPUCores
	if cores < 1 {
		cores = 1
	}

	var cpuSum, memSum, ioSum float64
	var totalWork time.Duration
	for _, j := range jobs {
		cpuSum += j.Profile.CPUIntensity
		memSum += j.Profile.MemoryEstimateMB
		ioSum += j.Profile.IOIntensity
		totalWork += j.Profile.EstimatedDuration
	}

	budgetCores := float64(cores) * s.t.cpuBudget
	util := cpuSum / budgetCores
	if util > 1 {
		util = 1
	}

	concurrency := float64(len(jobs))
	if concurrency > budgetCores {
		concurrency = budgetCores
	}
	if concurrency < 1 {
		concurrency = 1
	}
	eta := time.Duration(float64(totalWork) / concurrency)

	var throughput float64
	if totalWork > 0 {
		throughput = float64(len(jobs)) / (float64(totalWork) / concurrency / float64(time.Minute))
	}

	var bottlenecks []string
	if cpuSum > budgetCores {
		bottlenecks = append(bottlenecks, "cpu")
	}
	if budget := res.AvailableMemoryMB * s.t.memBudget; budget > 0 && memSum > budget {
		bottlenecks = append(bottlenecks, "memory")
	}
	if ioSum/float64(len(jobs)) > 0.7 {
		bottlenecks = append(bottlenecks, "io")
	}

	return Impact{
		ThroughputScore: throughput,
		Utilization:     util,
		ETA:             eta,
		Bottlenecks:     bottlenecks,
	}
}
