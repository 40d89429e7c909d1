package sched

import (
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

// typeCost holds the per-type baselines the estimator scales from.
type typeCost struct {
	cpuIntensity float64
	ioIntensity  float64
	memPerMB     float64       // estimated MB of memory per MB of input
	memFloorMB   float64       // minimum working set regardless of input size
	baseDuration time.Duration // for a 1 MB input
	perMB        time.Duration // added per MB of input
}

var typeCosts = map[domain.JobType]typeCost{
	domain.JobTypeParse:    {cpuIntensity: 0.6, ioIntensity: 0.7, memPerMB: 3.0, memFloorMB: 64, baseDuration: 2 * time.Second, perMB: 400 * time.Millisecond},
	domain.JobTypeAnalyze:  {cpuIntensity: 0.9, ioIntensity: 0.3, memPerMB: 4.0, memFloorMB: 128, baseDuration: 5 * time.Second, perMB: 900 * time.Millisecond},
	domain.JobTypeValidate: {cpuIntensity: 0.4, ioIntensity: 0.5, memPerMB: 2.0, memFloorMB: 48, baseDuration: 1 * time.Second, perMB: 200 * time.Millisecond},
	domain.JobTypeExport:   {cpuIntensity: 0.3, ioIntensity: 0.9, memPerMB: 2.5, memFloorMB: 64, baseDuration: 2 * time.Second, perMB: 300 * time.Millisecond},
}

// priorityMultiplier shortens the estimated duration for higher priorities.
// This reflects preferential scheduling, not an actual speed-up.
func priorityMultiplier(p domain.Priority) float64 {
	switch p {
	case domain.PriorityCritical:
		return 0.6
	case domain.PriorityUrgent:
		return 0.7
	case domain.PriorityHigh:
		return 0.85
	case domain.PriorityLow:
		return 1.2
	default:
		return 1.0
	}
}

// Estimator derives a resource profile from a job's type, size, and priority.
type Estimator struct{}

// NewEstimator creates an estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the expected cost of running the job.
func (e *Estimator) Estimate(jobType domain.JobType, fileSizeBytes int64, priority domain.Priority) domain.ResourceProfile {
	cost, ok := typeCosts[jobType]
	if !ok {
		cost = typeCosts[domain.JobTypeParse]
	}

	sizeMB := float64(fileSizeBytes) / (1024 * 1024)
	if sizeMB < 0 {
		sizeMB = 0
	}

	mem := cost.memFloorMB + sizeMB*cost.memPerMB
	dur := cost.baseDuration + time.Duration(sizeMB*float64(cost.perMB))
	dur = time.Duration(float64(dur) * priorityMultiplier(priority))

	return domain.ResourceProfile{
		CPUIntensity:      cost.cpuIntensity,
		MemoryEstimateMB:  mem,
		IOIntensity:       cost.ioIntensity,
		EstimatedDuration: dur,
	}
}
