package queue

import (
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

// Metrics is a point-in-time summary of queue state.
type Metrics struct {
	TotalJobs       int                      `json:"total_jobs"`
	ByStatus        map[domain.JobStatus]int `json:"by_status"`
	AvgProcessing   time.Duration            `json:"avg_processing"`
	AvgWait         time.Duration            `json:"avg_wait"`
	ThroughputPerHr int                      `json:"throughput_per_hour"`
	ErrorRate       float64                  `json:"error_rate"`
	Utilization     float64                  `json:"utilization"` // in-flight / max concurrent
	Paused          bool                     `json:"paused"`
}

// Snapshot of derived metrics. Averages are means over terminal jobs that
// carry both timestamps; throughput counts completions in the last hour.
func (q *JobQueue) Metrics() Metrics {
	q.mu.RLock()
	defer q.mu.RUnlock()

	m := Metrics{
		TotalJobs: len(q.jobs),
		ByStatus:  make(map[domain.JobStatus]int),
		Paused:    q.paused,
	}

	var procTotal, waitTotal time.Duration
	var procCount, waitCount int
	hourAgo := time.Now().Add(-time.Hour)

	for _, job := range q.jobs {
		m.ByStatus[job.Status]++

		if !job.Status.Terminal() {
			continue
		}
		if job.StartedAt != nil && job.CompletedAt != nil {
			procTotal += job.CompletedAt.Sub(*job.StartedAt)
			procCount++
		}
		if job.StartedAt != nil {
			waitTotal += job.StartedAt.Sub(job.CreatedAt)
			waitCount++
		}
		if job.Status == domain.JobStatusCompleted && job.CompletedAt != nil && job.CompletedAt.After(hourAgo) {
			m.ThroughputPerHr++
		}
	}

	if procCount > 0 {
		m.AvgProcessing = procTotal / time.Duration(procCount)
	}
	if waitCount > 0 {
		m.AvgWait = waitTotal / time.Duration(waitCount)
	}
	if m.TotalJobs > 0 {
		m.ErrorRate = float64(m.ByStatus[domain.JobStatusFailed]) / float64(m.TotalJobs)
	}
	if q.cfg.MaxConcurrentJobs > 0 {
		m.Utilization = float64(len(q.inFlight)) / float64(q.cfg.MaxConcurrentJobs)
	}
	return m
}
