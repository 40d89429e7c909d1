package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/metrics"
)

// Snapshot is the serialized interchange form of the queue.
type Snapshot struct {
	ExportedAt time.Time       `json:"exported_at"`
	Config     Config          `json:"config"`
	Jobs       []*domain.Job   `json:"jobs"`
	Batches    []*domain.Batch `json:"batches"`
}

// Export captures jobs, batches, and configuration.
func (q *JobQueue) Export() *Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	snap := &Snapshot{
		ExportedAt: time.Now(),
		Config:     q.cfg,
		Jobs:       make([]*domain.Job, 0, len(q.jobs)),
		Batches:    make([]*domain.Batch, 0, len(q.batches)),
	}
	for _, job := range q.jobs {
		snap.Jobs = append(snap.Jobs, job.Clone())
	}
	for _, b := range q.batches {
		snap.Batches = append(snap.Batches, b.Clone())
	}
	return snap
}

// Import replaces the queue's contents with the snapshot. The in-flight set
// is rebuilt from jobs that were processing at export time; their handlers
// are gone, so the orchestrator re-dispatches them as pending.
func (q *JobQueue) Import(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	for _, job := range snap.Jobs {
		if job.ID == "" {
			return fmt.Errorf("snapshot contains a job without an id")
		}
	}
	for _, b := range snap.Batches {
		if b.ID == "" {
			return fmt.Errorf("snapshot contains a batch without an id")
		}
		if len(b.JobIDs) == 0 {
			return fmt.Errorf("snapshot batch %q has no jobs", b.ID)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if snap.Config.MaxQueueSize > 0 {
		q.cfg = snap.Config
	}
	q.jobs = make(map[string]*domain.Job, len(snap.Jobs))
	q.batches = make(map[string]*domain.Batch, len(snap.Batches))
	q.inFlight = make(map[string]struct{})

	for _, job := range snap.Jobs {
		c := job.Clone()
		if c.Status == domain.JobStatusProcessing {
			c.Status = domain.JobStatusPending
			c.StartedAt = nil
			c.Progress = domain.Progress{Percentage: 0, Stage: "queued"}
		}
		q.jobs[c.ID] = c
	}
	for _, b := range snap.Batches {
		c := b.Clone()
		q.refreshBatch(c)
		q.batches[c.ID] = c
	}

	if q.concurrencyLimit > q.cfg.MaxConcurrentJobs {
		q.concurrencyLimit = q.cfg.MaxConcurrentJobs
	}
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	metrics.JobsInFlight.Set(0)
	return nil
}

// MarshalSnapshot renders a snapshot as JSON.
func MarshalSnapshot(snap *Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// UnmarshalSnapshot parses a JSON snapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}
