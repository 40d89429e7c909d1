package queue

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/docforge/internal/core/domain"
)

// CreateBatch registers a named grouping over existing jobs. Every id must
// reference a known, non-terminal job.
func (q *JobQueue) CreateBatch(name string, jobIDs []string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(jobIDs) == 0 {
		return "", fmt.Errorf("batch %q has no jobs", name)
	}
	for _, id := range jobIDs {
		job, ok := q.jobs[id]
		if !ok {
			return "", fmt.Errorf("batch %q: %w: %s", name, domain.ErrJobNotFound, id)
		}
		if job.Status.Terminal() {
			return "", fmt.Errorf("batch %q: job %s is already %s", name, id, job.Status)
		}
	}

	now := time.Now()
	b := &domain.Batch{
		ID:        uuid.New().String(),
		Name:      name,
		JobIDs:    append([]string(nil), jobIDs...),
		Status:    domain.BatchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.refreshBatch(b)
	q.batches[b.ID] = b
	return b.ID, nil
}

// GetBatch returns a copy of the batch, or nil if unknown.
func (q *JobQueue) GetBatch(id string) *domain.Batch {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if b, ok := q.batches[id]; ok {
		return b.Clone()
	}
	return nil
}

// AllBatches returns copies of every batch.
func (q *JobQueue) AllBatches() []*domain.Batch {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*domain.Batch, 0, len(q.batches))
	for _, b := range q.batches {
		out = append(out, b.Clone())
	}
	return out
}

// RemoveBatch drops a batch record. Constituent jobs are untouched.
func (q *JobQueue) RemoveBatch(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.batches[id]; !ok {
		return false
	}
	delete(q.batches, id)
	return true
}

// recomputeBatchesFor refreshes every batch referencing the job and returns
// the events to emit once the lock is released. Caller holds the lock.
func (q *JobQueue) recomputeBatchesFor(jobID string) []domain.Event {
	var events []domain.Event
	for _, b := range q.batches {
		if !contains(b.JobIDs, jobID) {
			continue
		}
		prev := b.Status
		prevFailed := b.Progress.FailedJobs
		q.refreshBatch(b)
		if b.Status == domain.BatchStatusCompleted && prev != domain.BatchStatusCompleted {
			ev := domain.Event{Kind: domain.EventBatchCompleted, BatchID: b.ID, Timestamp: time.Now()}
			events = append(events, ev)
		}
		if failed, total := b.Progress.FailedJobs, b.Progress.TotalJobs; failed*2 > total && prevFailed*2 <= total {
			// Advisory only: suggest pausing a batch that is mostly failing.
			events = append(events, domain.Event{
				Kind:      domain.EventAlert,
				BatchID:   b.ID,
				Message:   fmt.Sprintf("batch %q: %d of %d jobs failed, consider pausing", b.Name, failed, total),
				Timestamp: time.Now(),
			})
		}
	}
	return events
}

// refreshBatch recomputes progress and derived status. Caller holds the lock.
func (q *JobQueue) refreshBatch(b *domain.Batch) {
	var completed, failed, processing int
	for _, id := range b.JobIDs {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		switch job.Status {
		case domain.JobStatusCompleted:
			completed++
		case domain.JobStatusFailed:
			failed++
		case domain.JobStatusProcessing:
			processing++
		}
	}

	total := len(b.JobIDs)
	b.Progress = domain.BatchProgress{
		TotalJobs:     total,
		CompletedJobs: completed,
		FailedJobs:    failed,
		Percentage:    int(math.Round(100 * float64(completed) / float64(total))),
	}

	switch {
	case completed == total:
		b.Status = domain.BatchStatusCompleted
	case failed == total:
		b.Status = domain.BatchStatusFailed
	case processing > 0:
		b.Status = domain.BatchStatusProcessing
	default:
		b.Status = domain.BatchStatusPending
	}
	b.UpdatedAt = time.Now()
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
