package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/metrics"
)

// Config holds the queue settings carried in snapshots.
type Config struct {
	MaxQueueSize      int           `json:"max_queue_size"`
	MaxConcurrentJobs int           `json:"max_concurrent_jobs"`
	DefaultMaxRetries int           `json:"default_max_retries"`
	RetentionPeriod   time.Duration `json:"retention_period"`
	DefaultJobTimeout time.Duration `json:"default_job_timeout"`
}

// Notifier receives every event the queue emits. The orchestrator installs
// its dispatcher here; a nil notifier drops events.
type Notifier func(domain.Event)

// JobSpec describes a job to be enqueued.
type JobSpec struct {
	Type             domain.JobType         `json:"type"`
	Priority         domain.Priority        `json:"priority"`
	FileName         string                 `json:"file_name"`
	FileType         string                 `json:"file_type"`
	FileSizeBytes    int64                  `json:"file_size_bytes"`
	MaxRetryAttempts int                    `json:"max_retry_attempts,omitempty"`
	DependsOn        []string               `json:"depends_on,omitempty"`
	Metadata         map[string]string      `json:"metadata,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	Profile          domain.ResourceProfile `json:"profile,omitempty"`
}

// JobQueue owns job and batch records, their state transitions, and the
// derived metrics. All mutation happens under one mutex; events are emitted
// after the lock is released so listeners may call back into the queue.
type JobQueue struct {
	mu       sync.RWMutex
	cfg      Config
	jobs     map[string]*domain.Job
	batches  map[string]*domain.Batch
	inFlight map[string]struct{}
	paused   bool

	// Strategy-selected ceiling, never above cfg.MaxConcurrentJobs.
	concurrencyLimit int

	notify Notifier
}

// New creates an empty queue.
func New(cfg Config) *JobQueue {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1000
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 8
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = 3
	}
	return &JobQueue{
		cfg:              cfg,
		jobs:             make(map[string]*domain.Job),
		batches:          make(map[string]*domain.Batch),
		inFlight:         make(map[string]struct{}),
		concurrencyLimit: cfg.MaxConcurrentJobs,
	}
}

// SetNotifier installs the event sink. Must be called before processing
// starts; the queue never synchronizes around it afterwards.
func (q *JobQueue) SetNotifier(n Notifier) {
	q.notify = n
}

func (q *JobQueue) emit(events ...domain.Event) {
	if q.notify == nil {
		return
	}
	for _, ev := range events {
		q.notify(ev)
	}
}

func event(kind domain.EventKind, jobID string) domain.Event {
	return domain.Event{Kind: kind, JobID: jobID, Timestamp: time.Now()}
}

// Add enqueues one job. Returns domain.ErrQueueFull when the queue is at
// capacity.
func (q *JobQueue) Add(spec JobSpec) (string, error) {
	q.mu.Lock()
	if len(q.jobs) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		q.emit(event(domain.EventQueueFull, ""))
		return "", domain.ErrQueueFull
	}
	job := q.buildJob(spec)
	q.jobs[job.ID] = job
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	q.mu.Unlock()

	q.emit(event(domain.EventJobAdded, job.ID))
	return job.ID, nil
}

// AddBatch enqueues jobs until capacity is exhausted, stopping early without
// error. Returns the ids actually enqueued.
func (q *JobQueue) AddBatch(specs []JobSpec) []string {
	ids := make([]string, 0, len(specs))
	var events []domain.Event

	q.mu.Lock()
	for _, spec := range specs {
		if len(q.jobs) >= q.cfg.MaxQueueSize {
			events = append(events, event(domain.EventQueueFull, ""))
			break
		}
		job := q.buildJob(spec)
		q.jobs[job.ID] = job
		ids = append(ids, job.ID)
		events = append(events, event(domain.EventJobAdded, job.ID))
	}
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	q.mu.Unlock()

	q.emit(events...)
	return ids
}

func (q *JobQueue) buildJob(spec JobSpec) *domain.Job {
	now := time.Now()
	maxRetries := spec.MaxRetryAttempts
	if maxRetries <= 0 {
		maxRetries = q.cfg.DefaultMaxRetries
	}
	return &domain.Job{
		ID:               uuid.New().String(),
		Type:             spec.Type,
		Status:           domain.JobStatusPending,
		Priority:         spec.Priority,
		FileName:         spec.FileName,
		FileType:         spec.FileType,
		FileSizeBytes:    spec.FileSizeBytes,
		Profile:          spec.Profile,
		Progress:         domain.Progress{Percentage: 0, Stage: "queued"},
		CreatedAt:        now,
		UpdatedAt:        now,
		MaxRetryAttempts: maxRetries,
		DependsOn:        append([]string(nil), spec.DependsOn...),
		Metadata:         spec.Metadata,
		Tags:             append([]string(nil), spec.Tags...),
	}
}

// Get returns a copy of the job, or nil if unknown.
func (q *JobQueue) Get(id string) *domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if job, ok := q.jobs[id]; ok {
		return job.Clone()
	}
	return nil
}

// List returns copies of all jobs matching the filter, newest first.
func (q *JobQueue) List(filter *domain.JobFilter) []*domain.Job {
	q.mu.RLock()
	out := make([]*domain.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if filter == nil || filter.Matches(job) {
			out = append(out, job.Clone())
		}
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel marks the job cancelled and removes it from the in-flight set.
// Returns false if the job is unknown or already terminal. Cancellation is
// cooperative: a handler already running is not interrupted.
func (q *JobQueue) Cancel(id string) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status.Terminal() {
		q.mu.Unlock()
		return false
	}
	q.setStatus(job, domain.JobStatusCancelled)
	delete(q.inFlight, id)
	events := q.recomputeBatchesFor(id)
	q.mu.Unlock()

	q.emit(append([]domain.Event{event(domain.EventJobCancelled, id)}, events...)...)
	return true
}

// Retry bounces a failed job back to pending with retryAttempt+1. Returns
// false unless the job is failed and under its retry cap.
func (q *JobQueue) Retry(id string) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusFailed || job.RetryAttempt >= job.MaxRetryAttempts {
		q.mu.Unlock()
		return false
	}
	job.RetryAttempt++
	job.Error = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.Progress = domain.Progress{Percentage: 0, Stage: "queued"}
	q.setStatus(job, domain.JobStatusPending)
	attempt := job.RetryAttempt
	events := q.recomputeBatchesFor(id)
	q.mu.Unlock()

	ev := event(domain.EventJobRetry, id)
	ev.Attempt = attempt
	q.emit(append([]domain.Event{ev}, events...)...)
	metrics.JobRetriesTotal.Inc()
	return true
}

// NextJob returns a copy of the next schedulable job: highest priority,
// earliest created, with every dependency completed. Nil when the queue is
// paused, the concurrency ceiling is reached, or nothing qualifies.
func (q *JobQueue) NextJob() *domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.paused || len(q.inFlight) >= q.concurrencyLimit {
		return nil
	}
	var best *domain.Job
	for _, job := range q.jobs {
		if job.Status != domain.JobStatusPending || !q.depsCompleted(job) {
			continue
		}
		if best == nil || less(job, best) {
			best = job
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

// less orders jobs for dispatch: priority descending, then FIFO by creation.
func less(a, b *domain.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// PendingJobs returns copies of schedulable pending jobs in dispatch order.
func (q *JobQueue) PendingJobs() []*domain.Job {
	q.mu.RLock()
	out := make([]*domain.Job, 0)
	for _, job := range q.jobs {
		if job.Status == domain.JobStatusPending && q.depsCompleted(job) {
			out = append(out, job.Clone())
		}
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// CanSchedule reports whether every dependency of the job is completed.
func (q *JobQueue) CanSchedule(job *domain.Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.depsCompleted(job)
}

func (q *JobQueue) depsCompleted(job *domain.Job) bool {
	for _, dep := range job.DependsOn {
		d, ok := q.jobs[dep]
		if !ok || d.Status != domain.JobStatusCompleted {
			return false
		}
	}
	return true
}

// MarkProcessing transitions pending → processing and records the job in the
// in-flight set. Returns false if the job is not pending or already in
// flight, preventing double dispatch.
func (q *JobQueue) MarkProcessing(id string) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusPending {
		q.mu.Unlock()
		return false
	}
	if _, dup := q.inFlight[id]; dup {
		q.mu.Unlock()
		return false
	}
	if len(q.inFlight) >= q.concurrencyLimit {
		q.mu.Unlock()
		return false
	}
	now := time.Now()
	job.StartedAt = &now
	job.Progress = domain.Progress{Percentage: 0, Stage: "processing"}
	q.setStatus(job, domain.JobStatusProcessing)
	q.inFlight[id] = struct{}{}
	metrics.JobsInFlight.Set(float64(len(q.inFlight)))
	events := q.recomputeBatchesFor(id)
	q.mu.Unlock()

	q.emit(append([]domain.Event{event(domain.EventJobStarted, id)}, events...)...)
	return true
}

// MarkCompleted records a successful handler outcome.
func (q *JobQueue) MarkCompleted(id string, result any) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		q.mu.Unlock()
		return false
	}
	now := time.Now()
	job.CompletedAt = &now
	job.Result = result
	job.Progress = domain.Progress{Percentage: 100, Stage: "done"}
	q.setStatus(job, domain.JobStatusCompleted)
	delete(q.inFlight, id)
	metrics.JobsInFlight.Set(float64(len(q.inFlight)))
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Type), "completed").Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(now.Sub(*job.StartedAt).Seconds())
	}
	events := q.recomputeBatchesFor(id)
	empty := !q.hasActive()
	q.mu.Unlock()

	ev := event(domain.EventJobCompleted, id)
	ev.Result = result
	all := append([]domain.Event{ev}, events...)
	if empty {
		all = append(all, event(domain.EventQueueEmpty, ""))
	}
	q.emit(all...)
	return true
}

// MarkFailed records a classified handler failure.
func (q *JobQueue) MarkFailed(id string, rec *domain.ErrorRecord) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		q.mu.Unlock()
		return false
	}
	now := time.Now()
	job.CompletedAt = &now
	job.Error = rec
	q.setStatus(job, domain.JobStatusFailed)
	delete(q.inFlight, id)
	metrics.JobsInFlight.Set(float64(len(q.inFlight)))
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Type), "failed").Inc()
	events := q.recomputeBatchesFor(id)
	q.mu.Unlock()

	ev := event(domain.EventJobFailed, id)
	ev.Error = rec
	q.emit(append([]domain.Event{ev}, events...)...)
	return true
}

// UpdateProgress updates a processing job's progress and notifies listeners.
func (q *JobQueue) UpdateProgress(id string, p domain.Progress) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		q.mu.Unlock()
		return false
	}
	job.Progress = p
	job.UpdatedAt = time.Now()
	q.mu.Unlock()

	ev := event(domain.EventJobProgress, id)
	ev.Progress = &p
	q.emit(ev)
	return true
}

// Update applies fn to the stored job under the lock. Used by recovery to
// adjust priority, metadata, or retry bookkeeping in one step.
func (q *JobQueue) Update(id string, fn func(*domain.Job)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return true
}

// Requeue bounces a failed job back to pending on behalf of the recovery
// chain. Unlike Retry it ignores the caller-facing retry cap; the recovery
// manager enforces its own attempt limits.
func (q *JobQueue) Requeue(id string) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusFailed {
		q.mu.Unlock()
		return false
	}
	job.RetryAttempt++
	job.Error = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.Progress = domain.Progress{Percentage: 0, Stage: "queued"}
	q.setStatus(job, domain.JobStatusPending)
	attempt := job.RetryAttempt
	events := q.recomputeBatchesFor(id)
	q.mu.Unlock()

	ev := event(domain.EventJobRetry, id)
	ev.Attempt = attempt
	q.emit(append([]domain.Event{ev}, events...)...)
	return true
}

// Skip cancels a failed job on behalf of the recovery chain, recording why.
// This is the one transition out of failed besides retry.
func (q *JobQueue) Skip(id, reason string) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusFailed {
		q.mu.Unlock()
		return false
	}
	job.Progress.Message = reason
	q.setStatus(job, domain.JobStatusCancelled)
	events := q.recomputeBatchesFor(id)
	q.mu.Unlock()

	q.emit(append([]domain.Event{event(domain.EventJobCancelled, id)}, events...)...)
	return true
}

// Reinstate swaps a processing job's record for a prior snapshot and returns
// it to pending. Used when an integrity check after an adjusted rerun fails
// and the handler's outcome cannot be trusted.
func (q *JobQueue) Reinstate(id string, snap *domain.Job) bool {
	if snap == nil {
		return false
	}
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		q.mu.Unlock()
		return false
	}
	c := snap.Clone()
	c.ID = job.ID
	c.StartedAt = nil
	c.CompletedAt = nil
	c.Error = nil
	c.Result = nil
	c.Progress = domain.Progress{Percentage: 0, Stage: "queued"}
	q.setStatus(c, domain.JobStatusPending)
	q.jobs[id] = c
	delete(q.inFlight, id)
	metrics.JobsInFlight.Set(float64(len(q.inFlight)))
	events := q.recomputeBatchesFor(id)
	attempt := c.RetryAttempt
	q.mu.Unlock()

	ev := event(domain.EventJobRetry, id)
	ev.Attempt = attempt
	q.emit(append([]domain.Event{ev}, events...)...)
	return true
}

// setStatus is the single place a job's status changes. Caller holds the lock.
func (q *JobQueue) setStatus(job *domain.Job, s domain.JobStatus) {
	job.Status = s
	job.UpdatedAt = time.Now()
}

func (q *JobQueue) hasActive() bool {
	for _, job := range q.jobs {
		if !job.Status.Terminal() {
			return true
		}
	}
	return false
}

// Pause stops NextJob from handing out work; running jobs are unaffected.
func (q *JobQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables scheduling.
func (q *JobQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
}

// Paused reports whether scheduling is suspended.
func (q *JobQueue) Paused() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.paused
}

// Clear drops every job and batch. In-flight handlers keep running but their
// completions will no longer match a known job.
func (q *JobQueue) Clear() {
	q.mu.Lock()
	q.jobs = make(map[string]*domain.Job)
	q.batches = make(map[string]*domain.Batch)
	q.inFlight = make(map[string]struct{})
	metrics.QueueDepth.Set(0)
	metrics.JobsInFlight.Set(0)
	q.mu.Unlock()
}

// Cleanup purges terminal jobs older than the retention window and returns
// how many were removed. Jobs referenced by a live batch are kept so batch
// progress stays computable.
func (q *JobQueue) Cleanup(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	referenced := make(map[string]struct{})
	for _, b := range q.batches {
		for _, id := range b.JobIDs {
			referenced[id] = struct{}{}
		}
	}

	removed := 0
	cutoff := now.Add(-q.cfg.RetentionPeriod)
	for id, job := range q.jobs {
		if !job.Status.Terminal() {
			continue
		}
		if _, ok := referenced[id]; ok {
			continue
		}
		if job.UpdatedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	return removed
}

// SetConcurrencyLimit installs the strategy-selected ceiling, clamped to the
// configured maximum.
func (q *JobQueue) SetConcurrencyLimit(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > q.cfg.MaxConcurrentJobs {
		n = q.cfg.MaxConcurrentJobs
	}
	q.concurrencyLimit = n
}

// ConcurrencyLimit returns the current ceiling.
func (q *JobQueue) ConcurrencyLimit() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.concurrencyLimit
}

// InFlight returns how many jobs are currently dispatched.
func (q *JobQueue) InFlight() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.inFlight)
}

// FreeSlots returns how many more jobs the ceiling admits right now.
func (q *JobQueue) FreeSlots() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.paused {
		return 0
	}
	free := q.concurrencyLimit - len(q.inFlight)
	if free < 0 {
		return 0
	}
	return free
}

// Size returns the number of jobs currently held.
func (q *JobQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}
