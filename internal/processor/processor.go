package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/failure"
	"github.com/vietddude/docforge/internal/queue"
	"github.com/vietddude/docforge/internal/recovery"
	"github.com/vietddude/docforge/internal/sched"
)

// Config holds the orchestrator's timing knobs.
type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
}

// Processor is the orchestrator: a fixed-period poll loop that pulls an
// admissible batch from the queue via the active strategy, dispatches jobs
// to their handlers, and routes failures through classification, circuit
// breaking, and the recovery chain. The loop never blocks on any single job.
type Processor struct {
	queue      *queue.JobQueue
	sched      *sched.Manager
	estimator  *sched.Estimator
	breakers   *failure.BreakerRegistry
	patterns   *failure.PatternTracker
	recovery   *recovery.Manager
	guard      *recovery.IntegrityGuard
	dispatcher *Dispatcher
	handlers   *HandlerRegistry
	cfg        Config

	// trigger wakes the loop early on submission or completion.
	trigger chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	// degradedLimit, when set, caps the ceiling across ticks until cleared.
	degradedLimit int
}

// New wires the orchestrator. The queue's notifier is pointed at the
// dispatcher so every queue transition reaches registered listeners.
func New(
	q *queue.JobQueue,
	schedMgr *sched.Manager,
	breakers *failure.BreakerRegistry,
	recoveryMgr *recovery.Manager,
	handlers *HandlerRegistry,
	cfg Config,
) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	p := &Processor{
		queue:      q,
		sched:      schedMgr,
		estimator:  sched.NewEstimator(),
		breakers:   breakers,
		patterns:   failure.NewPatternTracker(),
		recovery:   recoveryMgr,
		guard:      recovery.NewIntegrityGuard(),
		dispatcher: NewDispatcher(),
		handlers:   handlers,
		cfg:        cfg,
		trigger:    make(chan struct{}, 1),
		cancels:    make(map[string]context.CancelFunc),
	}
	q.SetNotifier(p.dispatcher.Dispatch)
	return p
}

// Events exposes the dispatcher for collaborator registration.
func (p *Processor) Events() *Dispatcher {
	return p.dispatcher
}

// Queue exposes the underlying queue for query and control surfaces.
func (p *Processor) Queue() *queue.JobQueue {
	return p.queue
}

// Breakers exposes circuit breaker state for the status endpoints.
func (p *Processor) Breakers() *failure.BreakerRegistry {
	return p.breakers
}

// Patterns exposes the recurring-error tracker.
func (p *Processor) Patterns() *failure.PatternTracker {
	return p.patterns
}

// Trigger wakes the poll loop without waiting for the next tick.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Submit estimates the job's resource profile and enqueues it.
func (p *Processor) Submit(spec queue.JobSpec) (string, error) {
	if !domain.ValidJobType(spec.Type) {
		return "", fmt.Errorf("unsupported job type %q", spec.Type)
	}
	if spec.Profile == (domain.ResourceProfile{}) {
		spec.Profile = p.estimator.Estimate(spec.Type, spec.FileSizeBytes, spec.Priority)
	}
	id, err := p.queue.Add(spec)
	if err != nil {
		return "", err
	}
	p.Trigger()
	return id, nil
}

// SubmitMany enqueues jobs until capacity runs out, returning the admitted
// ids.
func (p *Processor) SubmitMany(specs []queue.JobSpec) []string {
	for i := range specs {
		if specs[i].Profile == (domain.ResourceProfile{}) {
			specs[i].Profile = p.estimator.Estimate(specs[i].Type, specs[i].FileSizeBytes, specs[i].Priority)
		}
	}
	ids := p.queue.AddBatch(specs)
	if len(ids) > 0 {
		p.Trigger()
	}
	return ids
}

// CancelJob cancels cooperatively: the queue entry is cancelled immediately
// and a running handler sees its context end at the next checkpoint.
func (p *Processor) CancelJob(id string) bool {
	p.mu.Lock()
	if cancel, ok := p.cancels[id]; ok {
		cancel()
	}
	p.mu.Unlock()
	return p.queue.Cancel(id)
}

// Run drives the poll loop until the context ends. Dispatched handlers keep
// running briefly past cancellation; their completions are dropped by the
// queue once the context is gone.
func (p *Processor) Run(ctx context.Context) {
	poll := time.NewTicker(p.cfg.PollInterval)
	cleanup := time.NewTicker(p.cfg.CleanupInterval)
	defer poll.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			p.tick(ctx)
		case <-p.trigger:
			p.tick(ctx)
		case <-cleanup.C:
			if n := p.queue.Cleanup(time.Now()); n > 0 {
				slog.Debug("Purged terminal jobs", "count", n)
			}
		}
	}
}

// tick runs one scheduling round: refresh strategy, size the batch to free
// slots, filter through admission gates, dispatch.
func (p *Processor) tick(ctx context.Context) {
	m := p.queue.Metrics()
	stats := sched.Stats{
		ErrorRate:   m.ErrorRate,
		Utilization: m.Utilization,
		PendingJobs: m.ByStatus[domain.JobStatusPending],
	}

	p.sched.Optimize(stats)
	strat := p.sched.Current()
	res := p.sched.Resources()

	limit := strat.OptimalConcurrency(res, stats)
	p.mu.Lock()
	if p.degradedLimit > 0 && p.degradedLimit < limit {
		limit = p.degradedLimit
	}
	p.mu.Unlock()
	p.queue.SetConcurrencyLimit(limit)

	free := p.queue.FreeSlots()
	if free == 0 {
		return
	}

	pending := p.queue.PendingJobs()
	if len(pending) == 0 {
		return
	}

	for _, job := range strat.SelectBatch(pending, free, res) {
		if !strat.CanAdmit(job, p.queue.InFlight(), res) {
			continue
		}
		if ok, reason := p.breakers.CanProcessJob(job); !ok {
			slog.Debug("Job blocked by circuit breaker", "job", job.ID, "reason", reason)
			continue
		}
		p.dispatch(ctx, job)
	}
}

// dispatch moves the job to processing and runs its handler concurrently.
// MarkProcessing rejects double dispatch and ceiling overruns, so a stale
// candidate list is harmless.
func (p *Processor) dispatch(ctx context.Context, job *domain.Job) {
	handler, ok := p.handlers.Get(job.Type)
	if !ok {
		if p.queue.MarkProcessing(job.ID) {
			p.failJob(job.ID, fmt.Errorf("no handler registered for job type %q", job.Type))
		}
		return
	}
	if !p.queue.MarkProcessing(job.ID) {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()

	current := p.queue.Get(job.ID)
	if current == nil {
		// Clear raced in between the claim and here; nothing left to run.
		cancel()
		p.mu.Lock()
		delete(p.cancels, job.ID)
		p.mu.Unlock()
		return
	}
	go func() {
		defer func() {
			cancel()
			p.mu.Lock()
			delete(p.cancels, job.ID)
			p.mu.Unlock()
			p.Trigger()
		}()

		report := func(progress domain.Progress) {
			p.queue.UpdateProgress(job.ID, progress)
		}

		result, err := handler.Execute(jobCtx, current, report)
		if err != nil {
			p.failJob(job.ID, err)
			return
		}
		if !p.guard.Verify(job.ID, readPayload(current)) {
			p.rollback(job.ID)
			return
		}
		p.queue.MarkCompleted(job.ID, result)
		p.breakers.RecordJobSuccess(current)
		p.recovery.Forget(job.ID)
		p.guard.Discard(job.ID)
	}()
}

// failJob intercepts a handler failure: classify, record against breaker and
// pattern state, then route through the recovery chain. Handler errors never
// propagate to queue callers.
func (p *Processor) failJob(jobID string, raw error) {
	job := p.queue.Get(jobID)
	if job == nil {
		return
	}

	rec := failure.Classify(raw, job)
	p.queue.MarkFailed(jobID, rec)
	p.breakers.RecordJobFailure(job)

	recurring, escalatePattern := p.patterns.Record(rec)
	if rec.Severity == domain.SeverityHigh || rec.Severity == domain.SeverityCritical || escalatePattern {
		p.alert(jobID, fmt.Sprintf("%s failure on job %s: %s", rec.Severity, jobID, rec.Message), rec)
	}
	if recurring {
		slog.Warn("Recurring error pattern", "code", rec.Code, "type", rec.Type)
	}

	p.applyRecovery(jobID, rec, job)
}

func (p *Processor) applyRecovery(jobID string, rec *domain.ErrorRecord, job *domain.Job) {
	result := p.recovery.AttemptRecovery(rec, job)

	switch result.Action {
	case recovery.ActionRequeue:
		if result.Strategy == "memory_recovery" {
			// Reclaim hint before the job runs again.
			debug.FreeOSMemory()
		}
		if result.Adjust != nil {
			// Snapshot before the adjusted rerun so a corrupted outcome can
			// be rolled back.
			p.guard.Backup(job, readPayload(job))
			p.queue.Update(jobID, result.Adjust)
		}
		if result.Delay > 0 {
			time.AfterFunc(result.Delay, func() {
				if p.queue.Requeue(jobID) {
					p.Trigger()
				}
			})
			return
		}
		if p.queue.Requeue(jobID) {
			p.Trigger()
		}

	case recovery.ActionSkip:
		p.queue.Skip(jobID, result.Message)
		p.guard.Discard(jobID)

	case recovery.ActionEscalate:
		p.queue.Update(jobID, func(j *domain.Job) {
			j.RequiresIntervention = true
		})
		p.alert(jobID, result.Message, rec)
	}
}

// readPayload best-effort reads the job's input so integrity snapshots can
// checksum real content.
func readPayload(job *domain.Job) []byte {
	data, err := os.ReadFile(job.FileName)
	if err != nil {
		return nil
	}
	return data
}

// rollback reverts a job whose input no longer matches the snapshot taken
// before its adjusted rerun; the handler's result cannot be trusted. The
// snapshot is spent after one restore so the fresh run starts clean.
func (p *Processor) rollback(jobID string) {
	restored, ok := p.guard.RestoreFromBackup(jobID)
	if !ok {
		return
	}
	p.guard.Discard(jobID)
	if p.queue.Reinstate(jobID, restored) {
		slog.Warn("Integrity check failed, job restored from backup", "job", jobID)
		p.Trigger()
	}
}

// Degrade applies one of the fixed reduced-functionality bundles across all
// non-terminal jobs and lowers the concurrency ceiling. The ceiling sticks
// across ticks until ClearDegradation.
func (p *Processor) Degrade(level recovery.DegradationLevel) {
	cfg := recovery.DegradationFor(level)
	p.mu.Lock()
	p.degradedLimit = cfg.MaxConcurrency
	p.mu.Unlock()
	p.queue.SetConcurrencyLimit(cfg.MaxConcurrency)

	for _, job := range p.queue.List(&domain.JobFilter{
		Statuses: []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing, domain.JobStatusFailed},
	}) {
		p.queue.Update(job.ID, func(j *domain.Job) {
			recovery.ApplyDegradation(cfg, j)
		})
	}

	slog.Warn("Degradation mode applied", "level", level, "max_concurrency", cfg.MaxConcurrency)
	p.alert("", fmt.Sprintf("degradation mode %s applied", level), nil)
}

// ClearDegradation lifts the degraded ceiling; the next tick restores the
// strategy-selected concurrency.
func (p *Processor) ClearDegradation() {
	p.mu.Lock()
	p.degradedLimit = 0
	p.mu.Unlock()
	p.Trigger()
}

func (p *Processor) alert(jobID, message string, rec *domain.ErrorRecord) {
	p.dispatcher.Dispatch(domain.Event{
		Kind:      domain.EventAlert,
		JobID:     jobID,
		Error:     rec,
		Message:   message,
		Timestamp: time.Now(),
	})
}
