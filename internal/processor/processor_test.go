package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/failure"
	"github.com/vietddude/docforge/internal/queue"
	"github.com/vietddude/docforge/internal/recovery"
	"github.com/vietddude/docforge/internal/sched"
)

func newTestProcessor(t *testing.T, maxConcurrent int, handlers *HandlerRegistry, breakerCfg failure.BreakerConfig) *Processor {
	t.Helper()

	q := queue.New(queue.Config{
		MaxQueueSize:      100,
		MaxConcurrentJobs: maxConcurrent,
		DefaultMaxRetries: 3,
		RetentionPeriod:   time.Hour,
	})
	probe := sched.NewFakeProbe(domain.HostResources{
		CPUCores:          8,
		TotalMemoryMB:     16384,
		AvailableMemoryMB: 8192,
		CPUUsage:          0.3,
		MemoryUsage:       0.4,
	})
	mgr, err := sched.NewManager(probe, "balanced", false)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	return New(
		q,
		mgr,
		failure.NewBreakerRegistry(breakerCfg),
		recovery.NewManager(recovery.DefaultConfig(), nil),
		handlers,
		Config{PollInterval: time.Hour, CleanupInterval: time.Hour},
	)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func parseSpec() queue.JobSpec {
	return queue.JobSpec{
		Type:          domain.JobTypeParse,
		Priority:      domain.PriorityNormal,
		FileName:      "doc.xml",
		FileType:      "xml",
		FileSizeBytes: 1024,
	}
}

func TestSubmit_RejectsUnknownType(t *testing.T) {
	p := newTestProcessor(t, 2, NewHandlerRegistry(), failure.DefaultBreakerConfig())

	if _, err := p.Submit(queue.JobSpec{Type: domain.JobType("transmogrify")}); err == nil {
		t.Error("Expected error for unsupported job type")
	}
}

func TestSubmit_FillsResourceProfile(t *testing.T) {
	p := newTestProcessor(t, 2, NewHandlerRegistry(), failure.DefaultBreakerConfig())

	id, err := p.Submit(parseSpec())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job := p.Queue().Get(id)
	if job.Profile.MemoryEstimateMB <= 0 || job.Profile.EstimatedDuration <= 0 {
		t.Errorf("Expected an estimated profile, got %+v", job.Profile)
	}
}

func TestTick_RespectsConcurrencyCeiling(t *testing.T) {
	release := make(chan struct{})
	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			<-release
			return "ok", nil
		}))

	p := newTestProcessor(t, 2, handlers, failure.DefaultBreakerConfig())
	for i := 0; i < 5; i++ {
		if _, err := p.Submit(parseSpec()); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	ctx := context.Background()
	p.tick(ctx)

	if got := p.Queue().InFlight(); got != 2 {
		t.Fatalf("InFlight = %d, want 2", got)
	}
	m := p.Queue().Metrics()
	if m.ByStatus[domain.JobStatusPending] != 3 {
		t.Fatalf("Pending = %d, want 3", m.ByStatus[domain.JobStatusPending])
	}

	// Completing one job frees exactly one slot.
	release <- struct{}{}
	waitFor(t, func() bool {
		return p.Queue().Metrics().ByStatus[domain.JobStatusCompleted] == 1
	}, "First completion never landed")

	p.tick(ctx)
	if got := p.Queue().InFlight(); got != 2 {
		t.Errorf("InFlight after refill = %d, want 2", got)
	}

	close(release)
	waitFor(t, func() bool {
		return p.Queue().Metrics().ByStatus[domain.JobStatusCompleted] == 3
	}, "Remaining in-flight jobs never completed")
}

func TestDispatch_NoHandlerFails(t *testing.T) {
	p := newTestProcessor(t, 2, NewHandlerRegistry(), failure.DefaultBreakerConfig())

	id, _ := p.Submit(queue.JobSpec{Type: domain.JobTypeExport, Priority: domain.PriorityNormal, FileName: "out"})
	p.tick(context.Background())

	// No strategy handles an unknown failure except skip, so the job ends
	// cancelled with an explanation.
	waitFor(t, func() bool {
		return p.Queue().Get(id).Status == domain.JobStatusCancelled
	}, "Job without a handler should be skipped")
}

func TestFailureRecovery_FallbackParserThenSuccess(t *testing.T) {
	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			if job.Metadata["parser"] != "fallback" {
				return nil, errors.New("parse error: unexpected token at line 3")
			}
			return "parsed leniently", nil
		}))

	p := newTestProcessor(t, 2, handlers, failure.DefaultBreakerConfig())
	id, _ := p.Submit(parseSpec())

	ctx := context.Background()
	p.tick(ctx)

	// The recovery chain requeues with the fallback-parser flags.
	waitFor(t, func() bool {
		j := p.Queue().Get(id)
		return j.Status == domain.JobStatusPending && j.Metadata["parser"] == "fallback"
	}, "Job was not requeued with fallback parser")

	j := p.Queue().Get(id)
	if j.RetryAttempt != 1 {
		t.Errorf("RetryAttempt = %d, want 1", j.RetryAttempt)
	}
	if j.Metadata["strict_validation"] != "disabled" {
		t.Errorf("Expected strict_validation disabled, got %v", j.Metadata)
	}

	p.tick(ctx)
	waitFor(t, func() bool {
		return p.Queue().Get(id).Status == domain.JobStatusCompleted
	}, "Fallback run never completed")

	if got := p.Queue().Get(id).Result; got != "parsed leniently" {
		t.Errorf("Result = %v, want the fallback handler's output", got)
	}
}

func TestFailureRecovery_UnrecoverableSkips(t *testing.T) {
	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			return nil, errors.New("open doc.xml: permission denied")
		}))

	p := newTestProcessor(t, 2, handlers, failure.DefaultBreakerConfig())

	var alerts int
	p.Events().On(domain.EventAlert, func(domain.Event) { alerts++ })

	id, _ := p.Submit(parseSpec())
	p.tick(context.Background())

	waitFor(t, func() bool {
		return p.Queue().Get(id).Status == domain.JobStatusCancelled
	}, "Unrecoverable job should be skipped")

	j := p.Queue().Get(id)
	if j.Progress.Message == "" {
		t.Error("Skip should record an explanation on the job")
	}
	if alerts == 0 {
		t.Error("High-severity failures should raise an alert")
	}
}

func TestFailureRecovery_IntegrityRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xml")
	if err := os.WriteFile(path, []byte("<doc>alpha</doc>"), 0o644); err != nil {
		t.Fatal(err)
	}

	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			if job.Metadata["parser"] != "fallback" {
				return nil, errors.New("parse error: unexpected token at line 3")
			}
			return "parsed leniently", nil
		}))

	p := newTestProcessor(t, 2, handlers, failure.DefaultBreakerConfig())
	spec := parseSpec()
	spec.FileName = path
	id, _ := p.Submit(spec)

	ctx := context.Background()
	p.tick(ctx)

	waitFor(t, func() bool {
		j := p.Queue().Get(id)
		return j.Status == domain.JobStatusPending && j.Metadata["parser"] == "fallback"
	}, "Job was not requeued with fallback parser")

	// The input changes underneath the job between the snapshot and the
	// adjusted rerun. The rerun's outcome cannot be trusted.
	if err := os.WriteFile(path, []byte("<doc>beta</doc>"), 0o644); err != nil {
		t.Fatal(err)
	}
	p.tick(ctx)

	waitFor(t, func() bool {
		j := p.Queue().Get(id)
		return j.Status == domain.JobStatusPending && j.Metadata["parser"] == ""
	}, "Job was not restored from its pre-adjustment snapshot")

	j := p.Queue().Get(id)
	if j.Result != nil {
		t.Errorf("Result = %v, want none after rollback", j.Result)
	}

	// The restored job runs the whole pipeline again against the new content
	// and completes this time.
	p.tick(ctx)
	waitFor(t, func() bool {
		return p.Queue().Get(id).Status == domain.JobStatusPending &&
			p.Queue().Get(id).Metadata["parser"] == "fallback"
	}, "Restored job was not offered the fallback parser again")

	p.tick(ctx)
	waitFor(t, func() bool {
		return p.Queue().Get(id).Status == domain.JobStatusCompleted
	}, "Second fallback run never completed")
}

func TestBreaker_BlocksCategoryAfterRepeatedFailures(t *testing.T) {
	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			return nil, errors.New("open doc.xml: permission denied")
		}))

	p := newTestProcessor(t, 2, handlers, failure.BreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		HalfOpenMax:      1,
	})

	ctx := context.Background()
	first, _ := p.Submit(parseSpec())
	second, _ := p.Submit(parseSpec())
	p.tick(ctx)

	waitFor(t, func() bool {
		return p.Queue().Get(first).Status.Terminal() && p.Queue().Get(second).Status.Terminal()
	}, "Failing jobs never settled")

	// Two failures opened the type and system breakers; a third job stays
	// pending.
	third, _ := p.Submit(parseSpec())
	p.tick(ctx)

	time.Sleep(50 * time.Millisecond)
	if got := p.Queue().Get(third).Status; got != domain.JobStatusPending {
		t.Errorf("Status = %s, want pending while the breaker is open", got)
	}
	if p.Queue().InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", p.Queue().InFlight())
	}

	open := false
	for _, s := range p.Breakers().States() {
		if s.Category == "type:parse" && s.IsOpen {
			open = true
		}
	}
	if !open {
		t.Error("Expected the type:parse breaker to report open")
	}
}

func TestCancelJob_StopsRunningHandler(t *testing.T) {
	started := make(chan struct{})
	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	p := newTestProcessor(t, 2, handlers, failure.DefaultBreakerConfig())
	id, _ := p.Submit(parseSpec())
	p.tick(context.Background())

	<-started
	if !p.CancelJob(id) {
		t.Fatal("CancelJob failed")
	}

	if got := p.Queue().Get(id).Status; got != domain.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", got)
	}
	waitFor(t, func() bool {
		return p.Queue().InFlight() == 0
	}, "In-flight set never drained after cancel")
}

func TestDegrade_StampsJobsAndLowersCeiling(t *testing.T) {
	p := newTestProcessor(t, 4, NewHandlerRegistry(), failure.DefaultBreakerConfig())

	var alerts int
	p.Events().On(domain.EventAlert, func(domain.Event) { alerts++ })

	id, _ := p.Submit(parseSpec())
	p.Degrade(recovery.DegradationSafe)

	if got := p.Queue().ConcurrencyLimit(); got != 1 {
		t.Errorf("ConcurrencyLimit = %d, want 1", got)
	}
	j := p.Queue().Get(id)
	if j.Metadata["skip_validation"] != "true" || j.Metadata["lenient"] != "true" {
		t.Errorf("Expected SAFE flags on pending jobs, got %v", j.Metadata)
	}
	if alerts != 1 {
		t.Errorf("Expected 1 degradation alert, got %d", alerts)
	}
}

func TestDegrade_CeilingSurvivesTicks(t *testing.T) {
	p := newTestProcessor(t, 4, NewHandlerRegistry(), failure.DefaultBreakerConfig())
	ctx := context.Background()

	p.Degrade(recovery.DegradationSafe)
	if got := p.Queue().ConcurrencyLimit(); got != 1 {
		t.Fatalf("ConcurrencyLimit = %d, want 1", got)
	}

	p.tick(ctx)
	if got := p.Queue().ConcurrencyLimit(); got != 1 {
		t.Errorf("ConcurrencyLimit after tick = %d, want 1", got)
	}

	p.ClearDegradation()
	p.tick(ctx)
	if got := p.Queue().ConcurrencyLimit(); got <= 1 {
		t.Errorf("ConcurrencyLimit after clearing = %d, want strategy-selected", got)
	}
}

func TestTick_SurvivesConcurrentClear(t *testing.T) {
	handlers := NewHandlerRegistry()
	handlers.Register(domain.JobTypeParse, HandlerFunc(
		func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
			return "ok", nil
		}))

	p := newTestProcessor(t, 4, handlers, failure.DefaultBreakerConfig())
	ctx := context.Background()

	// An admin clear can land between a job's claim and its handoff to the
	// worker; the worker must not run against a vanished record.
	for i := 0; i < 50; i++ {
		for j := 0; j < 4; j++ {
			if _, err := p.Submit(parseSpec()); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
		done := make(chan struct{})
		go func() {
			p.tick(ctx)
			close(done)
		}()
		p.Queue().Clear()
		<-done
	}

	waitFor(t, func() bool {
		return p.Queue().InFlight() == 0
	}, "In-flight set never drained after clears")
}
