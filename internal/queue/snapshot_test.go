package queue

import (
	"testing"

	"github.com/vietddude/docforge/internal/core/domain"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	q := newTestQueue(10, 4)

	done, _ := q.Add(spec(domain.JobTypeParse, domain.PriorityHigh))
	failed, _ := q.Add(spec(domain.JobTypeAnalyze, domain.PriorityNormal))
	pending, _ := q.Add(spec(domain.JobTypeExport, domain.PriorityLow))
	bid, _ := q.CreateBatch("docs", []string{done, failed, pending})

	q.MarkProcessing(done)
	q.MarkCompleted(done, map[string]any{"pages": 3})
	q.MarkProcessing(failed)
	q.MarkFailed(failed, &domain.ErrorRecord{Code: domain.CodeParserError, Message: "parse error"})

	data, err := MarshalSnapshot(q.Export())
	if err != nil {
		t.Fatalf("MarshalSnapshot failed: %v", err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot failed: %v", err)
	}

	restored := newTestQueue(10, 4)
	if err := restored.Import(snap); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if restored.Size() != 3 {
		t.Fatalf("Expected 3 jobs, got %d", restored.Size())
	}
	if got := restored.Get(done); got == nil || got.Status != domain.JobStatusCompleted {
		t.Errorf("Completed job not preserved: %+v", got)
	}
	if got := restored.Get(failed); got == nil || got.Status != domain.JobStatusFailed || got.Error == nil {
		t.Errorf("Failed job not preserved: %+v", got)
	}
	if got := restored.Get(pending); got == nil || got.Status != domain.JobStatusPending {
		t.Errorf("Pending job not preserved: %+v", got)
	}

	b := restored.GetBatch(bid)
	if b == nil {
		t.Fatal("Batch not preserved")
	}
	if b.Progress.CompletedJobs != 1 || b.Progress.FailedJobs != 1 || b.Progress.TotalJobs != 3 {
		t.Errorf("Batch progress not preserved: %+v", b.Progress)
	}
}

func TestImport_RevertsProcessingToPending(t *testing.T) {
	q := newTestQueue(10, 4)
	id, _ := q.Add(spec(domain.JobTypeParse, domain.PriorityNormal))
	q.MarkProcessing(id)

	snap := q.Export()

	restored := newTestQueue(10, 4)
	if err := restored.Import(snap); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	job := restored.Get(id)
	if job.Status != domain.JobStatusPending {
		t.Errorf("Expected processing job reverted to pending, got %s", job.Status)
	}
	if job.StartedAt != nil {
		t.Error("StartedAt should be cleared on revert")
	}
	if restored.InFlight() != 0 {
		t.Errorf("In-flight set should be empty, got %d", restored.InFlight())
	}
}

func TestImport_RejectsBadSnapshot(t *testing.T) {
	q := newTestQueue(10, 4)

	if err := q.Import(nil); err == nil {
		t.Error("Expected error for nil snapshot")
	}
	if err := q.Import(&Snapshot{Jobs: []*domain.Job{{}}}); err == nil {
		t.Error("Expected error for a job without an id")
	}
	if err := q.Import(&Snapshot{Batches: []*domain.Batch{{JobIDs: []string{"j1"}}}}); err == nil {
		t.Error("Expected error for a batch without an id")
	}
	// A batch with no jobs would derive completed from 0/0.
	if err := q.Import(&Snapshot{Batches: []*domain.Batch{{ID: "b1", Name: "empty"}}}); err == nil {
		t.Error("Expected error for a batch with no jobs")
	}
}
