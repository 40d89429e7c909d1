package recovery

import (
	"testing"

	"github.com/vietddude/docforge/internal/core/domain"
)

func TestIntegrityGuard_VerifyDetectsTampering(t *testing.T) {
	g := NewIntegrityGuard()
	job := &domain.Job{ID: "job-1", Type: domain.JobTypeParse, FileName: "doc.xml"}
	content := []byte("<doc>hello</doc>")

	g.Backup(job, content)

	if !g.Verify("job-1", content) {
		t.Error("Unchanged content should verify")
	}
	if g.Verify("job-1", []byte("<doc>tampered</doc>")) {
		t.Error("Changed content should fail verification")
	}
	if !g.Verify("unknown", content) {
		t.Error("Jobs without a snapshot should pass")
	}
}

func TestIntegrityGuard_ChecksumWithoutContent(t *testing.T) {
	g := NewIntegrityGuard()
	job := &domain.Job{ID: "job-1", Type: domain.JobTypeParse}

	g.Backup(job, nil)
	if !g.Verify("job-1", nil) {
		t.Error("A content-free snapshot should verify against the job record")
	}
}

func TestIntegrityGuard_Restore(t *testing.T) {
	g := NewIntegrityGuard()
	now := domain.Progress{Percentage: 40, Stage: "analysis"}
	job := &domain.Job{
		ID:       "job-1",
		Type:     domain.JobTypeAnalyze,
		Status:   domain.JobStatusProcessing,
		Progress: now,
		Metadata: map[string]string{"parser": "primary"},
	}
	g.Backup(job, []byte("content"))

	// Mutating the original must not touch the snapshot.
	job.Metadata["parser"] = "fallback"

	restored, ok := g.RestoreFromBackup("job-1")
	if !ok {
		t.Fatal("Expected a snapshot")
	}
	if restored.Status != domain.JobStatusPending {
		t.Errorf("Status = %s, want pending", restored.Status)
	}
	if restored.Progress.Stage != "queued" || restored.StartedAt != nil || restored.Error != nil {
		t.Errorf("Restored job should be reset for re-dispatch: %+v", restored)
	}
	if restored.Metadata["parser"] != "primary" {
		t.Error("Snapshot should be isolated from later mutations")
	}

	// Restore is repeatable until Discard.
	if _, ok := g.RestoreFromBackup("job-1"); !ok {
		t.Error("Snapshot should survive a restore")
	}
	g.Discard("job-1")
	if _, ok := g.RestoreFromBackup("job-1"); ok {
		t.Error("Discarded snapshot should be gone")
	}
}
