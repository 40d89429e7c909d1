package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

// IntegritySnapshot is a full job snapshot plus a content checksum, taken
// before risky operations so the job can be rolled back.
type IntegritySnapshot struct {
	JobID    string      `json:"job_id"`
	Checksum string      `json:"checksum"`
	TakenAt  time.Time   `json:"taken_at"`
	Job      *domain.Job `json:"job"`
}

// IntegrityGuard keeps the latest snapshot per job.
type IntegrityGuard struct {
	mu        sync.Mutex
	snapshots map[string]*IntegritySnapshot
}

// NewIntegrityGuard creates an empty guard.
func NewIntegrityGuard() *IntegrityGuard {
	return &IntegrityGuard{snapshots: make(map[string]*IntegritySnapshot)}
}

// Checksum hashes file content; with no content it hashes the job record
// itself so there is always something to verify against.
func Checksum(job *domain.Job, content []byte) string {
	if len(content) == 0 {
		content, _ = json.Marshal(job)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Backup captures the job before a risky operation.
func (g *IntegrityGuard) Backup(job *domain.Job, content []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshots[job.ID] = &IntegritySnapshot{
		JobID:    job.ID,
		Checksum: Checksum(job, content),
		TakenAt:  time.Now(),
		Job:      job.Clone(),
	}
}

// Verify reports whether the content still matches the stored checksum.
// Jobs without a snapshot pass: there is nothing to protect.
func (g *IntegrityGuard) Verify(jobID string, content []byte) bool {
	g.mu.Lock()
	snap, ok := g.snapshots[jobID]
	g.mu.Unlock()
	if !ok {
		return true
	}
	return Checksum(snap.Job, content) == snap.Checksum
}

// RestoreFromBackup returns a pending copy of the snapshotted job so the
// caller can reinstate it after a failed integrity check. The snapshot
// remains until Discard.
func (g *IntegrityGuard) RestoreFromBackup(jobID string) (*domain.Job, bool) {
	g.mu.Lock()
	snap, ok := g.snapshots[jobID]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}

	restored := snap.Job.Clone()
	restored.Status = domain.JobStatusPending
	restored.StartedAt = nil
	restored.CompletedAt = nil
	restored.Error = nil
	restored.Progress = domain.Progress{Percentage: 0, Stage: "queued"}
	return restored, true
}

// Discard drops the snapshot for a job.
func (g *IntegrityGuard) Discard(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.snapshots, jobID)
}
