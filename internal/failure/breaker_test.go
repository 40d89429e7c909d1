package failure

import (
	"strings"
	"testing"
	"time"

	"github.com/vietddude/docforge/internal/core/domain"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	r := NewBreakerRegistry(DefaultBreakerConfig())

	for i := 0; i < 4; i++ {
		r.RecordFailure("type:parse")
		if ok, _ := r.CanProcess("type:parse"); !ok {
			t.Fatalf("Breaker should stay closed after %d failures", i+1)
		}
	}

	r.RecordFailure("type:parse")
	ok, reason := r.CanProcess("type:parse")
	if ok {
		t.Fatal("Breaker should be open after 5 failures")
	}
	if !strings.Contains(reason, "type:parse") {
		t.Errorf("Reason should name the category, got %q", reason)
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: 2,
		Timeout:          20 * time.Millisecond,
		HalfOpenMax:      2,
	})

	r.RecordFailure("system")
	r.RecordFailure("system")
	if ok, _ := r.CanProcess("system"); ok {
		t.Fatal("Breaker should be open")
	}

	time.Sleep(30 * time.Millisecond)

	// Half-open admits a bounded number of probes.
	for i := 0; i < 2; i++ {
		if ok, _ := r.CanProcess("system"); !ok {
			t.Fatalf("Probe %d should be admitted while half-open", i+1)
		}
	}
	if ok, reason := r.CanProcess("system"); ok {
		t.Error("Probe quota should be exhausted")
	} else if !strings.Contains(reason, "half-open") {
		t.Errorf("Reason should mention half-open, got %q", reason)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: 2,
		Timeout:          20 * time.Millisecond,
		HalfOpenMax:      1,
	})

	r.RecordFailure("system")
	r.RecordFailure("system")
	time.Sleep(30 * time.Millisecond)

	if ok, _ := r.CanProcess("system"); !ok {
		t.Fatal("Probe should be admitted")
	}
	r.RecordSuccess("system")

	// Closed again: unlimited admissions, failure count reset.
	for i := 0; i < 5; i++ {
		if ok, _ := r.CanProcess("system"); !ok {
			t.Fatal("Breaker should be closed after a half-open success")
		}
	}
	r.RecordFailure("system")
	if ok, _ := r.CanProcess("system"); !ok {
		t.Error("One failure after closing should not reopen")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: 2,
		Timeout:          20 * time.Millisecond,
		HalfOpenMax:      3,
	})

	r.RecordFailure("system")
	r.RecordFailure("system")
	time.Sleep(30 * time.Millisecond)

	if ok, _ := r.CanProcess("system"); !ok {
		t.Fatal("Probe should be admitted")
	}
	r.RecordFailure("system")

	if ok, _ := r.CanProcess("system"); ok {
		t.Error("A half-open failure should reopen the breaker immediately")
	}
}

func TestBreaker_StaleFailuresDoNotAccumulate(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: 2,
		Timeout:          20 * time.Millisecond,
		HalfOpenMax:      1,
	})

	r.RecordFailure("system")
	time.Sleep(30 * time.Millisecond)
	r.RecordFailure("system")

	if ok, _ := r.CanProcess("system"); !ok {
		t.Error("Failures outside the observation window should not open the breaker")
	}
}

func TestCategories(t *testing.T) {
	withFile := &domain.Job{Type: domain.JobTypeParse, FileType: "xliff"}
	got := Categories(withFile)
	want := []string{"type:parse", "file:xliff", "system"}
	if len(got) != len(want) {
		t.Fatalf("Categories = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Categories[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	noFile := &domain.Job{Type: domain.JobTypeExport}
	if got := Categories(noFile); len(got) != 2 || got[0] != "type:export" || got[1] != "system" {
		t.Errorf("Categories without file type = %v", got)
	}
}

func TestCanProcessJob_BlockedByAnyCategory(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, Timeout: time.Minute, HalfOpenMax: 1})
	job := &domain.Job{Type: domain.JobTypeParse, FileType: "xml"}

	if ok, _ := r.CanProcessJob(job); !ok {
		t.Fatal("All breakers closed, job should be admitted")
	}

	r.RecordFailure("file:xml")
	ok, reason := r.CanProcessJob(job)
	if ok {
		t.Fatal("An open file-type breaker should block the job")
	}
	if !strings.Contains(reason, "file:xml") {
		t.Errorf("Reason should name the blocking category, got %q", reason)
	}

	other := &domain.Job{Type: domain.JobTypeParse, FileType: "json"}
	if ok, _ := r.CanProcessJob(other); !ok {
		t.Error("Jobs in other categories should still be admitted")
	}
}

func TestStates(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, Timeout: time.Minute, HalfOpenMax: 1})
	r.RecordFailure("type:parse")
	r.RecordSuccess("type:export")

	states := r.States()
	if len(states) != 2 {
		t.Fatalf("Expected 2 breaker states, got %d", len(states))
	}
	byCat := make(map[string]BreakerState)
	for _, s := range states {
		byCat[s.Category] = s
	}
	if !byCat["type:parse"].IsOpen || byCat["type:parse"].FailureCount != 1 {
		t.Errorf("Unexpected parse state: %+v", byCat["type:parse"])
	}
	if byCat["type:export"].IsOpen || byCat["type:export"].SuccessCount != 1 {
		t.Errorf("Unexpected export state: %+v", byCat["type:export"])
	}
}
