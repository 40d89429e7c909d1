package domain

import (
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"normal", PriorityNormal, false},
		{"", PriorityNormal, false},
		{"high", PriorityHigh, false},
		{"urgent", PriorityUrgent, false},
		{"critical", PriorityCritical, false},
		{"asap", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePriority(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPriorityString_RoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical} {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %d, %v; want %d", p.String(), got, err, p)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusPending:    false,
		JobStatusProcessing: false,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
		JobStatusCancelled:  true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestValidJobType(t *testing.T) {
	for _, jt := range []JobType{JobTypeParse, JobTypeAnalyze, JobTypeValidate, JobTypeExport} {
		if !ValidJobType(jt) {
			t.Errorf("ValidJobType(%s) = false", jt)
		}
	}
	if ValidJobType(JobType("transmogrify")) {
		t.Error("ValidJobType should reject unknown types")
	}
}

func TestJobClone_IsDeep(t *testing.T) {
	started := time.Now()
	job := &Job{
		ID:        "job-1",
		Type:      JobTypeParse,
		Status:    JobStatusProcessing,
		StartedAt: &started,
		Error:     &ErrorRecord{Code: CodeParserError},
		DependsOn: []string{"dep-1"},
		Metadata:  map[string]string{"parser": "primary"},
		Tags:      []string{"batch-a"},
	}

	c := job.Clone()
	c.Metadata["parser"] = "fallback"
	c.DependsOn[0] = "dep-2"
	c.Tags[0] = "batch-b"
	*c.StartedAt = started.Add(time.Hour)
	c.Error.Code = CodeUnknown

	if job.Metadata["parser"] != "primary" || job.DependsOn[0] != "dep-1" || job.Tags[0] != "batch-a" {
		t.Error("Clone shares slice or map storage with the original")
	}
	if !job.StartedAt.Equal(started) {
		t.Error("Clone shares timestamp pointers with the original")
	}
	if job.Error.Code != CodeParserError {
		t.Error("Clone shares the error record with the original")
	}
}
