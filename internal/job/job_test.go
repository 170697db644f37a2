package job

import (
	"testing"

	"github.com/maauso/genbridge-api/internal/generator"
)

func TestNew(t *testing.T) {
	job := New("task-1", generator.KindVideo, "user-1", 4)

	if job.ID != "task-1" {
		t.Errorf("expected ID task-1, got %s", job.ID)
	}
	if job.Status != StatusPending {
		t.Errorf("expected status %s, got %s", StatusPending, job.Status)
	}
	if job.Cost != 4 {
		t.Errorf("expected cost 4, got %d", job.Cost)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if job.Charged {
		t.Error("new job must not be charged")
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, false},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"pending to failed", StatusPending, StatusFailed, false},
		{"processing to completed", StatusProcessing, StatusCompleted, false},
		{"processing to failed", StatusProcessing, StatusFailed, false},
		{"processing to pending", StatusProcessing, StatusPending, true},
		{"completed to failed", StatusCompleted, StatusFailed, true},
		{"completed to processing", StatusCompleted, StatusProcessing, true},
		{"failed to completed", StatusFailed, StatusCompleted, true},
		{"unknown status", Status("paused"), StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := New("test", generator.KindImage, "u", 1)
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Observe(t *testing.T) {
	job := New("test", generator.KindVideo, "u", 4)

	job.Observe(generator.Snapshot{Status: generator.StatusPending, Progress: 5})
	if job.Status != StatusPending || job.Progress != 5 {
		t.Errorf("expected pending/5, got %s/%d", job.Status, job.Progress)
	}

	job.Observe(generator.Snapshot{Status: generator.StatusProcessing, Progress: 140})
	if job.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", job.Progress)
	}

	// A completed snapshot only updates progress; settlement happens in Complete.
	job.Observe(generator.Snapshot{Status: generator.StatusCompleted, Progress: 100})
	if job.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", job.Status)
	}
}

func TestJob_Observe_IgnoredWhenTerminal(t *testing.T) {
	job := New("test", generator.KindVideo, "u", 4)
	_ = job.Fail("boom")

	job.Observe(generator.Snapshot{Status: generator.StatusProcessing, Progress: 40})

	if job.Status != StatusFailed || job.Progress != 0 {
		t.Errorf("terminal job changed: %s/%d", job.Status, job.Progress)
	}
}

func TestJob_Complete(t *testing.T) {
	job := New("test", generator.KindImage, "u", 1)
	results := []string{"https://cdn/a.png"}

	if err := job.Complete(results, false, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results[0] = "mutated"

	if job.Results[0] != "https://cdn/a.png" {
		t.Error("Complete must copy results")
	}
	if !job.Charged || job.Progress != 100 || job.CompletedAt.IsZero() {
		t.Errorf("unexpected job after Complete: %+v", job.Clone())
	}
	if err := job.Complete(nil, false, true); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition on second Complete, got %v", err)
	}
}

func TestJob_Fail(t *testing.T) {
	job := New("test", generator.KindImage, "u", 1)
	_ = job.TransitionTo(StatusProcessing)

	if err := job.Fail("vendor error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Error != "vendor error" {
		t.Errorf("expected error message, got %q", job.Error)
	}
	if !job.IsTerminal() {
		t.Error("failed job should be terminal")
	}
	if job.Charged {
		t.Error("failed job must not be charged")
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("test", generator.KindImage, "u", 1)
	_ = job.Complete([]string{"a", "b"}, true, true)

	clone := job.Clone()
	clone.Results[0] = "changed"
	clone.Status = StatusFailed

	if job.Results[0] != "a" {
		t.Error("modifying clone results should not affect original")
	}
	if job.Status != StatusCompleted {
		t.Error("modifying clone status should not affect original")
	}
	if !clone.Degraded || !clone.Charged || clone.Kind != generator.KindImage {
		t.Errorf("clone lost fields: %+v", clone)
	}
}
