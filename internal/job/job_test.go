package job

import (
	"errors"
	"testing"
	"time"

	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/progress"
)

func TestNew(t *testing.T) {
	groups := []int{2, 1}
	job := New(groups)

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.Failed == nil {
		t.Error("expected Failed to be initialized")
	}

	groups[0] = 99
	if job.GroupIDs[0] != 2 {
		t.Error("job must not alias the caller's group slice")
	}
}

func TestNewWithID(t *testing.T) {
	job := NewWithID("test-job-123", []int{1})

	if job.ID != "test-job-123" {
		t.Errorf("expected ID test-job-123, got %s", job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"RUNNING to IN_QUEUE", StatusRunning, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test", nil)
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := New([]int{1})
	before := time.Now()

	if err := job.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.StartedAt.Before(before) {
		t.Error("expected StartedAt to be set")
	}

	if err := job.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if !job.IsTerminal() {
		t.Error("expected completed job to be terminal")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New([]int{1})
	_ = job.Start()

	if err := job.Fail("bulk: offline"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.GetStatus() != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.GetStatus())
	}
	if job.Error != "bulk: offline" {
		t.Errorf("expected error message to be kept, got %q", job.Error)
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test", nil)
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_ApplyUpdate(t *testing.T) {
	job := New([]int{1, 2})

	job.ApplyUpdate(progress.NewUpdate(job.ID, 3, 8, "verse 3/5 of chapter 1", nil))

	if job.Completed != 3 || job.Total != 8 {
		t.Errorf("expected 3/8, got %d/%d", job.Completed, job.Total)
	}
	if job.Progress != 38 {
		t.Errorf("expected progress 38, got %d", job.Progress)
	}
	if job.Label != "verse 3/5 of chapter 1" {
		t.Errorf("unexpected label %q", job.Label)
	}
}

func TestJob_ApplyResult(t *testing.T) {
	job := New([]int{1, 2})
	result := bulk.Result{
		Total:     8,
		Attempted: 8,
		Stored:    7,
		Failed:    []bulk.FailedUnit{{GroupID: 1, UnitIndex: 4, Error: "503"}},
	}

	job.ApplyResult(result)
	result.Failed[0].UnitIndex = 99

	if job.Stored != 7 {
		t.Errorf("expected 7 stored, got %d", job.Stored)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if len(job.Failed) != 1 || job.Failed[0].UnitIndex != 4 {
		t.Errorf("expected failed unit 4 to be copied, got %+v", job.Failed)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New([]int{1})
	job.Failed = append(job.Failed, bulk.FailedUnit{GroupID: 1, UnitIndex: 2})

	c := job.Clone()
	c.GroupIDs[0] = 5
	c.Failed[0].UnitIndex = 9

	if job.GroupIDs[0] != 1 || job.Failed[0].UnitIndex != 2 {
		t.Error("clone must not share slices with the original")
	}
}
