// Package job tracks background bulk downloads: the Job aggregate with its
// state machine, a repository port and the service that runs jobs.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/job/id"
	"github.com/maauso/recitation-api/internal/progress"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job has been accepted but not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates units are being downloaded.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates every unit was attempted. Individual units
	// may still have failed; see Failed.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the download could not run at all.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before finishing.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one bulk download request.
type Job struct {
	mu sync.RWMutex

	ID       string
	GroupIDs []int
	Status   Status

	// Total is the grand unit count across GroupIDs; zero until started.
	Total int
	// Completed counts attempted units, successful or not.
	Completed int
	Stored    int
	Failed    []bulk.FailedUnit
	// Progress is round(Completed/Total*100).
	Progress int
	// Label names the unit most recently attempted.
	Label string
	Error string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates an IN_QUEUE job for groupIDs with a generated ID.
func New(groupIDs []int) *Job {
	return NewWithID(id.Generate(), groupIDs)
}

// NewWithID creates an IN_QUEUE job with the given ID.
func NewWithID(jobID string, groupIDs []int) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		GroupIDs:  append([]int(nil), groupIDs...),
		Status:    StatusInQueue,
		Failed:    make([]bulk.FailedUnit, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the status, or returns ErrInvalidTransition.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail records errMsg and moves to FAILED.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// ApplyUpdate records a per-unit progress update.
func (j *Job) ApplyUpdate(u progress.Update) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Total = u.Total
	j.Completed = u.Completed
	j.Progress = min(max(u.Percent, 0), 100)
	j.Label = u.Label
	j.UpdatedAt = time.Now()
}

// ApplyResult copies the final counters of a bulk run.
func (j *Job) ApplyResult(r bulk.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Total = r.Total
	j.Completed = r.Attempted
	j.Stored = r.Stored
	j.Failed = append(make([]bulk.FailedUnit, 0, len(r.Failed)), r.Failed...)
	j.Progress = progress.Percent(r.Attempted, r.Total)
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		GroupIDs:    append([]int(nil), j.GroupIDs...),
		Status:      j.Status,
		Total:       j.Total,
		Completed:   j.Completed,
		Stored:      j.Stored,
		Failed:      append(make([]bulk.FailedUnit, 0, len(j.Failed)), j.Failed...),
		Progress:    j.Progress,
		Label:       j.Label,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
