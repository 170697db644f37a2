// Package job tracks generation jobs submitted to the vendor and runs the
// shared generation pipeline: credit check, input mirroring, job creation,
// polling, output mirroring and debit-on-success.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/genbridge-api/internal/generator"
)

// Status represents the current state of a Job.
// Values match the vendor-neutral generator statuses.
type Status string

const (
	// StatusPending indicates the vendor accepted the job but has not started it.
	StatusPending Status = "pending"
	// StatusProcessing indicates the vendor is running the job.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates results were produced and mirrored.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job failed, timed out or could not be mirrored.
	StatusFailed Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the tracked record of one vendor generation job.
type Job struct {
	mu sync.RWMutex

	// ID is the vendor-issued job identifier.
	ID string `json:"id"`
	// Kind is the asset type the job produces.
	Kind generator.Kind `json:"kind"`
	// UserID owns the job and pays for it.
	UserID string `json:"userId"`
	// Cost is the credit price debited on success.
	Cost int `json:"cost"`
	// Memo is recorded with the debit.
	Memo string `json:"memo,omitempty"`
	// Status is the current job state.
	Status Status `json:"status"`
	// Progress is the vendor-reported completion percentage (0-100).
	Progress int `json:"progress"`
	// Results are the mirrored result URLs, in vendor order.
	Results []string `json:"results,omitempty"`
	// Degraded is set when Results point at the vendor instead of our storage.
	Degraded bool `json:"degraded,omitempty"`
	// Error contains the failure reason.
	Error string `json:"error,omitempty"`
	// Charged is set once Cost has been debited.
	Charged bool `json:"charged"`

	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// New creates a pending Job for a vendor job ID.
func New(id string, kind generator.Kind, userID string, cost int) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Kind:      kind,
		UserID:    userID,
		Cost:      cost,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()
	if status == StatusCompleted || status == StatusFailed {
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Observe applies a non-terminal vendor snapshot: progress is copied and a
// pending job moves to processing once the vendor reports it running.
// Terminal snapshots are settled by Complete or Fail instead.
func (j *Job) Observe(snap generator.Snapshot) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status.IsTerminal() {
		return
	}
	if snap.Status == generator.StatusProcessing && j.Status == StatusPending {
		_ = j.transitionLocked(StatusProcessing)
	}
	j.Progress = clampProgress(snap.Progress)
	j.UpdatedAt = time.Now()
}

// Complete marks the job completed with its result URLs.
func (j *Job) Complete(results []string, degraded, charged bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Results = append([]string(nil), results...)
	j.Degraded = degraded
	j.Charged = charged
	j.Progress = 100
	return nil
}

// Fail marks the job failed with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.Progress = 0
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is completed or failed.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().IsTerminal()
}

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var results []string
	if j.Results != nil {
		results = append([]string(nil), j.Results...)
	}

	return &Job{
		ID:          j.ID,
		Kind:        j.Kind,
		UserID:      j.UserID,
		Cost:        j.Cost,
		Memo:        j.Memo,
		Status:      j.Status,
		Progress:    j.Progress,
		Results:     results,
		Degraded:    j.Degraded,
		Error:       j.Error,
		Charged:     j.Charged,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
