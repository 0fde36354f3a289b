package crawler

import (
	"context"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run triggered over the API.
type RunStatus string

// Run states.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

var (
	// ErrRunNotFound is returned by run stores for unknown IDs.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a run ID is reused.
	ErrRunExists = errors.New("run already exists")
)

// Run records one asynchronous pipeline run.
type Run struct {
	ID        string     `json:"run_id"`
	Date      string     `json:"date"`
	Platform  string     `json:"platform,omitempty"`
	Force     bool       `json:"force,omitempty"`
	Status    RunStatus  `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error,omitempty"`
	// Stats holds the per-stage statistics once the run has progressed.
	Stats any `json:"stats,omitempty"`
}

// RunStore persists run records.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, errText string, stats any) error
	GetRun(ctx context.Context, runID string) (Run, error)
}
