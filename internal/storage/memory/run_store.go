package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// RunStore keeps API-triggered runs in memory. Records are lost on restart.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.Run
	now  func() time.Time
}

// NewRunStore constructs a RunStore. clock may be nil.
func NewRunStore(clock crawler.Clock) *RunStore {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &RunStore{runs: make(map[string]crawler.Run), now: now}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("create run %s: %w", run.ID, crawler.ErrRunExists)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun sets the status, error text and stats of a run and stamps start and finish times.
func (s *RunStore) UpdateRun(_ context.Context, runID string, status crawler.RunStatus, errText string, stats any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("update run %s: %w", runID, crawler.ErrRunNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	if stats != nil {
		run.Stats = stats
	}
	now := s.now()
	if status == crawler.RunStatusRunning && run.Started == nil {
		run.Started = &now
	}
	if status.Terminal() {
		if run.Started == nil {
			run.Started = &now
		}
		run.Finished = &now
	}
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.Run{}, fmt.Errorf("get run %s: %w", runID, crawler.ErrRunNotFound)
	}
	return run, nil
}
