// Package runstore keeps the server-side state of asynchronous tool runs.
// Runs live in memory only and are lost on restart.
package runstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/toolrun/pkg/planner"
)

var (
	// ErrRunNotFound is returned for unknown or swept run IDs
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidTransition is returned when a run cannot move to the requested status
	ErrInvalidTransition = errors.New("invalid run transition")
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusErrored  Status = "errored"
	StatusPaused   Status = "paused"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusErrored
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusFinished, StatusErrored, StatusPaused},
	StatusPaused:  {StatusRunning},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run is a snapshot of one logical tool run
type Run struct {
	ID         string              `json:"runId"`
	Tool       string              `json:"tool"`
	Status     Status              `json:"status"`
	Result     any                 `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	Checkpoint *planner.Checkpoint `json:"checkpoint,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Store holds runs keyed by ID
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
	now  func() time.Time
}

// New creates an empty run store
func New() *Store {
	return &Store{
		runs: make(map[string]*Run),
		now:  time.Now,
	}
}

// Create registers a pending run. An existing run with the same ID is an error.
func (s *Store) Create(id, tool string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; exists {
		return Run{}, fmt.Errorf("run %s already exists", id)
	}
	now := s.now()
	r := &Run{ID: id, Tool: tool, Status: StatusPending, StartedAt: now, UpdatedAt: now}
	s.runs[id] = r
	return *r, nil
}

// Start moves a pending run to running
func (s *Store) Start(id string) error {
	return s.update(id, StatusPending, StatusRunning, nil)
}

// Resume moves a paused run back to running and clears its checkpoint
func (s *Store) Resume(id string) error {
	return s.update(id, StatusPaused, StatusRunning, func(r *Run) {
		r.Checkpoint = nil
		r.Result = nil
	})
}

// Finish records the final result of a running run
func (s *Store) Finish(id string, result any) error {
	return s.update(id, StatusRunning, StatusFinished, func(r *Run) {
		r.Result = result
	})
}

// Fail records the error of a running run
func (s *Store) Fail(id string, err error) error {
	return s.update(id, StatusRunning, StatusErrored, func(r *Run) {
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// Pause records the pause payload and checkpoint of a running run
func (s *Store) Pause(id string, result any, cp *planner.Checkpoint) error {
	return s.update(id, StatusRunning, StatusPaused, func(r *Run) {
		r.Result = result
		r.Checkpoint = cp
	})
}

// Get returns a copy of the run
func (s *Store) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return *r, nil
}

// Sweep removes finished, errored and paused runs not updated within
// olderThan and returns how many were removed. Running runs are kept.
func (s *Store) Sweep(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for id, r := range s.runs {
		if r.Status == StatusRunning || r.Status == StatusPending {
			continue
		}
		if r.UpdatedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored runs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (s *Store) update(id string, from, to Status, apply func(*Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if r.Status != from || !canTransition(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = s.now()
	if apply != nil {
		apply(r)
	}
	return nil
}
