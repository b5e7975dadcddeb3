package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]Run
	ticks map[string][]Tick
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]Run),
		ticks: make(map[string][]Tick),
	}
}

func (s *MemoryStore) Init(context.Context) error {
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, id string, status RunStatus, ticks int, runErr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("finish run %s: %w", id, ErrUnknownRun)
	}
	run.Status, run.Ticks, run.Error, run.FinishedAt = status, ticks, runErr, at
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) SaveTick(_ context.Context, tick Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[tick.RunID]; !ok {
		return fmt.Errorf("save tick: %w", ErrUnknownRun)
	}
	tick.Emitting = slices.Clone(tick.Emitting)
	tick.Drives = maps.Clone(tick.Drives)
	tick.Emotions = maps.Clone(tick.Emotions)
	tick.Associations = slices.Clone(tick.Associations)
	s.ticks[tick.RunID] = append(s.ticks[tick.RunID], tick)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrUnknownRun)
	}
	return run, nil
}

func (s *MemoryStore) ListRuns(context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := slices.Collect(maps.Values(s.runs))
	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return runs, nil
}

func (s *MemoryStore) Ticks(_ context.Context, runID string) ([]Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("ticks for %s: %w", runID, ErrUnknownRun)
	}
	out := slices.Clone(s.ticks[runID])
	slices.SortStableFunc(out, func(a, b Tick) int { return cmp.Compare(a.Instant, b.Instant) })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
