// Package store persists simulation runs and their per-tick traces.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownRun is returned when a run ID is not stored.
var ErrUnknownRun = errors.New("unknown run")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run describes one scenario execution.
type Run struct {
	ID         string    `json:"id"`
	Organism   string    `json:"organism"`
	Scenario   string    `json:"scenario"`
	Status     RunStatus `json:"status"`
	Ticks      int       `json:"ticks"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Association is a stored copy of one operant association.
type Association struct {
	ID       uint64  `json:"id"`
	Context  string  `json:"context"`
	Action   string  `json:"action"`
	Strength float64 `json:"strength"`
	Phase    string  `json:"phase"`
}

// Tick is the trace of one Advance within a run.
type Tick struct {
	RunID        string             `json:"run_id"`
	Instant      uint64             `json:"instant"`
	Emitting     []string           `json:"emitting"`
	Drives       map[string]float64 `json:"drives,omitempty"`
	Emotions     map[string]float64 `json:"emotions,omitempty"`
	Associations []Association      `json:"associations,omitempty"`
}

// Store persists runs and ticks.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, ticks int, runErr string, at time.Time) error
	SaveTick(ctx context.Context, tick Tick) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]Run, error)
	// Ticks returns the ticks of a run in instant order.
	Ticks(ctx context.Context, runID string) ([]Tick, error)
	Close() error
}

// New builds the backend named by kind: "memory" (or "") or "sqlite".
func New(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
