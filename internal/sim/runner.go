package sim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/organism/internal/agent"
	"github.com/normanking/organism/internal/bus"
	"github.com/normanking/organism/internal/store"
	"github.com/normanking/organism/pkg/organism"
	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/responding"
)

var (
	// ErrNotStarted is returned by Step before Start.
	ErrNotStarted = errors.New("run not started")
	// ErrFinished is returned by Step once every scripted tick has run.
	ErrFinished = errors.New("run finished")
)

// TickRecord is the observable outcome of one tick.
type TickRecord struct {
	Instant      uint64              `json:"instant"`
	Delivered    int                 `json:"delivered"`
	Emitting     []string            `json:"emitting"`
	Drives       map[string]float64  `json:"drives,omitempty"`
	Emotions     map[string]float64  `json:"emotions,omitempty"`
	Associations []store.Association `json:"associations,omitempty"`
	Formed       []string            `json:"formed,omitempty"`
	Removed      []string            `json:"removed,omitempty"`
}

// Result summarizes a finished run.
type Result struct {
	RunID    string            `json:"run_id"`
	Organism string            `json:"organism"`
	Scenario string            `json:"scenario"`
	Status   store.RunStatus   `json:"status"`
	Ticks    []TickRecord      `json:"ticks"`
	Emitted  map[string]int    `json:"emitted"`
	Final    organism.Snapshot `json:"final"`
	Duration time.Duration     `json:"duration"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists runs and ticks to s.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithBus publishes run events on b.
func WithBus(b *bus.Bus) Option {
	return func(r *Runner) { r.bus = b }
}

// WithClock overrides the wall clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.clock = now }
}

// Runner plays a scenario against one organism component.
type Runner struct {
	comp  *agent.Component
	store store.Store
	bus   *bus.Bus
	clock func() time.Time

	scenario *Scenario
	runID    string
	started  time.Time
	schedule map[int][]agent.Delivery
	noise    *noiseSource
	tick     int
	records  []TickRecord
	emitted  map[string]int
}

// NewRunner creates a runner for comp.
func NewRunner(comp *agent.Component, opts ...Option) *Runner {
	r := &Runner{comp: comp, clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Component returns the driven component.
func (r *Runner) Component() *agent.Component { return r.comp }

// Scenario returns the scenario being played, or nil before Start.
func (r *Runner) Scenario() *Scenario { return r.scenario }

// RunID returns the current run ID.
func (r *Runner) RunID() string { return r.runID }

// Tick returns the number of ticks played so far.
func (r *Runner) Tick() int { return r.tick }

// Done reports whether every scripted tick has run.
func (r *Runner) Done() bool {
	return r.scenario != nil && r.tick >= r.scenario.Ticks
}

// Run plays sc to completion. Cancellation is honoured between ticks; a
// cancelled or failed run is still recorded.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := r.Start(ctx, sc); err != nil {
		return nil, err
	}
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return r.Finish(context.WithoutCancel(ctx), err)
		}
		if _, err := r.Step(ctx); err != nil {
			return r.Finish(context.WithoutCancel(ctx), err)
		}
	}
	return r.Finish(ctx, nil)
}

// Start validates sc and records a new run.
func (r *Runner) Start(ctx context.Context, sc *Scenario) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	r.scenario = sc
	r.runID = uuid.NewString()
	r.started = r.clock().UTC()
	r.schedule = sc.schedule()
	r.tick = 0
	r.records = nil
	r.emitted = make(map[string]int)
	r.noise = nil
	if sc.Seed != nil {
		r.noise = newNoiseSource(sc.Noise, *sc.Seed)
	}

	if r.store != nil {
		run := store.Run{
			ID:        r.runID,
			Organism:  r.organism().Name(),
			Scenario:  sc.Name,
			Status:    store.RunRunning,
			StartedAt: r.started,
		}
		if err := r.store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	r.publish(bus.EventRunStarted, func(e *bus.Event) { e.Details = sc.Name })

	log.Info().
		Str("run", r.runID).
		Str("organism", r.organism().Name()).
		Str("scenario", sc.Name).
		Int("ticks", sc.Ticks).
		Msg("run started")
	return nil
}

// Step delivers the batch scheduled for the current tick and advances the
// organism once. Invariant violations are returned as *organism.InvariantError.
func (r *Runner) Step(ctx context.Context) (rec TickRecord, err error) {
	if r.scenario == nil {
		return TickRecord{}, ErrNotStarted
	}
	if r.Done() {
		return TickRecord{}, ErrFinished
	}

	batch := slices.Concat(r.schedule[r.tick], r.noise.next())
	if err := r.comp.Deliver(batch...); err != nil {
		// Scenario statuses were validated up front; what remains is
		// per-stimulus and does not stop the run.
		log.Warn().Err(err).Str("run", r.runID).Int("tick", r.tick).Msg("delivery rejected")
	}

	if err := guard(func() { r.comp.Step() }); err != nil {
		return TickRecord{}, err
	}
	rec = r.record(len(batch))
	r.tick++
	r.records = append(r.records, rec)

	if r.store != nil {
		tick := store.Tick{
			RunID:        r.runID,
			Instant:      rec.Instant,
			Emitting:     rec.Emitting,
			Drives:       rec.Drives,
			Emotions:     rec.Emotions,
			Associations: rec.Associations,
		}
		if err := r.store.SaveTick(ctx, tick); err != nil {
			return rec, fmt.Errorf("record tick %d: %w", rec.Instant, err)
		}
	}
	r.publishTick(rec)
	return rec, nil
}

// guard runs fn and turns an invariant panic into an error.
func guard(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = invariant.Recover(rec)
		}
	}()
	fn()
	return nil
}

func (r *Runner) record(delivered int) TickRecord {
	o := r.organism()
	last := o.LastTick()

	rec := TickRecord{
		Instant:   uint64(last.Instant),
		Delivered: delivered,
		Emitting:  o.EmittingActions(),
		Drives:    make(map[string]float64),
		Emotions:  make(map[string]float64),
		Formed:    keyStrings(last.Operant.Formed),
		Removed:   keyStrings(last.Operant.Removed),
	}
	snap := o.Snapshot()
	for _, d := range snap.Drives {
		rec.Drives[d.Name] = d.Value
	}
	for _, e := range snap.Emotions {
		rec.Emotions[e.Name] = e.Value
	}
	for _, a := range snap.Associations {
		rec.Associations = append(rec.Associations, store.Association{
			ID:       a.ID,
			Context:  a.Key.Context,
			Action:   a.Key.Action,
			Strength: a.Strength,
			Phase:    a.Phase.String(),
		})
	}
	for _, name := range rec.Emitting {
		r.emitted[name]++
	}
	return rec
}

// Finish closes the run. runErr, if any, marks it failed and is returned
// alongside the partial result.
func (r *Runner) Finish(ctx context.Context, runErr error) (*Result, error) {
	if r.scenario == nil {
		return nil, ErrNotStarted
	}
	status := store.RunCompleted
	msg := ""
	if runErr != nil {
		status = store.RunFailed
		msg = runErr.Error()
	}
	finished := r.clock().UTC()

	if r.store != nil {
		if err := r.store.FinishRun(ctx, r.runID, status, r.tick, msg, finished); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("record run result: %w", err))
		}
	}

	if runErr != nil {
		r.publish(bus.EventRunFailed, func(e *bus.Event) { e.Error = msg })
		log.Error().Err(runErr).Str("run", r.runID).Int("ticks", r.tick).Msg("run failed")
	} else {
		r.publish(bus.EventRunCompleted, func(e *bus.Event) { e.Details = r.scenario.Name })
		log.Info().Str("run", r.runID).Int("ticks", r.tick).Msg("run completed")
	}

	return &Result{
		RunID:    r.runID,
		Organism: r.organism().Name(),
		Scenario: r.scenario.Name,
		Status:   status,
		Ticks:    r.records,
		Emitted:  maps.Clone(r.emitted),
		Final:    r.organism().Snapshot(),
		Duration: finished.Sub(r.started),
	}, runErr
}

// ═══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ═══════════════════════════════════════════════════════════════════════════════

func (r *Runner) publishTick(rec TickRecord) {
	if r.bus == nil {
		return
	}
	r.publish(bus.EventTickCompleted, func(e *bus.Event) {
		e.Instant = rec.Instant
		e.Emitting = rec.Emitting
		e.Drives = rec.Drives
		e.Emotions = rec.Emotions
	})
	for _, name := range rec.Emitting {
		r.publish(bus.EventResponseEmitted, func(e *bus.Event) {
			e.Instant = rec.Instant
			e.Action = name
		})
	}

	last := r.organism().LastTick()
	for _, k := range last.Operant.Formed {
		strength := 0.0
		for _, a := range rec.Associations {
			if a.Context == k.Context && a.Action == k.Action {
				strength = a.Strength
			}
		}
		r.publish(bus.EventAssociationFormed, func(e *bus.Event) {
			e.Instant = rec.Instant
			e.Context, e.Action, e.Strength = k.Context, k.Action, strength
		})
	}
	for _, k := range last.Operant.Removed {
		r.publish(bus.EventAssociationRemoved, func(e *bus.Event) {
			e.Instant = rec.Instant
			e.Context, e.Action = k.Context, k.Action
		})
	}
}

func (r *Runner) publish(et bus.EventType, fill func(*bus.Event)) {
	if r.bus == nil {
		return
	}
	e := bus.NewEvent(et)
	e.RunID = r.runID
	e.Organism = r.organism().Name()
	fill(&e)
	if err := r.bus.Publish(e); err != nil {
		log.Debug().Err(err).Str("event", string(et)).Msg("event not published")
	}
}

func (r *Runner) organism() *organism.Organism {
	return r.comp.Organism()
}

func keyStrings(keys []responding.Key) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
