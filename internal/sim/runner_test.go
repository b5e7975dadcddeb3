package sim

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/organism/internal/agent"
	"github.com/normanking/organism/internal/bus"
	"github.com/normanking/organism/internal/profile"
	"github.com/normanking/organism/internal/store"
	"github.com/normanking/organism/pkg/organism"
	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/operant"
	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

func rat(t *testing.T) *agent.Component {
	t.Helper()
	learning := operant.DefaultConfig()
	learning.Window = 2
	learning.LearningRate = 0.2
	learning.Reinforcers = []operant.Reinforcer{{Stimulus: "food", Magnitude: 1}}

	o, err := organism.New(organism.Definition{
		Name:    "rat",
		Stimuli: []stimulation.Stimulus{{Name: "lever"}, {Name: "food"}, {Name: "predator"}},
		Responding: responding.Config{
			Actions: []responding.Action{
				{Name: "press-lever", Threshold: 0.5, DecayRate: 1},
				{Name: "eat", Threshold: 0.5, DecayRate: 1},
				{Name: "flee", Threshold: 0.3, DecayRate: 1},
			},
			Triggers: []responding.Trigger{
				{Stimulus: "lever", Action: "press-lever", Gain: 0.8},
				{Stimulus: "food", Action: "eat", Gain: 1},
				{Stimulus: "predator", Action: "flee", Gain: 1},
			},
		},
		Learning: learning,
	})
	require.NoError(t, err)
	return agent.NewComponent(o)
}

const leverScenario = `
name: lever
ticks: 6
steps:
  - tick: 1
    stimuli:
      - {name: food, status: beginning, intensity: 0.8}
  - tick: 0
    stimuli:
      - {name: lever, status: beginning}
  - tick: 2
    stimuli:
      - {name: food, status: absent}
      - {name: lever, status: absent}
`

func decode(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := DecodeScenario(strings.NewReader(doc))
	require.NoError(t, err)
	return sc
}

func eventsOf(b *bus.Bus, et bus.EventType) []bus.Event {
	var out []bus.Event
	for _, e := range b.History() {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func TestDecodeScenario(t *testing.T) {
	sc := decode(t, leverScenario)
	assert.Equal(t, "lever", sc.Name)
	require.Len(t, sc.Steps, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{sc.Steps[0].Tick, sc.Steps[1].Tick, sc.Steps[2].Tick}, "steps sorted by tick")
	assert.Equal(t, 0.8, *sc.Steps[1].Stimuli[0].Intensity)
}

func TestDecodeScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty document"},
		{"unknown field", "name: x\nticks: 1\nbogus: 1", "bogus"},
		{"no ticks", "name: x", "ticks must be > 0"},
		{"tick out of range", "name: x\nticks: 2\nsteps: [{tick: 2, stimuli: []}]", "outside [0, 2)"},
		{"bad status", "name: x\nticks: 2\nsteps: [{tick: 0, stimuli: [{name: a, status: loud}]}]", "invalid stimulus status"},
		{"intensity above one", "name: x\nticks: 2\nsteps: [{tick: 0, stimuli: [{name: a, status: stable, intensity: 1.5}]}]", "outside [0, 1]"},
		{"noise without seed", "name: x\nticks: 2\nnoise: {stimuli: [a], rate: 0.5}", "noise requires a seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeScenario(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunner_RunRecordsAndPublishes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	b := bus.NewBus()
	defer b.Close()

	r := NewRunner(rat(t), WithStore(st), WithBus(b))
	res, err := r.Run(ctx, decode(t, leverScenario))
	require.NoError(t, err)

	assert.Equal(t, store.RunCompleted, res.Status)
	require.Len(t, res.Ticks, 6)
	assert.Equal(t, []string{"press-lever"}, res.Ticks[0].Emitting)
	assert.Equal(t, []string{"press-lever", "eat"}, res.Ticks[1].Emitting)
	assert.Equal(t, []string{"lever->press-lever"}, res.Ticks[1].Formed)
	assert.Empty(t, res.Ticks[5].Emitting)
	assert.Equal(t, 2, res.Emitted["press-lever"])
	assert.Equal(t, uint64(6), uint64(res.Final.Instant))

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, 6, run.Ticks)
	ticks, err := st.Ticks(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, ticks, 6)
	require.Len(t, ticks[1].Associations, 1)
	assert.Equal(t, store.Association{ID: 1, Context: "lever", Action: "press-lever", Strength: 0.5, Phase: "forming"}, ticks[1].Associations[0])

	assert.Len(t, eventsOf(b, bus.EventRunStarted), 1)
	assert.Len(t, eventsOf(b, bus.EventTickCompleted), 6)
	assert.Len(t, eventsOf(b, bus.EventResponseEmitted), 3)
	assert.Len(t, eventsOf(b, bus.EventRunCompleted), 1)
	formed := eventsOf(b, bus.EventAssociationFormed)
	require.Len(t, formed, 1)
	assert.Equal(t, "lever", formed[0].Context)
	assert.Equal(t, "press-lever", formed[0].Action)
	assert.Equal(t, 0.5, formed[0].Strength)
	assert.Equal(t, res.RunID, formed[0].RunID)
}

func TestRunner_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.New("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Init(ctx))
	defer st.Close()

	res, err := NewRunner(rat(t), WithStore(st)).Run(ctx, decode(t, leverScenario))
	require.NoError(t, err)

	ticks, err := st.Ticks(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, ticks, 6)
	assert.Equal(t, []string{"press-lever", "eat"}, ticks[1].Emitting)
}

func TestRunner_CancelledRunIsRecordedAsFailed(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(rat(t), WithStore(st)).Run(ctx, decode(t, leverScenario))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, store.RunFailed, res.Status)
	assert.Empty(t, res.Ticks)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Contains(t, run.Error, "context canceled")
}

func TestRunner_StepLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(rat(t))

	_, err := r.Step(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)

	sc := decode(t, "name: short\nticks: 2")
	require.NoError(t, r.Start(ctx, sc))
	assert.NotEmpty(t, r.RunID())
	for i := 0; i < 2; i++ {
		rec, err := r.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), rec.Instant)
	}
	assert.True(t, r.Done())
	_, err = r.Step(ctx)
	assert.ErrorIs(t, err, ErrFinished)

	res, err := r.Finish(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, res.Status)
}

func TestRunner_ClockDrivesDuration(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return t0.Add(time.Duration(calls) * time.Second)
	}

	res, err := NewRunner(rat(t), WithClock(clock)).Run(context.Background(), decode(t, "name: short\nticks: 3"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, res.Duration)
}

func TestRunner_NoiseIsSeeded(t *testing.T) {
	const doc = `
name: noisy
ticks: 50
seed: 7
noise:
  stimuli: [food, predator]
  rate: 0.3
  min_intensity: 0.5
  max_intensity: 1.0
`
	emitting := func() [][]string {
		res, err := NewRunner(rat(t)).Run(context.Background(), decode(t, doc))
		require.NoError(t, err)
		out := make([][]string, len(res.Ticks))
		for i, rec := range res.Ticks {
			out[i] = rec.Emitting
		}
		return out
	}

	first := emitting()
	assert.Equal(t, first, emitting())

	active := 0
	for _, e := range first {
		active += len(e)
	}
	assert.Positive(t, active, "noise should trigger some responses")
}

func TestGuard(t *testing.T) {
	assert.NoError(t, guard(func() {}))

	err := guard(func() { invariant.Fail("responding", "broken") })
	var ierr *organism.InvariantError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "responding", ierr.Component)

	assert.PanicsWithValue(t, "other", func() { _ = guard(func() { panic("other") }) })
}

func TestExampleScenario(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("..", "..", "examples", "scenarios", "lever-press.yaml"))
	require.NoError(t, err)

	p, err := profile.Load(sc.ProfilePath())
	require.NoError(t, err)
	o, err := p.Build()
	require.NoError(t, err)

	res, err := NewRunner(agent.NewComponent(o)).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Len(t, res.Ticks, sc.Ticks)
	assert.Positive(t, res.Emitted["press-lever"])
}
