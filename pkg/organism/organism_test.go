package organism

import (
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/organism/pkg/organism/drives"
	"github.com/normanking/organism/pkg/organism/emotion"
	"github.com/normanking/organism/pkg/organism/operant"
	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

func learning(reinforcers ...operant.Reinforcer) operant.Config {
	return operant.Config{
		Window:          2,
		InitialStrength: 0.5,
		LearningRate:    0.2,
		Cap:             1,
		EstablishAt:     0.8,
		ExtinctionRate:  0.05,
		MinStrength:     0.05,
		Influence:       1,
		Reinforcers:     reinforcers,
	}
}

func foodEat() Definition {
	return Definition{
		Name:    "food-eat",
		Stimuli: []stimulation.Stimulus{{Name: "food"}},
		Responding: responding.Config{
			Actions:  []responding.Action{{Name: "eat", Threshold: 0.5, DecayRate: 0.4}},
			Triggers: []responding.Trigger{{Stimulus: "food", Action: "eat", Gain: 1}},
		},
		Learning: learning(),
	}
}

func rat() Definition {
	return Definition{
		Name:    "rat",
		Stimuli: []stimulation.Stimulus{{Name: "lever"}, {Name: "food"}, {Name: "predator"}},
		Responding: responding.Config{
			Actions: []responding.Action{
				{Name: "press-lever", Threshold: 0.5, DecayRate: 1},
				{Name: "eat", Threshold: 0.5, DecayRate: 0.5},
				{Name: "flee", Threshold: 0.3, DecayRate: 0.3},
			},
			Triggers: []responding.Trigger{
				{Stimulus: "lever", Action: "press-lever", Gain: 0.8},
				{Stimulus: "food", Action: "eat", Gain: 1},
				{Stimulus: "predator", Action: "flee", Gain: 1.2},
			},
			Exclusions: [][2]string{{"eat", "flee"}, {"press-lever", "flee"}},
		},
		Learning: learning(operant.Reinforcer{Stimulus: "food", Magnitude: 1}),
		Drives: []drives.Drive{{
			Name: "hunger", Min: 0, Max: 1, Initial: 0.5, Drift: 0.02,
			Satiation: map[string]float64{"food": 0.1},
		}},
		Emotions: []emotion.Emotion{{
			Name: "contentment", Min: -1, Max: 1, Baseline: 0.2,
			DriveWeights:   map[string]float64{"hunger": -0.5},
			OutcomeWeights: emotion.OutcomeWeights{Reinforced: 0.3, Suppressed: -0.1},
		}},
	}
}

func newOrganism(t *testing.T, def Definition) *Organism {
	t.Helper()
	o, err := New(def)
	require.NoError(t, err)
	return o
}

func update(name string, status stimulation.Status, intensity float64) stimulation.Update {
	return stimulation.Update{Stimulus: name, Status: status, Intensity: &intensity}
}

func TestNew_AggregatesConfigErrors(t *testing.T) {
	def := rat()
	def.Responding.Triggers = append(def.Responding.Triggers, responding.Trigger{Stimulus: "water", Action: "eat", Gain: 1})
	def.Drives[0].Initial = 7
	def.Learning.Window = 0

	_, err := New(def)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "rat", cfgErr.Organism)
	assert.Contains(t, err.Error(), `unknown stimulus "water"`)
	assert.Contains(t, err.Error(), "initial 7 outside")
	assert.Contains(t, err.Error(), "learning.window")
}

func TestNew_StartsAbsentAtDefaultIntensity(t *testing.T) {
	o := newOrganism(t, rat())

	assert.Equal(t, stimulation.Instant(0), o.Instant())
	for _, s := range o.PossibleStimuli() {
		st, ok := o.Stimulation(s.Name)
		require.True(t, ok)
		assert.Equal(t, stimulation.StatusAbsent, st.Status)
		assert.Equal(t, stimulation.DefaultIntensity, st.Intensity)
	}
	assert.Empty(t, o.Advance())
}

func TestSetStatus_UnknownStimulusIsIgnored(t *testing.T) {
	o := newOrganism(t, rat())
	before := o.Snapshot()

	require.NoError(t, o.SetStatus("thunder", stimulation.StatusBeginning))
	require.NoError(t, o.SetIntensity("thunder", 0.3))

	assert.Equal(t, before, o.Snapshot())
}

func TestSetStatus_InvalidStatusLeavesStateIntact(t *testing.T) {
	o := newOrganism(t, rat())
	require.NoError(t, o.SetStatus("food", stimulation.StatusStable))

	err := o.SetStatus("food", stimulation.Status(42))
	assert.ErrorIs(t, err, stimulation.ErrInvalidStatus)

	st, _ := o.Stimulation("food")
	assert.Equal(t, stimulation.StatusStable, st.Status)
}

func TestApply_ReportsBadUpdatesAndAppliesTheRest(t *testing.T) {
	o := newOrganism(t, rat())

	err := o.Apply(
		update("lever", stimulation.StatusBeginning, 0.9),
		update("food", stimulation.StatusStable, 1.5),
	)
	assert.ErrorIs(t, err, stimulation.ErrInvalidIntensity)

	lever, _ := o.Stimulation("lever")
	assert.Equal(t, stimulation.StatusBeginning, lever.Status)
	food, _ := o.Stimulation("food")
	assert.Equal(t, stimulation.StatusAbsent, food.Status)
}

func TestAdvance_FoodEatScenario(t *testing.T) {
	o := newOrganism(t, foodEat())

	require.NoError(t, o.Apply(update("food", stimulation.StatusBeginning, 0.8)))
	assert.Equal(t, []string{"eat"}, actionNames(o.Advance()))
	assert.True(t, o.IsEmitting("eat"))

	require.NoError(t, o.SetStatus("food", stimulation.StatusAbsent))
	var last []responding.Response
	for i := 0; i < 3; i++ {
		last = o.Advance()
	}
	assert.Empty(t, last)
	assert.False(t, o.IsEmitting("eat"))
	assert.Equal(t, stimulation.Instant(4), o.Instant())
}

func TestAdvance_ExclusiveTieGoesToFirstDeclared(t *testing.T) {
	o := newOrganism(t, Definition{
		Stimuli: []stimulation.Stimulus{{Name: "predator"}, {Name: "mate"}},
		Responding: responding.Config{
			Actions: []responding.Action{
				{Name: "flee", Threshold: 0.1, DecayRate: 1},
				{Name: "approach", Threshold: 0.1, DecayRate: 1},
			},
			Triggers: []responding.Trigger{
				{Stimulus: "predator", Action: "flee", Gain: 1},
				{Stimulus: "mate", Action: "approach", Gain: 1},
			},
			Exclusions: [][2]string{{"approach", "flee"}},
		},
		Learning: learning(),
	})

	require.NoError(t, o.Apply(
		update("predator", stimulation.StatusBeginning, 0.6),
		update("mate", stimulation.StatusBeginning, 0.6),
	))

	assert.Equal(t, []string{"flee"}, actionNames(o.Advance()))
	assert.Equal(t, 1, o.LastTick().Responding.Suppressed)
	assert.Equal(t, 1, o.LastTick().Outcome.Suppressed)
}

func TestAdvance_PressLeverFormsAndExtinguishes(t *testing.T) {
	o := newOrganism(t, rat())

	require.NoError(t, o.SetStatus("lever", stimulation.StatusBeginning))
	assert.Equal(t, []string{"press-lever"}, advanceNames(o))

	require.NoError(t, o.SetStatus("lever", stimulation.StatusAbsent))
	require.NoError(t, o.SetStatus("food", stimulation.StatusBeginning))
	o.Advance()

	assocs := o.Associations()
	require.Len(t, assocs, 1)
	assert.Equal(t, responding.Key{Context: "lever", Action: "press-lever"}, assocs[0].Key)
	assert.Equal(t, 0.5, assocs[0].Strength)
	assert.Equal(t, 1, o.LastTick().Outcome.Reinforced)
	firstID := assocs[0].ID

	require.NoError(t, o.SetStatus("food", stimulation.StatusAbsent))
	for i := 0; i < 10; i++ {
		o.Advance()
		for _, a := range o.Associations() {
			assert.GreaterOrEqual(t, a.Strength, 0.0)
			assert.LessOrEqual(t, a.Strength, 1.0)
		}
	}
	assert.Empty(t, o.Associations(), "ten unreinforced ticks extinguish the association")

	require.NoError(t, o.SetStatus("lever", stimulation.StatusBeginning))
	o.Advance()
	require.NoError(t, o.SetStatus("lever", stimulation.StatusAbsent))
	require.NoError(t, o.SetStatus("food", stimulation.StatusBeginning))
	o.Advance()

	assocs = o.Associations()
	require.Len(t, assocs, 1)
	assert.Equal(t, 0.5, assocs[0].Strength, "re-formation starts from the initial strength")
	assert.Greater(t, assocs[0].ID, firstID)
}

func TestAdvance_LearnedBiasLowersEffectiveThreshold(t *testing.T) {
	def := rat()
	def.Responding.Triggers[0].Gain = 0.6
	weakLever := func(o *Organism) []string {
		require.NoError(t, o.Apply(update("lever", stimulation.StatusStable, 0.5)))
		o.Advance()
		require.NoError(t, o.Apply(update("lever", stimulation.StatusStable, 0.5)))
		return advanceNames(o)
	}

	naive := newOrganism(t, def)
	assert.Empty(t, weakLever(naive), "0.5 intensity alone stays below threshold")

	trained := newOrganism(t, def)
	require.NoError(t, trained.SetStatus("lever", stimulation.StatusBeginning))
	assert.Equal(t, []string{"press-lever"}, advanceNames(trained))
	require.NoError(t, trained.SetStatus("lever", stimulation.StatusAbsent))
	require.NoError(t, trained.SetStatus("food", stimulation.StatusBeginning))
	trained.Advance()
	require.NoError(t, trained.SetStatus("food", stimulation.StatusAbsent))

	assert.Equal(t, []string{"press-lever"}, weakLever(trained))
}

func TestAdvance_IsDeterministic(t *testing.T) {
	run := func() []Snapshot {
		o := newOrganism(t, rat())
		rng := rand.New(rand.NewPCG(7, 11))
		names := []string{"lever", "food", "predator"}
		var out []Snapshot
		for tick := 0; tick < 60; tick++ {
			for _, n := range names {
				status := stimulation.AllStatuses()[rng.IntN(4)]
				require.NoError(t, o.Apply(update(n, status, rng.Float64())))
			}
			o.Advance()
			out = append(out, o.Snapshot())
		}
		return out
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
	for _, snap := range first {
		assert.Len(t, snap.Stimulations, 3, "cardinality holds for the whole run")
		assert.False(t, contains(snap.Emitting, "eat") && contains(snap.Emitting, "flee"))
		assert.False(t, contains(snap.Emitting, "press-lever") && contains(snap.Emitting, "flee"))
	}
}

func TestAdvance_RejectsUpdatesWhileBusy(t *testing.T) {
	var o *Organism
	var busyErr error
	hook := zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
		if msg == "tick advanced" {
			busyErr = o.SetStatus("food", stimulation.StatusBeginning)
		}
	})
	o, err := New(foodEat(), WithLogger(zerolog.New(io.Discard).Level(zerolog.DebugLevel).Hook(hook)))
	require.NoError(t, err)

	o.Advance()

	assert.ErrorIs(t, busyErr, ErrBusy)
	assert.NoError(t, o.SetStatus("food", stimulation.StatusBeginning))
}

func advanceNames(o *Organism) []string {
	return actionNames(o.Advance())
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
