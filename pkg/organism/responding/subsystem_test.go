package responding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

type fixedBiaser map[string][]Bias

func (f fixedBiaser) BiasesFor(context string) []Bias { return f[context] }

func testCatalog(t *testing.T, names ...string) *stimulation.Catalog {
	t.Helper()
	stimuli := make([]stimulation.Stimulus, len(names))
	for i, n := range names {
		stimuli[i] = stimulation.Stimulus{Name: n}
	}
	cat, err := stimulation.NewCatalog(stimuli)
	require.NoError(t, err)
	return cat
}

func present(name string, status stimulation.Status, intensity float64) stimulation.Stimulation {
	return stimulation.Stimulation{
		Stimulus:  stimulation.Stimulus{Name: name},
		Status:    status,
		Intensity: intensity,
	}
}

func actionNames(rs []Response) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Action)
	}
	return out
}

func foodEat(t *testing.T) *Subsystem {
	t.Helper()
	s, err := NewSubsystem(testCatalog(t, "food"), Config{
		Actions:  []Action{{Name: "eat", Threshold: 0.5, DecayRate: 0.4}},
		Triggers: []Trigger{{Stimulus: "food", Action: "eat", Gain: 1}},
	})
	require.NoError(t, err)
	return s
}

func tick(s *Subsystem, stims []stimulation.Stimulation, now stimulation.Instant) []Response {
	s.Select(stims, now)
	s.Resolve(now)
	s.Emit(now)
	s.Maintain(now)
	return s.Emitting()
}

func TestNewSubsystem_ConfigErrors(t *testing.T) {
	cat := testCatalog(t, "food")

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "unknown trigger stimulus",
			cfg: Config{
				Actions:  []Action{{Name: "eat", DecayRate: 1}},
				Triggers: []Trigger{{Stimulus: "water", Action: "eat", Gain: 1}},
			},
			want: `unknown stimulus "water"`,
		},
		{
			name: "unknown trigger action",
			cfg: Config{
				Actions:  []Action{{Name: "eat", DecayRate: 1}},
				Triggers: []Trigger{{Stimulus: "food", Action: "drink", Gain: 1}},
			},
			want: `unknown action "drink"`,
		},
		{
			name: "zero decay",
			cfg:  Config{Actions: []Action{{Name: "eat"}}},
			want: "decay_rate must be > 0",
		},
		{
			name: "self exclusion",
			cfg: Config{
				Actions:    []Action{{Name: "eat", DecayRate: 1}},
				Exclusions: [][2]string{{"eat", "eat"}},
			},
			want: "cannot exclude itself",
		},
		{
			name: "bad tie break",
			cfg: Config{
				Actions:  []Action{{Name: "eat", DecayRate: 1}},
				TieBreak: "random",
			},
			want: `unknown tie_break "random"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSubsystem(cat, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSelect_ThresholdIsStrict(t *testing.T) {
	s := foodEat(t)

	assert.Empty(t, s.Select([]stimulation.Stimulation{present("food", stimulation.StatusStable, 0.5)}, 0))
	assert.Len(t, s.Select([]stimulation.Stimulation{present("food", stimulation.StatusStable, 0.51)}, 0), 1)
}

func TestSelect_OnlyBeginningOrStableTrigger(t *testing.T) {
	for _, st := range []stimulation.Status{stimulation.StatusAbsent, stimulation.StatusEnding} {
		s := foodEat(t)
		assert.Empty(t, s.Select([]stimulation.Stimulation{present("food", st, 1)}, 0), st.String())
	}
}

func TestSelect_IsIdempotentWithinTick(t *testing.T) {
	s := foodEat(t)
	stims := []stimulation.Stimulation{present("food", stimulation.StatusBeginning, 0.8)}

	first := s.Select(stims, 0)
	second := s.Select(stims, 0)

	assert.Equal(t, first, second)
	assert.Len(t, s.Responses(), 1)
}

func TestFoodEatDecaysOverTwoTicks(t *testing.T) {
	s := foodEat(t)

	got := tick(s, []stimulation.Stimulation{present("food", stimulation.StatusBeginning, 0.8)}, 0)
	require.Equal(t, []string{"eat"}, actionNames(got))

	absent := []stimulation.Stimulation{present("food", stimulation.StatusAbsent, 0.8)}
	got = tick(s, absent, 1)
	assert.Equal(t, []string{"eat"}, actionNames(got), "momentum keeps eating one more tick")
	assert.Equal(t, StateDecaying, got[0].State)
	assert.InDelta(t, 0.4, got[0].Strength, 1e-12)

	assert.Empty(t, tick(s, absent, 2))
	assert.Empty(t, s.Responses())
	assert.Equal(t, 1, s.Report().Retired)
}

func TestRetriggerRestoresDecayingResponse(t *testing.T) {
	s := foodEat(t)
	tick(s, []stimulation.Stimulation{present("food", stimulation.StatusBeginning, 0.9)}, 0)
	tick(s, []stimulation.Stimulation{present("food", stimulation.StatusAbsent, 0.9)}, 1)

	got := tick(s, []stimulation.Stimulation{present("food", stimulation.StatusStable, 0.7)}, 2)
	require.Len(t, got, 1)
	assert.Equal(t, StateActive, got[0].State)
	assert.InDelta(t, 0.7, got[0].Strength, 1e-12)
	assert.Equal(t, stimulation.Instant(0), got[0].EmittedAt, "continuous emission keeps its start instant")
}

func approachFlee(t *testing.T, tieBreak TieBreak) *Subsystem {
	t.Helper()
	s, err := NewSubsystem(testCatalog(t, "predator", "mate"), Config{
		Actions: []Action{
			{Name: "flee", Threshold: 0.1, DecayRate: 1},
			{Name: "approach", Threshold: 0.1, DecayRate: 1},
		},
		Triggers: []Trigger{
			{Stimulus: "predator", Action: "flee", Gain: 1},
			{Stimulus: "mate", Action: "approach", Gain: 1},
		},
		Exclusions: [][2]string{{"approach", "flee"}},
		TieBreak:   tieBreak,
	})
	require.NoError(t, err)
	return s
}

func TestResolve_TieBreak(t *testing.T) {
	stims := []stimulation.Stimulation{
		present("predator", stimulation.StatusBeginning, 0.6),
		present("mate", stimulation.StatusBeginning, 0.6),
	}

	byOrdinal := approachFlee(t, TieBreakOrdinal)
	assert.Equal(t, []string{"flee"}, actionNames(tick(byOrdinal, stims, 0)), "flee is declared first")

	byName := approachFlee(t, TieBreakName)
	assert.Equal(t, []string{"approach"}, actionNames(tick(byName, stims, 0)))
}

func TestResolve_StrongerWins(t *testing.T) {
	s := approachFlee(t, TieBreakOrdinal)
	stims := []stimulation.Stimulation{
		present("predator", stimulation.StatusBeginning, 0.3),
		present("mate", stimulation.StatusBeginning, 0.9),
	}

	got := tick(s, stims, 0)
	assert.Equal(t, []string{"approach"}, actionNames(got))
	assert.Equal(t, 1, s.Report().Suppressed)
	assert.False(t, s.IsEmitting("flee"))
}

func TestResolve_NeverLeavesExclusivePairEmitting(t *testing.T) {
	s := approachFlee(t, TieBreakOrdinal)
	intensities := []float64{0.2, 0.9, 0.5, 0.5, 0.1, 1.0, 0.7}

	for i, v := range intensities {
		now := stimulation.Instant(i)
		stims := []stimulation.Stimulation{
			present("predator", stimulation.StatusStable, v),
			present("mate", stimulation.StatusStable, 1-v),
		}
		tick(s, stims, now)
		assert.False(t, s.IsEmitting("flee") && s.IsEmitting("approach"), "tick %d", i)
	}
}

func TestSelect_LearnedBiasCanCrossThreshold(t *testing.T) {
	s, err := NewSubsystem(testCatalog(t, "lever"), Config{
		Actions: []Action{{Name: "press-lever", Threshold: 0.5, DecayRate: 1}},
	})
	require.NoError(t, err)

	stims := []stimulation.Stimulation{present("lever", stimulation.StatusStable, 1)}
	assert.Empty(t, s.Select(stims, 0))

	s.SetBiaser(fixedBiaser{"lever": {{Action: "press-lever", Amount: 0.6}}})
	got := s.Select(stims, 1)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Strength, 1e-12)
}

func TestSelect_DanglingBiasIsFatal(t *testing.T) {
	s := foodEat(t)
	s.SetBiaser(fixedBiaser{"food": {{Action: "vanished", Amount: 1}}})

	defer func() {
		err := invariant.Recover(recover())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vanished")
	}()
	s.Select([]stimulation.Stimulation{present("food", stimulation.StatusStable, 1)}, 0)
	t.Fatal("expected invariant panic")
}
