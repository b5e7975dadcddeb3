package operant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

var pressKey = responding.Key{Context: "lever", Action: "press-lever"}

func testConfig() Config {
	return Config{
		Window:          2,
		InitialStrength: 0.5,
		LearningRate:    0.2,
		Cap:             1,
		EstablishAt:     0.8,
		ExtinctionRate:  0.05,
		MinStrength:     0.05,
		Influence:       1,
		Reinforcers: []Reinforcer{
			{Stimulus: "food", Magnitude: 1},
			{Stimulus: "shock", Magnitude: -1},
		},
	}
}

func newTestSubsystem(t *testing.T, cfg Config) *Subsystem {
	t.Helper()
	stimuli, err := stimulation.NewCatalog([]stimulation.Stimulus{{Name: "lever"}, {Name: "food"}, {Name: "shock"}})
	require.NoError(t, err)
	actions, err := responding.NewActionCatalog([]responding.Action{
		{Name: "press-lever", Threshold: 0.5, DecayRate: 1},
		{Name: "groom", Threshold: 0.5, DecayRate: 1},
	})
	require.NoError(t, err)

	s, err := NewSubsystem(stimuli, actions, cfg)
	require.NoError(t, err)
	return s
}

func onset(name string, now stimulation.Instant) []stimulation.Stimulation {
	return []stimulation.Stimulation{{
		Stimulus:  stimulation.Stimulus{Name: name},
		Status:    stimulation.StatusBeginning,
		Intensity: 1,
		Since:     now,
	}}
}

func pressing(now stimulation.Instant) []responding.Response {
	return []responding.Response{{
		Action:    "press-lever",
		Context:   "lever",
		Strength:  0.6,
		State:     responding.StateActive,
		EmittedAt: now,
	}}
}

// pressThenFeed emits press-lever at now and delivers food at now+1.
func pressThenFeed(s *Subsystem, now stimulation.Instant) {
	s.Form(nil, pressing(now), now)
	s.Form(onset("food", now+1), nil, now+1)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero window", func(c *Config) { c.Window = 0 }, "window"},
		{"initial above cap", func(c *Config) { c.InitialStrength = 2 }, "initial_strength"},
		{"min above initial", func(c *Config) { c.MinStrength = 0.6 }, "min_strength"},
		{"negative extinction", func(c *Config) { c.ExtinctionRate = -1 }, "extinction_rate"},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }, "learning_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, testConfig().Validate())
	assert.NoError(t, DefaultConfig().Validate())
}

func TestNewSubsystem_RejectsUnknownReinforcer(t *testing.T) {
	stimuli, err := stimulation.NewCatalog([]stimulation.Stimulus{{Name: "lever"}})
	require.NoError(t, err)
	actions, err := responding.NewActionCatalog([]responding.Action{{Name: "press-lever", DecayRate: 1}})
	require.NoError(t, err)

	_, err = NewSubsystem(stimuli, actions, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `reinforcer "food": unknown stimulus`)
}

func TestForm_ReinforcerOnsetWithinWindowForms(t *testing.T) {
	s := newTestSubsystem(t, testConfig())

	pressThenFeed(s, 1)

	a, ok := s.Get(pressKey)
	require.True(t, ok)
	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, 0.5, a.Strength)
	assert.Equal(t, PhaseForming, a.Phase)
	assert.Equal(t, stimulation.Instant(2), a.FormedAt)
	assert.Equal(t, []responding.Key{pressKey}, s.Report().Formed)
}

func TestForm_OutsideWindowDoesNothing(t *testing.T) {
	s := newTestSubsystem(t, testConfig())

	s.Form(nil, pressing(1), 1)
	s.Form(onset("food", 4), nil, 4)

	assert.Zero(t, s.Len())
}

func TestForm_SameTickEmissionIsNotEligible(t *testing.T) {
	s := newTestSubsystem(t, testConfig())

	s.Form(onset("food", 3), pressing(3), 3)

	assert.Zero(t, s.Len())
}

func TestForm_StaleBeginningIsNotAnOnset(t *testing.T) {
	s := newTestSubsystem(t, testConfig())

	s.Form(nil, pressing(1), 1)
	s.Form(onset("food", 1), nil, 2)

	assert.Zero(t, s.Len())
}

func TestForm_StrengthensUpToCap(t *testing.T) {
	s := newTestSubsystem(t, testConfig())

	for now := stimulation.Instant(0); now < 20; now += 2 {
		pressThenFeed(s, now)
		a, ok := s.Get(pressKey)
		require.True(t, ok)
		assert.LessOrEqual(t, a.Strength, 1.0)
	}

	a, _ := s.Get(pressKey)
	assert.Equal(t, 1.0, a.Strength)
	assert.Equal(t, PhaseEstablished, a.Phase)
	assert.Equal(t, 10, a.Reinforcements)
	assert.Equal(t, uint64(1), a.ID)
}

func TestForm_PunisherOnlyWeakens(t *testing.T) {
	s := newTestSubsystem(t, testConfig())

	s.Form(nil, pressing(0), 0)
	s.Form(onset("shock", 1), nil, 1)
	assert.Zero(t, s.Len(), "punishment never creates an association")

	pressThenFeed(s, 2)
	s.Form(nil, pressing(4), 4)
	s.Form(onset("shock", 5), nil, 5)

	a, ok := s.Get(pressKey)
	require.True(t, ok)
	assert.InDelta(t, 0.3, a.Strength, 1e-12)
	assert.Equal(t, 1, s.Report().Punished)
}

func TestEliminate_SkipsReinforcedThisTick(t *testing.T) {
	s := newTestSubsystem(t, testConfig())
	pressThenFeed(s, 1)

	assert.Zero(t, s.Eliminate(2))
	a, _ := s.Get(pressKey)
	assert.Equal(t, 0.5, a.Strength)

	s.Eliminate(3)
	a, _ = s.Get(pressKey)
	assert.InDelta(t, 0.45, a.Strength, 1e-12)
}

func TestEliminate_RemovesAndReformsAsNewAssociation(t *testing.T) {
	s := newTestSubsystem(t, testConfig())
	pressThenFeed(s, 1)
	s.Eliminate(2)

	removedAt := stimulation.Instant(0)
	for now := stimulation.Instant(3); now < 20; now++ {
		s.Form(nil, nil, now)
		if s.Eliminate(now) > 0 {
			removedAt = now
			break
		}
	}
	require.NotZero(t, removedAt, "association should extinguish")
	// Nine or ten decrements of 0.05 from 0.5 depending on float residue.
	assert.GreaterOrEqual(t, int(removedAt-2), 9)
	assert.LessOrEqual(t, int(removedAt-2), 10)
	assert.Equal(t, []responding.Key{pressKey}, s.Report().Removed)
	_, ok := s.Get(pressKey)
	assert.False(t, ok)

	pressThenFeed(s, 30)
	a, ok := s.Get(pressKey)
	require.True(t, ok)
	assert.Equal(t, uint64(2), a.ID)
	assert.Equal(t, 0.5, a.Strength)
	assert.Equal(t, 1, a.Reinforcements)
}

func TestEliminate_EstablishedBecomesExtinguishing(t *testing.T) {
	s := newTestSubsystem(t, testConfig())
	for now := stimulation.Instant(0); now < 6; now += 2 {
		pressThenFeed(s, now)
	}
	a, _ := s.Get(pressKey)
	require.Equal(t, PhaseEstablished, a.Phase)

	s.Eliminate(10)
	a, _ = s.Get(pressKey)
	assert.Equal(t, PhaseExtinguishing, a.Phase)

	pressThenFeed(s, 11)
	a, _ = s.Get(pressKey)
	assert.Equal(t, PhaseEstablished, a.Phase)
}

func TestApply_BiasesOnlyPresentContexts(t *testing.T) {
	cfg := testConfig()
	cfg.Influence = 0.5
	s := newTestSubsystem(t, cfg)
	pressThenFeed(s, 1)

	absent := []stimulation.Stimulation{{Stimulus: stimulation.Stimulus{Name: "lever"}, Status: stimulation.StatusAbsent, Intensity: 1}}
	assert.Zero(t, s.Apply(absent, 3))
	assert.Empty(t, s.BiasesFor("lever"))

	stable := []stimulation.Stimulation{{Stimulus: stimulation.Stimulus{Name: "lever"}, Status: stimulation.StatusStable, Intensity: 1}}
	assert.Equal(t, 1, s.Apply(stable, 4))
	assert.Equal(t, []responding.Bias{{Action: "press-lever", Amount: 0.25}}, s.BiasesFor("lever"))
}
