package operant

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// Config holds the learning parameters of an organism.
type Config struct {
	// Window is the number of instants after an emission during which a
	// reinforcer onset still counts.
	Window          uint64  `json:"window" yaml:"window"`
	InitialStrength float64 `json:"initial_strength" yaml:"initial_strength"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	Cap             float64 `json:"cap" yaml:"cap"`
	EstablishAt     float64 `json:"establish_at" yaml:"establish_at"`
	ExtinctionRate  float64 `json:"extinction_rate" yaml:"extinction_rate"`
	MinStrength     float64 `json:"min_strength" yaml:"min_strength"`
	// Influence scales association strength into selection bias.
	Influence   float64      `json:"influence" yaml:"influence"`
	Reinforcers []Reinforcer `json:"reinforcers" yaml:"reinforcers"`
}

// DefaultConfig returns learning parameters with no reinforcers.
func DefaultConfig() Config {
	return Config{
		Window:          3,
		InitialStrength: 0.5,
		LearningRate:    1.0,
		Cap:             1.0,
		EstablishAt:     0.6,
		ExtinctionRate:  0.05,
		MinStrength:     0.05,
		Influence:       1.0,
	}
}

// Validate checks internal consistency of the learning parameters.
func (c Config) Validate() error {
	var errs []error
	bad := func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

	if c.Window == 0 {
		errs = append(errs, fmt.Errorf("learning.window must be >= 1"))
	}
	if bad(c.Cap) || c.Cap <= 0 {
		errs = append(errs, fmt.Errorf("learning.cap must be > 0"))
	}
	if bad(c.InitialStrength) || c.InitialStrength <= 0 || c.InitialStrength > c.Cap {
		errs = append(errs, fmt.Errorf("learning.initial_strength must be in (0, cap]"))
	}
	if bad(c.MinStrength) || c.MinStrength <= 0 || c.MinStrength > c.InitialStrength {
		errs = append(errs, fmt.Errorf("learning.min_strength must be in (0, initial_strength]"))
	}
	if bad(c.EstablishAt) || c.EstablishAt <= 0 || c.EstablishAt > c.Cap {
		errs = append(errs, fmt.Errorf("learning.establish_at must be in (0, cap]"))
	}
	if bad(c.LearningRate) || c.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning.learning_rate must be > 0"))
	}
	if bad(c.ExtinctionRate) || c.ExtinctionRate < 0 {
		errs = append(errs, fmt.Errorf("learning.extinction_rate must be >= 0"))
	}
	if bad(c.Influence) || c.Influence < 0 {
		errs = append(errs, fmt.Errorf("learning.influence must be >= 0"))
	}
	return errors.Join(errs...)
}

// Report summarizes the operant stages of the latest tick.
type Report struct {
	Applied      int              `json:"applied"`
	Reinforced   int              `json:"reinforced"`
	Punished     int              `json:"punished"`
	Formed       []responding.Key `json:"formed,omitempty"`
	Strengthened int              `json:"strengthened"`
	Removed      []responding.Key `json:"removed,omitempty"`
}

// Subsystem is the Operant Conditioning Subsystem. It exclusively owns the
// associations; other subsystems see strengths through BiasesFor.
type Subsystem struct {
	cfg     Config
	stimuli *stimulation.Catalog
	actions *responding.ActionCatalog

	associations map[responding.Key]*Association
	reinforced   map[responding.Key]stimulation.Instant
	trace        map[responding.Key]stimulation.Instant
	biases       map[string][]responding.Bias
	nextID       uint64

	report Report
	logger zerolog.Logger
}

// NewSubsystem validates cfg against both catalogs.
func NewSubsystem(stimuli *stimulation.Catalog, actions *responding.ActionCatalog, cfg Config) (*Subsystem, error) {
	errs := []error{cfg.Validate()}
	seen := make(map[string]bool)
	for _, r := range cfg.Reinforcers {
		switch {
		case !stimuli.Contains(r.Stimulus):
			errs = append(errs, fmt.Errorf("reinforcer %q: unknown stimulus", r.Stimulus))
		case seen[r.Stimulus]:
			errs = append(errs, fmt.Errorf("reinforcer %q declared twice", r.Stimulus))
		}
		if math.IsNaN(r.Magnitude) || r.Magnitude == 0 {
			errs = append(errs, fmt.Errorf("reinforcer %q: magnitude must be non-zero", r.Stimulus))
		}
		seen[r.Stimulus] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg.Reinforcers = append([]Reinforcer(nil), cfg.Reinforcers...)
	return &Subsystem{
		cfg:          cfg,
		stimuli:      stimuli,
		actions:      actions,
		associations: make(map[responding.Key]*Association),
		reinforced:   make(map[responding.Key]stimulation.Instant),
		trace:        make(map[responding.Key]stimulation.Instant),
		biases:       make(map[string][]responding.Bias),
		logger:       zerolog.Nop(),
	}, nil
}

// SetLogger replaces the subsystem logger.
func (s *Subsystem) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// Config returns the learning parameters.
func (s *Subsystem) Config() Config {
	c := s.cfg
	c.Reinforcers = append([]Reinforcer(nil), c.Reinforcers...)
	return c
}

// Report returns the counters of the latest tick.
func (s *Subsystem) Report() Report {
	r := s.report
	r.Formed = append([]responding.Key(nil), r.Formed...)
	r.Removed = append([]responding.Key(nil), r.Removed...)
	return r
}

// BiasesFor implements responding.Biaser using the table built by the
// latest Apply.
func (s *Subsystem) BiasesFor(context string) []responding.Bias {
	return append([]responding.Bias(nil), s.biases[context]...)
}

// ═══════════════════════════════════════════════════════════════════════════════
// OPERANT OPERATION
// ═══════════════════════════════════════════════════════════════════════════════

// Apply rebuilds the bias table from associations whose context is
// currently present. Selection reads the table on the following tick.
func (s *Subsystem) Apply(stimulations []stimulation.Stimulation, now stimulation.Instant) int {
	s.report = Report{}

	presentCtx := make(map[string]bool, len(stimulations))
	for _, st := range stimulations {
		if st.Present() {
			presentCtx[st.Stimulus.Name] = true
		}
	}

	s.biases = make(map[string][]responding.Bias)
	applied := 0
	for _, a := range s.ordered() {
		if !s.actions.Contains(a.Key.Action) || !s.stimuli.Contains(a.Key.Context) {
			invariant.Fail("operant", "association %s references a catalog entry that no longer exists", a.Key)
		}
		if !presentCtx[a.Key.Context] {
			continue
		}
		s.biases[a.Key.Context] = append(s.biases[a.Key.Context], responding.Bias{
			Action: a.Key.Action,
			Amount: a.Strength * s.cfg.Influence,
		})
		applied++
	}
	s.report.Applied = applied
	return applied
}

// ═══════════════════════════════════════════════════════════════════════════════
// FORMATION
// ═══════════════════════════════════════════════════════════════════════════════

// Form reinforces every response emitted within the window before a
// reinforcer onset, then records the current emissions in the trace.
func (s *Subsystem) Form(stimulations []stimulation.Stimulation, emitting []responding.Response, now stimulation.Instant) {
	byName := make(map[string]stimulation.Stimulation, len(stimulations))
	for _, st := range stimulations {
		byName[st.Stimulus.Name] = st
	}

	eligible := s.eligible(now)
	for _, r := range s.cfg.Reinforcers {
		st, ok := byName[r.Stimulus]
		if !ok || st.Status != stimulation.StatusBeginning || st.Since != now {
			continue
		}
		for _, key := range eligible {
			s.reinforce(key, r.Magnitude, now)
		}
	}

	for _, r := range emitting {
		s.trace[r.Key()] = now
	}
	for key, at := range s.trace {
		if uint64(now-at) >= s.cfg.Window {
			delete(s.trace, key)
		}
	}
}

// eligible lists traced responses emitted strictly before now and no more
// than Window instants ago, in canonical order.
func (s *Subsystem) eligible(now stimulation.Instant) []responding.Key {
	var keys []responding.Key
	for key, at := range s.trace {
		if at < now && uint64(now-at) <= s.cfg.Window {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, s.compareKeys)
	return keys
}

func (s *Subsystem) reinforce(key responding.Key, magnitude float64, now stimulation.Instant) {
	a, exists := s.associations[key]
	if magnitude < 0 {
		if !exists {
			return
		}
		a.Strength = math.Max(0, a.Strength+magnitude*s.cfg.LearningRate)
		s.report.Punished++
		s.rephase(a, false)
		s.logger.Debug().Str("association", key.String()).Float64("strength", a.Strength).Msg("association punished")
		return
	}

	if !exists {
		s.nextID++
		a = &Association{
			ID:       s.nextID,
			Key:      key,
			Strength: s.cfg.InitialStrength,
			Phase:    PhaseForming,
			FormedAt: now,
		}
		s.associations[key] = a
		s.report.Formed = append(s.report.Formed, key)
		s.logger.Debug().Str("association", key.String()).Uint64("id", a.ID).Msg("association formed")
	} else {
		a.Strength = math.Min(s.cfg.Cap, a.Strength+magnitude*s.cfg.LearningRate)
		s.report.Strengthened++
	}
	a.LastReinforced = now
	a.Reinforcements++
	s.reinforced[key] = now
	s.report.Reinforced++
	s.rephase(a, true)
}

func (s *Subsystem) rephase(a *Association, growing bool) {
	switch {
	case a.Strength >= s.cfg.EstablishAt && growing:
		a.Phase = PhaseEstablished
	case a.Phase == PhaseEstablished || a.Phase == PhaseExtinguishing:
		if a.Strength < s.cfg.EstablishAt || !growing {
			a.Phase = PhaseExtinguishing
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ELIMINATION
// ═══════════════════════════════════════════════════════════════════════════════

// Eliminate decays every association that was not reinforced this tick and
// permanently removes those that fall below MinStrength.
func (s *Subsystem) Eliminate(now stimulation.Instant) int {
	for _, a := range s.ordered() {
		if at, ok := s.reinforced[a.Key]; ok && at == now {
			continue
		}
		a.Strength = math.Max(0, a.Strength-s.cfg.ExtinctionRate)
		if s.cfg.ExtinctionRate > 0 {
			s.rephase(a, false)
		}
		if a.Strength < s.cfg.MinStrength {
			delete(s.associations, a.Key)
			delete(s.reinforced, a.Key)
			s.report.Removed = append(s.report.Removed, a.Key)
			s.logger.Debug().Str("association", a.Key.String()).Uint64("id", a.ID).Msg("association extinguished")
		}
	}
	return len(s.report.Removed)
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

// Get returns a copy of the association for key.
func (s *Subsystem) Get(key responding.Key) (Association, bool) {
	a, ok := s.associations[key]
	if !ok {
		return Association{}, false
	}
	return *a, true
}

// Associations returns copies of every live association in canonical order.
func (s *Subsystem) Associations() []Association {
	ptrs := s.ordered()
	out := make([]Association, len(ptrs))
	for i, a := range ptrs {
		out[i] = *a
	}
	return out
}

// Len returns the number of live associations.
func (s *Subsystem) Len() int {
	return len(s.associations)
}

func (s *Subsystem) ordered() []*Association {
	out := make([]*Association, 0, len(s.associations))
	for _, a := range s.associations {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Association) int { return s.compareKeys(a.Key, b.Key) })
	return out
}

func (s *Subsystem) compareKeys(a, b responding.Key) int {
	if c := cmp.Compare(s.stimuli.Ordinal(a.Context), s.stimuli.Ordinal(b.Context)); c != 0 {
		return c
	}
	return cmp.Compare(s.actions.Ordinal(a.Action), s.actions.Ordinal(b.Action))
}
