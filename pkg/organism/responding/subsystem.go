package responding

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// retireEpsilon absorbs float residue when strength decays to zero.
const retireEpsilon = 1e-9

// Bias is a learned contribution to an action's activation for one context.
type Bias struct {
	Action string
	Amount float64
}

// Biaser supplies learned biases during selection. The responding subsystem
// only reads them; the associations behind them are owned elsewhere.
type Biaser interface {
	BiasesFor(context string) []Bias
}

// Config is the responding part of an organism definition.
type Config struct {
	Actions    []Action
	Triggers   []Trigger
	Exclusions [][2]string
	TieBreak   TieBreak
}

// Report summarizes the responding stages of the latest tick.
type Report struct {
	Candidates int `json:"candidates"`
	Suppressed int `json:"suppressed"`
	Emitting   int `json:"emitting"`
	Retired    int `json:"retired"`
	// RetiredActions lists retired responses as "context->action" keys.
	RetiredActions []Key `json:"retired_actions,omitempty"`
}

// Subsystem is the Responding Subsystem.
type Subsystem struct {
	stimuli    *stimulation.Catalog
	actions    *ActionCatalog
	triggers   map[string][]Trigger // by stimulus, in action ordinal order
	exclusions exclusions
	tieBreak   TieBreak
	biaser     Biaser

	responses map[Key]*Response
	report    Report
	logger    zerolog.Logger
}

// NewSubsystem validates the configuration against the stimulus catalog.
func NewSubsystem(stimuli *stimulation.Catalog, cfg Config) (*Subsystem, error) {
	actions, err := NewActionCatalog(cfg.Actions)
	if err != nil {
		return nil, err
	}

	var errs []error
	if err := validateTriggers(stimuli, actions, cfg.Triggers); err != nil {
		errs = append(errs, err)
	}
	ex, err := newExclusions(actions, cfg.Exclusions)
	if err != nil {
		errs = append(errs, err)
	}
	tieBreak := cfg.TieBreak
	if tieBreak == "" {
		tieBreak = TieBreakOrdinal
	}
	if !tieBreak.Valid() {
		errs = append(errs, fmt.Errorf("unknown tie_break %q", cfg.TieBreak))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	byStimulus := make(map[string][]Trigger)
	for _, t := range cfg.Triggers {
		byStimulus[t.Stimulus] = append(byStimulus[t.Stimulus], t)
	}
	for s := range byStimulus {
		slices.SortFunc(byStimulus[s], func(a, b Trigger) int {
			return cmp.Compare(actions.Ordinal(a.Action), actions.Ordinal(b.Action))
		})
	}

	return &Subsystem{
		stimuli:    stimuli,
		actions:    actions,
		triggers:   byStimulus,
		exclusions: ex,
		tieBreak:   tieBreak,
		responses:  make(map[Key]*Response),
		logger:     zerolog.Nop(),
	}, nil
}

// SetBiaser installs the source of learned biases.
func (s *Subsystem) SetBiaser(b Biaser) {
	s.biaser = b
}

// SetLogger replaces the subsystem logger.
func (s *Subsystem) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// Actions returns the action catalog.
func (s *Subsystem) Actions() *ActionCatalog {
	return s.actions
}

// Exclusive reports whether two actions are declared mutually exclusive.
func (s *Subsystem) Exclusive(a, b string) bool {
	return s.exclusions.exclusive(a, b)
}

// Report returns the counters of the latest tick.
func (s *Subsystem) Report() Report {
	r := s.report
	r.RetiredActions = append([]Key(nil), r.RetiredActions...)
	return r
}

// ═══════════════════════════════════════════════════════════════════════════════
// BEHAVIOR SELECTION
// ═══════════════════════════════════════════════════════════════════════════════

// Select turns present stimulations into candidate responses. It upserts by
// (context, action), so repeating it within a tick never duplicates.
func (s *Subsystem) Select(stimulations []stimulation.Stimulation, now stimulation.Instant) []Response {
	s.report = Report{}
	var candidates []Response

	for _, st := range stimulations {
		if !st.Present() {
			continue
		}
		context := st.Stimulus.Name
		for _, c := range s.activations(context, st.Intensity) {
			action, _ := s.actions.Get(c.action)
			if c.activation <= action.Threshold {
				continue
			}
			candidates = append(candidates, s.upsert(context, c.action, c.activation, now))
		}
	}

	s.report.Candidates = len(candidates)
	return candidates
}

type activation struct {
	action     string
	activation float64
}

// activations merges innate triggers and learned biases for one context,
// ordered by action ordinal.
func (s *Subsystem) activations(context string, intensity float64) []activation {
	byAction := make(map[string]float64)
	for _, t := range s.triggers[context] {
		byAction[t.Action] += intensity * t.Gain
	}
	if s.biaser != nil {
		for _, b := range s.biaser.BiasesFor(context) {
			if !s.actions.Contains(b.Action) {
				invariant.Fail("responding", "learned bias %s->%s references an action missing from the catalog", context, b.Action)
			}
			byAction[b.Action] += b.Amount
		}
	}

	out := make([]activation, 0, len(byAction))
	for name, a := range byAction {
		out = append(out, activation{action: name, activation: a})
	}
	slices.SortFunc(out, func(a, b activation) int {
		return cmp.Compare(s.actions.Ordinal(a.action), s.actions.Ordinal(b.action))
	})
	return out
}

func (s *Subsystem) upsert(context, action string, strength float64, now stimulation.Instant) Response {
	key := Key{Context: context, Action: action}
	r, ok := s.responses[key]
	if !ok {
		r = &Response{Action: action, Context: context, CreatedAt: now}
		s.responses[key] = r
		s.logger.Debug().Str("response", key.String()).Float64("strength", strength).Msg("candidate response created")
	}
	r.Strength = strength
	r.TriggeredAt = now
	if r.State.Emitting() {
		r.State = StateActive
	} else {
		r.State = StatePending
	}
	return *r
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFLICT RESOLUTION
// ═══════════════════════════════════════════════════════════════════════════════

// Resolve demotes responses whose actions are excluded by a stronger
// response. Ties fall back to the configured total order.
func (s *Subsystem) Resolve(now stimulation.Instant) int {
	contenders := s.ordered(func(r *Response) bool {
		return r.State == StatePending || r.State.Emitting()
	})
	slices.SortStableFunc(contenders, s.precedence)

	var accepted []string
	suppressed := 0
	for _, r := range contenders {
		if s.excludedBy(r.Action, accepted) {
			r.State = StateSuppressed
			suppressed++
			s.logger.Debug().Str("response", r.Key().String()).Uint64("instant", uint64(now)).Msg("response suppressed by conflict resolution")
			continue
		}
		accepted = append(accepted, r.Action)
	}
	s.report.Suppressed = suppressed
	return suppressed
}

func (s *Subsystem) excludedBy(action string, accepted []string) bool {
	for _, other := range accepted {
		if s.exclusions.exclusive(action, other) {
			return true
		}
	}
	return false
}

// precedence orders by strength descending, then the tie-break order on
// actions, then the stimulus ordinal of the context.
func (s *Subsystem) precedence(a, b *Response) int {
	if c := cmp.Compare(b.Strength, a.Strength); c != 0 {
		return c
	}
	if c := s.compareActions(a.Action, b.Action); c != 0 {
		return c
	}
	return cmp.Compare(s.stimuli.Ordinal(a.Context), s.stimuli.Ordinal(b.Context))
}

func (s *Subsystem) compareActions(a, b string) int {
	if s.tieBreak == TieBreakName {
		return cmp.Compare(a, b)
	}
	return cmp.Compare(s.actions.Ordinal(a), s.actions.Ordinal(b))
}

// ═══════════════════════════════════════════════════════════════════════════════
// EMISSION AND MAINTENANCE
// ═══════════════════════════════════════════════════════════════════════════════

// Emit activates every surviving candidate and returns the emitting set.
func (s *Subsystem) Emit(now stimulation.Instant) []Response {
	for _, r := range s.responses {
		if r.State == StatePending {
			r.State = StateActive
			r.EmittedAt = now
		}
	}
	out := s.Emitting()
	s.report.Emitting = len(out)
	return out
}

// Maintain decays emitting responses whose trigger was not renewed this
// tick and retires them at zero strength. Untriggered suppressed responses
// are retired immediately. It never creates responses.
func (s *Subsystem) Maintain(now stimulation.Instant) int {
	var retired []Key
	for _, r := range s.ordered(nil) {
		if r.TriggeredAt == now {
			continue
		}
		switch {
		case r.State == StateSuppressed:
			retired = append(retired, r.Key())
		case r.State.Emitting():
			action, ok := s.actions.Get(r.Action)
			if !ok {
				invariant.Fail("responding", "response %s references an action missing from the catalog", r.Key())
			}
			r.Strength -= action.DecayRate
			r.State = StateDecaying
			if r.Strength <= retireEpsilon {
				retired = append(retired, r.Key())
			}
		}
	}

	for _, k := range retired {
		delete(s.responses, k)
		s.logger.Debug().Str("response", k.String()).Uint64("instant", uint64(now)).Msg("response retired")
	}
	s.report.Retired = len(retired)
	s.report.RetiredActions = retired
	s.report.Emitting = len(s.Emitting())
	return len(retired)
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

// Emitting returns copies of the emitting responses ordered by action
// ordinal, then context ordinal.
func (s *Subsystem) Emitting() []Response {
	ptrs := s.ordered(func(r *Response) bool { return r.State.Emitting() })
	out := make([]Response, len(ptrs))
	for i, r := range ptrs {
		out[i] = *r
	}
	return out
}

// IsEmitting reports whether any response for the action is emitting.
func (s *Subsystem) IsEmitting(action string) bool {
	for _, r := range s.responses {
		if r.Action == action && r.State.Emitting() {
			return true
		}
	}
	return false
}

// Responses returns copies of every live response in canonical order.
func (s *Subsystem) Responses() []Response {
	ptrs := s.ordered(nil)
	out := make([]Response, len(ptrs))
	for i, r := range ptrs {
		out[i] = *r
	}
	return out
}

// ordered returns the live responses matching keep in canonical order
// (action ordinal, then context ordinal). Map iteration never leaks out.
func (s *Subsystem) ordered(keep func(*Response) bool) []*Response {
	out := make([]*Response, 0, len(s.responses))
	for _, r := range s.responses {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b *Response) int {
		if c := cmp.Compare(s.actions.Ordinal(a.Action), s.actions.Ordinal(b.Action)); c != 0 {
			return c
		}
		return cmp.Compare(s.stimuli.Ordinal(a.Context), s.stimuli.Ordinal(b.Context))
	})
	return out
}
