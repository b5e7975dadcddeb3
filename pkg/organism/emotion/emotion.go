// Package emotion derives affective variables from drive levels and the
// outcome of the latest tick. Values are recomputed from scratch each
// tick and never read their previous value.
package emotion

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/normanking/organism/pkg/organism/drives"
)

// Outcome counts what happened to responses and associations in one tick.
type Outcome struct {
	Reinforced int `json:"reinforced"`
	Punished   int `json:"punished"`
	Emitting   int `json:"emitting"`
	Suppressed int `json:"suppressed"`
	Retired    int `json:"retired"`
}

// OutcomeWeights scales each Outcome counter into an emotion.
type OutcomeWeights struct {
	Reinforced float64 `json:"reinforced,omitempty" yaml:"reinforced,omitempty"`
	Punished   float64 `json:"punished,omitempty" yaml:"punished,omitempty"`
	Emitting   float64 `json:"emitting,omitempty" yaml:"emitting,omitempty"`
	Suppressed float64 `json:"suppressed,omitempty" yaml:"suppressed,omitempty"`
	Retired    float64 `json:"retired,omitempty" yaml:"retired,omitempty"`
}

func (w OutcomeWeights) dot(o Outcome) float64 {
	return w.Reinforced*float64(o.Reinforced) +
		w.Punished*float64(o.Punished) +
		w.Emitting*float64(o.Emitting) +
		w.Suppressed*float64(o.Suppressed) +
		w.Retired*float64(o.Retired)
}

func (w OutcomeWeights) finite() bool {
	for _, v := range []float64{w.Reinforced, w.Punished, w.Emitting, w.Suppressed, w.Retired} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Emotion configures one derived variable:
//
//	value = clamp(Baseline + Σ DriveWeights[d]·normalized(d) + OutcomeWeights·outcome, Min, Max)
type Emotion struct {
	Name           string             `json:"name" yaml:"name"`
	Description    string             `json:"description,omitempty" yaml:"description,omitempty"`
	Min            float64            `json:"min" yaml:"min"`
	Max            float64            `json:"max" yaml:"max"`
	Baseline       float64            `json:"baseline" yaml:"baseline"`
	DriveWeights   map[string]float64 `json:"drive_weights,omitempty" yaml:"drive_weights,omitempty"`
	OutcomeWeights OutcomeWeights     `json:"outcome_weights" yaml:"outcome_weights"`
}

// Level is the current value of an emotion.
type Level struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	// Normalized maps Value onto [0,1] within the emotion's range.
	Normalized float64 `json:"normalized"`
}

// Subsystem is the Emotion Subsystem.
type Subsystem struct {
	emotions []Emotion
	weights  [][]string // sorted drive names per emotion
	values   []float64
	index    map[string]int
	drives   *drives.Subsystem
}

// NewSubsystem validates definitions against the drive subsystem and
// computes the initial values from the initial drives and an empty
// outcome.
func NewSubsystem(d *drives.Subsystem, defs []Emotion) (*Subsystem, error) {
	s := &Subsystem{
		index:  make(map[string]int, len(defs)),
		drives: d,
	}

	var errs []error
	for _, e := range defs {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("emotion with empty name"))
			continue
		}
		if _, dup := s.index[e.Name]; dup {
			errs = append(errs, fmt.Errorf("emotion %q declared twice", e.Name))
			continue
		}
		if !(e.Min < e.Max) {
			errs = append(errs, fmt.Errorf("emotion %q: min must be below max", e.Name))
		}
		if math.IsNaN(e.Baseline) || math.IsInf(e.Baseline, 0) || !e.OutcomeWeights.finite() {
			errs = append(errs, fmt.Errorf("emotion %q: weights must be finite", e.Name))
		}
		names := slices.Sorted(maps.Keys(e.DriveWeights))
		for _, name := range names {
			if _, ok := d.Value(name); !ok {
				errs = append(errs, fmt.Errorf("emotion %q: unknown drive %q", e.Name, name))
			}
			if w := e.DriveWeights[name]; math.IsNaN(w) || math.IsInf(w, 0) {
				errs = append(errs, fmt.Errorf("emotion %q: weight for drive %q must be finite", e.Name, name))
			}
		}

		e.DriveWeights = maps.Clone(e.DriveWeights)
		s.index[e.Name] = len(s.emotions)
		s.emotions = append(s.emotions, e)
		s.weights = append(s.weights, names)
		s.values = append(s.values, 0)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s.Update(Outcome{})
	return s, nil
}

// Update recomputes every emotion from the current drives and outcome.
func (s *Subsystem) Update(outcome Outcome) {
	for i, e := range s.emotions {
		v := e.Baseline + e.OutcomeWeights.dot(outcome)
		for _, name := range s.weights[i] {
			n, _ := s.drives.Normalized(name)
			v += e.DriveWeights[name] * n
		}
		s.values[i] = math.Max(e.Min, math.Min(e.Max, v))
	}
}

// Value returns the current value of the named emotion.
func (s *Subsystem) Value(name string) (float64, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.values[i], true
}

// Levels returns every emotion in declaration order.
func (s *Subsystem) Levels() []Level {
	out := make([]Level, len(s.emotions))
	for i, e := range s.emotions {
		out[i] = Level{Name: e.Name, Value: s.values[i], Normalized: (s.values[i] - e.Min) / (e.Max - e.Min)}
	}
	return out
}

// Definitions returns the configured emotions in declaration order.
func (s *Subsystem) Definitions() []Emotion {
	out := make([]Emotion, len(s.emotions))
	for i, e := range s.emotions {
		e.DriveWeights = maps.Clone(e.DriveWeights)
		out[i] = e
	}
	return out
}
