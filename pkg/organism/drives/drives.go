// Package drives tracks homeostatic needs updated from the current
// stimulations.
package drives

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/normanking/organism/pkg/organism/stimulation"
)

// Drive configures one homeostatic variable. Deprivation stimuli raise it
// and satiation stimuli lower it, scaled by intensity. With neither
// present it moves by Drift.
type Drive struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Min         float64            `json:"min" yaml:"min"`
	Max         float64            `json:"max" yaml:"max"`
	Initial     float64            `json:"initial" yaml:"initial"`
	Drift       float64            `json:"drift" yaml:"drift"`
	Deprivation map[string]float64 `json:"deprivation,omitempty" yaml:"deprivation,omitempty"`
	Satiation   map[string]float64 `json:"satiation,omitempty" yaml:"satiation,omitempty"`
}

// Level is the current value of a drive.
type Level struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	// Normalized maps Value onto [0,1] within the drive's range.
	Normalized float64 `json:"normalized"`
}

// Subsystem is the Drive Subsystem.
type Subsystem struct {
	drives []Drive
	values []float64
	index  map[string]int
	logger zerolog.Logger
}

// NewSubsystem validates the drive definitions against the stimulus
// catalog and starts every drive at its initial value.
func NewSubsystem(stimuli *stimulation.Catalog, defs []Drive) (*Subsystem, error) {
	s := &Subsystem{
		index:  make(map[string]int, len(defs)),
		logger: zerolog.Nop(),
	}

	var errs []error
	for _, d := range defs {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("drive with empty name"))
			continue
		}
		if _, dup := s.index[d.Name]; dup {
			errs = append(errs, fmt.Errorf("drive %q declared twice", d.Name))
			continue
		}
		errs = append(errs, validate(stimuli, d))

		d.Deprivation = maps.Clone(d.Deprivation)
		d.Satiation = maps.Clone(d.Satiation)
		s.index[d.Name] = len(s.drives)
		s.drives = append(s.drives, d)
		s.values = append(s.values, d.Initial)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func validate(stimuli *stimulation.Catalog, d Drive) error {
	var errs []error
	for _, v := range []float64{d.Min, d.Max, d.Initial, d.Drift} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("drive %q: parameters must be finite", d.Name)
		}
	}
	if d.Min >= d.Max {
		errs = append(errs, fmt.Errorf("drive %q: min must be below max", d.Name))
	}
	if d.Initial < d.Min || d.Initial > d.Max {
		errs = append(errs, fmt.Errorf("drive %q: initial %g outside [%g, %g]", d.Name, d.Initial, d.Min, d.Max))
	}
	for _, group := range []struct {
		kind  string
		rates map[string]float64
	}{{"deprivation", d.Deprivation}, {"satiation", d.Satiation}} {
		kind, rates := group.kind, group.rates
		for _, name := range slices.Sorted(maps.Keys(rates)) {
			if !stimuli.Contains(name) {
				errs = append(errs, fmt.Errorf("drive %q: %s references unknown stimulus %q", d.Name, kind, name))
			}
			if r := rates[name]; math.IsNaN(r) || r < 0 {
				errs = append(errs, fmt.Errorf("drive %q: %s rate for %q must be >= 0", d.Name, kind, name))
			}
		}
	}
	return errors.Join(errs...)
}

// SetLogger replaces the subsystem logger.
func (s *Subsystem) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// Definitions returns the configured drives in declaration order.
func (s *Subsystem) Definitions() []Drive {
	out := make([]Drive, len(s.drives))
	for i, d := range s.drives {
		d.Deprivation = maps.Clone(d.Deprivation)
		d.Satiation = maps.Clone(d.Satiation)
		out[i] = d
	}
	return out
}

// Update moves every drive once from the present stimulations and clamps
// it to its range.
func (s *Subsystem) Update(stimulations []stimulation.Stimulation, now stimulation.Instant) {
	for i, d := range s.drives {
		delta, matched := 0.0, false
		for _, st := range stimulations {
			if !st.Present() {
				continue
			}
			if r, ok := d.Deprivation[st.Stimulus.Name]; ok {
				delta += r * st.Intensity
				matched = true
			}
			if r, ok := d.Satiation[st.Stimulus.Name]; ok {
				delta -= r * st.Intensity
				matched = true
			}
		}
		if !matched {
			delta = d.Drift
		}

		next := clamp(s.values[i]+delta, d.Min, d.Max)
		if next != s.values[i] {
			s.logger.Trace().Str("drive", d.Name).Float64("value", next).Uint64("instant", uint64(now)).Msg("drive updated")
		}
		s.values[i] = next
	}
}

// Value returns the current value of the named drive.
func (s *Subsystem) Value(name string) (float64, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.values[i], true
}

// Normalized returns the named drive mapped onto [0,1].
func (s *Subsystem) Normalized(name string) (float64, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.normalized(i), true
}

func (s *Subsystem) normalized(i int) float64 {
	d := s.drives[i]
	return (s.values[i] - d.Min) / (d.Max - d.Min)
}

// Levels returns every drive in declaration order.
func (s *Subsystem) Levels() []Level {
	out := make([]Level, len(s.drives))
	for i, d := range s.drives {
		out[i] = Level{Name: d.Name, Value: s.values[i], Normalized: s.normalized(i)}
	}
	return out
}

// Len returns the number of drives.
func (s *Subsystem) Len() int {
	return len(s.drives)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
