// Package sim drives an organism through a scripted scenario, persisting the
// trace of every tick and publishing it on the event bus.
package sim

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/normanking/organism/internal/agent"
)

// Scenario scripts the stimuli delivered to an organism over a run.
type Scenario struct {
	Name string `yaml:"name"`
	// Profile is the organism profile to run, relative to the scenario file.
	Profile string  `yaml:"profile,omitempty"`
	Ticks   int     `yaml:"ticks"`
	Seed    *uint64 `yaml:"seed,omitempty"`
	Steps   []Step  `yaml:"steps"`
	Noise   *Noise  `yaml:"noise,omitempty"`

	// Source is the file the scenario was read from, if any.
	Source string `yaml:"-"`
}

// Step is the batch of stimuli delivered before a given tick.
type Step struct {
	Tick    int             `yaml:"tick"`
	Stimuli []StimulusEvent `yaml:"stimuli"`
}

// StimulusEvent is one scripted delivery.
type StimulusEvent struct {
	Name      string           `yaml:"name"`
	Status    agent.HostStatus `yaml:"status"`
	Intensity *float64         `yaml:"intensity,omitempty"`
}

// Noise toggles the listed stimuli at random. Each tick, each stimulus
// flips between absent and beginning with probability Rate. Intensities
// are drawn uniformly from [MinIntensity, MaxIntensity].
type Noise struct {
	Stimuli      []string `yaml:"stimuli"`
	Rate         float64  `yaml:"rate"`
	MinIntensity float64  `yaml:"min_intensity,omitempty"`
	MaxIntensity float64  `yaml:"max_intensity,omitempty"`
}

// LoadScenario reads and validates the scenario at path.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := DecodeScenario(f)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	sc.Source = path
	return sc, nil
}

// DecodeScenario parses and validates a scenario document.
func DecodeScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(sc.Steps, func(a, b Step) int { return cmp.Compare(a.Tick, b.Tick) })
	return &sc, nil
}

// ProfilePath resolves Profile against the scenario's directory.
func (sc *Scenario) ProfilePath() string {
	if sc.Profile == "" || filepath.IsAbs(sc.Profile) || sc.Source == "" {
		return sc.Profile
	}
	return filepath.Join(filepath.Dir(sc.Source), sc.Profile)
}

// Validate checks the scenario shape.
func (sc *Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(sc.Name) == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if sc.Ticks <= 0 {
		errs = append(errs, fmt.Errorf("ticks must be > 0"))
	}
	for i, st := range sc.Steps {
		if st.Tick < 0 || st.Tick >= sc.Ticks {
			errs = append(errs, fmt.Errorf("steps[%d]: tick %d outside [0, %d)", i, st.Tick, sc.Ticks))
		}
		for j, ev := range st.Stimuli {
			if strings.TrimSpace(ev.Name) == "" {
				errs = append(errs, fmt.Errorf("steps[%d].stimuli[%d]: name is required", i, j))
			}
			if _, err := agent.TranslateStatus(ev.Status); err != nil {
				errs = append(errs, fmt.Errorf("steps[%d].stimuli[%d]: %w", i, j, err))
			}
			if v := ev.Intensity; v != nil && (*v < 0 || *v > 1) {
				errs = append(errs, fmt.Errorf("steps[%d].stimuli[%d]: intensity %v outside [0, 1]", i, j, *v))
			}
		}
	}
	if n := sc.Noise; n != nil {
		if n.Rate < 0 || n.Rate > 1 {
			errs = append(errs, fmt.Errorf("noise.rate must be in [0, 1]"))
		}
		if n.MinIntensity < 0 || n.MaxIntensity < n.MinIntensity || n.MaxIntensity > 1 {
			errs = append(errs, fmt.Errorf("noise intensity range must satisfy 0 <= min <= max <= 1"))
		}
		if sc.Seed == nil {
			errs = append(errs, fmt.Errorf("noise requires a seed"))
		}
	}
	return errors.Join(errs...)
}

// schedule indexes the scripted deliveries by tick.
func (sc *Scenario) schedule() map[int][]agent.Delivery {
	out := make(map[int][]agent.Delivery, len(sc.Steps))
	for _, st := range sc.Steps {
		for _, ev := range st.Stimuli {
			out[st.Tick] = append(out[st.Tick], agent.Delivery{
				Stimulus:  agent.EnvironmentStimulus{Name: ev.Name},
				Status:    ev.Status,
				Intensity: ev.Intensity,
			})
		}
	}
	return out
}

// noiseSource produces the random deliveries of a scenario.
type noiseSource struct {
	cfg     Noise
	rng     *rand.Rand
	present map[string]bool
}

func newNoiseSource(cfg *Noise, seed uint64) *noiseSource {
	if cfg == nil || len(cfg.Stimuli) == 0 {
		return nil
	}
	return &noiseSource{
		cfg:     *cfg,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		present: make(map[string]bool, len(cfg.Stimuli)),
	}
}

func (n *noiseSource) next() []agent.Delivery {
	if n == nil {
		return nil
	}
	var out []agent.Delivery
	for _, name := range n.cfg.Stimuli {
		if n.rng.Float64() >= n.cfg.Rate {
			continue
		}
		d := agent.Delivery{Stimulus: agent.EnvironmentStimulus{Name: name}}
		if n.present[name] {
			d.Status = agent.HostAbsent
		} else {
			d.Status = agent.HostBeginning
			if n.cfg.MaxIntensity > 0 {
				v := n.cfg.MinIntensity + n.rng.Float64()*(n.cfg.MaxIntensity-n.cfg.MinIntensity)
				d.Intensity = &v
			}
		}
		n.present[name] = !n.present[name]
		out = append(out, d)
	}
	return out
}
