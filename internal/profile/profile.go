// Package profile loads organism definitions from YAML documents.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/normanking/organism/pkg/organism"
	"github.com/normanking/organism/pkg/organism/drives"
	"github.com/normanking/organism/pkg/organism/emotion"
	"github.com/normanking/organism/pkg/organism/operant"
	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// Defaults fills fields a profile leaves at zero.
type Defaults struct {
	DecayRate float64 `yaml:"decay_rate"`
	Gain      float64 `yaml:"gain"`
}

// Profile is the YAML form of an organism definition.
type Profile struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Stimuli     []stimulation.Stimulus `yaml:"stimuli"`
	Actions     []responding.Action    `yaml:"actions"`
	Triggers    []responding.Trigger   `yaml:"triggers"`
	Exclusions  [][]string             `yaml:"exclusions,omitempty"`
	TieBreak    responding.TieBreak    `yaml:"tie_break,omitempty"`
	Learning    operant.Config         `yaml:"learning"`
	// Reinforcers are appended to any declared under learning.
	Reinforcers []operant.Reinforcer `yaml:"reinforcers,omitempty"`
	Drives      []drives.Drive       `yaml:"drives,omitempty"`
	Emotions    []emotion.Emotion    `yaml:"emotions,omitempty"`
	Defaults    Defaults             `yaml:"defaults"`

	// Source is the file the profile was read from, if any.
	Source string `yaml:"-"`
}

// ParseError reports a profile that could not be decoded or validated.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("profile: %v", e.Err)
	}
	return fmt.Sprintf("profile %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads and parses the profile at path.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	defer f.Close()

	p, err := decode(f)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	p.Source = path
	return p, nil
}

// Parse parses a profile document.
func Parse(data []byte) (*Profile, error) {
	p, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return p, nil
}

// LoadDir loads every .yaml and .yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profiles directory %s: %w", dir, err)
	}

	var (
		profiles []*Profile
		errs     []error
	)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		profiles = append(profiles, p)
	}
	slices.SortFunc(profiles, func(a, b *Profile) int { return strings.Compare(a.Source, b.Source) })
	return profiles, errors.Join(errs...)
}

func decode(r io.Reader) (*Profile, error) {
	p := &Profile{
		Learning: operant.DefaultConfig(),
		Defaults: Defaults{DecayRate: 1.0, Gain: 1.0},
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) applyDefaults() {
	for i := range p.Actions {
		if p.Actions[i].DecayRate == 0 {
			p.Actions[i].DecayRate = p.Defaults.DecayRate
		}
	}
	for i := range p.Triggers {
		if p.Triggers[i].Gain == 0 {
			p.Triggers[i].Gain = p.Defaults.Gain
		}
	}
	for i := range p.Drives {
		if d := &p.Drives[i]; d.Min == 0 && d.Max == 0 {
			d.Max = 1
		}
	}
	for i := range p.Emotions {
		if e := &p.Emotions[i]; e.Min == 0 && e.Max == 0 {
			e.Max = 1
		}
	}
}

// Validate checks the document shape. Semantic checks are left to
// organism.New, which Definition feeds.
func (p *Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if len(p.Actions) == 0 {
		errs = append(errs, fmt.Errorf("at least one action is required"))
	}
	for i, pair := range p.Exclusions {
		if len(pair) != 2 {
			errs = append(errs, fmt.Errorf("exclusions[%d]: want 2 actions, got %d", i, len(pair)))
		}
	}
	if p.Defaults.DecayRate <= 0 {
		errs = append(errs, fmt.Errorf("defaults.decay_rate must be > 0"))
	}
	return errors.Join(errs...)
}

// Definition converts the profile into an organism definition.
func (p *Profile) Definition() organism.Definition {
	learning := p.Learning
	learning.Reinforcers = append(slices.Clone(learning.Reinforcers), p.Reinforcers...)

	exclusions := make([][2]string, 0, len(p.Exclusions))
	for _, pair := range p.Exclusions {
		if len(pair) == 2 {
			exclusions = append(exclusions, [2]string{pair[0], pair[1]})
		}
	}

	return organism.Definition{
		Name:    p.Name,
		Stimuli: slices.Clone(p.Stimuli),
		Responding: responding.Config{
			Actions:    slices.Clone(p.Actions),
			Triggers:   slices.Clone(p.Triggers),
			Exclusions: exclusions,
			TieBreak:   p.TieBreak,
		},
		Learning: learning,
		Drives:   slices.Clone(p.Drives),
		Emotions: slices.Clone(p.Emotions),
	}
}

// Build validates the profile against the engine and returns a fresh
// organism.
func (p *Profile) Build(opts ...organism.Option) (*organism.Organism, error) {
	return organism.New(p.Definition(), opts...)
}
