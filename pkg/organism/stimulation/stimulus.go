package stimulation

import (
	"errors"
	"fmt"
	"strings"
)

// Stimulus is a recognized category of environmental input. Identity is the
// name; the remaining fields are descriptive metadata.
type Stimulus struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Catalog is the fixed, ordered set of stimuli an organism recognizes.
// It is immutable once built; Get and All hand out copies.
type Catalog struct {
	stimuli []Stimulus
	index   map[string]int
}

// NewCatalog validates the stimuli and builds a catalog preserving their order.
func NewCatalog(stimuli []Stimulus) (*Catalog, error) {
	c := &Catalog{
		stimuli: make([]Stimulus, 0, len(stimuli)),
		index:   make(map[string]int, len(stimuli)),
	}

	var errs []error
	for i, s := range stimuli {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("stimulus #%d: name cannot be empty", i))
			continue
		}
		if _, dup := c.index[name]; dup {
			errs = append(errs, fmt.Errorf("stimulus %q declared twice", name))
			continue
		}
		s.Name = name
		s.Tags = append([]string(nil), s.Tags...)
		c.index[name] = len(c.stimuli)
		c.stimuli = append(c.stimuli, s)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of stimuli.
func (c *Catalog) Len() int {
	return len(c.stimuli)
}

// Get returns a copy of the named stimulus.
func (c *Catalog) Get(name string) (Stimulus, bool) {
	i, ok := c.index[name]
	if !ok {
		return Stimulus{}, false
	}
	return c.stimuli[i].clone(), true
}

// Contains reports whether the name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Ordinal returns the configured position of the stimulus, or -1.
func (c *Catalog) Ordinal(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// All returns copies of every stimulus in catalog order.
func (c *Catalog) All() []Stimulus {
	out := make([]Stimulus, len(c.stimuli))
	for i, s := range c.stimuli {
		out[i] = s.clone()
	}
	return out
}

// Names returns the stimulus names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.stimuli))
	for i, s := range c.stimuli {
		out[i] = s.Name
	}
	return out
}

func (s Stimulus) clone() Stimulus {
	s.Tags = append([]string(nil), s.Tags...)
	return s
}
