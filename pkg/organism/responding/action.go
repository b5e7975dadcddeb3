// Package responding owns the organism's action repertoire and the runtime
// Responses built from it: behavior selection, conflict resolution, emission
// and maintenance.
package responding

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/normanking/organism/pkg/organism/stimulation"
)

// Action is a recognized category of behavioral output.
type Action struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Threshold is the activation a candidate must strictly exceed.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// DecayRate is the strength lost per tick once the trigger is gone.
	DecayRate float64 `json:"decay_rate" yaml:"decay_rate"`
}

// Trigger maps a stimulus onto an action. Activation contributed by the
// trigger is the stimulation intensity times Gain.
type Trigger struct {
	Stimulus string  `json:"stimulus" yaml:"stimulus"`
	Action   string  `json:"action" yaml:"action"`
	Gain     float64 `json:"gain" yaml:"gain"`
}

// TieBreak selects the total order used when two candidates have equal strength.
type TieBreak string

const (
	// TieBreakOrdinal prefers the action declared first in the catalog.
	TieBreakOrdinal TieBreak = "ordinal"
	// TieBreakName prefers the lexicographically smaller action name.
	TieBreakName TieBreak = "name"
)

// Valid returns true if the TieBreak is known.
func (t TieBreak) Valid() bool {
	return t == TieBreakOrdinal || t == TieBreakName
}

// ActionCatalog is the immutable, ordered set of canonical actions.
type ActionCatalog struct {
	actions []Action
	index   map[string]int
}

// NewActionCatalog validates and indexes the actions in declaration order.
func NewActionCatalog(actions []Action) (*ActionCatalog, error) {
	c := &ActionCatalog{
		actions: make([]Action, 0, len(actions)),
		index:   make(map[string]int, len(actions)),
	}

	var errs []error
	for i, a := range actions {
		a.Name = strings.TrimSpace(a.Name)
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("action #%d: name cannot be empty", i))
			continue
		case c.Contains(a.Name):
			errs = append(errs, fmt.Errorf("action %q declared twice", a.Name))
			continue
		}
		if math.IsNaN(a.Threshold) || a.Threshold < 0 {
			errs = append(errs, fmt.Errorf("action %q: threshold must be >= 0", a.Name))
		}
		if math.IsNaN(a.DecayRate) || a.DecayRate <= 0 {
			errs = append(errs, fmt.Errorf("action %q: decay_rate must be > 0", a.Name))
		}
		c.index[a.Name] = len(c.actions)
		c.actions = append(c.actions, a)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of actions.
func (c *ActionCatalog) Len() int {
	return len(c.actions)
}

// Get returns a copy of the named action.
func (c *ActionCatalog) Get(name string) (Action, bool) {
	i, ok := c.index[name]
	if !ok {
		return Action{}, false
	}
	return c.actions[i], true
}

// Contains reports whether the action is in the catalog.
func (c *ActionCatalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Ordinal returns the declaration position of the action, or -1.
func (c *ActionCatalog) Ordinal(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// All returns copies of every action in catalog order.
func (c *ActionCatalog) All() []Action {
	return append([]Action(nil), c.actions...)
}

// Names returns the action names in catalog order.
func (c *ActionCatalog) Names() []string {
	out := make([]string, len(c.actions))
	for i, a := range c.actions {
		out[i] = a.Name
	}
	return out
}

// exclusions is the symmetric mutual-exclusion relation between actions.
type exclusions map[[2]string]struct{}

func newExclusions(actions *ActionCatalog, pairs [][2]string) (exclusions, error) {
	ex := make(exclusions, len(pairs))
	var errs []error
	for _, p := range pairs {
		a, b := p[0], p[1]
		if a == b {
			errs = append(errs, fmt.Errorf("exclusion %q/%q: an action cannot exclude itself", a, b))
			continue
		}
		for _, name := range []string{a, b} {
			if !actions.Contains(name) {
				errs = append(errs, fmt.Errorf("exclusion %q/%q: unknown action %q", a, b, name))
			}
		}
		ex[exclusionKey(a, b)] = struct{}{}
	}
	return ex, errors.Join(errs...)
}

func (ex exclusions) exclusive(a, b string) bool {
	if a == b {
		return false
	}
	_, ok := ex[exclusionKey(a, b)]
	return ok
}

func exclusionKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func validateTriggers(stimuli *stimulation.Catalog, actions *ActionCatalog, triggers []Trigger) error {
	var errs []error
	seen := make(map[[2]string]bool, len(triggers))
	for _, t := range triggers {
		if !stimuli.Contains(t.Stimulus) {
			errs = append(errs, fmt.Errorf("trigger %s->%s: unknown stimulus %q", t.Stimulus, t.Action, t.Stimulus))
		}
		if !actions.Contains(t.Action) {
			errs = append(errs, fmt.Errorf("trigger %s->%s: unknown action %q", t.Stimulus, t.Action, t.Action))
		}
		if math.IsNaN(t.Gain) || t.Gain <= 0 {
			errs = append(errs, fmt.Errorf("trigger %s->%s: gain must be > 0", t.Stimulus, t.Action))
		}
		k := [2]string{t.Stimulus, t.Action}
		if seen[k] {
			errs = append(errs, fmt.Errorf("trigger %s->%s declared twice", t.Stimulus, t.Action))
		}
		seen[k] = true
	}
	return errors.Join(errs...)
}
