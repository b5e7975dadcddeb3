// Package agent adapts an organism to the host simulator's agent contract.
// Host stimuli and actions are plain names; statuses arrive in the host's
// own vocabulary and are translated at this boundary.
package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/organism/pkg/organism"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// Affiliation is reported for every organism component.
const Affiliation = "none"

// ErrUnsupported is returned for a stimulus delivered without a status.
var ErrUnsupported = errors.New("a stimulus must be delivered with an associated status")

// HostStatus is the host's stimulus status vocabulary.
type HostStatus string

const (
	HostAbsent    HostStatus = "absent"
	HostBeginning HostStatus = "beginning"
	HostStable    HostStatus = "stable"
	HostEnding    HostStatus = "ending"
)

// TranslateStatus maps a host status onto a stimulation status. Matching is
// case-insensitive; anything else is an InvalidStatusError.
func TranslateStatus(s HostStatus) (stimulation.Status, error) {
	switch HostStatus(strings.ToLower(strings.TrimSpace(string(s)))) {
	case HostAbsent:
		return stimulation.StatusAbsent, nil
	case HostBeginning:
		return stimulation.StatusBeginning, nil
	case HostStable:
		return stimulation.StatusStable, nil
	case HostEnding:
		return stimulation.StatusEnding, nil
	default:
		return 0, &stimulation.InvalidStatusError{Value: string(s)}
	}
}

// EnvironmentStimulus names a stimulus as the host sees it.
type EnvironmentStimulus struct {
	Name string `json:"name"`
}

func (s EnvironmentStimulus) String() string { return s.Name }

// EnvironmentAction names an action as the host sees it.
type EnvironmentAction struct {
	Name string `json:"name"`
}

func (a EnvironmentAction) String() string { return a.Name }

// ActionStatus tells the host whether an action is being performed.
type ActionStatus int

const (
	NotEmitting ActionStatus = iota
	Emitting
)

func (s ActionStatus) String() string {
	if s == Emitting {
		return "EMITTING"
	}
	return "NOT_EMITTING"
}

// Delivery is one stimulus delivered with its status and, optionally, a new
// intensity.
type Delivery struct {
	Stimulus  EnvironmentStimulus
	Status    HostStatus
	Intensity *float64
}

// Component wraps an organism behind the host agent contract.
type Component struct {
	id       string
	org      *organism.Organism
	emitting map[string]struct{}
}

// NewComponent wraps org with a fresh component ID.
func NewComponent(org *organism.Organism) *Component {
	return &Component{
		id:       uuid.NewString(),
		org:      org,
		emitting: make(map[string]struct{}),
	}
}

// ID returns the component identifier.
func (c *Component) ID() string { return c.id }

// Affiliation returns the component's team affiliation.
func (c *Component) Affiliation() string { return Affiliation }

// Organism returns the wrapped organism.
func (c *Component) Organism() *organism.Organism { return c.org }

// ReceiveStimulus updates the stimulation for s. Stimuli the organism does
// not recognize are ignored.
func (c *Component) ReceiveStimulus(s EnvironmentStimulus, status HostStatus) error {
	st, err := TranslateStatus(status)
	if err != nil {
		return fmt.Errorf("stimulus %s: %w", s.Name, err)
	}
	return c.org.SetStatus(s.Name, st)
}

// ReceiveBareStimulus always fails: the organism needs a status.
func (c *Component) ReceiveBareStimulus(s EnvironmentStimulus) error {
	return fmt.Errorf("stimulus %s: %w", s.Name, ErrUnsupported)
}

// Deliver applies a batch of deliveries. Each one is independent; failures
// are joined.
func (c *Component) Deliver(batch ...Delivery) error {
	updates := make([]stimulation.Update, 0, len(batch))
	var errs []error
	for _, d := range batch {
		st, err := TranslateStatus(d.Status)
		if err != nil {
			errs = append(errs, fmt.Errorf("stimulus %s: %w", d.Stimulus.Name, err))
			continue
		}
		updates = append(updates, stimulation.Update{Stimulus: d.Stimulus.Name, Status: st, Intensity: d.Intensity})
	}
	if err := c.org.Apply(updates...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Step advances the organism one tick and returns the emitting actions.
func (c *Component) Step() []EnvironmentAction {
	responses := c.org.Advance()

	clear(c.emitting)
	actions := make([]EnvironmentAction, 0, len(responses))
	for _, r := range responses {
		if _, seen := c.emitting[r.Action]; seen {
			continue
		}
		c.emitting[r.Action] = struct{}{}
		actions = append(actions, EnvironmentAction{Name: r.Action})
	}

	log.Trace().
		Str("component", c.id).
		Uint64("instant", uint64(c.org.Instant())).
		Int("emitting", len(actions)).
		Msg("component stepped")
	return actions
}

// ActionStatus reports whether a is being emitted as of the last Step.
func (c *Component) ActionStatus(a EnvironmentAction) ActionStatus {
	if _, ok := c.emitting[a.Name]; ok {
		return Emitting
	}
	return NotEmitting
}

// PossibleActions lists the organism's actions in catalog order.
func (c *Component) PossibleActions() []EnvironmentAction {
	actions := c.org.PossibleActions()
	out := make([]EnvironmentAction, len(actions))
	for i, a := range actions {
		out[i] = EnvironmentAction{Name: a.Name}
	}
	return out
}

// PossibleStimuli lists the organism's stimuli in catalog order.
func (c *Component) PossibleStimuli() []EnvironmentStimulus {
	stimuli := c.org.PossibleStimuli()
	out := make([]EnvironmentStimulus, len(stimuli))
	for i, s := range stimuli {
		out[i] = EnvironmentStimulus{Name: s.Name}
	}
	return out
}

func (c *Component) String() string {
	return fmt.Sprintf("[Organism %s %v, %v]", c.id, c.PossibleActions(), c.PossibleStimuli())
}
