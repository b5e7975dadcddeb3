// Package organism is the tick orchestrator of a synthetic organism. It owns
// the stimulation registry and the responding, operant, drive and emotion
// subsystems, and advances them in a fixed order once per tick.
//
// An Organism is single-threaded and performs no I/O. Independent
// organisms may run on separate goroutines.
package organism

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/organism/pkg/organism/drives"
	"github.com/normanking/organism/pkg/organism/emotion"
	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/operant"
	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// ErrBusy is returned for stimulation updates issued while Advance runs.
var ErrBusy = errors.New("organism is advancing")

// InvariantError is the panic value raised when a runtime invariant breaks.
type InvariantError = invariant.Error

// Definition is the complete configuration of an organism.
type Definition struct {
	Name       string
	Stimuli    []stimulation.Stimulus
	Responding responding.Config
	Learning   operant.Config
	Drives     []drives.Drive
	Emotions   []emotion.Emotion
}

// ConfigError aggregates every problem found in a Definition.
type ConfigError struct {
	Organism string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Organism == "" {
		return fmt.Sprintf("invalid organism definition: %v", e.Err)
	}
	return fmt.Sprintf("invalid organism definition %q: %v", e.Organism, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Option configures an Organism.
type Option func(*Organism)

// WithLogger sets the logger used by the organism and its subsystems.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Organism) {
		o.logger = l
	}
}

// Organism is the tick orchestrator.
type Organism struct {
	name string
	now  stimulation.Instant
	busy bool

	registry   *stimulation.Registry
	responding *responding.Subsystem
	operant    *operant.Subsystem
	drives     *drives.Subsystem
	emotions   *emotion.Subsystem

	last   TickReport
	logger zerolog.Logger
}

// New validates def and builds an organism at instant zero with every
// stimulation ABSENT.
func New(def Definition, opts ...Option) (*Organism, error) {
	o := &Organism{name: def.Name, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	stimuli, err := stimulation.NewCatalog(def.Stimuli)
	if err != nil {
		return nil, &ConfigError{Organism: def.Name, Err: err}
	}

	var errs []error
	resp, err := responding.NewSubsystem(stimuli, def.Responding)
	if err != nil {
		errs = append(errs, err)
	}
	dr, err := drives.NewSubsystem(stimuli, def.Drives)
	if err != nil {
		errs = append(errs, err)
	}
	if resp != nil {
		o.operant, err = operant.NewSubsystem(stimuli, resp.Actions(), def.Learning)
		if err != nil {
			errs = append(errs, err)
		}
	} else {
		errs = append(errs, def.Learning.Validate())
	}
	if dr != nil {
		o.emotions, err = emotion.NewSubsystem(dr, def.Emotions)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, &ConfigError{Organism: def.Name, Err: err}
	}

	o.registry = stimulation.NewRegistry(stimuli)
	o.responding = resp
	o.drives = dr
	o.responding.SetBiaser(o.operant)
	o.responding.SetLogger(o.logger.With().Str("subsystem", "responding").Logger())
	o.operant.SetLogger(o.logger.With().Str("subsystem", "operant").Logger())
	o.drives.SetLogger(o.logger.With().Str("subsystem", "drives").Logger())

	o.logger.Debug().
		Str("organism", o.name).
		Int("stimuli", stimuli.Len()).
		Int("actions", resp.Actions().Len()).
		Msg("organism created")
	return o, nil
}

// Name returns the definition name.
func (o *Organism) Name() string {
	return o.name
}

// Instant returns the instant the next Advance will process.
func (o *Organism) Instant() stimulation.Instant {
	return o.now
}

// ═══════════════════════════════════════════════════════════════════════════════
// STIMULATION INPUT
// ═══════════════════════════════════════════════════════════════════════════════

// SetStatus updates one stimulation. Unknown stimuli are ignored.
func (o *Organism) SetStatus(name string, status stimulation.Status) error {
	if o.busy {
		return ErrBusy
	}
	return o.registry.SetStatus(name, status)
}

// SetIntensity updates the intensity of one stimulation. Unknown stimuli
// are ignored.
func (o *Organism) SetIntensity(name string, intensity float64) error {
	if o.busy {
		return ErrBusy
	}
	return o.registry.SetIntensity(name, intensity)
}

// Apply applies a batch of updates. Each update is atomic on its own; an
// invalid update is reported and the rest of the batch still applies.
func (o *Organism) Apply(updates ...stimulation.Update) error {
	if o.busy {
		return ErrBusy
	}
	var errs []error
	for _, u := range updates {
		if err := o.registry.Apply(u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stimulation returns the current record for a stimulus.
func (o *Organism) Stimulation(name string) (stimulation.Stimulation, bool) {
	return o.registry.Get(name)
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

// PossibleActions returns the action catalog in declaration order.
func (o *Organism) PossibleActions() []responding.Action {
	return o.responding.Actions().All()
}

// PossibleStimuli returns the stimulus catalog in declaration order.
func (o *Organism) PossibleStimuli() []stimulation.Stimulus {
	return o.registry.Catalog().All()
}

// IsEmitting reports whether the action is currently emitting.
func (o *Organism) IsEmitting(action string) bool {
	return o.responding.IsEmitting(action)
}

// EmittingActions returns the distinct emitting action names in action
// catalog order.
func (o *Organism) EmittingActions() []string {
	return actionNames(o.responding.Emitting())
}

// Emitting returns the emitting responses ordered by action ordinal.
func (o *Organism) Emitting() []responding.Response {
	return o.responding.Emitting()
}

// Associations returns the live operant associations.
func (o *Organism) Associations() []operant.Association {
	return o.operant.Associations()
}

// Drive returns the current value of a drive.
func (o *Organism) Drive(name string) (float64, bool) {
	return o.drives.Value(name)
}

// Emotion returns the current value of an emotion.
func (o *Organism) Emotion(name string) (float64, bool) {
	return o.emotions.Value(name)
}

// LastTick returns the report of the most recent Advance.
func (o *Organism) LastTick() TickReport {
	return o.last
}

func actionNames(rs []responding.Response) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if n := len(out); n > 0 && out[n-1] == r.Action {
			continue
		}
		out = append(out, r.Action)
	}
	return out
}
