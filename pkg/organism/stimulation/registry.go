package stimulation

import (
	"errors"
	"fmt"
	"math"
)

// DefaultIntensity is the intensity every stimulation starts with.
const DefaultIntensity = 1.0

// ErrInvalidIntensity is matched by every InvalidIntensityError.
var ErrInvalidIntensity = errors.New("invalid stimulus intensity")

// InvalidIntensityError reports an intensity outside [0, 1] or NaN.
type InvalidIntensityError struct {
	Stimulus  string
	Intensity float64
}

func (e *InvalidIntensityError) Error() string {
	return fmt.Sprintf("intensity %v for stimulus %q outside [0, 1]", e.Intensity, e.Stimulus)
}

// Is lets errors.Is(err, ErrInvalidIntensity) match.
func (e *InvalidIntensityError) Is(target error) bool {
	return target == ErrInvalidIntensity
}

// Stimulation is the organism's current record for one stimulus.
type Stimulation struct {
	Stimulus  Stimulus `json:"stimulus"`
	Intensity float64  `json:"intensity"`
	Status    Status   `json:"status"`
	// Since is the instant of the last status change.
	Since Instant `json:"since"`
}

// Present reports whether the stimulation can trigger behavior.
func (s Stimulation) Present() bool {
	return s.Status.Present()
}

// Update is one host-supplied change for a single stimulus. A nil Intensity
// leaves the current intensity untouched.
type Update struct {
	Stimulus  string
	Status    Status
	Intensity *float64
}

// Registry holds exactly one Stimulation per catalog stimulus. Records live
// in an arena indexed by catalog ordinal; none are added or removed after
// construction.
type Registry struct {
	catalog *Catalog
	records []Stimulation
	now     Instant
}

// NewRegistry creates the registry with every stimulation ABSENT at
// DefaultIntensity.
func NewRegistry(catalog *Catalog) *Registry {
	r := &Registry{
		catalog: catalog,
		records: make([]Stimulation, catalog.Len()),
	}
	for i, s := range catalog.stimuli {
		r.records[i] = Stimulation{
			Stimulus:  s.clone(),
			Intensity: DefaultIntensity,
			Status:    StatusAbsent,
		}
	}
	return r
}

// Catalog returns the catalog the registry was built from.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Len returns the number of stimulations, always equal to the catalog size.
func (r *Registry) Len() int {
	return len(r.records)
}

// Sync records the orchestrator's current instant; status changes made
// afterwards are stamped with it.
func (r *Registry) Sync(now Instant) {
	r.now = now
}

// Get returns a copy of the stimulation for the named stimulus.
func (r *Registry) Get(name string) (Stimulation, bool) {
	i, ok := r.catalog.index[name]
	if !ok {
		return Stimulation{}, false
	}
	return r.copyAt(i), true
}

// SetStatus changes the status of a known stimulus. Unknown stimuli are
// ignored; undefined statuses are rejected without touching state.
func (r *Registry) SetStatus(name string, status Status) error {
	return r.Apply(Update{Stimulus: name, Status: status})
}

// SetIntensity changes the intensity of a known stimulus, keeping its status.
func (r *Registry) SetIntensity(name string, intensity float64) error {
	i, ok := r.catalog.index[name]
	if !ok {
		return nil
	}
	if err := checkIntensity(name, intensity); err != nil {
		return err
	}
	r.records[i].Intensity = intensity
	return nil
}

// Apply validates and applies one update atomically.
func (r *Registry) Apply(u Update) error {
	i, ok := r.catalog.index[u.Stimulus]
	if !ok {
		return nil
	}
	if !u.Status.Valid() {
		return &InvalidStatusError{Stimulus: u.Stimulus, Value: u.Status.String()}
	}
	if u.Intensity != nil {
		if err := checkIntensity(u.Stimulus, *u.Intensity); err != nil {
			return err
		}
	}

	rec := &r.records[i]
	if rec.Status != u.Status {
		rec.Status = u.Status
		rec.Since = r.now
	}
	if u.Intensity != nil {
		rec.Intensity = *u.Intensity
	}
	return nil
}

// All returns copies of every stimulation in catalog order.
func (r *Registry) All() []Stimulation {
	out := make([]Stimulation, len(r.records))
	for i := range r.records {
		out[i] = r.copyAt(i)
	}
	return out
}

// Each calls fn for every stimulation in catalog order. The Tags slice is
// shared with the registry and must not be modified.
func (r *Registry) Each(fn func(ordinal int, s Stimulation)) {
	for i, rec := range r.records {
		fn(i, rec)
	}
}

func (r *Registry) copyAt(i int) Stimulation {
	s := r.records[i]
	s.Stimulus = s.Stimulus.clone()
	return s
}

func checkIntensity(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &InvalidIntensityError{Stimulus: name, Intensity: v}
	}
	return nil
}
