// Package stimulation holds the organism's perceptual state: the catalog of
// recognized stimuli and one Stimulation record per stimulus.
package stimulation

import (
	"errors"
	"fmt"
	"strings"
)

// Instant is the discrete simulation tick counter. It is owned by the
// organism's orchestrator and threaded through every pipeline stage.
type Instant uint64

// Status is the transition status of a stimulation.
// The zero value is undefined and rejected by every update path.
type Status int

const (
	statusUndefined Status = iota
	// StatusAbsent means the stimulus is not perceived.
	StatusAbsent
	// StatusBeginning means the stimulus started this instant.
	StatusBeginning
	// StatusStable means the stimulus persists.
	StatusStable
	// StatusEnding means the stimulus is fading out.
	StatusEnding
)

// ErrInvalidStatus is matched by every InvalidStatusError.
var ErrInvalidStatus = errors.New("invalid stimulus status")

// InvalidStatusError reports a status update carrying a value outside the
// four defined statuses.
type InvalidStatusError struct {
	Stimulus string
	Value    string
}

func (e *InvalidStatusError) Error() string {
	if e.Stimulus == "" {
		return fmt.Sprintf("invalid stimulus status %q", e.Value)
	}
	return fmt.Sprintf("invalid status %q for stimulus %q", e.Value, e.Stimulus)
}

// Is lets errors.Is(err, ErrInvalidStatus) match.
func (e *InvalidStatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// AllStatuses returns the defined statuses in declaration order.
func AllStatuses() []Status {
	return []Status{StatusAbsent, StatusBeginning, StatusStable, StatusEnding}
}

// Valid returns true if s is one of the four defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAbsent, StatusBeginning, StatusStable, StatusEnding:
		return true
	default:
		return false
	}
}

// Present reports whether the status can trigger behavior.
func (s Status) Present() bool {
	return s == StatusBeginning || s == StatusStable
}

// String returns the canonical upper-case name.
func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "ABSENT"
	case StatusBeginning:
		return "BEGINNING"
	case StatusStable:
		return "STABLE"
	case StatusEnding:
		return "ENDING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus converts a case-insensitive status name into a Status.
func ParseStatus(text string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "ABSENT":
		return StatusAbsent, nil
	case "BEGINNING":
		return StatusBeginning, nil
	case "STABLE":
		return StatusStable, nil
	case "ENDING":
		return StatusEnding, nil
	default:
		return statusUndefined, &InvalidStatusError{Value: text}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &InvalidStatusError{Value: s.String()}
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
