// Package operant implements operant conditioning: learned associations
// between a stimulus context and a response, formed by reinforcement and
// removed by extinction.
package operant

import (
	"fmt"

	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// Phase is the lifecycle phase of a live association. Unformed and removed
// associations are represented by absence.
type Phase int

const (
	// PhaseForming is below the establishment strength.
	PhaseForming Phase = iota + 1
	// PhaseEstablished reached the establishment strength.
	PhaseEstablished
	// PhaseExtinguishing was established and is losing strength.
	PhaseExtinguishing
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseForming:
		return "forming"
	case PhaseEstablished:
		return "established"
	case PhaseExtinguishing:
		return "extinguishing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Association links a (context, response) pair to an outcome strength.
// ID is a generation number: an association removed and formed again gets
// a new ID and starts from the initial strength.
type Association struct {
	ID             uint64              `json:"id"`
	Key            responding.Key      `json:"key"`
	Strength       float64             `json:"strength"`
	Phase          Phase               `json:"phase"`
	FormedAt       stimulation.Instant `json:"formed_at"`
	LastReinforced stimulation.Instant `json:"last_reinforced"`
	Reinforcements int                 `json:"reinforcements"`
}

// Reinforcer is a stimulus whose onset reinforces recently emitted
// responses. A negative magnitude punishes: it only weakens existing
// associations.
type Reinforcer struct {
	Stimulus  string  `json:"stimulus" yaml:"stimulus"`
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
}
