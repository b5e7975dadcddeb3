package responding

import (
	"fmt"

	"github.com/normanking/organism/pkg/organism/stimulation"
)

// State is the emission state of a Response.
type State int

const (
	// StatePending is a fresh candidate awaiting conflict resolution.
	StatePending State = iota + 1
	// StateActive is an emitting response whose trigger is still present.
	StateActive
	// StateDecaying is an emitting response running on behavioral momentum.
	StateDecaying
	// StateSuppressed lost conflict resolution and is not emitting.
	StateSuppressed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateDecaying:
		return "decaying"
	case StateSuppressed:
		return "suppressed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Emitting reports whether a response in this state is being performed.
func (s State) Emitting() bool {
	return s == StateActive || s == StateDecaying
}

// Response is a runtime instance of an Action bound to the stimulus that
// triggered it. It is identified by (Context, Action).
type Response struct {
	Action   string  `json:"action"`
	Context  string  `json:"context"`
	Strength float64 `json:"strength"`
	State    State   `json:"state"`

	CreatedAt   stimulation.Instant `json:"created_at"`
	TriggeredAt stimulation.Instant `json:"triggered_at"`
	EmittedAt   stimulation.Instant `json:"emitted_at"`
}

// Key returns the response identity.
func (r Response) Key() Key {
	return Key{Context: r.Context, Action: r.Action}
}

// Key identifies a Response (and an operant association) by its
// stimulus context and action.
type Key struct {
	Context string `json:"context"`
	Action  string `json:"action"`
}

func (k Key) String() string {
	return k.Context + "->" + k.Action
}
