package organism

import (
	"github.com/normanking/organism/pkg/organism/drives"
	"github.com/normanking/organism/pkg/organism/emotion"
	"github.com/normanking/organism/pkg/organism/invariant"
	"github.com/normanking/organism/pkg/organism/operant"
	"github.com/normanking/organism/pkg/organism/responding"
	"github.com/normanking/organism/pkg/organism/stimulation"
)

// TickReport describes what the most recent Advance did.
type TickReport struct {
	Instant    stimulation.Instant `json:"instant"`
	Responding responding.Report   `json:"responding"`
	Operant    operant.Report      `json:"operant"`
	Outcome    emotion.Outcome     `json:"outcome"`
}

// Snapshot is a consistent copy of the organism state between ticks.
type Snapshot struct {
	Name         string                    `json:"name"`
	Instant      stimulation.Instant       `json:"instant"`
	Stimulations []stimulation.Stimulation `json:"stimulations"`
	Responses    []responding.Response     `json:"responses"`
	Emitting     []string                  `json:"emitting"`
	Associations []operant.Association     `json:"associations"`
	Drives       []drives.Level            `json:"drives"`
	Emotions     []emotion.Level           `json:"emotions"`
	LastTick     TickReport                `json:"last_tick"`
}

// Advance runs one tick:
//
//	select → resolve → emit → maintain → apply → form → eliminate → drives → emotions
//
// and returns the emitting responses ordered by action ordinal. Broken
// invariants panic with *InvariantError.
func (o *Organism) Advance() []responding.Response {
	o.busy = true
	defer func() { o.busy = false }()

	now := o.now
	stims := o.registry.All()
	if len(stims) != o.registry.Catalog().Len() {
		invariant.Fail("organism", "registry holds %d stimulations for %d catalog stimuli", len(stims), o.registry.Catalog().Len())
	}

	o.responding.Select(stims, now)
	o.responding.Resolve(now)
	o.responding.Emit(now)
	o.responding.Maintain(now)
	emitting := o.responding.Emitting()
	o.checkExclusions(emitting)

	o.operant.Apply(stims, now)
	o.operant.Form(stims, emitting, now)
	o.operant.Eliminate(now)

	rr, or := o.responding.Report(), o.operant.Report()
	outcome := emotion.Outcome{
		Reinforced: or.Reinforced,
		Punished:   or.Punished,
		Emitting:   rr.Emitting,
		Suppressed: rr.Suppressed,
		Retired:    rr.Retired,
	}
	o.drives.Update(stims, now)
	o.emotions.Update(outcome)

	o.last = TickReport{Instant: now, Responding: rr, Operant: or, Outcome: outcome}
	o.now++
	o.registry.Sync(o.now)

	o.logger.Debug().
		Uint64("instant", uint64(now)).
		Strs("emitting", actionNames(emitting)).
		Int("associations", o.operant.Len()).
		Msg("tick advanced")
	return emitting
}

func (o *Organism) checkExclusions(emitting []responding.Response) {
	for i := range emitting {
		for j := i + 1; j < len(emitting); j++ {
			a, b := emitting[i].Action, emitting[j].Action
			if a != b && o.responding.Exclusive(a, b) {
				invariant.Fail("organism", "exclusive actions %q and %q both emitting", a, b)
			}
		}
	}
}

// Snapshot copies the organism state.
func (o *Organism) Snapshot() Snapshot {
	return Snapshot{
		Name:         o.name,
		Instant:      o.now,
		Stimulations: o.registry.All(),
		Responses:    o.responding.Responses(),
		Emitting:     o.EmittingActions(),
		Associations: o.operant.Associations(),
		Drives:       o.drives.Levels(),
		Emotions:     o.emotions.Levels(),
		LastTick:     o.last,
	}
}
