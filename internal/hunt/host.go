package hunt

import (
	"time"

	"github.com/cory-johannsen/huntbot/internal/hunt/attack"
	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
	"github.com/cory-johannsen/huntbot/internal/hunt/spatial"
)

// TaskHandle identifies a periodic task registered with a TimerHost.
type TaskHandle uint64

// TimerHost is the host's cooperative timer facility. Callbacks are invoked on the host's
// single execution turn with the time of the firing.
type TimerHost interface {
	RegisterPeriodic(interval time.Duration, fn func(now time.Time)) TaskHandle
	Cancel(h TaskHandle)
}

// SelfState is the controlled actor as seen by the host.
type SelfState struct {
	Entity  entity.Entity
	Mana    int
	MaxMana int
}

// Self reads the controlled actor. An error skips decision-making for the tick.
type Self interface {
	Snapshot() (SelfState, error)
}

// World is the host's spatial query; an alias keeps host adapters free of the spatial
// package.
type World = spatial.World

// Deps are the host collaborators of an Engine.
//
// World, Self and Behaviors are required. Timer may be nil when the caller drives Tick
// directly. Invokers and Eval may be nil, which disables the corresponding actions.
type Deps struct {
	World     World
	Self      Self
	Behaviors behavior.Store
	Timer     TimerHost
	Abilities attack.AbilityInvoker
	Items     attack.ItemInvoker
	Auto      attack.AutoAttacker
	Eval      attack.Evaluator
}

func (s SelfState) actor() attack.Actor {
	return attack.Actor{Entity: s.Entity, Mana: s.Mana, MaxMana: s.MaxMana}
}
