// Package entity provides typed, fault-isolated snapshots of host world entities.
//
// The host exposes loosely-typed handles whose accessors may fail at any time (the
// entity despawned, the client invalidated the memory behind it). Snapshot is the only
// place that touches a raw Handle; everything downstream works on Entity values.
package entity

import (
	"errors"
	"fmt"
	"math"
)

// ErrNilHandle is returned by Snapshot when given a nil handle.
var ErrNilHandle = errors.New("entity: nil handle")

// ErrHandleFault is returned by Snapshot when a handle accessor faulted mid-read.
var ErrHandleFault = errors.New("entity: handle fault")

// Category classifies an entity relative to the controlled actor.
type Category int

const (
	// CategoryNeutral is any non-hostile, non-player entity.
	CategoryNeutral Category = iota
	// CategoryHostile is a creature that may be engaged.
	CategoryHostile
	// CategoryPlayer is another player character.
	CategoryPlayer
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryHostile:
		return "hostile"
	case CategoryPlayer:
		return "player"
	default:
		return "neutral"
	}
}

// Position is a world location. Z is the floor.
type Position struct {
	X float64
	Y float64
	Z int
}

// DistanceTo returns the planar distance between p and o, ignoring floors.
func (p Position) DistanceTo(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// SameFloor reports whether p and o share a floor.
func (p Position) SameFloor(o Position) bool {
	return p.Z == o.Z
}

// String formats the position as "(x, y, z)".
func (p Position) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %d)", p.X, p.Y, p.Z)
}

// Entity is a validated, immutable snapshot of a world entity taken during one tick.
type Entity struct {
	ID            int64
	Name          string
	Position      Position
	HealthPercent int
	Category      Category
	Alive         bool
	// AttackingSelf is true when the host reports this entity targeting the controlled actor.
	AttackingSelf bool
}

// IsHostile reports whether the entity is a hostile creature.
func (e Entity) IsHostile() bool {
	return e.Category == CategoryHostile
}
