package testutil

import (
	"math"

	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// Creature is a scriptable entity.Handle for tests. Setting Stale makes every accessor
// panic, the way a host handle behaves after its entity despawns.
type Creature struct {
	EntityID int64
	Label    string
	Pos      entity.Position
	HP       int
	Dead     bool
	Hostile  bool
	Target   int64
	Stale    bool
}

// NewCreature returns a live hostile creature at full health.
func NewCreature(id int64, name string, x, y float64, z int) *Creature {
	return &Creature{EntityID: id, Label: name, Pos: entity.Position{X: x, Y: y, Z: z}, HP: 100, Hostile: true}
}

func (c *Creature) check() {
	if c.Stale {
		panic("testutil: stale creature handle")
	}
}

// ID implements entity.Handle.
func (c *Creature) ID() int64 { c.check(); return c.EntityID }

// Name implements entity.Handle.
func (c *Creature) Name() string { c.check(); return c.Label }

// Position implements entity.Handle.
func (c *Creature) Position() entity.Position { c.check(); return c.Pos }

// HealthPercent implements entity.Handle.
func (c *Creature) HealthPercent() int { c.check(); return c.HP }

// IsDead implements entity.Handle.
func (c *Creature) IsDead() bool { c.check(); return c.Dead }

// IsHostile implements entity.Handle.
func (c *Creature) IsHostile() bool { c.check(); return c.Hostile }

// TargetID implements entity.TargetReporter.
func (c *Creature) TargetID() int64 { c.check(); return c.Target }

// Kill marks the creature dead at 0% health.
func (c *Creature) Kill() {
	c.Dead = true
	c.HP = 0
}

// World is an in-memory spatial.World over Creatures.
type World struct {
	Creatures []*Creature
	// Err, when set, is returned by every Query.
	Err error
	// Queries counts Query calls.
	Queries int
}

// Add appends creatures to the world.
func (w *World) Add(cs ...*Creature) {
	w.Creatures = append(w.Creatures, cs...)
}

// Query implements spatial.World with a rectangular range check. Stale creatures are
// still returned; their faults surface when read.
func (w *World) Query(center entity.Position, radiusX, radiusY float64, includeOtherFloors bool) ([]entity.Handle, error) {
	w.Queries++
	if w.Err != nil {
		return nil, w.Err
	}
	var out []entity.Handle
	for _, c := range w.Creatures {
		if !c.Stale {
			if !includeOtherFloors && c.Pos.Z != center.Z {
				continue
			}
			if math.Abs(c.Pos.X-center.X) > radiusX || math.Abs(c.Pos.Y-center.Y) > radiusY {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}
