package sim

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// Monster is one spawned creature. It doubles as the entity.Handle the world hands to
// the engine; once despawned every accessor panics the way a freed client object does.
type Monster struct {
	id        int64
	spawn     *SpawnSpec
	pos       entity.Position
	hp        int
	dead      bool
	diedAt    time.Time
	despawned bool
	// target is the id of the entity this monster is attacking; zero when idle.
	target    int64
	nextSwing time.Time
}

func (m *Monster) check() {
	if m.despawned {
		panic(fmt.Sprintf("sim: monster %d accessed after despawn", m.id))
	}
}

// ID implements entity.Handle.
func (m *Monster) ID() int64 { m.check(); return m.id }

// Name implements entity.Handle.
func (m *Monster) Name() string { m.check(); return m.spawn.Name }

// Position implements entity.Handle.
func (m *Monster) Position() entity.Position { m.check(); return m.pos }

// HealthPercent implements entity.Handle.
func (m *Monster) HealthPercent() int {
	m.check()
	return m.hp * 100 / m.spawn.MaxHP
}

// IsDead implements entity.Handle.
func (m *Monster) IsDead() bool { m.check(); return m.dead }

// IsHostile implements entity.Handle.
func (m *Monster) IsHostile() bool { m.check(); return m.spawn.Kind == KindHostile }

// IsPlayer implements entity.PlayerReporter.
func (m *Monster) IsPlayer() bool { m.check(); return m.spawn.Kind == KindPlayer }

// TargetID implements entity.TargetReporter.
func (m *Monster) TargetID() int64 { m.check(); return m.target }

// Despawned reports whether the handle has been invalidated.
func (m *Monster) Despawned() bool { return m.despawned }

func (m *Monster) hit(now time.Time, dmg int) (killed bool) {
	if m.dead || dmg <= 0 {
		return false
	}
	m.hp -= dmg
	if m.hp > 0 {
		return false
	}
	m.hp = 0
	m.dead = true
	m.diedAt = now
	m.target = 0
	return true
}

// moveToward steps p toward dst by at most step units and stops at stopAt from dst.
func moveToward(p, dst entity.Position, step, stopAt float64) entity.Position {
	d := p.DistanceTo(dst)
	if d <= stopAt || d == 0 || step <= 0 {
		return p
	}
	travel := min(step, d-stopAt)
	p.X += (dst.X - p.X) / d * travel
	p.Y += (dst.Y - p.Y) / d * travel
	return p
}

// moveAway steps p directly away from src by at most step units until it is keep away.
func moveAway(p, src entity.Position, step, keep float64) entity.Position {
	d := p.DistanceTo(src)
	if d >= keep || step <= 0 {
		return p
	}
	if d == 0 {
		p.X += min(step, keep)
		return p
	}
	travel := min(step, keep-d)
	p.X += (p.X - src.X) / d * travel
	p.Y += (p.Y - src.Y) / d * travel
	return p
}
