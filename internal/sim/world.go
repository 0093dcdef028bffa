package sim

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/hunt"
	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// ErrSelfDead is returned by Snapshot while the controlled actor awaits respawn.
var ErrSelfDead = errors.New("sim: controlled actor is dead")

// Pursuer reports what the actor is fighting so Step can move it; *hunt.Engine
// implements it.
type Pursuer interface {
	CurrentTarget() (entity.Entity, bool)
	TargetBehavior() (behavior.Config, bool)
}

// Stats counts simulated combat events.
type Stats struct {
	Spawns      int
	Kills       int
	Deaths      int
	Casts       int
	ItemUses    int
	Swings      int
	DamageDealt int
	DamageTaken int
}

type actor struct {
	pos    entity.Position
	hp     int
	mana   float64
	dead   bool
	diedAt time.Time
}

type pendingSpawn struct {
	spawn *SpawnSpec
	at    time.Time
}

// World is a simulated hunting ground. It implements hunt.World, hunt.Self and the
// attack invokers.
//
// World is not safe for concurrent use; it is driven from the host loop goroutine
// alongside the engine.
type World struct {
	sc     Scenario
	rng    *rand.Rand
	logger *zap.Logger

	nextID   int64
	monsters []*Monster
	pending  []pendingSpawn

	self       actor
	autoTarget int64
	nextSwing  time.Time

	abilities map[string]EffectSpec
	items     map[int]EffectSpec
	pursuer   Pursuer

	last  time.Time
	now   time.Time
	stats Stats
}

var (
	_ hunt.World = (*World)(nil)
	_ hunt.Self  = (*World)(nil)
)

// NewWorld populates every spawn of sc.
//
// Precondition: sc must pass Validate.
// Postcondition: Every spawn point holds Count live creatures; the actor is at full
// health and mana.
func NewWorld(sc Scenario, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc.Spawns = slices.Clone(sc.Spawns)
	w := &World{
		sc:        sc,
		rng:       rand.New(rand.NewPCG(sc.Seed, sc.Seed^0x9e3779b97f4a7c15)),
		logger:    logger,
		nextID:    1000,
		abilities: make(map[string]EffectSpec, len(sc.Abilities)),
		items:     make(map[int]EffectSpec, len(sc.Items)),
	}
	for _, a := range sc.Abilities {
		w.abilities[a.ID] = a.EffectSpec
	}
	for _, it := range sc.Items {
		w.items[it.ID] = it.EffectSpec
	}
	w.resetSelf()
	for i := range w.sc.Spawns {
		sp := &w.sc.Spawns[i]
		for range sp.Count {
			w.spawn(sp)
		}
	}
	logger.Info("simulated world populated",
		zap.String("scenario", sc.Name),
		zap.Int("monsters", len(w.monsters)),
	)
	return w
}

// SetPursuer installs the source of chase and keep-distance movement; nil disables it.
func (w *World) SetPursuer(p Pursuer) { w.pursuer = p }

func (w *World) resetSelf() {
	s := w.sc.Self
	w.self = actor{
		pos:  entity.Position{X: s.X, Y: s.Y, Z: s.Z},
		hp:   s.MaxHP,
		mana: float64(s.MaxMana),
	}
	w.autoTarget = 0
}

func (w *World) spawn(sp *SpawnSpec) *Monster {
	w.nextID++
	m := &Monster{
		id:    w.nextID,
		spawn: sp,
		pos: entity.Position{
			X: sp.X + (w.rng.Float64()*2-1)*sp.Spread,
			Y: sp.Y + (w.rng.Float64()*2-1)*sp.Spread,
			Z: sp.Z,
		},
		hp: sp.MaxHP,
	}
	w.monsters = append(w.monsters, m)
	w.stats.Spawns++
	return m
}

// Query implements hunt.World with a rectangular range check around center. Corpses are
// included until they decay.
func (w *World) Query(center entity.Position, radiusX, radiusY float64, includeOtherFloors bool) ([]entity.Handle, error) {
	out := make([]entity.Handle, 0, len(w.monsters))
	for _, m := range w.monsters {
		if !includeOtherFloors && m.pos.Z != center.Z {
			continue
		}
		if math.Abs(m.pos.X-center.X) > radiusX || math.Abs(m.pos.Y-center.Y) > radiusY {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Snapshot implements hunt.Self.
//
// Postcondition: Returns ErrSelfDead while the actor is dead.
func (w *World) Snapshot() (hunt.SelfState, error) {
	if w.self.dead {
		return hunt.SelfState{}, ErrSelfDead
	}
	s := w.sc.Self
	return hunt.SelfState{
		Entity: entity.Entity{
			ID:            s.ID,
			Name:          s.Name,
			Position:      w.self.pos,
			HealthPercent: w.self.hp * 100 / s.MaxHP,
			Category:      entity.CategoryPlayer,
			Alive:         true,
		},
		Mana:    int(w.self.mana),
		MaxMana: s.MaxMana,
	}, nil
}

// InvokeAbility implements attack.AbilityInvoker. The cast is rejected for unknown
// abilities, a dead actor, an invalid or out-of-range target, or insufficient mana.
func (w *World) InvokeAbility(abilityID string, targetID int64) bool {
	eff, ok := w.abilities[abilityID]
	if !ok || !w.apply(eff, targetID) {
		return false
	}
	w.stats.Casts++
	w.logger.Debug("ability cast", zap.String("ability", abilityID), zap.Int64("target", targetID))
	return true
}

// InvokeItem implements attack.ItemInvoker with the same rejection rules as abilities.
func (w *World) InvokeItem(itemID int, targetID int64) bool {
	eff, ok := w.items[itemID]
	if !ok || !w.apply(eff, targetID) {
		return false
	}
	w.stats.ItemUses++
	w.logger.Debug("item used", zap.Int("item", itemID), zap.Int64("target", targetID))
	return true
}

// AutoAttack implements attack.AutoAttacker. Swings happen during Step.
func (w *World) AutoAttack(targetID int64) bool {
	if w.self.dead {
		return false
	}
	m := w.find(targetID)
	if m == nil || m.dead {
		return false
	}
	w.autoTarget = targetID
	return true
}

func (w *World) apply(eff EffectSpec, targetID int64) bool {
	if w.self.dead {
		return false
	}
	m := w.find(targetID)
	if m == nil || m.dead || m.pos.Z != w.self.pos.Z {
		return false
	}
	if eff.Range > 0 && w.self.pos.DistanceTo(m.pos) > eff.Range {
		return false
	}
	if float64(eff.ManaCost) > w.self.mana {
		return false
	}
	w.self.mana -= float64(eff.ManaCost)
	if eff.Heal > 0 {
		w.self.hp = min(w.sc.Self.MaxHP, w.self.hp+eff.Heal)
	}
	w.damage(m, eff.Damage)
	return true
}

func (w *World) damage(m *Monster, dmg int) {
	if dmg <= 0 {
		return
	}
	w.stats.DamageDealt += min(dmg, m.hp)
	if m.spawn.Kind == KindHostile && m.target == 0 {
		m.target = w.sc.Self.ID
	}
	if m.hit(w.now, dmg) {
		w.stats.Kills++
		w.logger.Debug("monster killed", zap.Int64("id", m.id), zap.String("name", m.spawn.Name))
	}
}

func (w *World) find(id int64) *Monster {
	for _, m := range w.monsters {
		if m.id == id {
			return m
		}
	}
	return nil
}

// Step advances the simulation to now: respawns, mana regeneration, corpse decay,
// monster movement and attacks, actor movement toward the pursued target, and
// auto-attack swings.
func (w *World) Step(now time.Time) {
	var dt time.Duration
	if !w.last.IsZero() && now.After(w.last) {
		dt = now.Sub(w.last)
	}
	w.last, w.now = now, now

	if w.self.dead && now.Sub(w.self.diedAt) >= w.sc.Self.RespawnDelay {
		w.resetSelf()
		w.logger.Info("controlled actor respawned")
	}
	if !w.self.dead {
		w.self.mana = min(float64(w.sc.Self.MaxMana), w.self.mana+w.sc.Self.ManaRegen*dt.Seconds())
	}

	w.decay(now)
	w.respawn(now)
	for _, m := range w.monsters {
		w.think(now, m, dt)
	}
	w.pursue(dt)
	w.swing(now)
}

func (w *World) decay(now time.Time) {
	kept := w.monsters[:0]
	for _, m := range w.monsters {
		if m.dead && now.Sub(m.diedAt) >= m.spawn.CorpseDecay {
			m.despawned = true
			w.pending = append(w.pending, pendingSpawn{spawn: m.spawn, at: m.diedAt.Add(m.spawn.Respawn)})
			if w.autoTarget == m.id {
				w.autoTarget = 0
			}
			continue
		}
		kept = append(kept, m)
	}
	clear(w.monsters[len(kept):])
	w.monsters = kept
}

func (w *World) respawn(now time.Time) {
	kept := w.pending[:0]
	for _, p := range w.pending {
		if now.Before(p.at) {
			kept = append(kept, p)
			continue
		}
		m := w.spawn(p.spawn)
		w.logger.Debug("monster respawned", zap.Int64("id", m.id), zap.String("name", p.spawn.Name))
	}
	w.pending = kept
}

func (w *World) think(now time.Time, m *Monster, dt time.Duration) {
	if m.dead || m.spawn.Kind != KindHostile {
		return
	}
	if w.self.dead || m.pos.Z != w.self.pos.Z {
		m.target = 0
		return
	}
	d := m.pos.DistanceTo(w.self.pos)
	if m.target == 0 && d <= m.spawn.AggroRange {
		m.target = w.sc.Self.ID
	}
	if m.target == 0 {
		return
	}
	m.pos = moveToward(m.pos, w.self.pos, m.spawn.Speed*dt.Seconds(), m.spawn.AttackRange*0.9)
	if m.pos.DistanceTo(w.self.pos) <= m.spawn.AttackRange && !now.Before(m.nextSwing) {
		m.nextSwing = now.Add(m.spawn.AttackInterval)
		w.hurtSelf(now, m.spawn.Damage)
	}
}

func (w *World) hurtSelf(now time.Time, dmg int) {
	if w.self.dead || dmg <= 0 {
		return
	}
	w.stats.DamageTaken += min(dmg, w.self.hp)
	w.self.hp -= dmg
	if w.self.hp > 0 {
		return
	}
	w.self.hp = 0
	w.self.dead = true
	w.self.diedAt = now
	w.autoTarget = 0
	for _, m := range w.monsters {
		m.target = 0
	}
	w.stats.Deaths++
	w.logger.Info("controlled actor died", zap.Int("deaths", w.stats.Deaths))
}

func (w *World) pursue(dt time.Duration) {
	if w.pursuer == nil || w.self.dead {
		return
	}
	tgt, ok := w.pursuer.CurrentTarget()
	if !ok {
		return
	}
	cfg, _ := w.pursuer.TargetBehavior()
	m := w.find(tgt.ID)
	if m == nil || m.dead || m.pos.Z != w.self.pos.Z {
		return
	}
	step := w.sc.Self.Speed * dt.Seconds()
	switch {
	case cfg.KeepDistance:
		w.self.pos = moveAway(w.self.pos, m.pos, step, w.sc.Self.KeepDistance)
	case cfg.Chase:
		w.self.pos = moveToward(w.self.pos, m.pos, step, w.sc.Melee.Range*0.9)
	}
}

func (w *World) swing(now time.Time) {
	if w.autoTarget == 0 || w.self.dead || now.Before(w.nextSwing) {
		return
	}
	m := w.find(w.autoTarget)
	if m == nil || m.dead || m.pos.Z != w.self.pos.Z || w.self.pos.DistanceTo(m.pos) > w.sc.Melee.Range {
		return
	}
	w.nextSwing = now.Add(w.sc.Melee.Interval)
	w.stats.Swings++
	w.damage(m, w.sc.Melee.Damage)
}

// Stats returns the combat counters.
func (w *World) Stats() Stats { return w.stats }

// Monsters returns the spawned creatures, corpses included.
func (w *World) Monsters() []*Monster {
	return append([]*Monster(nil), w.monsters...)
}

// Find returns the spawned creature with id, or nil.
func (w *World) Find(id int64) *Monster { return w.find(id) }

// SelfPosition returns the actor's location.
func (w *World) SelfPosition() entity.Position { return w.self.pos }

// SelfHP returns the actor's hit points.
func (w *World) SelfHP() int { return w.self.hp }

// AutoTarget returns the id being auto-attacked, or zero.
func (w *World) AutoTarget() int64 { return w.autoTarget }
