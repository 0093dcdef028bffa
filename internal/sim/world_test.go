package sim_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
	"github.com/cory-johannsen/huntbot/internal/sim"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const arena = `
name: arena
seed: 7
self:
  id: 1
  name: hunter
  z: 7
  max_hp: 100
  max_mana: 50
  mana_regen: 10
  speed: 5
  respawn_delay: 2s
melee:
  damage: 10
  range: 1.5
  interval: 1s
abilities:
  - id: fireball
    damage: 30
    mana_cost: 20
    range: 6
items:
  - id: 3155
    damage: 15
    heal: 10
    range: 8
spawns:
  - name: Rat
    count: 1
    x: 4
    z: 7
    max_hp: 40
    damage: 60
    aggro_range: 2
    attack_range: 1.5
    attack_interval: 1s
    speed: 2
    corpse_decay: 1s
    respawn: 3s
`

func newArena(t testing.TB) *sim.World {
	t.Helper()
	sc, err := sim.ParseScenario([]byte(arena))
	require.NoError(t, err)
	return sim.NewWorld(sc, zaptest.NewLogger(t))
}

func onlyMonster(t testing.TB, w *sim.World) *sim.Monster {
	t.Helper()
	ms := w.Monsters()
	require.Len(t, ms, 1)
	return ms[0]
}

type fixedPursuer struct {
	target entity.Entity
	cfg    behavior.Config
}

func (p fixedPursuer) CurrentTarget() (entity.Entity, bool)    { return p.target, true }
func (p fixedPursuer) TargetBehavior() (behavior.Config, bool) { return p.cfg, true }

func TestQuery_FiltersByFloorAndRange(t *testing.T) {
	w := newArena(t)
	center := entity.Position{Z: 7}

	hs, err := w.Query(center, 10, 10, false)
	require.NoError(t, err)
	assert.Len(t, hs, 1)

	hs, err = w.Query(entity.Position{Z: 8}, 10, 10, false)
	require.NoError(t, err)
	assert.Empty(t, hs)

	hs, err = w.Query(entity.Position{Z: 8}, 10, 10, true)
	require.NoError(t, err)
	assert.Len(t, hs, 1)

	hs, err = w.Query(entity.Position{X: -20, Z: 7}, 5, 5, false)
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestSnapshot_ReportsActor(t *testing.T) {
	w := newArena(t)
	self, err := w.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(1), self.Entity.ID)
	assert.Equal(t, 100, self.Entity.HealthPercent)
	assert.Equal(t, 50, self.Mana)
	assert.Equal(t, entity.CategoryPlayer, self.Entity.Category)
	assert.True(t, self.Entity.Alive)
}

func TestMonsterHandle_SnapshotsThroughAccessor(t *testing.T) {
	w := newArena(t)
	m := onlyMonster(t, w)
	e, err := entity.Snapshot(m, 1)
	require.NoError(t, err)
	assert.Equal(t, "Rat", e.Name)
	assert.True(t, e.IsHostile())
	assert.True(t, e.Alive)
	assert.False(t, e.AttackingSelf)
}

func TestInvokeAbility_DamagesAndSpendsMana(t *testing.T) {
	w := newArena(t)
	w.Step(t0)
	m := onlyMonster(t, w)

	require.True(t, w.InvokeAbility("fireball", m.ID()))
	assert.Equal(t, 25, m.HealthPercent())
	self, _ := w.Snapshot()
	assert.Equal(t, 30, self.Mana)
	assert.Equal(t, int64(1), m.TargetID(), "damage draws aggro")

	require.True(t, w.InvokeAbility("fireball", m.ID()))
	assert.True(t, m.IsDead())
	assert.False(t, w.InvokeAbility("fireball", m.ID()), "dead targets reject")
	assert.Equal(t, 1, w.Stats().Kills)
	assert.Equal(t, 2, w.Stats().Casts)
}

func TestInvokeAbility_Rejections(t *testing.T) {
	w := newArena(t)
	m := onlyMonster(t, w)
	assert.False(t, w.InvokeAbility("meteor", m.ID()), "unknown ability")
	assert.False(t, w.InvokeAbility("fireball", 424242), "unknown target")

	sc, err := sim.ParseScenario([]byte(arena))
	require.NoError(t, err)
	sc.Self.MaxMana = 10
	poor := sim.NewWorld(sc, nil)
	assert.False(t, poor.InvokeAbility("fireball", onlyMonster(t, poor).ID()), "insufficient mana")

	sc.Self.MaxMana = 50
	sc.Abilities[0].Range = 2
	far := sim.NewWorld(sc, nil)
	assert.False(t, far.InvokeAbility("fireball", onlyMonster(t, far).ID()), "out of range")

	sc.Spawns[0].Z = 8
	upstairs := sim.NewWorld(sc, nil)
	assert.False(t, upstairs.InvokeItem(3155, onlyMonster(t, upstairs).ID()), "other floor")
	assert.Zero(t, w.Stats().Casts)
}

func TestInvokeItem_HealsSelf(t *testing.T) {
	w := newArena(t)
	w.Step(t0)
	m := onlyMonster(t, w)
	// Walk into aggro range and let the rat hit once.
	w.SetPursuer(fixedPursuer{target: entity.Entity{ID: m.ID()}, cfg: behavior.Config{Chase: true}})
	for i := 1; i <= 20 && w.SelfHP() == 100; i++ {
		w.Step(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	require.Equal(t, 40, w.SelfHP())

	require.True(t, w.InvokeItem(3155, m.ID()))
	assert.Equal(t, 50, w.SelfHP())
	assert.False(t, w.InvokeItem(9999, m.ID()))
}

func TestAutoAttack_SwingsOnStep(t *testing.T) {
	w := newArena(t)
	w.Step(t0)
	m := onlyMonster(t, w)
	w.SetPursuer(fixedPursuer{target: entity.Entity{ID: m.ID()}, cfg: behavior.Config{Chase: true}})
	require.True(t, w.AutoAttack(m.ID()))
	assert.Equal(t, m.ID(), w.AutoTarget())

	for i := 1; i <= 20; i++ {
		w.Step(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	assert.Positive(t, w.Stats().Swings)
	assert.Less(t, m.HealthPercent(), 100)
}

func TestChaseAndKeepDistance(t *testing.T) {
	w := newArena(t)
	w.Step(t0)
	m := onlyMonster(t, w)
	start := w.SelfPosition().DistanceTo(m.Position())

	w.SetPursuer(fixedPursuer{target: entity.Entity{ID: m.ID()}, cfg: behavior.Config{Chase: true}})
	w.Step(t0.Add(200 * time.Millisecond))
	closer := w.SelfPosition().DistanceTo(m.Position())
	assert.Less(t, closer, start)

	w.SetPursuer(fixedPursuer{target: entity.Entity{ID: m.ID()}, cfg: behavior.Config{KeepDistance: true}})
	w.Step(t0.Add(400 * time.Millisecond))
	assert.Greater(t, w.SelfPosition().DistanceTo(m.Position()), closer)
}

func TestCorpseDecayInvalidatesHandleAndRespawns(t *testing.T) {
	w := newArena(t)
	w.Step(t0)
	m := onlyMonster(t, w)
	require.True(t, w.InvokeItem(3155, m.ID()))
	require.True(t, w.InvokeAbility("fireball", m.ID()))
	require.True(t, m.IsDead())

	w.Step(t0.Add(time.Second))
	assert.True(t, m.Despawned())
	assert.Panics(t, func() { m.HealthPercent() })
	_, err := entity.Snapshot(m, 1)
	assert.True(t, errors.Is(err, entity.ErrHandleFault))
	assert.Empty(t, w.Monsters())

	w.Step(t0.Add(3 * time.Second))
	fresh := onlyMonster(t, w)
	assert.NotEqual(t, m.Despawned(), fresh.Despawned())
	assert.Equal(t, 100, fresh.HealthPercent())
	assert.Equal(t, 2, w.Stats().Spawns)
}

func TestSelfDiesAndRespawns(t *testing.T) {
	w := newArena(t)
	w.Step(t0)
	m := onlyMonster(t, w)
	w.SetPursuer(fixedPursuer{target: entity.Entity{ID: m.ID()}, cfg: behavior.Config{Chase: true}})

	now := t0
	for i := 0; i < 100 && w.Stats().Deaths == 0; i++ {
		now = now.Add(100 * time.Millisecond)
		w.Step(now)
	}
	require.Equal(t, 1, w.Stats().Deaths)
	_, err := w.Snapshot()
	assert.ErrorIs(t, err, sim.ErrSelfDead)
	assert.False(t, w.AutoAttack(m.ID()))

	w.Step(now.Add(2 * time.Second))
	self, err := w.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 100, self.Entity.HealthPercent)
}

func TestParseScenario_Defaults(t *testing.T) {
	sc, err := sim.ParseScenario([]byte("spawns:\n  - name: Bat\n"))
	require.NoError(t, err)
	require.Len(t, sc.Spawns, 1)
	sp := sc.Spawns[0]
	assert.Equal(t, sim.KindHostile, sp.Kind)
	assert.Equal(t, 1, sp.Count)
	assert.Equal(t, 10*time.Second, sp.Respawn)
	assert.Equal(t, "hunter", sc.Self.Name)
}

func TestParseScenario_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "spawns: [",
		"unknown kind":    "spawns:\n  - name: Bat\n    kind: ghost\n",
		"nameless spawn":  "spawns:\n  - count: 2\n",
		"duplicate item":  "items:\n  - id: 1\n  - id: 1\n",
		"zero self id":    "self:\n  id: 0\n",
		"bad melee speed": "melee:\n  interval: 0s\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := sim.ParseScenario([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := sim.LoadScenario("/nonexistent/scenario.yaml")
	assert.Error(t, err)
}

func TestProperty_MonstersNeverLeaveTheirFloor(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sc, err := sim.ParseScenario([]byte(arena))
		if err != nil {
			rt.Fatalf("parse: %v", err)
		}
		sc.Seed = rapid.Uint64().Draw(rt, "seed")
		sc.Spawns[0].Count = rapid.IntRange(1, 8).Draw(rt, "count")
		sc.Spawns[0].Spread = rapid.Float64Range(0, 10).Draw(rt, "spread")
		w := sim.NewWorld(sc, nil)
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			w.Step(t0.Add(time.Duration(i) * 250 * time.Millisecond))
			for _, m := range w.Monsters() {
				if m.Position().Z != 7 {
					rt.Fatalf("monster %d left floor 7", m.ID())
				}
				if hp := m.HealthPercent(); hp < 0 || hp > 100 {
					rt.Fatalf("monster %d health %d out of range", m.ID(), hp)
				}
			}
		}
	})
}
