package attack_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/huntbot/internal/hunt/attack"
	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
	"github.com/cory-johannsen/huntbot/internal/testutil"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type evalFunc func(expr string, globals map[string]map[string]any) (bool, error)

func (f evalFunc) Eval(expr string, globals map[string]map[string]any) (bool, error) {
	return f(expr, globals)
}

func newExecutor(rec *testutil.Invokers, ev attack.Evaluator) *attack.Executor {
	return attack.NewExecutor(attack.Deps{Abilities: rec, Items: rec, Auto: rec, Eval: ev}, nil)
}

func actor(hp, mana int) attack.Actor {
	return attack.Actor{Entity: entity.Entity{ID: 99, HealthPercent: hp, Alive: true}, Mana: mana, MaxMana: 100}
}

func dragon() entity.Entity {
	return entity.Entity{ID: 2, Name: "Dragon", HealthPercent: 10, Alive: true, Category: entity.CategoryHostile}
}

func dragonBehavior() behavior.Config {
	cfg := behavior.Default()
	cfg.Name = "Dragon"
	cfg.DangerRating = 10
	cfg.Abilities = []behavior.Ability{
		{ID: "execute", Cooldown: behavior.Duration(5 * time.Second), Gate: behavior.Gate{TargetHealthBelow: 20, ManaCost: 30}},
		{ID: "fireball", Cooldown: behavior.Duration(2 * time.Second), Gate: behavior.Gate{ManaCost: 20}},
	}
	cfg.Items = []behavior.Item{
		{ID: 7, Cooldown: behavior.Duration(10 * time.Second), Gate: behavior.Gate{SelfHealthBelow: 50}},
	}
	return cfg
}

func TestExecute_FiresFirstEligibleAbility(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)

	res := x.Execute(t0, actor(100, 100), dragon(), 5, dragonBehavior())
	require.NotNil(t, res.Ability)
	assert.Equal(t, "execute", res.Ability.ID)
	assert.True(t, res.Ability.Accepted)
	assert.Nil(t, res.Item, "self health gate not met")
	assert.False(t, res.AutoAttack)
	assert.Equal(t, []testutil.Call{{Kind: "ability", ID: "execute", TargetID: 2}}, rec.Calls)
}

func TestExecute_AtMostOnePerCategory(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)

	res := x.Execute(t0, actor(10, 100), dragon(), 5, dragonBehavior())
	require.NotNil(t, res.Ability)
	require.NotNil(t, res.Item)
	assert.Equal(t, "7", res.Item.ID)
	assert.Equal(t, 1, rec.Count("ability"))
	assert.Equal(t, 1, rec.Count("item"))
	assert.Equal(t, 0, rec.Count("auto"))
}

func TestExecute_CooldownFallsThroughToNextAbility(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)
	cfg := dragonBehavior()

	x.Execute(t0, actor(100, 100), dragon(), 5, cfg)
	res := x.Execute(t0.Add(100*time.Millisecond), actor(100, 100), dragon(), 5, cfg)
	require.NotNil(t, res.Ability)
	assert.Equal(t, "fireball", res.Ability.ID)

	res = x.Execute(t0.Add(200*time.Millisecond), actor(100, 100), dragon(), 5, cfg)
	assert.Nil(t, res.Ability, "both abilities cooling down")
	assert.True(t, res.AutoAttack)

	assert.False(t, x.Ready(t0.Add(4*time.Second), attack.KindAbility, "execute"))
	assert.True(t, x.Ready(t0.Add(5*time.Second), attack.KindAbility, "execute"))
}

func TestExecute_ManaGate(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)

	res := x.Execute(t0, actor(100, 25), dragon(), 5, dragonBehavior())
	require.NotNil(t, res.Ability)
	assert.Equal(t, "fireball", res.Ability.ID, "execute needs 30 mana")

	res = x.Execute(t0.Add(3*time.Second), actor(100, 5), dragon(), 5, dragonBehavior())
	assert.Nil(t, res.Ability)
}

func TestExecute_RangeAndManaPercentGates(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)
	cfg := behavior.Default()
	cfg.Abilities = []behavior.Ability{{ID: "strike", Gate: behavior.Gate{MaxRange: 2}}}
	cfg.Items = []behavior.Item{{ID: 3, Gate: behavior.Gate{SelfManaBelow: 30}}}

	res := x.Execute(t0, actor(100, 50), dragon(), 5, cfg)
	assert.Nil(t, res.Ability)
	assert.Nil(t, res.Item)
	assert.True(t, res.AutoAttack)

	res = x.Execute(t0, actor(100, 20), dragon(), 1.5, cfg)
	assert.NotNil(t, res.Ability)
	assert.NotNil(t, res.Item)
}

func TestExecute_RejectedInvocationKeepsCooldown(t *testing.T) {
	rec := &testutil.Invokers{Reject: map[string]bool{"ability": true}}
	x := newExecutor(rec, nil)
	cfg := behavior.Default()
	cfg.Abilities = []behavior.Ability{{ID: "bolt", Cooldown: behavior.Duration(time.Second)}}

	res := x.Execute(t0, actor(100, 100), dragon(), 5, cfg)
	require.NotNil(t, res.Ability)
	assert.False(t, res.Ability.Accepted)

	res = x.Execute(t0.Add(500*time.Millisecond), actor(100, 100), dragon(), 5, cfg)
	assert.Nil(t, res.Ability)
	assert.Equal(t, 1, rec.Count("ability"))
}

func TestExecute_AutoAttackIssuedOncePerTarget(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)
	cfg := behavior.Default()

	for i := 0; i < 3; i++ {
		x.Execute(t0.Add(time.Duration(i)*time.Second), actor(100, 0), dragon(), 5, cfg)
	}
	assert.Equal(t, 1, rec.Count("auto"))

	other := dragon()
	other.ID = 3
	res := x.Execute(t0, actor(100, 0), other, 5, cfg)
	assert.True(t, res.AutoAttack)

	x.StopAutoAttack()
	res = x.Execute(t0, actor(100, 0), other, 5, cfg)
	assert.True(t, res.AutoAttack)
	assert.Equal(t, 3, rec.Count("auto"))
}

func TestExecute_TriggerExpression(t *testing.T) {
	rec := &testutil.Invokers{}
	var seen map[string]map[string]any
	ev := evalFunc(func(expr string, globals map[string]map[string]any) (bool, error) {
		seen = globals
		switch expr {
		case "boom":
			return false, errors.New("syntax")
		case "yes":
			return true, nil
		}
		return false, nil
	})
	x := newExecutor(rec, ev)
	cfg := behavior.Default()
	cfg.Abilities = []behavior.Ability{
		{ID: "broken", Gate: behavior.Gate{Trigger: "boom"}},
		{ID: "never", Gate: behavior.Gate{Trigger: "no"}},
		{ID: "scripted", Gate: behavior.Gate{Trigger: "yes"}},
	}

	res := x.Execute(t0, actor(80, 40), dragon(), 4, cfg)
	require.NotNil(t, res.Ability)
	assert.Equal(t, "scripted", res.Ability.ID)
	assert.Equal(t, 80, seen["self"]["hp"])
	assert.Equal(t, 40, seen["self"]["mana_pct"])
	assert.Equal(t, int64(2), seen["target"]["id"])
	assert.Equal(t, 4.0, seen["target"]["distance"])
}

func TestExecute_TriggerWithoutEvaluatorNeverFires(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)
	cfg := behavior.Default()
	cfg.Abilities = []behavior.Ability{{ID: "scripted", Gate: behavior.Gate{Trigger: "true"}}}
	res := x.Execute(t0, actor(100, 100), dragon(), 4, cfg)
	assert.Nil(t, res.Ability)
}

type panicky struct{}

func (panicky) InvokeAbility(string, int64) bool { panic("host gone") }

func TestExecute_PanickingInvokerIsRejection(t *testing.T) {
	x := attack.NewExecutor(attack.Deps{Abilities: panicky{}}, nil)
	cfg := behavior.Default()
	cfg.Abilities = []behavior.Ability{{ID: "bolt"}}
	var res attack.Result
	require.NotPanics(t, func() { res = x.Execute(t0, actor(100, 100), dragon(), 4, cfg) })
	require.NotNil(t, res.Ability)
	assert.False(t, res.Ability.Accepted)
}

func TestReset(t *testing.T) {
	rec := &testutil.Invokers{}
	x := newExecutor(rec, nil)
	x.Execute(t0, actor(100, 100), dragon(), 5, dragonBehavior())
	x.Reset()
	assert.True(t, x.Ready(t0, attack.KindAbility, "execute"))
}

func TestProperty_NoInvocationDuringCooldown(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rec := &testutil.Invokers{}
		x := newExecutor(rec, nil)
		cd := time.Duration(rapid.IntRange(1, 3000).Draw(rt, "cdMs")) * time.Millisecond
		cfg := behavior.Default()
		cfg.Abilities = []behavior.Ability{{ID: "a", Cooldown: behavior.Duration(cd)}}

		now := t0
		var last time.Time
		fired := false
		ticks := rapid.IntRange(1, 50).Draw(rt, "ticks")
		for i := 0; i < ticks; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 800).Draw(rt, "dtMs")) * time.Millisecond)
			res := x.Execute(now, actor(100, 100), dragon(), 3, cfg)
			if res.Ability == nil {
				continue
			}
			if fired && now.Sub(last) < cd {
				rt.Fatalf("fired %v after previous with cooldown %v", now.Sub(last), cd)
			}
			last, fired = now, true
		}
	})
}
