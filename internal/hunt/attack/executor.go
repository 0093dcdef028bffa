// Package attack fires the configured abilities and items of the held target's creature
// type, subject to resource gates and cooldowns.
package attack

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// AbilityInvoker casts an ability on a target. It returns false if the host rejected it.
type AbilityInvoker interface {
	InvokeAbility(abilityID string, targetID int64) bool
}

// ItemInvoker uses an item on a target. It returns false if the host rejected it.
type ItemInvoker interface {
	InvokeItem(itemID int, targetID int64) bool
}

// AutoAttacker starts continuous engagement of a target.
type AutoAttacker interface {
	AutoAttack(targetID int64) bool
}

// Evaluator evaluates a boolean trigger expression against named tables of values.
type Evaluator interface {
	Eval(expr string, globals map[string]map[string]any) (bool, error)
}

// Actor is the controlled actor's state relevant to gating.
type Actor struct {
	Entity  entity.Entity
	Mana    int
	MaxMana int
}

// ManaPercent returns mana as a percentage of MaxMana; 0 if MaxMana is 0.
func (a Actor) ManaPercent() int {
	if a.MaxMana <= 0 {
		return 0
	}
	return a.Mana * 100 / a.MaxMana
}

// Kind distinguishes ability and item actions.
type Kind string

const (
	KindAbility Kind = "ability"
	KindItem    Kind = "item"
)

// Action is one fired ability or item.
type Action struct {
	Kind     Kind
	ID       string
	TargetID int64
	// Accepted is false when the host rejected the invocation.
	Accepted bool
}

// Result reports what one Execute call did.
type Result struct {
	Ability    *Action
	Item       *Action
	AutoAttack bool
}

// Acted reports whether anything was sent to the host.
func (r Result) Acted() bool {
	return r.Ability != nil || r.Item != nil || r.AutoAttack
}

// Deps are the host collaborators of an Executor. Any of them may be nil, which
// disables that category.
type Deps struct {
	Abilities AbilityInvoker
	Items     ItemInvoker
	Auto      AutoAttacker
	Eval      Evaluator
}

type cooldownKey struct {
	kind Kind
	id   string
}

// Executor fires at most one ability and at most one item per call.
//
// Invariant: a cooldown is recorded before its invocation is sent, so a rejected or
// slow invocation is never retried before its cooldown elapses.
type Executor struct {
	deps       Deps
	logger     *zap.Logger
	readyAt    map[cooldownKey]time.Time
	autoTarget int64
}

// NewExecutor returns an Executor with no cooldowns running.
func NewExecutor(deps Deps, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{deps: deps, logger: logger, readyAt: make(map[cooldownKey]time.Time)}
}

// Execute evaluates cfg's abilities and items in declared order against target.
//
// Precondition: target is alive and is the held target for this tick.
// Postcondition: at most one ability and at most one item invoked; when neither fired,
// auto-attack is requested unless already active on target.
func (x *Executor) Execute(now time.Time, actor Actor, target entity.Entity, distance float64, cfg behavior.Config) Result {
	var res Result
	env := newEnv(actor, target, distance)

	if x.deps.Abilities != nil {
		for _, a := range cfg.Abilities {
			key := cooldownKey{kind: KindAbility, id: a.ID}
			if !x.eligible(now, key, a.Gate, actor, target, distance, env) {
				continue
			}
			x.readyAt[key] = now.Add(a.Cooldown.D())
			ok := invoke(func() bool { return x.deps.Abilities.InvokeAbility(a.ID, target.ID) })
			res.Ability = &Action{Kind: KindAbility, ID: a.ID, TargetID: target.ID, Accepted: ok}
			x.report(res.Ability, target)
			break
		}
	}

	if x.deps.Items != nil {
		for _, it := range cfg.Items {
			key := cooldownKey{kind: KindItem, id: strconv.Itoa(it.ID)}
			if !x.eligible(now, key, it.Gate, actor, target, distance, env) {
				continue
			}
			x.readyAt[key] = now.Add(it.Cooldown.D())
			ok := invoke(func() bool { return x.deps.Items.InvokeItem(it.ID, target.ID) })
			res.Item = &Action{Kind: KindItem, ID: key.id, TargetID: target.ID, Accepted: ok}
			x.report(res.Item, target)
			break
		}
	}

	if res.Ability == nil && res.Item == nil && x.deps.Auto != nil && x.autoTarget != target.ID {
		if invoke(func() bool { return x.deps.Auto.AutoAttack(target.ID) }) {
			x.autoTarget = target.ID
			res.AutoAttack = true
		} else {
			x.logger.Warn("auto-attack rejected", zap.Int64("target", target.ID))
		}
	}
	return res
}

// Ready reports whether the ability or item (kind, id) is off cooldown at now.
func (x *Executor) Ready(now time.Time, kind Kind, id string) bool {
	return !now.Before(x.readyAt[cooldownKey{kind: kind, id: id}])
}

// StopAutoAttack forgets the auto-attack target so the next Execute re-issues it.
func (x *Executor) StopAutoAttack() {
	x.autoTarget = 0
}

// Reset clears all cooldowns and the auto-attack target.
func (x *Executor) Reset() {
	clear(x.readyAt)
	x.autoTarget = 0
}

func (x *Executor) eligible(now time.Time, key cooldownKey, g behavior.Gate, actor Actor, target entity.Entity, distance float64, env map[string]map[string]any) bool {
	if now.Before(x.readyAt[key]) {
		return false
	}
	if g.ManaCost > 0 && actor.Mana < g.ManaCost {
		return false
	}
	if g.SelfHealthBelow > 0 && actor.Entity.HealthPercent >= g.SelfHealthBelow {
		return false
	}
	if g.SelfManaBelow > 0 && actor.ManaPercent() >= g.SelfManaBelow {
		return false
	}
	if g.TargetHealthBelow > 0 && target.HealthPercent >= g.TargetHealthBelow {
		return false
	}
	if g.MaxRange > 0 && distance > g.MaxRange {
		return false
	}
	if g.Trigger != "" {
		if x.deps.Eval == nil {
			return false
		}
		ok, err := x.deps.Eval.Eval(g.Trigger, env)
		if err != nil {
			x.logger.Debug("trigger evaluation failed",
				zap.String(string(key.kind), key.id),
				zap.String("trigger", g.Trigger),
				zap.Error(err),
			)
			return false
		}
		return ok
	}
	return true
}

func (x *Executor) report(a *Action, target entity.Entity) {
	if !a.Accepted {
		x.logger.Warn("invocation rejected; cooldown kept",
			zap.String("kind", string(a.Kind)),
			zap.String("id", a.ID),
			zap.Int64("target", target.ID),
		)
		return
	}
	x.logger.Debug("invoked",
		zap.String("kind", string(a.Kind)),
		zap.String("id", a.ID),
		zap.Int64("target", target.ID),
		zap.String("target_name", target.Name),
	)
}

// invoke calls a host invoker, treating a panic as a rejection.
func invoke(fn func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn()
}

func newEnv(actor Actor, target entity.Entity, distance float64) map[string]map[string]any {
	return map[string]map[string]any{
		"self": {
			"hp":       actor.Entity.HealthPercent,
			"mana":     actor.Mana,
			"mana_pct": actor.ManaPercent(),
		},
		"target": {
			"id":        target.ID,
			"name":      target.Name,
			"hp":        target.HealthPercent,
			"distance":  distance,
			"attacking": target.AttackingSelf,
		},
	}
}
