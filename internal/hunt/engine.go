// Package hunt is the targeting and combat-decision engine. An Engine perceives nearby
// hostile entities through the host, picks and holds a target, fires configured actions
// against it and adapts its own tick rate to the situation.
//
// An Engine is driven from a single execution turn: the host's timer callback or direct
// Tick calls. None of its state is safe for concurrent use.
package hunt

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/hunt/attack"
	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
	"github.com/cory-johannsen/huntbot/internal/hunt/priority"
	"github.com/cory-johannsen/huntbot/internal/hunt/schedule"
	"github.com/cory-johannsen/huntbot/internal/hunt/spatial"
	"github.com/cory-johannsen/huntbot/internal/hunt/target"
)

// ErrMissingDep is returned by New when a required collaborator is nil.
var ErrMissingDep = errors.New("hunt: missing dependency")

// Config aggregates the component configurations of an Engine.
type Config struct {
	Index    spatial.Config
	Weights  priority.Weights
	ScoreTTL time.Duration
	Target   target.Config
	Schedule schedule.Config
	// CombatLinger is how long the engine stays engaged after it last held a target.
	CombatLinger time.Duration
}

// DefaultConfig returns the default configuration of every component, a 500ms score TTL
// and a 2s combat linger.
func DefaultConfig() Config {
	return Config{
		Index:        spatial.DefaultConfig(),
		Weights:      priority.DefaultWeights(),
		ScoreTTL:     500 * time.Millisecond,
		Target:       target.DefaultConfig(),
		Schedule:     schedule.DefaultConfig(),
		CombatLinger: 2 * time.Second,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Index.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("index cell size must be > 0, got %v", c.Index.CellSize))
	}
	if c.Index.TTL < 0 {
		errs = append(errs, fmt.Errorf("index ttl must be >= 0, got %s", c.Index.TTL))
	}
	if c.Weights.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("scoring max distance must be > 0, got %v", c.Weights.MaxDistance))
	}
	if c.ScoreTTL < 0 {
		errs = append(errs, fmt.Errorf("score ttl must be >= 0, got %s", c.ScoreTTL))
	}
	if _, err := target.ParsePolicy(string(c.Target.Policy)); err != nil {
		errs = append(errs, err)
	}
	if c.Target.EngageRange <= 0 {
		errs = append(errs, fmt.Errorf("engage range must be > 0, got %v", c.Target.EngageRange))
	}
	if c.Target.SwitchDelay < 0 || c.Target.Margin < 0 {
		errs = append(errs, errors.New("switch delay and margin must be >= 0"))
	}
	if err := c.Schedule.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CombatLinger < 0 {
		errs = append(errs, fmt.Errorf("combat linger must be >= 0, got %s", c.CombatLinger))
	}
	return errors.Join(errs...)
}

// Statistics are the engine's session counters.
type Statistics struct {
	KillCount        int
	AbilityCastCount int
	ItemUseCount     int
	SwitchCount      int
}

// Report describes one Tick.
type Report struct {
	// Skipped is true when the tick did nothing: disabled, re-entrant or self unreadable.
	Skipped     bool
	Paused      bool
	Target      int64
	Locked      bool
	Transitions []target.Transition
	Action      attack.Result
	Tier        schedule.Tier
	Candidates  int
}

// Engine owns the spatial index, score cache, target session, executor and scheduler of
// one controlled actor.
type Engine struct {
	id     uuid.UUID
	cfg    Config
	deps   Deps
	logger *zap.Logger

	index    *spatial.Index
	scorer   *priority.Scorer
	selector *target.Selector
	executor *attack.Executor
	sched    *schedule.Scheduler
	queue    *schedule.TaskQueue

	enabled bool
	paused  bool
	ticking bool
	handle  TaskHandle
	hasTask bool

	engaged    bool
	lingerID   schedule.TaskID
	lingering  bool
	heldHandle entity.Handle
	held       entity.Entity
	heldCfg    behavior.Config
	stats      Statistics
}

// New returns a disabled Engine.
//
// Precondition: deps.World, deps.Self and deps.Behaviors are non-nil.
// Postcondition: Returns a non-nil Engine or an error wrapping ErrMissingDep or a
// validation failure.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	if deps.World == nil || deps.Self == nil || deps.Behaviors == nil {
		return nil, fmt.Errorf("%w: world, self and behaviors are required", ErrMissingDep)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	logger = logger.With(zap.String("engine", id.String()))
	return &Engine{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		index:    spatial.New(cfg.Index, logger),
		scorer:   priority.NewScorer(cfg.Weights, cfg.ScoreTTL),
		selector: target.NewSelector(cfg.Target),
		executor: attack.NewExecutor(attack.Deps{
			Abilities: deps.Abilities,
			Items:     deps.Items,
			Auto:      deps.Auto,
			Eval:      deps.Eval,
		}, logger),
		sched: schedule.New(cfg.Schedule),
		queue: schedule.NewTaskQueue(),
	}, nil
}

// ID returns the engine's unique id.
func (e *Engine) ID() uuid.UUID { return e.id }

// Enabled reports whether the engine is enabled.
func (e *Engine) Enabled() bool { return e.enabled }

// IsPaused reports whether acquisition and attacks are suspended.
func (e *Engine) IsPaused() bool { return e.paused }

// IsEngaged reports whether the engine holds a target or held one within the combat
// linger.
func (e *Engine) IsEngaged() bool { return e.engaged }

// Tier returns the current scheduling tier.
func (e *Engine) Tier() schedule.Tier { return e.sched.Tier() }

// Interval returns the current tick interval.
func (e *Engine) Interval() time.Duration { return e.sched.Interval() }

// Statistics returns the session counters.
func (e *Engine) Statistics() Statistics { return e.stats }

// CurrentTarget returns the held target as read during the last tick.
func (e *Engine) CurrentTarget() (entity.Entity, bool) {
	if _, ok := e.selector.Current(); !ok {
		return entity.Entity{}, false
	}
	return e.held, true
}

// TargetBehavior returns the rule set of the held target's creature type.
func (e *Engine) TargetBehavior() (behavior.Config, bool) {
	if _, ok := e.selector.Current(); !ok {
		return behavior.Config{}, false
	}
	return e.heldCfg, true
}

// RegisterEntityBehavior stores cfg for the creature type name and drops cached scores
// so the new weights apply from the next tick.
func (e *Engine) RegisterEntityBehavior(name string, cfg behavior.Config) error {
	if err := e.deps.Behaviors.Set(name, cfg); err != nil {
		return fmt.Errorf("registering behavior %q: %w", name, err)
	}
	e.scorer.Reset()
	return nil
}

// SetEnabled starts or stops the engine.
//
// Postcondition: enabling registers the periodic tick with the timer host. Disabling
// releases the target, cancels the periodic tick and drops every deferred task before
// returning, so no callback of this engine runs afterwards.
func (e *Engine) SetEnabled(enabled bool) {
	if enabled == e.enabled {
		return
	}
	e.enabled = enabled
	if enabled {
		e.executor.Reset()
		e.logger.Info("engine enabled", zap.Stringer("tier", e.sched.Tier()))
		e.register()
		return
	}

	e.cancel()
	e.queue.Clear()
	e.selector.Reset()
	e.executor.Reset()
	e.scorer.Reset()
	e.index.Invalidate()
	e.sched.Reset()
	e.engaged, e.lingering = false, false
	e.heldHandle, e.held, e.heldCfg = nil, entity.Entity{}, behavior.Config{}
	e.logger.Info("engine disabled",
		zap.Int("kills", e.stats.KillCount),
		zap.Int("ability_casts", e.stats.AbilityCastCount),
		zap.Int("switches", e.stats.SwitchCount),
	)
}

// Pause suspends acquisition and attacks. The held target is kept while it stays valid;
// paused ticks still release it on death, despawn, floor change or range loss.
func (e *Engine) Pause() {
	if e.paused {
		return
	}
	e.paused = true
	e.executor.StopAutoAttack()
	e.logger.Info("engine paused")
}

// Resume lifts a Pause.
func (e *Engine) Resume() {
	if !e.paused {
		return
	}
	e.paused = false
	e.logger.Info("engine resumed")
}

// Tick runs one decision cycle at now.
//
// Postcondition: a held target that is dead, unreadable, on another floor, out of range
// or no longer attack-enabled is released within this call and no action is sent to it.
// At most one ability and one item are invoked.
func (e *Engine) Tick(now time.Time) Report {
	if !e.enabled || e.ticking {
		return Report{Skipped: true, Tier: e.sched.Tier()}
	}
	e.ticking = true
	defer func() { e.ticking = false }()

	e.queue.Drain(now)
	if !e.enabled {
		return Report{Skipped: true, Tier: e.sched.Tier()}
	}

	self, err := e.deps.Self.Snapshot()
	if err != nil {
		e.logger.Debug("self unreadable; skipping tick", zap.Error(err))
		return Report{Skipped: true, Tier: e.sched.Tier()}
	}
	pos := self.Entity.Position

	rebuilt, err := e.index.Refresh(now, e.deps.World, pos, self.Entity.ID)
	switch {
	case err != nil:
		e.logger.Debug("world query unavailable", zap.Error(err))
	case rebuilt:
		for _, id := range e.index.Dead() {
			e.scorer.Purge(id)
		}
		e.scorer.Sweep(now)
	}
	hostiles := len(e.index.Query(pos, e.sched.WideRadius()))

	var rep Report
	if e.paused {
		rep = e.revalidate(now, self)
	} else {
		rep = e.decide(now, self)
	}
	// A host callback may have disabled the engine during this tick.
	if !e.enabled {
		rep.Tier = e.sched.Tier()
		return rep
	}

	tier, changed := e.sched.Update(now, schedule.Signals{
		Hostiles:   hostiles,
		SelfHealth: self.Entity.HealthPercent,
		Engaged:    e.engaged,
	})
	if changed {
		e.logger.Debug("tier changed", zap.Stringer("tier", tier), zap.Duration("interval", e.sched.Interval()))
		e.register()
	}
	rep.Tier = tier
	return rep
}

func (e *Engine) decide(now time.Time, self SelfState) Report {
	pos := self.Entity.Position
	behaviors := make(map[string]behavior.Config)

	held := e.readHeld(now, self, behaviors)
	// The index may still list a held target that has since died or despawned.
	var exclude int64
	if id, ok := e.selector.Current(); ok && (!held.Found || !held.Entity.Alive) {
		exclude = id
	}

	hits := e.index.Query(pos, e.cfg.Target.EngageRange)
	candidates := make([]target.Candidate, 0, len(hits))
	byID := make(map[int64]target.Candidate, len(hits))
	for _, h := range hits {
		if h.Entity.ID == exclude {
			continue
		}
		cfg := e.behaviorFor(behaviors, h.Entity.Name)
		if !cfg.AttackEnabled {
			continue
		}
		c := target.Candidate{
			Entity:   h.Entity,
			Distance: h.Distance,
			Score:    e.scorer.Score(now, priority.Input{Entity: h.Entity, Distance: h.Distance, Behavior: cfg}),
		}
		candidates = append(candidates, c)
		byID[c.Entity.ID] = c
	}

	d := e.selector.Update(now, pos, held, candidates)
	e.apply(d)

	rep := Report{Target: d.Target, Locked: d.Locked, Transitions: d.Transitions, Candidates: len(candidates)}
	if !d.Locked {
		e.disengage(now)
		return rep
	}

	cur := held
	if len(d.Transitions) > 0 || !cur.Found {
		// Newly chosen from the index: read it fresh before acting on it.
		c := byID[d.Target]
		cur = target.Held{Found: true, Eligible: true, Entity: c.Entity, Distance: c.Distance, Score: c.Score}
		if h, _, ok := e.index.Lookup(d.Target); ok {
			e.heldHandle = h
			if ent, err := entity.Snapshot(h, self.Entity.ID); err == nil {
				cur.Entity = ent
				cur.Distance = pos.DistanceTo(ent.Position)
			} else {
				cur.Found = false
			}
		}
	}
	e.held = cur.Entity
	e.heldCfg = e.behaviorFor(behaviors, cur.Entity.Name)
	e.engage()

	if !cur.Found || !cur.Entity.Alive {
		return rep
	}
	rep.Action = e.executor.Execute(now, self.actor(), cur.Entity, cur.Distance, e.heldCfg)
	if a := rep.Action.Ability; a != nil && a.Accepted {
		e.stats.AbilityCastCount++
	}
	if it := rep.Action.Item; it != nil && it.Accepted {
		e.stats.ItemUseCount++
	}
	return rep
}

// revalidate releases an invalid held target without acquiring or acting. Combat
// winds down through the linger since nothing is attacked while paused.
func (e *Engine) revalidate(now time.Time, self SelfState) Report {
	held := e.readHeld(now, self, make(map[string]behavior.Config))
	d := e.selector.Validate(now, self.Entity.Position, held)
	e.apply(d)
	if d.Locked && held.Found {
		e.held = held.Entity
	}
	e.disengage(now)
	return Report{Paused: true, Target: d.Target, Locked: d.Locked, Transitions: d.Transitions}
}

// readHeld re-reads the held target through its host handle so death and despawn are
// observed on every tick, not only on index rebuilds.
func (e *Engine) readHeld(now time.Time, self SelfState, behaviors map[string]behavior.Config) target.Held {
	id, ok := e.selector.Current()
	if !ok {
		return target.Held{}
	}
	if h, _, found := e.index.Lookup(id); found {
		e.heldHandle = h
	}
	if slices.Contains(e.index.Dead(), id) {
		return target.Held{Found: true, Entity: entity.Entity{ID: id, Name: e.held.Name, Position: e.held.Position}}
	}
	ent, err := entity.Snapshot(e.heldHandle, self.Entity.ID)
	if err != nil || ent.ID != id {
		return target.Held{}
	}
	dist := self.Entity.Position.DistanceTo(ent.Position)
	cfg := e.behaviorFor(behaviors, ent.Name)
	return target.Held{
		Found:    true,
		Eligible: cfg.AttackEnabled && ent.IsHostile(),
		Entity:   ent,
		Distance: dist,
		Score:    e.scorer.Score(now, priority.Input{Entity: ent, Distance: dist, Behavior: cfg}),
	}
}

func (e *Engine) apply(d target.Decision) {
	for _, tr := range d.Transitions {
		switch tr.Reason {
		case target.ReasonAcquired, target.ReasonSwitched:
			if tr.Reason == target.ReasonSwitched {
				e.stats.SwitchCount++
			}
			e.logger.Info("target "+string(tr.Reason), zap.Int64("from", tr.From), zap.Int64("to", tr.To))
		default:
			if tr.Reason == target.ReasonDead {
				e.stats.KillCount++
			}
			e.scorer.Purge(tr.From)
			e.executor.StopAutoAttack()
			e.heldHandle = nil
			e.logger.Info("target released", zap.Int64("target", tr.From), zap.String("reason", string(tr.Reason)))
		}
	}
}

// behaviorFor returns the rule set for name, falling back to the default rules on any
// store failure.
func (e *Engine) behaviorFor(cache map[string]behavior.Config, name string) behavior.Config {
	key := behavior.Key(name)
	if cfg, ok := cache[key]; ok {
		return cfg
	}
	cfg, err := e.deps.Behaviors.Get(name)
	if err != nil {
		if !errors.Is(err, behavior.ErrNotFound) {
			e.logger.Warn("behavior lookup failed; using defaults", zap.String("name", key), zap.Error(err))
		}
		cfg = behavior.Default()
		cfg.Name = key
	}
	cache[key] = cfg
	return cfg
}

func (e *Engine) engage() {
	e.engaged = true
	if e.lingering {
		e.queue.Cancel(e.lingerID)
		e.lingering = false
	}
}

// disengage clears the engaged flag once the combat linger has elapsed without a target.
func (e *Engine) disengage(now time.Time) {
	if !e.engaged || e.lingering {
		return
	}
	e.lingering = true
	e.lingerID = e.queue.Schedule(now.Add(e.cfg.CombatLinger), func(time.Time) {
		e.engaged = false
		e.lingering = false
	})
}

func (e *Engine) register() {
	if e.deps.Timer == nil || !e.enabled {
		return
	}
	e.cancel()
	e.handle = e.deps.Timer.RegisterPeriodic(e.sched.Interval(), func(now time.Time) { e.Tick(now) })
	e.hasTask = true
}

func (e *Engine) cancel() {
	if e.deps.Timer == nil || !e.hasTask {
		return
	}
	e.deps.Timer.Cancel(e.handle)
	e.hasTask = false
}
