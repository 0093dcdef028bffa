// Package schedule decides how often the engine ticks and holds its deferred tasks.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Tier is one of the fixed polling tiers, fastest first.
type Tier int

const (
	TierCritical Tier = iota
	TierCombat
	TierHunting
	TierIdle
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierCombat:
		return "combat"
	case TierHunting:
		return "hunting"
	case TierIdle:
		return "idle"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Config holds the tier intervals and the thresholds that select them.
type Config struct {
	Critical time.Duration
	Combat   time.Duration
	Hunting  time.Duration
	Idle     time.Duration
	// CriticalHealth selects the critical tier while self health percent is strictly below it.
	CriticalHealth int
	// CriticalHostiles selects the critical tier while more hostiles than this are nearby.
	CriticalHostiles int
	// WideRadius is the radius within which hostiles are counted.
	WideRadius float64
}

// DefaultConfig returns 50ms/100ms/250ms/500ms tiers, critical below 30% health or above
// 6 hostiles, counted within 10 units.
func DefaultConfig() Config {
	return Config{
		Critical:         50 * time.Millisecond,
		Combat:           100 * time.Millisecond,
		Hunting:          250 * time.Millisecond,
		Idle:             500 * time.Millisecond,
		CriticalHealth:   30,
		CriticalHostiles: 6,
		WideRadius:       10,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	for _, iv := range []struct {
		name string
		d    time.Duration
	}{{"critical", c.Critical}, {"combat", c.Combat}, {"hunting", c.Hunting}, {"idle", c.Idle}} {
		if iv.d <= 0 {
			errs = append(errs, fmt.Errorf("%s interval must be > 0, got %s", iv.name, iv.d))
		}
	}
	if c.Critical > c.Combat || c.Combat > c.Hunting || c.Hunting > c.Idle {
		errs = append(errs, errors.New("tier intervals must be ordered critical <= combat <= hunting <= idle"))
	}
	if c.WideRadius <= 0 {
		errs = append(errs, fmt.Errorf("wide radius must be > 0, got %v", c.WideRadius))
	}
	return errors.Join(errs...)
}

// Signals are the situational inputs of one evaluation.
type Signals struct {
	Hostiles   int
	SelfHealth int
	Engaged    bool
}

// Classify returns the tier matching sig.
func Classify(cfg Config, sig Signals) Tier {
	switch {
	case sig.SelfHealth < cfg.CriticalHealth || sig.Hostiles > cfg.CriticalHostiles:
		return TierCritical
	case sig.Engaged:
		return TierCombat
	case sig.Hostiles > 0:
		return TierHunting
	default:
		return TierIdle
	}
}

// Scheduler tracks the current tier.
//
// Invariant: Interval always returns one of the four configured tier intervals.
type Scheduler struct {
	cfg      Config
	tier     Tier
	lastTick time.Time
}

// New returns a Scheduler in the idle tier.
func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg, tier: TierIdle}
}

// Update records a tick at now and snaps to the tier matching sig. It reports whether the
// tier changed.
func (s *Scheduler) Update(now time.Time, sig Signals) (Tier, bool) {
	s.lastTick = now
	next := Classify(s.cfg, sig)
	changed := next != s.tier
	s.tier = next
	return next, changed
}

// Tier returns the current tier.
func (s *Scheduler) Tier() Tier { return s.tier }

// Interval returns the current tier's interval.
func (s *Scheduler) Interval() time.Duration { return s.IntervalFor(s.tier) }

// IntervalFor returns the configured interval of t.
func (s *Scheduler) IntervalFor(t Tier) time.Duration {
	switch t {
	case TierCritical:
		return s.cfg.Critical
	case TierCombat:
		return s.cfg.Combat
	case TierHunting:
		return s.cfg.Hunting
	default:
		return s.cfg.Idle
	}
}

// WideRadius returns the radius hostiles are counted within.
func (s *Scheduler) WideRadius() float64 { return s.cfg.WideRadius }

// LastTick returns the time of the last Update.
func (s *Scheduler) LastTick() time.Time { return s.lastTick }

// Reset returns the scheduler to the idle tier with no tick history.
func (s *Scheduler) Reset() {
	s.tier = TierIdle
	s.lastTick = time.Time{}
}
