// Package target implements the target-holding state machine.
//
// The selector is either holding no target or locked onto one entity id. Invalid targets
// are released immediately; replacing a valid target is gated by a hysteresis policy so
// that near-equal candidates do not cause oscillation.
package target

import (
	"fmt"
	"sort"
	"time"

	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// Policy selects the hysteresis rule for replacing a held target.
type Policy string

const (
	// PolicyDelayAndMargin requires both the switch delay to have elapsed and the
	// challenger to beat the held target by at least the margin.
	PolicyDelayAndMargin Policy = "delay_and_margin"
	// PolicyDelay requires only the switch delay; any strictly better score wins.
	PolicyDelay Policy = "delay"
	// PolicyMargin requires only the score margin; there is no time component.
	PolicyMargin Policy = "margin"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyDelayAndMargin, PolicyDelay, PolicyMargin:
		return p, nil
	default:
		return "", fmt.Errorf("target: unknown switch policy %q", s)
	}
}

func (p Policy) usesDelay() bool  { return p != PolicyMargin }
func (p Policy) usesMargin() bool { return p != PolicyDelay }

// Config controls engagement range and switch hysteresis.
type Config struct {
	Policy      Policy
	SwitchDelay time.Duration
	Margin      float64
	// EngageRange is the maximum distance at which a target is held.
	EngageRange float64
}

// DefaultConfig returns delay-and-margin hysteresis with a 1s delay, a 5 point margin and
// an engagement range of 8.
func DefaultConfig() Config {
	return Config{Policy: PolicyDelayAndMargin, SwitchDelay: time.Second, Margin: 5, EngageRange: 8}
}

// State is the selector's state.
type State int

const (
	StateNoTarget State = iota
	StateLocked
)

// String returns the state name.
func (s State) String() string {
	if s == StateLocked {
		return "locked"
	}
	return "no_target"
}

// Reason explains a transition.
type Reason string

const (
	ReasonAcquired   Reason = "acquired"
	ReasonSwitched   Reason = "switched"
	ReasonDead       Reason = "dead"
	ReasonLost       Reason = "lost"
	ReasonFloor      Reason = "floor"
	ReasonRange      Reason = "range"
	ReasonIneligible Reason = "ineligible"
	ReasonCleared    Reason = "cleared"
)

// Candidate is an eligible entity with its distance from the controlled actor and score.
type Candidate struct {
	Entity   entity.Entity
	Distance float64
	Score    float64
}

// Held is the engine's fresh view of the currently held target for this tick.
type Held struct {
	// Found is false when the target could not be read (absent from the world or its
	// handle faulted).
	Found    bool
	Eligible bool
	Entity   entity.Entity
	Distance float64
	Score    float64
}

// Transition records one state change.
type Transition struct {
	From   int64
	To     int64
	Reason Reason
	At     time.Time
}

// Decision is the outcome of one Update.
type Decision struct {
	Target      int64
	Locked      bool
	Transitions []Transition
}

// Selector is the target session. It is owned by one engine and used only from its tick.
//
// Invariant: two target changes are at least SwitchDelay apart (for delay-based
// policies), except the acquisition that directly follows the held target dying or
// vanishing.
type Selector struct {
	cfg        Config
	current    int64
	locked     bool
	lastSwitch time.Time
	switched   bool
	forced     bool
}

// NewSelector returns a selector in StateNoTarget.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// Current returns the held target id.
func (s *Selector) Current() (int64, bool) {
	return s.current, s.locked
}

// State returns the current state.
func (s *Selector) State() State {
	if s.locked {
		return StateLocked
	}
	return StateNoTarget
}

// LastSwitch returns the time of the last acquisition or switch.
func (s *Selector) LastSwitch() time.Time {
	return s.lastSwitch
}

// Update advances the state machine by one tick.
//
// self is the controlled actor's position. held describes the currently held target and
// is ignored in StateNoTarget. candidates must contain only eligible, alive entities.
//
// Postcondition: an invalid held target is released in this call regardless of the
// switch delay; at most one acquisition or switch happens per call.
func (s *Selector) Update(now time.Time, self entity.Position, held Held, candidates []Candidate) Decision {
	var d Decision

	if s.locked {
		if reason := s.invalidReason(self, held); reason != "" {
			d.Transitions = append(d.Transitions, s.release(now, reason))
		}
	}

	ranked := rank(candidates)
	switch {
	case !s.locked:
		if len(ranked) > 0 && !s.gated(now) {
			d.Transitions = append(d.Transitions, s.lock(now, ranked[0].Entity.ID, ReasonAcquired))
		}
	default:
		if best, ok := s.challenger(now, held.Score, ranked); ok {
			d.Transitions = append(d.Transitions, s.lock(now, best.Entity.ID, ReasonSwitched))
		}
	}

	d.Target, d.Locked = s.current, s.locked
	return d
}

// Validate runs only the release half of Update: an invalid held target is released,
// and nothing is acquired or switched. Used while acquisition is paused.
func (s *Selector) Validate(now time.Time, self entity.Position, held Held) Decision {
	var d Decision
	if s.locked {
		if reason := s.invalidReason(self, held); reason != "" {
			d.Transitions = append(d.Transitions, s.release(now, reason))
		}
	}
	d.Target, d.Locked = s.current, s.locked
	return d
}

// Clear releases the held target without any validity check.
func (s *Selector) Clear(now time.Time) (Transition, bool) {
	if !s.locked {
		return Transition{}, false
	}
	return s.release(now, ReasonCleared), true
}

// Reset returns the selector to a fresh StateNoTarget with no switch history.
func (s *Selector) Reset() {
	*s = Selector{cfg: s.cfg}
}

func (s *Selector) invalidReason(self entity.Position, held Held) Reason {
	switch {
	case !held.Found:
		return ReasonLost
	case !held.Entity.Alive:
		return ReasonDead
	case !held.Entity.Position.SameFloor(self):
		return ReasonFloor
	case held.Distance > s.cfg.EngageRange:
		return ReasonRange
	case !held.Eligible:
		return ReasonIneligible
	}
	return ""
}

func (s *Selector) gated(now time.Time) bool {
	if !s.cfg.Policy.usesDelay() || !s.switched || s.forced {
		return false
	}
	return now.Sub(s.lastSwitch) < s.cfg.SwitchDelay
}

func (s *Selector) challenger(now time.Time, heldScore float64, ranked []Candidate) (Candidate, bool) {
	if s.gated(now) {
		return Candidate{}, false
	}
	for _, c := range ranked {
		if c.Entity.ID == s.current {
			continue
		}
		if c.Score <= heldScore {
			return Candidate{}, false
		}
		if s.cfg.Policy.usesMargin() && c.Score-heldScore < s.cfg.Margin {
			return Candidate{}, false
		}
		return c, true
	}
	return Candidate{}, false
}

func (s *Selector) lock(now time.Time, id int64, reason Reason) Transition {
	t := Transition{From: s.currentOrZero(), To: id, Reason: reason, At: now}
	s.current = id
	s.locked = true
	s.lastSwitch = now
	s.switched = true
	s.forced = false
	return t
}

func (s *Selector) release(now time.Time, reason Reason) Transition {
	t := Transition{From: s.current, Reason: reason, At: now}
	s.current = 0
	s.locked = false
	s.forced = reason == ReasonDead || reason == ReasonLost
	return t
}

func (s *Selector) currentOrZero() int64 {
	if s.locked {
		return s.current
	}
	return 0
}

// rank orders candidates by score descending, then id ascending.
func rank(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	return out
}
