// Package sim is an in-process game world for running the hunt engine without a game
// client: monsters spawn, aggro, chase and hit the controlled actor, die and respawn.
package sim

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind classifies a spawn for the entity accessor.
type Kind string

const (
	KindHostile Kind = "hostile"
	KindNeutral Kind = "neutral"
	KindPlayer  Kind = "player"
)

// SelfSpec describes the controlled actor.
type SelfSpec struct {
	ID        int64   `yaml:"id"`
	Name      string  `yaml:"name"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Z         int     `yaml:"z"`
	MaxHP     int     `yaml:"max_hp"`
	MaxMana   int     `yaml:"max_mana"`
	ManaRegen float64 `yaml:"mana_regen"`
	// Speed is movement in world units per second.
	Speed float64 `yaml:"speed"`
	// KeepDistance is how far the actor backs away from targets whose behavior asks for it.
	KeepDistance float64       `yaml:"keep_distance"`
	RespawnDelay time.Duration `yaml:"respawn_delay"`
}

// MeleeSpec is the actor's auto-attack.
type MeleeSpec struct {
	Damage   int           `yaml:"damage"`
	Range    float64       `yaml:"range"`
	Interval time.Duration `yaml:"interval"`
}

// EffectSpec is what an ability or item does when invoked.
type EffectSpec struct {
	Damage   int     `yaml:"damage"`
	Heal     int     `yaml:"heal"`
	ManaCost int     `yaml:"mana_cost"`
	Range    float64 `yaml:"range"`
}

// ItemSpec is an EffectSpec keyed by item id.
type ItemSpec struct {
	ID         int `yaml:"id"`
	EffectSpec `yaml:",inline"`
}

// AbilitySpec is an EffectSpec keyed by ability id.
type AbilitySpec struct {
	ID         string `yaml:"id"`
	EffectSpec `yaml:",inline"`
}

// SpawnSpec places Count creatures of one type around (X, Y) on floor Z.
type SpawnSpec struct {
	Name   string  `yaml:"name"`
	Kind   Kind    `yaml:"kind"`
	Count  int     `yaml:"count"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Z      int     `yaml:"z"`
	Spread float64 `yaml:"spread"`
	MaxHP  int     `yaml:"max_hp"`
	Damage int     `yaml:"damage"`
	// AggroRange is how close the actor must come before a hostile creature engages.
	AggroRange     float64       `yaml:"aggro_range"`
	AttackRange    float64       `yaml:"attack_range"`
	AttackInterval time.Duration `yaml:"attack_interval"`
	Speed          float64       `yaml:"speed"`
	CorpseDecay    time.Duration `yaml:"corpse_decay"`
	Respawn        time.Duration `yaml:"respawn"`
}

// Scenario is a complete simulated hunting ground.
type Scenario struct {
	Name      string        `yaml:"name"`
	Seed      uint64        `yaml:"seed"`
	Self      SelfSpec      `yaml:"self"`
	Melee     MeleeSpec     `yaml:"melee"`
	Abilities []AbilitySpec `yaml:"abilities"`
	Items     []ItemSpec    `yaml:"items"`
	Spawns    []SpawnSpec   `yaml:"spawns"`
}

// ErrInvalidScenario is wrapped by every Validate failure.
var ErrInvalidScenario = errors.New("sim: invalid scenario")

func defaultScenario() Scenario {
	return Scenario{
		Seed: 1,
		Self: SelfSpec{
			ID: 1, Name: "hunter", MaxHP: 100, MaxMana: 100,
			ManaRegen: 5, Speed: 4, KeepDistance: 4, RespawnDelay: 5 * time.Second,
		},
		Melee: MeleeSpec{Damage: 5, Range: 1.5, Interval: time.Second},
	}
}

func (s *SpawnSpec) applyDefaults() {
	if s.Kind == "" {
		s.Kind = KindHostile
	}
	if s.Count == 0 {
		s.Count = 1
	}
	if s.MaxHP == 0 {
		s.MaxHP = 50
	}
	if s.AttackRange == 0 {
		s.AttackRange = 1.5
	}
	if s.AttackInterval == 0 {
		s.AttackInterval = 2 * time.Second
	}
	if s.Speed == 0 {
		s.Speed = 2
	}
	if s.CorpseDecay == 0 {
		s.CorpseDecay = 3 * time.Second
	}
	if s.Respawn == 0 {
		s.Respawn = 10 * time.Second
	}
}

// Validate checks the scenario after defaults have been applied.
//
// Postcondition: Every error wraps ErrInvalidScenario; all violations are joined.
func (s Scenario) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidScenario}, args...)...))
	}
	if s.Self.ID <= 0 {
		add("self.id must be > 0")
	}
	if s.Self.MaxHP <= 0 {
		add("self.max_hp must be > 0")
	}
	if s.Self.MaxMana < 0 {
		add("self.max_mana must be >= 0")
	}
	if s.Self.Speed < 0 {
		add("self.speed must be >= 0")
	}
	if s.Melee.Interval <= 0 {
		add("melee.interval must be > 0")
	}
	abilities := make(map[string]struct{}, len(s.Abilities))
	for _, a := range s.Abilities {
		if a.ID == "" {
			add("ability id must not be empty")
		}
		if _, dup := abilities[a.ID]; dup {
			add("duplicate ability %q", a.ID)
		}
		abilities[a.ID] = struct{}{}
	}
	items := make(map[int]struct{}, len(s.Items))
	for _, it := range s.Items {
		if it.ID <= 0 {
			add("item id must be > 0, got %d", it.ID)
		}
		if _, dup := items[it.ID]; dup {
			add("duplicate item %d", it.ID)
		}
		items[it.ID] = struct{}{}
	}
	for i, sp := range s.Spawns {
		if sp.Name == "" {
			add("spawn %d: name must not be empty", i)
		}
		switch sp.Kind {
		case KindHostile, KindNeutral, KindPlayer:
		default:
			add("spawn %q: unknown kind %q", sp.Name, sp.Kind)
		}
		if sp.Count < 0 || sp.MaxHP <= 0 || sp.Spread < 0 {
			add("spawn %q: count, max_hp and spread must be positive", sp.Name)
		}
	}
	return errors.Join(errs...)
}

// ParseScenario decodes a scenario from YAML, filling unset fields with defaults.
//
// Postcondition: Returns a validated Scenario or an error.
func ParseScenario(data []byte) (Scenario, error) {
	sc := defaultScenario()
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	for i := range sc.Spawns {
		sc.Spawns[i].applyDefaults()
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// LoadScenario reads and parses the scenario file at path.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario %q: %w", path, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("loading scenario %q: %w", path, err)
	}
	return sc, nil
}
