// Package behavior holds per-entity-type engagement rules: whether to attack a creature
// type, how to weigh it, and which abilities and items to use against it.
package behavior

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mid-scale defaults applied when a creature type has no configuration.
const (
	DefaultPriorityWeight = 5.0
	DefaultDangerRating   = 5.0
	// MaxRating is the upper bound of PriorityWeight and DangerRating.
	MaxRating = 10.0
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("behavior: invalid config")

// Duration is a time.Duration that reads and writes Go duration strings ("1500ms", "2s").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Gate holds the eligibility conditions shared by abilities and items. Zero values
// disable a condition.
type Gate struct {
	// ManaCost is the mana the controlled actor must have available.
	ManaCost int `yaml:"mana_cost" json:"mana_cost,omitempty"`
	// SelfHealthBelow fires only while self health percent is strictly below this value.
	SelfHealthBelow int `yaml:"self_health_below" json:"self_health_below,omitempty"`
	// SelfManaBelow fires only while self mana percent is strictly below this value.
	SelfManaBelow int `yaml:"self_mana_below" json:"self_mana_below,omitempty"`
	// TargetHealthBelow fires only while the target's health percent is strictly below this value.
	TargetHealthBelow int `yaml:"target_health_below" json:"target_health_below,omitempty"`
	// MaxRange fires only while the target is within this distance.
	MaxRange float64 `yaml:"max_range" json:"max_range,omitempty"`
	// Trigger is an optional Lua boolean expression over `self` and `target`.
	Trigger string `yaml:"trigger" json:"trigger,omitempty"`
}

func (g Gate) validate(owner string) error {
	if g.ManaCost < 0 {
		return fmt.Errorf("%s: mana_cost must be >= 0", owner)
	}
	for name, v := range map[string]int{
		"self_health_below":   g.SelfHealthBelow,
		"self_mana_below":     g.SelfManaBelow,
		"target_health_below": g.TargetHealthBelow,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s: %s must be in [0, 100], got %d", owner, name, v)
		}
	}
	if g.MaxRange < 0 {
		return fmt.Errorf("%s: max_range must be >= 0", owner)
	}
	return nil
}

// Ability is a spell or skill cast against the target.
type Ability struct {
	ID       string   `yaml:"id" json:"id"`
	Cooldown Duration `yaml:"cooldown" json:"cooldown"`
	Gate     `yaml:",inline"`
}

// Item is a usable item (rune, potion) fired at the target or self.
type Item struct {
	ID       int      `yaml:"id" json:"id"`
	Cooldown Duration `yaml:"cooldown" json:"cooldown"`
	Gate     `yaml:",inline"`
}

// Config is the rule set for one creature type.
//
// Invariant: Name is stored lowercase; Validate has succeeded for every Config held by
// a Registry.
type Config struct {
	Name           string    `yaml:"name" json:"name"`
	AttackEnabled  bool      `yaml:"attack" json:"attack"`
	PriorityWeight float64   `yaml:"priority" json:"priority"`
	DangerRating   float64   `yaml:"danger" json:"danger"`
	KeepDistance   bool      `yaml:"keep_distance" json:"keep_distance"`
	Chase          bool      `yaml:"chase" json:"chase"`
	Abilities      []Ability `yaml:"abilities" json:"abilities"`
	Items          []Item    `yaml:"items" json:"items"`
}

// Default returns the built-in rule set used for unknown or unreadable creature types:
// attack enabled, mid-scale weights, no abilities or items.
func Default() Config {
	return Config{
		AttackEnabled:  true,
		PriorityWeight: DefaultPriorityWeight,
		DangerRating:   DefaultDangerRating,
	}
}

// Key normalizes a creature type name to its registry key.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate checks the config's invariants.
//
// Postcondition: Returns nil iff Name is non-empty, ratings are in [0, MaxRating],
// cooldowns are non-negative, gates are in range, and ability/item ids are unique
// and non-empty. Every error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	if Key(c.Name) == "" {
		return errors.New("name must not be empty")
	}
	if c.PriorityWeight < 0 || c.PriorityWeight > MaxRating {
		return fmt.Errorf("%q: priority must be in [0, %g], got %g", c.Name, MaxRating, c.PriorityWeight)
	}
	if c.DangerRating < 0 || c.DangerRating > MaxRating {
		return fmt.Errorf("%q: danger must be in [0, %g], got %g", c.Name, MaxRating, c.DangerRating)
	}
	abilityIDs := make(map[string]struct{}, len(c.Abilities))
	for i, a := range c.Abilities {
		owner := fmt.Sprintf("%q ability %d", c.Name, i)
		if a.ID == "" {
			return fmt.Errorf("%s: id must not be empty", owner)
		}
		if _, dup := abilityIDs[a.ID]; dup {
			return fmt.Errorf("%q: duplicate ability id %q", c.Name, a.ID)
		}
		abilityIDs[a.ID] = struct{}{}
		if a.Cooldown < 0 {
			return fmt.Errorf("%s: cooldown must be >= 0", owner)
		}
		if err := a.Gate.validate(owner); err != nil {
			return err
		}
	}
	itemIDs := make(map[int]struct{}, len(c.Items))
	for i, it := range c.Items {
		owner := fmt.Sprintf("%q item %d", c.Name, i)
		if it.ID <= 0 {
			return fmt.Errorf("%s: id must be > 0", owner)
		}
		if _, dup := itemIDs[it.ID]; dup {
			return fmt.Errorf("%q: duplicate item id %d", c.Name, it.ID)
		}
		itemIDs[it.ID] = struct{}{}
		if it.Cooldown < 0 {
			return fmt.Errorf("%s: cooldown must be >= 0", owner)
		}
		if err := it.Gate.validate(owner); err != nil {
			return err
		}
	}
	return nil
}
