// Package priority scores candidate targets by how urgently they should be engaged.
package priority

import (
	"math"
	"time"

	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// Weights are the maximum contribution of each factor to a score.
type Weights struct {
	Health    float64
	Distance  float64
	Danger    float64
	Priority  float64
	Attacking float64
	// MaxDistance is the distance at and beyond which the proximity factor is zero.
	MaxDistance float64
}

// DefaultWeights returns health 30, distance 20, danger 25, priority 15, attacking 10
// over a 10-unit proximity window.
func DefaultWeights() Weights {
	return Weights{Health: 30, Distance: 20, Danger: 25, Priority: 15, Attacking: 10, MaxDistance: 10}
}

// Input is everything a score depends on.
type Input struct {
	Entity   entity.Entity
	Distance float64
	Behavior behavior.Config
}

type entry struct {
	score      float64
	computedAt time.Time
}

// Scorer computes scores and caches them per entity for TTL.
//
// Invariant: a cached score is returned unchanged until it is TTL old; an entry for an
// entity observed dead is removed immediately.
type Scorer struct {
	weights Weights
	ttl     time.Duration
	cache   map[int64]entry
	hits    int
	misses  int
}

// NewScorer returns a Scorer with an empty cache.
//
// Precondition: w.MaxDistance > 0; ttl >= 0 (0 disables caching).
func NewScorer(w Weights, ttl time.Duration) *Scorer {
	if w.MaxDistance <= 0 {
		panic("priority.NewScorer: MaxDistance must be > 0")
	}
	return &Scorer{weights: w, ttl: ttl, cache: make(map[int64]entry)}
}

// Compute returns the uncached score for in. It has no side effects.
func (s *Scorer) Compute(in Input) float64 {
	w := s.weights
	hp := float64(in.Entity.HealthPercent)
	health := (100 - hp) * w.Health / 100

	d := math.Max(0, in.Distance)
	proximity := (w.MaxDistance - math.Min(d, w.MaxDistance)) * w.Distance / w.MaxDistance

	danger := in.Behavior.DangerRating * w.Danger / behavior.MaxRating
	custom := in.Behavior.PriorityWeight * w.Priority / behavior.MaxRating

	score := health + proximity + danger + custom
	if in.Entity.AttackingSelf {
		score += w.Attacking
	}
	return score
}

// Score returns the cached score for in.Entity when younger than the TTL, otherwise
// computes and caches a fresh one.
//
// Postcondition: a dead entity scores 0 and has no cache entry.
func (s *Scorer) Score(now time.Time, in Input) float64 {
	id := in.Entity.ID
	if !in.Entity.Alive {
		s.Purge(id)
		return 0
	}
	if e, ok := s.cache[id]; ok && now.Sub(e.computedAt) < s.ttl {
		s.hits++
		return e.score
	}
	s.misses++
	score := s.Compute(in)
	s.cache[id] = entry{score: score, computedAt: now}
	return score
}

// Purge removes the cache entry for id.
func (s *Scorer) Purge(id int64) {
	delete(s.cache, id)
}

// Sweep drops every entry at least TTL old and returns how many were removed.
func (s *Scorer) Sweep(now time.Time) int {
	n := 0
	for id, e := range s.cache {
		if now.Sub(e.computedAt) >= s.ttl {
			delete(s.cache, id)
			n++
		}
	}
	return n
}

// Reset empties the cache.
func (s *Scorer) Reset() {
	clear(s.cache)
}

// Cached reports whether id currently has a cache entry, regardless of age.
func (s *Scorer) Cached(id int64) bool {
	_, ok := s.cache[id]
	return ok
}

// Len returns the number of cache entries.
func (s *Scorer) Len() int {
	return len(s.cache)
}

// Stats returns cache hit and miss counts.
func (s *Scorer) Stats() (hits, misses int) {
	return s.hits, s.misses
}
