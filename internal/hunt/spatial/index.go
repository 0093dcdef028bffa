// Package spatial buckets visible hostile entities into a fixed-size grid so the engine
// can answer radius queries without scanning every visible entity.
//
// The index is owned by a single engine and accessed only from its tick; it takes no locks.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/hunt/entity"
)

// ErrNoWorld is returned by Rebuild when no world query primitive is available.
var ErrNoWorld = errors.New("spatial: world query unavailable")

// World is the host's spatial query over currently rendered entities.
type World interface {
	Query(center entity.Position, radiusX, radiusY float64, includeOtherFloors bool) ([]entity.Handle, error)
}

// Config controls grid geometry and rebuild cadence.
type Config struct {
	// CellSize is the edge length of one grid cell in world units.
	CellSize float64
	// TTL is the maximum age of the index before Refresh rebuilds it.
	TTL time.Duration
	// ScanRadiusX and ScanRadiusY bound the world query issued on rebuild.
	ScanRadiusX float64
	ScanRadiusY float64
	// IncludeOtherFloors asks the host for entities on every floor.
	IncludeOtherFloors bool
}

// DefaultConfig returns 8-unit cells rebuilt every 200ms over a 10x10 scan.
func DefaultConfig() Config {
	return Config{CellSize: 8, TTL: 200 * time.Millisecond, ScanRadiusX: 10, ScanRadiusY: 10}
}

// Hit is one query result.
type Hit struct {
	Entity   entity.Entity
	Distance float64
}

type cellKey struct {
	cx    int64
	cy    int64
	floor int
}

type record struct {
	ent    entity.Entity
	handle entity.Handle
}

// Index is a uniform grid of alive hostile entities.
//
// Invariant: cells and records always describe the same rebuild; the index is never
// partially mutated.
type Index struct {
	cfg     Config
	logger  *zap.Logger
	cells   map[cellKey][]int64
	records map[int64]record
	dead    []int64
	faults  int
	builtAt time.Time
	built   bool
}

// New returns an empty, stale Index.
//
// Precondition: cfg.CellSize > 0.
func New(cfg Config, logger *zap.Logger) *Index {
	if cfg.CellSize <= 0 {
		panic("spatial.New: cell size must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		cfg:     cfg,
		logger:  logger,
		cells:   make(map[cellKey][]int64),
		records: make(map[int64]record),
	}
}

// Stale reports whether the index must be rebuilt at now.
func (ix *Index) Stale(now time.Time) bool {
	return !ix.built || now.Sub(ix.builtAt) >= ix.cfg.TTL
}

// Refresh rebuilds the index when it is stale and reports whether it did.
func (ix *Index) Refresh(now time.Time, world World, center entity.Position, selfID int64) (bool, error) {
	if !ix.Stale(now) {
		return false, nil
	}
	return true, ix.Rebuild(now, world, center, selfID)
}

// Rebuild discards the current grid and rebuilds it from a fresh world query.
//
// Postcondition: On error the index is empty and stale, so queries return nothing this
// tick and the next Refresh retries. Entities whose handles fault are skipped and
// counted in Faults; entities observed dead are listed by Dead.
func (ix *Index) Rebuild(now time.Time, world World, center entity.Position, selfID int64) error {
	ix.reset()
	if world == nil {
		return ErrNoWorld
	}
	handles, err := world.Query(center, ix.cfg.ScanRadiusX, ix.cfg.ScanRadiusY, ix.cfg.IncludeOtherFloors)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoWorld, err)
	}

	for _, h := range handles {
		e, err := entity.Snapshot(h, selfID)
		if err != nil {
			ix.faults++
			continue
		}
		if e.ID == selfID || !e.IsHostile() {
			continue
		}
		if !e.Alive {
			ix.dead = append(ix.dead, e.ID)
			continue
		}
		key := ix.keyFor(e.Position)
		ix.cells[key] = append(ix.cells[key], e.ID)
		ix.records[e.ID] = record{ent: e, handle: h}
	}
	ix.builtAt = now
	ix.built = true

	if ix.faults > 0 {
		ix.logger.Debug("spatial index skipped faulted handles",
			zap.Int("faults", ix.faults),
			zap.Int("indexed", len(ix.records)),
		)
	}
	return nil
}

// Invalidate marks the index stale without touching its contents.
func (ix *Index) Invalidate() {
	ix.built = false
}

// Query returns every indexed entity on center's floor within rng of center, ordered by
// distance then id.
func (ix *Index) Query(center entity.Position, rng float64) []Hit {
	if rng < 0 || len(ix.records) == 0 {
		return nil
	}
	cx := ix.cellCoord(center.X)
	cy := ix.cellCoord(center.Y)
	span := int64(math.Ceil(rng / ix.cfg.CellSize))
	rangeSq := rng * rng

	var hits []Hit
	for x := cx - span; x <= cx+span; x++ {
		for y := cy - span; y <= cy+span; y++ {
			for _, id := range ix.cells[cellKey{cx: x, cy: y, floor: center.Z}] {
				rec := ix.records[id]
				dx := rec.ent.Position.X - center.X
				dy := rec.ent.Position.Y - center.Y
				if d2 := dx*dx + dy*dy; d2 <= rangeSq {
					hits = append(hits, Hit{Entity: rec.ent, Distance: math.Sqrt(d2)})
				}
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Entity.ID < hits[j].Entity.ID
	})
	return hits
}

// Lookup returns the handle and snapshot captured for id at the last rebuild.
func (ix *Index) Lookup(id int64) (entity.Handle, entity.Entity, bool) {
	rec, ok := ix.records[id]
	return rec.handle, rec.ent, ok
}

// Dead returns ids of hostile entities observed dead at the last rebuild.
func (ix *Index) Dead() []int64 {
	return ix.dead
}

// Faults returns the number of handles skipped at the last rebuild.
func (ix *Index) Faults() int {
	return ix.faults
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int {
	return len(ix.records)
}

// BuiltAt returns the time of the last successful rebuild.
func (ix *Index) BuiltAt() time.Time {
	return ix.builtAt
}

func (ix *Index) reset() {
	clear(ix.cells)
	clear(ix.records)
	ix.dead = ix.dead[:0]
	ix.faults = 0
	ix.built = false
}

func (ix *Index) keyFor(p entity.Position) cellKey {
	return cellKey{cx: ix.cellCoord(p.X), cy: ix.cellCoord(p.Y), floor: p.Z}
}

func (ix *Index) cellCoord(v float64) int64 {
	return int64(math.Floor(v / ix.cfg.CellSize))
}
