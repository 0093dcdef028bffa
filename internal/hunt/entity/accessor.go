package entity

import "fmt"

// Handle is the host's view of a world entity. Any accessor may panic if the
// underlying entity became invalid; callers must go through Snapshot.
type Handle interface {
	ID() int64
	Name() string
	Position() Position
	HealthPercent() int
	IsDead() bool
	IsHostile() bool
}

// TargetReporter is implemented by handles that expose the id of the entity they are
// currently attacking.
type TargetReporter interface {
	TargetID() int64
}

// PlayerReporter is implemented by handles that can tell players apart from neutral
// entities.
type PlayerReporter interface {
	IsPlayer() bool
}

// Snapshot reads every field of h once and returns a typed Entity.
//
// selfID is the controlled actor's id, used to derive AttackingSelf; pass 0 when unknown.
//
// Precondition: none; h may be nil or faulty.
// Postcondition: Returns (entity, nil) on a clean read; returns ErrNilHandle for a nil
// handle and an error wrapping ErrHandleFault if any accessor panicked. HealthPercent is
// clamped to [0, 100]; an entity at 0% health is never Alive.
func Snapshot(h Handle, selfID int64) (e Entity, err error) {
	if h == nil {
		return Entity{}, ErrNilHandle
	}
	defer func() {
		if r := recover(); r != nil {
			e = Entity{}
			err = fmt.Errorf("%w: %v", ErrHandleFault, r)
		}
	}()

	e.ID = h.ID()
	e.Name = h.Name()
	e.Position = h.Position()
	e.HealthPercent = clampPercent(h.HealthPercent())
	e.Alive = !h.IsDead() && e.HealthPercent > 0

	switch {
	case h.IsHostile():
		e.Category = CategoryHostile
	case isPlayer(h):
		e.Category = CategoryPlayer
	default:
		e.Category = CategoryNeutral
	}

	if tr, ok := h.(TargetReporter); ok && selfID != 0 {
		e.AttackingSelf = tr.TargetID() == selfID
	}
	return e, nil
}

func isPlayer(h Handle) bool {
	pr, ok := h.(PlayerReporter)
	return ok && pr.IsPlayer()
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
