// Package host provides the cooperative timer the engine, simulator and control plane
// share: every periodic task fires on one goroutine, so tasks never run concurrently.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/hunt"
)

type periodic struct {
	handle   hunt.TaskHandle
	interval time.Duration
	fn       func(now time.Time)
	// due is zero until the first Advance after registration, unless the task was
	// registered during an Advance.
	due time.Time
}

// Loop runs periodic tasks. Advance fires every task whose due time has passed; Run
// calls Advance from a ticker.
//
// Invariant: a task fires at most once per Advance, and never again after Cancel returns.
type Loop struct {
	resolution time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	next  hunt.TaskHandle
	tasks map[hunt.TaskHandle]*periodic
	fired uint64
	// advancing holds the now of the Advance in progress, zero outside Advance.
	advancing time.Time
}

// NewLoop returns a loop whose Run wakes every resolution.
//
// Precondition: resolution must be > 0.
func NewLoop(resolution time.Duration, logger *zap.Logger) *Loop {
	if resolution <= 0 {
		panic("host.NewLoop: resolution must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		resolution: resolution,
		logger:     logger,
		tasks:      make(map[hunt.TaskHandle]*periodic),
	}
}

// RegisterPeriodic schedules fn every interval. The first firing happens one interval
// after the next Advance, or one interval after the current Advance when called from
// within a running task. A task registered mid-Advance never fires in that same Advance.
//
// Precondition: interval must be > 0; fn must be non-nil.
// Postcondition: Returns a handle unique for the lifetime of the loop.
func (l *Loop) RegisterPeriodic(interval time.Duration, fn func(now time.Time)) hunt.TaskHandle {
	if interval <= 0 {
		panic(fmt.Sprintf("host.Loop.RegisterPeriodic: interval must be > 0, got %s", interval))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := l.next
	p := &periodic{handle: h, interval: interval, fn: fn}
	if !l.advancing.IsZero() {
		p.due = l.advancing.Add(interval)
	}
	l.tasks[h] = p
	l.logger.Debug("periodic task registered", zap.Uint64("handle", uint64(h)), zap.Duration("interval", interval))
	return h
}

// Cancel removes the task; unknown handles are ignored. Safe to call from within a
// running task, including the task being cancelled.
func (l *Loop) Cancel(h hunt.TaskHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tasks[h]; ok {
		delete(l.tasks, h)
		l.logger.Debug("periodic task cancelled", zap.Uint64("handle", uint64(h)))
	}
}

// Len returns the number of registered tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Fired returns the total number of task invocations.
func (l *Loop) Fired() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired
}

// Advance fires every task due at or before now, in due-time order with ties broken by
// registration order. A task that fell several intervals behind fires once and is
// rescheduled one interval after now. A panicking task is logged and stays registered.
//
// Postcondition: Returns the number of tasks fired.
func (l *Loop) Advance(now time.Time) int {
	l.mu.Lock()
	l.advancing = now
	var due []*periodic
	for _, p := range l.tasks {
		if p.due.IsZero() {
			p.due = now.Add(p.interval)
			continue
		}
		if !p.due.After(now) {
			due = append(due, p)
		}
	}
	l.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].handle < due[j].handle
		}
		return due[i].due.Before(due[j].due)
	})

	defer func() {
		l.mu.Lock()
		l.advancing = time.Time{}
		l.mu.Unlock()
	}()

	fired := 0
	for _, p := range due {
		l.mu.Lock()
		_, live := l.tasks[p.handle]
		if live {
			p.due = now.Add(p.interval)
			l.fired++
		}
		l.mu.Unlock()
		if !live {
			continue
		}
		l.invoke(p, now)
		fired++
	}
	return fired
}

func (l *Loop) invoke(p *periodic, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("periodic task panicked",
				zap.Uint64("handle", uint64(p.handle)),
				zap.Any("panic", r),
			)
		}
	}()
	p.fn(now)
}

// Run calls Advance every resolution until ctx is cancelled.
//
// Postcondition: Returns ctx.Err() once ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.resolution)
	defer ticker.Stop()
	l.logger.Info("host loop started", zap.Duration("resolution", l.resolution))
	l.Advance(time.Now())
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("host loop stopped", zap.Uint64("fired", l.Fired()))
			return ctx.Err()
		case now := <-ticker.C:
			l.Advance(now)
		}
	}
}
