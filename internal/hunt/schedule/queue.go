package schedule

import (
	"sort"
	"time"
)

// TaskID identifies a queued task.
type TaskID uint64

// Task is a deferred callback. now is the time of the drain that runs it.
type Task func(now time.Time)

type queued struct {
	id  TaskID
	due time.Time
	fn  Task
}

// TaskQueue holds deferred callbacks in due order. It is drained by the tick that owns it
// and is not safe for concurrent use.
type TaskQueue struct {
	next  TaskID
	tasks []queued
}

// NewTaskQueue returns an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Schedule queues fn to run at the first Drain at or after due.
func (q *TaskQueue) Schedule(due time.Time, fn Task) TaskID {
	q.next++
	t := queued{id: q.next, due: due, fn: fn}
	i := sort.Search(len(q.tasks), func(i int) bool { return q.tasks[i].due.After(due) })
	q.tasks = append(q.tasks, queued{})
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = t
	return t.id
}

// Cancel removes the task id. It reports whether the task was still queued.
func (q *TaskQueue) Cancel(id TaskID) bool {
	for i, t := range q.tasks {
		if t.id == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Drain runs every task due at or before now, in due order, and returns how many ran.
//
// Postcondition: tasks scheduled by a running task wait for the next Drain.
func (q *TaskQueue) Drain(now time.Time) int {
	n := sort.Search(len(q.tasks), func(i int) bool { return q.tasks[i].due.After(now) })
	if n == 0 {
		return 0
	}
	due := make([]queued, n)
	copy(due, q.tasks[:n])
	q.tasks = append(q.tasks[:0], q.tasks[n:]...)
	for _, t := range due {
		t.fn(now)
	}
	return n
}

// Clear drops every queued task.
func (q *TaskQueue) Clear() {
	q.tasks = nil
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}
