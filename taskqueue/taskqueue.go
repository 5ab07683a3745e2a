/*Package taskqueue implements the bounded-wait FIFO that backs each queue's
pending tasks: Push never blocks, Pop awaits until a task is available (or the
caller's context is done), and Snapshot returns the current contents without
draining them.*/
package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is the value object a worker pulls off a queue's FIFO: an executable,
// its argument vector, and the optional per-task timeout/working directory
// that override the queue's defaults. ID is minted at enqueue time purely for
// log correlation; it never appears on the wire.
type Task struct {
	ID      uuid.UUID
	Binary  string
	Args    []string
	Timeout time.Duration
	Dir     string
}

// NewTask builds a Task with a freshly minted correlation ID.
func NewTask(binary string, args []string, timeout time.Duration, dir string) Task {
	return Task{
		ID:      uuid.New(),
		Binary:  binary,
		Args:    args,
		Timeout: timeout,
		Dir:     dir,
	}
}

// FIFO is a strictly insertion-ordered queue of tasks. The zero value is not
// usable; construct one with New.
//
// Internally it pairs a mutex-guarded slice with a "ready" channel that is
// closed (and replaced) on every Push, broadcasting to any goroutine blocked
// in Pop.
type FIFO struct {
	mu    sync.Mutex
	items []Task
	ready chan struct{}
}

// New returns an empty FIFO.
func New() *FIFO {
	return &FIFO{ready: make(chan struct{})}
}

// Push appends t to the back of the queue. It never blocks.
func (q *FIFO) Push(t Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	ready := q.ready
	q.ready = make(chan struct{})
	q.mu.Unlock()

	close(ready)
}

// Pop removes and returns the task at the front of the queue, awaiting one if
// the queue is currently empty. It returns ctx.Err() if ctx is done before a
// task becomes available; in that case no task is removed.
func (q *FIFO) Pop(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return t, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
			// a Push happened; loop around and try again.
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}
}

// Snapshot returns a copy of the tasks currently sitting in the queue, in
// order, without removing any of them.
func (q *FIFO) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, len(q.items))
	copy(out, q.items)
	return out
}
