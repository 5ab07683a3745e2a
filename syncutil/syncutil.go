/*Package syncutil provides the broadcast shutdown primitives shared by the
server, worker, and process packages: a one-shot, multi-waiter Trigger/Waiter
pair and a DropBarrier used to await the drain of an unbounded number of
in-flight sessions. Both primitives are cheap to clone: cloning just copies a
struct containing a shared pointer.*/
package syncutil

import "sync"

// condState is the shared state backing a Trigger/Waiter pair. Closing ch
// broadcasts to every existing and future waiter; once is what makes Set
// idempotent no matter how many clones of the Trigger call it concurrently.
type condState struct {
	once sync.Once
	ch   chan struct{}
}

// Trigger is the set-once half of a condition. It may be freely copied;
// every copy controls the same underlying broadcast.
type Trigger struct {
	s *condState
}

// Waiter is the read-only half of a condition returned alongside a Trigger.
type Waiter struct {
	s *condState
}

// NewCondition returns a fresh Trigger/Waiter pair in the unset state.
func NewCondition() (Trigger, Waiter) {
	s := &condState{ch: make(chan struct{})}
	return Trigger{s: s}, Waiter{s: s}
}

// Set fires the condition. Safe to call from multiple goroutines and more
// than once; only the first call has any effect.
func (t Trigger) Set() {
	t.s.once.Do(func() { close(t.s.ch) })
}

// Done returns a channel that is closed once the condition has been Set.
// Selecting on it from any number of waiters, including ones cloned after
// Set was called, observes the same closed channel.
func (w Waiter) Done() <-chan struct{} {
	return w.s.ch
}

// IsSet reports whether the condition has already fired, without blocking.
func (w Waiter) IsSet() bool {
	select {
	case <-w.s.ch:
		return true
	default:
		return false
	}
}

// DropBarrier completes its Wait once every Guard handed out by Guard() has
// been Released. The server uses one to await the drain of client sessions:
// each session holds a guard for its lifetime, and the accept loop's shutdown
// path blocks on Wait after it stops accepting new connections.
type DropBarrier struct {
	wg sync.WaitGroup
}

// NewDropBarrier returns an empty barrier (Wait returns immediately until a
// Guard has been issued).
func NewDropBarrier() *DropBarrier {
	return &DropBarrier{}
}

// Guard registers one outstanding reference against the barrier. The
// returned Guard must eventually be Released exactly once.
func (b *DropBarrier) Guard() Guard {
	b.wg.Add(1)
	return Guard{wg: &b.wg, once: new(sync.Once)}
}

// Wait blocks until every Guard issued by this barrier has been Released.
func (b *DropBarrier) Wait() {
	b.wg.Wait()
}

// Guard is a single outstanding reference against a DropBarrier. It is cheap
// to Clone: cloning registers a second reference that must be Released
// independently of the original.
type Guard struct {
	wg   *sync.WaitGroup
	once *sync.Once
}

// Clone registers an additional reference against the same barrier. The
// clone must be Released independently; Releasing the original does not
// release the clone.
func (g Guard) Clone() Guard {
	g.wg.Add(1)
	return Guard{wg: g.wg, once: new(sync.Once)}
}

// Release drops this guard's reference against the barrier. Idempotent.
func (g Guard) Release() {
	g.once.Do(g.wg.Done)
}
