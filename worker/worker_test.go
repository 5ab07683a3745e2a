package worker

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/brandonshearin/pqueue/output"
	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/brandonshearin/pqueue/taskqueue"
	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(WorkerTestSuite))

type WorkerTestSuite struct{}

func (s *WorkerTestSuite) newWorker(c *gc.C, maxParallel int) (*Worker, *taskqueue.FIFO, string) {
	dir := c.MkDir()
	path := filepath.Join(dir, "out.log")
	sink, err := output.NewSink(path)
	c.Assert(err, gc.IsNil)

	fifo := taskqueue.New()
	_, serverWaiter := syncutil.NewCondition()

	w := New(Config{
		Name:         "q",
		MaxParallel:  maxParallel,
		FIFO:         fifo,
		Sink:         sink,
		ServerWaiter: serverWaiter,
	})
	return w, fifo, path
}

// TestWorkerRunsDispatchedTasks pushes a handful of /bin/echo tasks, runs the
// worker until they have all had time to complete, then shuts it down and
// confirms every task's output landed in the sink.
func (s *WorkerTestSuite) TestWorkerRunsDispatchedTasks(c *gc.C) {
	w, fifo, path := s.newWorker(c, 2)

	fifo.Push(taskqueue.NewTask("/bin/echo", []string{"one"}, 0, ""))
	fifo.Push(taskqueue.NewTask("/bin/echo", []string{"two"}, 0, ""))
	fifo.Push(taskqueue.NewTask("/bin/echo", []string{"three"}, 0, ""))

	done := make(chan struct{})
	go func() {
		w.Process(context.Background())
		close(done)
	}()

	time.Sleep(300 * time.Millisecond)
	w.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("worker did not stop after Shutdown")
	}

	data, err := ioutil.ReadFile(path)
	c.Assert(err, gc.IsNil)
	out := string(data)
	c.Assert(out, gc.Matches, "(?s).*one.*")
	c.Assert(out, gc.Matches, "(?s).*two.*")
	c.Assert(out, gc.Matches, "(?s).*three.*")
}

// TestWorkerHonorsMaxParallel confirms no more than maxParallel tasks are
// ever in flight at once: it dispatches several slow tasks and checks that
// the last one doesn't start until an earlier one has freed its slot.
func (s *WorkerTestSuite) TestWorkerHonorsMaxParallel(c *gc.C) {
	w, fifo, _ := s.newWorker(c, 1)

	for i := 0; i < 3; i++ {
		fifo.Push(taskqueue.NewTask("/bin/sleep", []string{"0.2"}, 0, ""))
	}

	done := make(chan struct{})
	go func() {
		w.Process(context.Background())
		close(done)
	}()

	// With maxParallel=1, only the first 200ms sleep may have been popped
	// after 100ms; the other two must still be waiting in the FIFO.
	time.Sleep(100 * time.Millisecond)
	c.Check(len(fifo.Snapshot()), gc.Equals, 2)

	time.Sleep(400 * time.Millisecond)
	w.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("worker did not stop after Shutdown")
	}
}

// TestWorkerShutdownStopsDispatchingNewTasks confirms that once Shutdown is
// called on a worker idling on an empty queue, its Process loop returns
// promptly, and that a task pushed afterwards neither panics nor blocks.
func (s *WorkerTestSuite) TestWorkerShutdownStopsDispatchingNewTasks(c *gc.C) {
	w, fifo, _ := s.newWorker(c, 1)

	done := make(chan struct{})
	go func() {
		w.Process(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	w.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("worker did not stop promptly after Shutdown on an empty queue")
	}

	// Pushing after shutdown should not panic or block; nothing will ever
	// dispatch it, which is expected once the owning queue is gone.
	fifo.Push(taskqueue.NewTask("/bin/echo", []string{"late"}, 0, ""))
}

// TestWorkerShutdownDoesNotAwaitInFlightSupervisors starts a long-running
// task and confirms Process returns promptly once Shutdown fires, without
// waiting on the supervisor of the still-live child; the supervisor holds
// its own clone of the shutdown waiter and tears the child down on its own.
func (s *WorkerTestSuite) TestWorkerShutdownDoesNotAwaitInFlightSupervisors(c *gc.C) {
	w, fifo, _ := s.newWorker(c, 1)

	fifo.Push(taskqueue.NewTask("/bin/sleep", []string{"10"}, 0, ""))

	done := make(chan struct{})
	go func() {
		w.Process(context.Background())
		close(done)
	}()

	// Let the sleep actually spawn before shutting down.
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	w.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("worker awaited its in-flight supervisor instead of returning")
	}
	c.Check(time.Since(start) < time.Second, gc.Equals, true)
}

// TestWorkerSnapshotExcludesOnlyStartedTasks saturates a maxParallel=2 worker
// with five slow tasks and checks that, while two are in flight, the FIFO's
// Snapshot only ever drops exactly the tasks that have actually acquired a
// concurrency permit (never more than maxParallel of them), confirming a
// task is considered dequeued only once a permit is held for it.
func (s *WorkerTestSuite) TestWorkerSnapshotExcludesOnlyStartedTasks(c *gc.C) {
	w, fifo, _ := s.newWorker(c, 2)

	const numTasks = 5
	for i := 0; i < numTasks; i++ {
		fifo.Push(taskqueue.NewTask("/bin/sleep", []string{"0.3"}, 0, ""))
	}

	done := make(chan struct{})
	go func() {
		w.Process(context.Background())
		close(done)
	}()

	// Give the worker time to pop exactly as many tasks as it has permits
	// for, but not long enough for any of the 0.3s sleeps to finish.
	time.Sleep(100 * time.Millisecond)
	c.Check(len(fifo.Snapshot()), gc.Equals, numTasks-2)

	w.Shutdown()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("worker did not stop after Shutdown")
	}
}
