package taskqueue

import (
	"context"
	"testing"
	"time"

	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(FIFOTestSuite))

type FIFOTestSuite struct{}

func (s *FIFOTestSuite) TestPushPopPreservesOrder(c *gc.C) {
	q := New()
	t1 := NewTask("echo", []string{"one"}, 0, "")
	t2 := NewTask("echo", []string{"two"}, 0, "")
	q.Push(t1)
	q.Push(t2)

	ctx := context.Background()
	got1, err := q.Pop(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(got1.ID, gc.Equals, t1.ID)

	got2, err := q.Pop(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(got2.ID, gc.Equals, t2.ID)
}

func (s *FIFOTestSuite) TestPopAwaitsPush(c *gc.C) {
	q := New()
	ctx := context.Background()

	resultCh := make(chan Task, 1)
	go func() {
		t, err := q.Pop(ctx)
		c.Check(err, gc.IsNil)
		resultCh <- t
	}()

	time.Sleep(20 * time.Millisecond)
	task := NewTask("echo", nil, 0, "")
	q.Push(task)

	select {
	case got := <-resultCh:
		c.Assert(got.ID, gc.Equals, task.ID)
	case <-time.After(time.Second):
		c.Fatal("pop did not observe push")
	}
}

func (s *FIFOTestSuite) TestPopReturnsContextError(c *gc.C) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	c.Assert(err, gc.Equals, context.Canceled)
}

func (s *FIFOTestSuite) TestSnapshotDoesNotDrain(c *gc.C) {
	q := New()
	t1 := NewTask("echo", []string{"one"}, 0, "")
	t2 := NewTask("echo", []string{"two"}, 0, "")
	q.Push(t1)
	q.Push(t2)

	snap := q.Snapshot()
	c.Assert(snap, gc.HasLen, 2)
	c.Assert(snap[0].ID, gc.Equals, t1.ID)
	c.Assert(snap[1].ID, gc.Equals, t2.ID)

	// Snapshot must not have removed anything.
	again := q.Snapshot()
	c.Assert(again, gc.HasLen, 2)
}

func (s *FIFOTestSuite) TestEachTaskDeliveredExactlyOnce(c *gc.C) {
	q := New()
	const n = 50
	ids := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		t := NewTask("echo", nil, 0, "")
		ids[t.ID.String()] = true
		q.Push(t)
	}

	ctx := context.Background()
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		t, err := q.Pop(ctx)
		c.Assert(err, gc.IsNil)
		c.Assert(seen[t.ID.String()], gc.Equals, false)
		seen[t.ID.String()] = true
	}
	c.Assert(seen, gc.HasLen, n)
}
