package syncutil

import (
	"testing"
	"time"

	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(SyncutilTestSuite))

type SyncutilTestSuite struct{}

func (s *SyncutilTestSuite) TestConditionBroadcastsToExistingAndFutureWaiters(c *gc.C) {
	trigger, waiter := NewCondition()

	c.Assert(waiter.IsSet(), gc.Equals, false)

	done := make(chan struct{})
	go func() {
		<-waiter.Done()
		close(done)
	}()

	trigger.Set()

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("waiter did not observe Set")
	}

	// A waiter obtained after Set must resolve immediately.
	laterWaiter := waiter
	c.Assert(laterWaiter.IsSet(), gc.Equals, true)
}

func (s *SyncutilTestSuite) TestConditionSetIsIdempotent(c *gc.C) {
	trigger, waiter := NewCondition()
	trigger.Set()
	trigger.Set()
	c.Assert(waiter.IsSet(), gc.Equals, true)
}

func (s *SyncutilTestSuite) TestDropBarrierWaitsForAllGuards(c *gc.C) {
	barrier := NewDropBarrier()
	g1 := barrier.Guard()
	g2 := barrier.Guard()

	waitDone := make(chan struct{})
	go func() {
		barrier.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		c.Fatal("barrier resolved before all guards released")
	case <-time.After(50 * time.Millisecond):
	}

	g1.Release()

	select {
	case <-waitDone:
		c.Fatal("barrier resolved before all guards released")
	case <-time.After(50 * time.Millisecond):
	}

	g2.Release()

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		c.Fatal("barrier did not resolve after all guards released")
	}
}

func (s *SyncutilTestSuite) TestGuardReleaseIsIdempotent(c *gc.C) {
	barrier := NewDropBarrier()
	g := barrier.Guard()
	g.Release()
	g.Release()

	done := make(chan struct{})
	go func() {
		barrier.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("barrier did not resolve")
	}
}

func (s *SyncutilTestSuite) TestGuardCloneRequiresIndependentRelease(c *gc.C) {
	barrier := NewDropBarrier()
	g := barrier.Guard()
	clone := g.Clone()

	g.Release()

	done := make(chan struct{})
	go func() {
		barrier.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.Fatal("barrier resolved before clone released")
	case <-time.After(50 * time.Millisecond):
	}

	clone.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("barrier did not resolve after clone released")
	}
}
