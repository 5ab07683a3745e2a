package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(StageTestSuite))

type StageTestSuite struct{}

func (s StageTestSuite) TestFIFOProcessesSequentially(c *gc.C) {
	stages := make([]StageRunner, 10)
	for i := 0; i < len(stages); i++ {
		stages[i] = FIFO(passthrough())
	}

	src := &queueSource{data: cmdPayloads(3)}
	sink := new(captureSink)

	p := New(stages...)
	err := p.Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.DeepEquals, src.data)
	assertAllProcessed(c, src.data)
}

// TestDynamicWorkerPoolBoundsConcurrency drives more payloads than tokens
// through a deliberately slow processor and checks the observed high-water
// mark of concurrent Process calls never exceeds the pool size; the same
// property a queue's max_parallel relies on.
func (s StageTestSuite) TestDynamicWorkerPoolBoundsConcurrency(c *gc.C) {
	const maxWorkers = 2

	var inFlight, highWater int32
	var mu sync.Mutex
	proc := ProcessorFunc(func(_ context.Context, p Payload) (Payload, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > highWater {
			highWater = n
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	src := &queueSource{data: cmdPayloads(8)}
	sink := new(captureSink)

	p := New(DynamicWorkerPool(proc, maxWorkers))
	err := p.Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(highWater <= maxWorkers, gc.Equals, true,
		gc.Commentf("high-water mark %d exceeded pool size %d", highWater, maxWorkers))
	assertAllProcessed(c, src.data)
}

// TestDynamicWorkerPoolDrainsWorkersBeforeReturning pins the stage runner's
// own contract: Run does not return while any of its processor goroutines is
// still live. A queue's worker deliberately does not block on this drain
// (it detaches the pipeline run and returns on shutdown); the drain only
// guarantees the pipeline itself never leaks processor goroutines.
func (s StageTestSuite) TestDynamicWorkerPoolDrainsWorkersBeforeReturning(c *gc.C) {
	var completed int32
	proc := ProcessorFunc(func(_ context.Context, p Payload) (Payload, error) {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&completed, 1)
		return nil, nil
	})

	src := &queueSource{data: cmdPayloads(4)}
	sink := new(captureSink)

	p := New(DynamicWorkerPool(proc, 4))
	err := p.Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)

	// Process only returns after the pool has reclaimed every token, so all
	// in-flight processors must have finished by now.
	c.Assert(atomic.LoadInt32(&completed), gc.Equals, int32(4))
}
