package worker

import (
	"context"

	"github.com/brandonshearin/pqueue/pipeline"
	"github.com/brandonshearin/pqueue/taskqueue"
)

// taskPayload adapts a taskqueue.Task to pipeline.Payload. A Task carries no
// shared mutable state once popped off the FIFO, so Clone returns a shallow
// copy; MarkAsProcessed is a no-op since nothing downstream needs to observe
// completion (the worker pipeline ends at discardSink). release returns the
// concurrency permit fifoSource.Next acquired before popping this task; the
// processor stage calls it once the spawned process exits.
type taskPayload struct {
	task    taskqueue.Task
	release func()
}

func (p *taskPayload) Clone() pipeline.Payload {
	clone := *p
	return &clone
}

func (p *taskPayload) MarkAsProcessed() {}

// fifoSource adapts a taskqueue.FIFO to pipeline.Source. Per the admission
// control ordering a permit must be held before a task is considered
// dequeued, Next first acquires a permit from the worker's own pool and only
// then pops; so a task a permit hasn't been reserved for stays on the FIFO,
// and ListTasks/Snapshot keep reporting it as not yet started. If the pop
// itself fails (shutdown), the reserved permit is returned unused.
type fifoSource struct {
	fifo    *taskqueue.FIFO
	permits chan struct{}
	cur     taskqueue.Task
	err     error
}

func (s *fifoSource) Next(ctx context.Context) bool {
	select {
	case <-s.permits:
	case <-ctx.Done():
		s.err = ctx.Err()
		return false
	}

	task, err := s.fifo.Pop(ctx)
	if err != nil {
		s.permits <- struct{}{}
		s.err = err
		return false
	}
	s.cur = task
	return true
}

func (s *fifoSource) Payload() pipeline.Payload {
	return &taskPayload{
		task: s.cur,
		release: func() {
			s.permits <- struct{}{}
		},
	}
}

// Error reports the reason Next stopped yielding tasks. A context
// cancellation is how every graceful shutdown ends the worker's dispatch
// loop, so it is not reported as a pipeline error here; only a genuinely
// unexpected failure from the FIFO would be.
func (s *fifoSource) Error() error {
	if s.err == context.Canceled || s.err == context.DeadlineExceeded {
		return nil
	}
	return s.err
}

// discardSink is the pipeline.Sink at the end of a worker's pipeline. The
// processor stage never emits a non-nil Payload (process.Supervisor.Run
// already absorbs every outcome), so Consume is never actually invoked in
// practice; it exists only to satisfy pipeline.Pipeline.Process's signature.
type discardSink struct{}

func (discardSink) Consume(context.Context, pipeline.Payload) error {
	return nil
}
