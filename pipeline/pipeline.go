/*Package pipeline is the staged-execution engine behind each queue's worker:
a Source feeding payloads through one or more StageRunners into a Sink, with
the DynamicWorkerPool runner providing the token-pool admission control the
worker uses to cap concurrent child processes. The engine is deliberately
generic; the worker package supplies the task-shaped Source, Processor, and
Sink that bind it to this daemon's domain.*/
package pipeline

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// stageEnv is the concrete StageParams handed to each running stage: its
// index plus the channels wiring it to its neighbours and to the shared
// error collector.
type stageEnv struct {
	index int
	inCh  <-chan Payload
	outCh chan<- Payload
	errCh chan<- error
}

func (e *stageEnv) StageIndex() int        { return e.index }
func (e *stageEnv) Input() <-chan Payload  { return e.inCh }
func (e *stageEnv) Output() chan<- Payload { return e.outCh }
func (e *stageEnv) Error() chan<- error    { return e.errCh }

// Pipeline is an immutable arrangement of stages. Construct one with New and
// drive it with Process; a single Pipeline may be Processed multiple times,
// though each worker in this daemon runs exactly one Process for its
// lifetime.
type Pipeline struct {
	stages []StageRunner
}

// New returns a Pipeline whose payloads traverse each of the given stages in
// order.
func New(stages ...StageRunner) *Pipeline {
	return &Pipeline{stages: stages}
}

// Process pumps the source through every stage and into the sink, blocking
// until the source is exhausted, an error occurs, or ctx expires. Errors
// reported by the source, any stage, or the sink are aggregated into the
// returned multierror; the first one also cancels the whole run.
func (p *Pipeline) Process(ctx context.Context, source Source, sink Sink) error {
	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)

	// One channel between each pair of neighbours, plus the source-to-first
	// and last-to-sink links. The error channel is buffered so every
	// participant can report once without blocking.
	linkCh := make([]chan Payload, len(p.stages)+1)
	errCh := make(chan error, len(p.stages)+2)
	for i := 0; i < len(linkCh); i++ {
		linkCh[i] = make(chan Payload)
	}

	for i := 0; i < len(p.stages); i++ {
		wg.Add(1)
		go func(index int) {
			p.stages[index].Run(runCtx, &stageEnv{
				index: index,
				inCh:  linkCh[index],
				outCh: linkCh[index+1],
				errCh: errCh,
			})
			// Closing the output channel is how a finished stage tells its
			// successor no more payloads are coming.
			close(linkCh[index+1])
			wg.Done()
		}(i)
	}

	wg.Add(2)
	go func() {
		pumpSource(runCtx, source, linkCh[0], errCh)
		close(linkCh[0])
		wg.Done()
	}()
	go func() {
		drainToSink(runCtx, sink, linkCh[len(linkCh)-1], errCh)
		wg.Done()
	}()

	go func() {
		wg.Wait()
		close(errCh)
		cancel()
	}()

	// Collect until the monitor goroutine closes errCh. Any reported error
	// cancels runCtx so the remaining participants unwind.
	var err error
	for stageErr := range errCh {
		err = multierror.Append(err, stageErr)
		cancel()
	}
	return err
}

// pumpSource publishes each payload the source yields onto outCh until the
// source is exhausted or ctx is done, then reports the source's terminal
// error, if any.
func pumpSource(ctx context.Context, source Source, outCh chan<- Payload, errCh chan<- error) {
	for source.Next(ctx) {
		select {
		case outCh <- source.Payload():
		case <-ctx.Done():
			return
		}
	}

	if err := source.Error(); err != nil {
		tryReportError(xerrors.Errorf("pipeline source: %w", err), errCh)
	}
}

// drainToSink consumes payloads off inCh into the sink until the channel is
// closed or ctx is done. A sink failure ends the run.
func drainToSink(ctx context.Context, sink Sink, inCh <-chan Payload, errCh chan<- error) {
	for {
		select {
		case payload, ok := <-inCh:
			if !ok {
				return
			}
			if err := sink.Consume(ctx, payload); err != nil {
				tryReportError(xerrors.Errorf("pipeline sink: %w", err), errCh)
				return
			}
			payload.MarkAsProcessed()
		case <-ctx.Done():
			return
		}
	}
}
