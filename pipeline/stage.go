package pipeline

import (
	"context"

	"golang.org/x/xerrors"
)

// fifoStage processes payloads strictly one at a time, in arrival order.
type fifoStage struct {
	proc Processor
}

// FIFO returns a StageRunner that passes each incoming payload through proc
// sequentially, preserving arrival order. A max_parallel=1 queue behaves
// exactly like this, though the worker uses DynamicWorkerPool with one token
// so both configurations share a single code path.
func FIFO(proc Processor) StageRunner {
	return fifoStage{proc: proc}
}

func (s fifoStage) Run(ctx context.Context, params StageParams) {
	for {
		select {
		case <-ctx.Done():
			return
		case payloadIn, ok := <-params.Input():
			if !ok {
				return
			}

			payloadOut, err := s.proc.Process(ctx, payloadIn)
			if err != nil {
				tryReportError(xerrors.Errorf("pipeline stage %d: %w", params.StageIndex(), err), params.Error())
				return
			}

			// A nil payload means the processor consumed the input entirely.
			if payloadOut == nil {
				payloadIn.MarkAsProcessed()
				continue
			}

			select {
			case params.Output() <- payloadOut:
			case <-ctx.Done():
				return
			}
		}
	}
}

// tryReportError queues err onto the shared buffered error channel, dropping
// it if the channel is already full; the run is being torn down by the
// errors already queued, so later ones add nothing.
func tryReportError(err error, errCh chan<- error) {
	select {
	case errCh <- err:
	default:
	}
}

// workerPool runs payloads through proc on up to cap(tokens) concurrent
// goroutines. The token pool is the queue worker's admission-control
// mechanism: each in-flight payload holds one token for exactly the span of
// its processing.
type workerPool struct {
	proc   Processor
	tokens chan struct{}
}

// DynamicWorkerPool returns a StageRunner that processes up to maxWorkers
// payloads concurrently. The worker package instantiates one per queue with
// maxWorkers = the queue's max_parallel.
func DynamicWorkerPool(proc Processor, maxWorkers int) StageRunner {
	if maxWorkers <= 0 {
		panic("DynamicWorkerPool: maxWorkers must be > 0")
	}

	tokens := make(chan struct{}, maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		tokens <- struct{}{}
	}
	return &workerPool{proc: proc, tokens: tokens}
}

func (p *workerPool) Run(ctx context.Context, params StageParams) {
stop:
	for {
		select {
		case <-ctx.Done():
			break stop
		case payloadIn, ok := <-params.Input():
			if !ok {
				break stop
			}

			// Block here until a concurrency slot frees up; this is the
			// choke point that bounds in-flight work.
			var token struct{}
			select {
			case token = <-p.tokens:
			case <-ctx.Done():
				break stop
			}

			go func(payloadIn Payload, token struct{}) {
				defer func() { p.tokens <- token }()

				payloadOut, err := p.proc.Process(ctx, payloadIn)
				if err != nil {
					tryReportError(xerrors.Errorf("pipeline stage %d: %w", params.StageIndex(), err), params.Error())
					return
				}
				if payloadOut == nil {
					payloadIn.MarkAsProcessed()
					return
				}

				select {
				case params.Output() <- payloadOut:
				case <-ctx.Done():
				}
			}(payloadIn, token)
		}
	}

	// Take every token back before returning so no processing goroutine
	// outlives the stage, then refill the pool so the stage can Run again.
	for i := 0; i < cap(p.tokens); i++ {
		<-p.tokens
	}
	for i := 0; i < cap(p.tokens); i++ {
		p.tokens <- struct{}{}
	}
}
