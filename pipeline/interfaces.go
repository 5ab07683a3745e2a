package pipeline

import "context"

// Payload is implemented by the values that flow through a pipeline. In this
// daemon the only production payload is a popped task on its way to a
// supervisor, but the engine itself stays agnostic of what it carries.
type Payload interface {
	// Clone returns a copy of the payload that later stages may mutate
	// independently of the original.
	Clone() Payload

	// MarkAsProcessed is invoked once the payload has either reached the
	// pipeline's sink or been discarded by a stage.
	MarkAsProcessed()
}

// Processor turns an input payload into an output payload for the next
// stage. Returning a nil payload (and nil error) discards the input instead
// of forwarding it; the worker's spawn processor always discards, since a
// finished process has nothing further downstream.
type Processor interface {
	Process(context.Context, Payload) (Payload, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, p Payload) (Payload, error)

// Process calls f(ctx, p).
func (f ProcessorFunc) Process(ctx context.Context, p Payload) (Payload, error) {
	return f(ctx, p)
}

// StageRunner executes one stage of a pipeline. Run blocks until the stage's
// input channel is closed, the context expires, or the stage hits an error
// it cannot absorb.
type StageRunner interface {
	Run(context.Context, StageParams)
}

// StageParams hands a running stage its position and the channels wiring it
// to its neighbours.
type StageParams interface {
	// StageIndex returns the stage's position in the pipeline, used to
	// annotate errors.
	StageIndex() int

	// Input returns the channel the stage reads payloads from.
	Input() <-chan Payload

	// Output returns the channel the stage forwards payloads to.
	Output() chan<- Payload

	// Error returns the shared channel stages report failures on.
	Error() chan<- error
}

// Source produces the payloads fed into a pipeline's first stage. The
// worker's source is an adapter over its queue's Pop, so Next blocks until a
// task (and a concurrency permit for it) is available.
type Source interface {
	// Next advances to the next payload, reporting false once the source is
	// exhausted or ctx is done.
	Next(ctx context.Context) bool

	// Payload returns the payload produced by the last successful Next.
	Payload() Payload

	// Error reports what, if anything, stopped Next.
	Error() error
}

// Sink receives the payloads that survive every stage.
type Sink interface {
	Consume(context.Context, Payload) error
}
