package pipeline

import (
	"context"
	"fmt"
)

// cmdPayload is the test stand-in for the worker's task payload: a command
// line flowing through the pipeline, with a processed flag the sink/discard
// paths are expected to flip.
type cmdPayload struct {
	processed bool
	argv      string
}

func (p *cmdPayload) Clone() Payload {
	return &cmdPayload{argv: p.argv}
}

func (p *cmdPayload) MarkAsProcessed() {
	p.processed = true
}

func (p *cmdPayload) String() string {
	return p.argv
}

// cmdPayloads generates n distinct payloads.
func cmdPayloads(n int) []Payload {
	out := make([]Payload, n)
	for i := 0; i < len(out); i++ {
		out[i] = &cmdPayload{argv: fmt.Sprintf("/bin/echo %d", i)}
	}
	return out
}

// queueSource yields a fixed slice of payloads, optionally failing with err
// once exhausted.
type queueSource struct {
	index int
	data  []Payload
	err   error
}

func (s *queueSource) Next(ctx context.Context) bool {
	if s.err != nil || s.index == len(s.data) {
		return false
	}
	s.index++
	return true
}

func (s *queueSource) Payload() Payload {
	return s.data[s.index-1]
}

func (s *queueSource) Error() error {
	return s.err
}

// captureSink records every payload it consumes, optionally failing each
// Consume with err.
type captureSink struct {
	data []Payload
	err  error
}

func (s *captureSink) Consume(ctx context.Context, p Payload) error {
	s.data = append(s.data, p)
	return s.err
}

// passthrough returns a Processor that forwards its input unchanged.
func passthrough() Processor {
	return ProcessorFunc(func(_ context.Context, p Payload) (Payload, error) {
		return p, nil
	})
}
