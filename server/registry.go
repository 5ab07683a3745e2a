/*Package server implements the accept loop, queue registry, and per-connection
session handler that expose the worker/taskqueue machinery over the framed
protocol in package protocol.*/
package server

import (
	"sync"
	"time"

	"github.com/brandonshearin/pqueue/output"
	"github.com/brandonshearin/pqueue/protocol"
	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/brandonshearin/pqueue/taskqueue"
	"github.com/brandonshearin/pqueue/template"
	"github.com/brandonshearin/pqueue/worker"
	"golang.org/x/xerrors"
)

// Handle is the registry's record for one live queue: the pieces a session
// handler needs to enqueue work and a remover needs to tear it down. The
// registry owns the Handle; worker.Worker owns the FIFO and sink by
// reference.
type Handle struct {
	Name     string
	FIFO     *taskqueue.FIFO
	Sink     *output.Sink
	Template *template.Template

	worker *worker.Worker
}

// Worker returns the Handle's worker, so the caller (the session handler) can
// spawn its dispatch loop after Create returns.
func (h *Handle) Worker() *worker.Worker { return h.worker }

// Registry is the concurrency-safe name -> Handle map every client session
// shares. The zero value is not usable; construct one with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// CreateQueueParams collects CreateQueue's request fields, already validated
// and defaulted by the caller (the session handler).
type CreateQueueParams struct {
	Name           string
	MaxParallel    int
	Output         string
	DefaultTimeout time.Duration
	DefaultDir     string
	Template       *template.Template
	ServerWaiter   syncutil.Waiter
}

// Create builds a worker and its Handle for a new queue named p.Name and
// inserts it into the registry, returning protocol.ErrAlreadyExists if the
// name is already taken. It does not itself start the worker's dispatch
// loop; the caller is responsible for spawning the Handle's Worker().Process
// in its own goroutine (see session.createQueue).
func (r *Registry) Create(p CreateQueueParams) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[p.Name]; exists {
		return nil, xerrors.Errorf("create queue %q: %w", p.Name, protocol.ErrAlreadyExists)
	}

	sink, err := output.NewSink(p.Output)
	if err != nil {
		return nil, xerrors.Errorf("create queue %q: open sink: %w", p.Name, err)
	}

	fifo := taskqueue.New()

	w := worker.New(worker.Config{
		Name:           p.Name,
		MaxParallel:    p.MaxParallel,
		FIFO:           fifo,
		Sink:           sink,
		DefaultTimeout: p.DefaultTimeout,
		DefaultDir:     p.DefaultDir,
		ServerWaiter:   p.ServerWaiter,
	})

	h := &Handle{
		Name:     p.Name,
		FIFO:     fifo,
		Sink:     sink,
		Template: p.Template,
		worker:   w,
	}

	r.handles[p.Name] = h
	return h, nil
}

// Remove deletes the named queue's Handle, fires its worker's shutdown
// trigger (which propagates to the worker's dispatch loop and every
// in-flight supervisor it spawned), and closes the queue's output sink,
// stopping its consumer goroutine and releasing its file. Returns
// protocol.ErrNotFound if the name is unknown.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	h, exists := r.handles[name]
	if !exists {
		r.mu.Unlock()
		return xerrors.Errorf("remove queue %q: %w", name, protocol.ErrNotFound)
	}
	delete(r.handles, name)
	r.mu.Unlock()

	h.worker.Shutdown()
	h.Sink.Close()
	return nil
}

// Get returns the named queue's Handle, or protocol.ErrNotFound.
func (r *Registry) Get(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handles[name]
	if !exists {
		return nil, xerrors.Errorf("queue %q: %w", name, protocol.ErrNotFound)
	}
	return h, nil
}

// Names returns a snapshot of every currently registered queue name, in
// unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	return names
}

// ShutdownAll fires every registered queue's shutdown trigger and empties
// the registry. Used by the server's top-level shutdown path alongside the
// server-wide waiter every worker already watches; ShutdownAll mainly exists
// so ListQueues reflects an empty registry immediately after a StopServer
// request, rather than waiting on worker teardown.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, h := range r.handles {
		h.worker.Shutdown()
		h.Sink.Close()
		delete(r.handles, name)
	}
}
