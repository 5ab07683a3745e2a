/*Package worker implements the per-queue admission-controlled scheduler: it
pulls tasks FIFO off a taskqueue, enforces max_parallel concurrent child
processes, and tears every in-flight process down when either its own
queue-scoped shutdown trigger or the server-wide one fires.

Worker.Process drives the pipeline package for the dispatch loop, but the
permit that gates concurrency is owned by the Worker itself, not by
pipeline.DynamicWorkerPool: fifoSource.Next acquires a permit from that pool
before it pops a task off the FIFO, so a task is only ever considered
"dequeued" once a concurrency slot is actually reserved for it, and
ListTasks/Snapshot keeps reporting it as queued until then.
DynamicWorkerPool's own token pool still gates the processor goroutine, but
since both pools share the same capacity it never actually blocks there;
the FIFO-side permit is the one that enforces ordering.*/
package worker

import (
	"context"
	"time"

	"github.com/brandonshearin/pqueue/output"
	"github.com/brandonshearin/pqueue/pipeline"
	"github.com/brandonshearin/pqueue/process"
	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/brandonshearin/pqueue/taskqueue"
	"github.com/sirupsen/logrus"
)

// Config bundles together everything a Worker needs at construction time.
type Config struct {
	Name           string
	MaxParallel    int
	FIFO           *taskqueue.FIFO
	Sink           *output.Sink
	DefaultTimeout time.Duration
	DefaultDir     string
	ServerWaiter   syncutil.Waiter
	Log            logrus.FieldLogger
}

// Worker is the admission-controlled scheduler owned by one queue. It is
// constructed by the registry when a queue is created and torn down when the
// queue's shutdown trigger (RemoveQueue, or server shutdown) fires.
type Worker struct {
	name           string
	maxParallel    int
	fifo           *taskqueue.FIFO
	sink           *output.Sink
	defaultTimeout time.Duration
	defaultDir     string

	shutdownTrigger syncutil.Trigger
	shutdownWaiter  syncutil.Waiter
	serverWaiter    syncutil.Waiter

	permits chan struct{}

	log logrus.FieldLogger
}

// New constructs a Worker. The caller must call Process in its own goroutine
// to actually start dispatching tasks, and Shutdown to tear it down.
func New(cfg Config) *Worker {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	trigger, waiter := syncutil.NewCondition()

	permits := make(chan struct{}, cfg.MaxParallel)
	for i := 0; i < cfg.MaxParallel; i++ {
		permits <- struct{}{}
	}

	return &Worker{
		name:            cfg.Name,
		maxParallel:     cfg.MaxParallel,
		fifo:            cfg.FIFO,
		sink:            cfg.Sink,
		defaultTimeout:  cfg.DefaultTimeout,
		defaultDir:      cfg.DefaultDir,
		shutdownTrigger: trigger,
		shutdownWaiter:  waiter,
		serverWaiter:    cfg.ServerWaiter,
		permits:         permits,
		log:             log.WithField("queue", cfg.Name),
	}
}

// Shutdown fires the worker's own shutdown trigger. The worker's Process loop
// and every in-flight supervisor it has spawned observe it independently
// (they each hold their own clone of the Waiter) and stop.
func (w *Worker) Shutdown() {
	w.shutdownTrigger.Set()
}

// Process runs the dispatch loop until either shutdown scope fires or the
// supplied context is cancelled.
//
// Process does not await the supervisors it has spawned before returning:
// on shutdown it cancels the pipeline run and returns immediately, leaving
// the pipeline goroutine to unwind on its own. In-flight supervisors hold
// their own clones of both shutdown waiters and signal their children
// independently of this loop.
func (w *Worker) Process(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	source := &fifoSource{fifo: w.fifo, permits: w.permits}
	pipe := pipeline.New(pipeline.DynamicWorkerPool(w.processor(), w.maxParallel))

	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		if err := pipe.Process(ctx, source, discardSink{}); err != nil {
			w.log.WithError(err).Error("worker pipeline exited with error")
		}
	}()

	w.log.Info("worker started")
	select {
	case <-w.shutdownWaiter.Done():
	case <-w.serverWaiter.Done():
	case <-ctx.Done():
	case <-pipeDone:
	}
	cancel()
	w.log.Info("worker stopped")
}

// processor builds the pipeline.Processor that constructs and waits a
// process.Supervisor for one task. The permit fifoSource.Next reserved for
// this task is held for exactly the lifetime of the spawned process, and is
// released back to the worker's pool once Run returns, whatever the outcome.
func (w *Worker) processor() pipeline.ProcessorFunc {
	return func(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		payload := p.(*taskPayload)
		defer payload.release()

		task := payload.task
		if task.Timeout == 0 {
			task.Timeout = w.defaultTimeout
		}
		if task.Dir == "" {
			task.Dir = w.defaultDir
		}

		stdoutSrc, stderrSrc, err := w.sink.NewSources()
		if err != nil {
			w.log.WithField("task_id", task.ID.String()).WithError(err).Error("failed to allocate output sources")
			return nil, nil
		}

		sup := process.New(w.log)
		sup.Run(task, stdoutSrc, stderrSrc, w.shutdownWaiter, w.serverWaiter)
		return nil, nil
	}
}
