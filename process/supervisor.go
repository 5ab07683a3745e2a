package process

import (
	"time"

	"github.com/brandonshearin/pqueue/output"
	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/brandonshearin/pqueue/taskqueue"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Supervisor spawns and waits exactly one process on behalf of Run. A fresh
// Supervisor is constructed by the worker for every task it dispatches.
type Supervisor struct {
	log       logrus.FieldLogger
	newRunner RunnerFactory
}

// New returns a Supervisor that logs through log (defaulting to
// logrus.StandardLogger() if nil).
func New(log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{log: log, newRunner: execRunnerFactory}
}

// Run spawns task with its stdout/stderr wired into stdoutSrc/stderrSrc, then
// blocks until one of four events resolves the race: the child exits, the
// worker-scope waiter fires, the server-scope waiter fires, or (if
// task.Timeout is set) the timeout elapses. In the latter three cases the
// child is signalled to terminate; Run does not wait for it to actually exit
// afterwards, so a transient zombie is possible until the runtime reaps it.
//
// Run never returns a "the process failed" error: a non-zero exit or spawn
// failure is logged and absorbed here so a single misbehaving task can never
// take down the worker loop.
func (sup *Supervisor) Run(
	task taskqueue.Task,
	stdoutSrc, stderrSrc *output.Source,
	workerWaiter, serverWaiter syncutil.Waiter,
) {
	log := sup.log.WithField("task_id", task.ID.String()).WithField("binary", task.Binary)

	runner, err := sup.newRunner(task, stdoutSrc.WriteEnd(), stderrSrc.WriteEnd())
	if err != nil {
		stdoutSrc.CloseBoth()
		stderrSrc.CloseBoth()
		log.WithError(xerrors.Errorf("process: build runner: %w", err)).Error("failed to prepare process")
		return
	}

	if err := runner.Start(); err != nil {
		stdoutSrc.CloseBoth()
		stderrSrc.CloseBoth()
		log.WithError(xerrors.Errorf("process: spawn: %w", err)).Error("failed to spawn process")
		return
	}

	// The child now holds its own duplicated copy of each pipe's write end;
	// release ours so the Source's reader observes EOF once the child exits.
	stdoutSrc.CloseWriteEnd()
	stderrSrc.CloseWriteEnd()

	pid := runner.Pid()
	log = log.WithField("pid", pid)
	stdoutSrc.SetPrefix(pid)
	stderrSrc.SetPrefix(pid)
	log.Info("spawned process")

	waitCh := make(chan error, 1)
	go func() { waitCh <- runner.Wait() }()

	var timeoutCh <-chan time.Time
	if task.Timeout > 0 {
		timer := time.NewTimer(task.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-waitCh:
		if err != nil {
			log.WithError(err).Info("process exited with error")
		} else {
			log.Info("process exited")
		}
	case <-workerWaiter.Done():
		log.Info("queue is shutting down, signalling process")
		_ = runner.Kill()
	case <-serverWaiter.Done():
		log.Info("server is shutting down, signalling process")
		_ = runner.Kill()
	case <-timeoutCh:
		log.Warn("process timed out, signalling process")
		_ = runner.Kill()
	}
}
