/*Package process implements the per-task supervisor: given a task and a pair
of output sources, it spawns a child process with its stdout/stderr
redirected into those sources and races the child's exit against worker
shutdown, server shutdown, and an optional timeout.*/
package process

import (
	"os"
	"os/exec"

	"github.com/brandonshearin/pqueue/taskqueue"
	"golang.org/x/xerrors"
)

// Runner abstracts the spawn/wait/kill boundary of a single child process so
// that supervisor_test.go can exercise the timeout and shutdown-signal races
// against a MockRunner instead of spawning real processes for every case.
type Runner interface {
	Start() error
	Wait() error
	Pid() int
	Kill() error
}

// RunnerFactory constructs the Runner for one task, given the write ends of
// its stdout/stderr pipes. Supervisor.newRunner defaults to execRunnerFactory
// but is swappable in tests.
type RunnerFactory func(task taskqueue.Task, stdout, stderr *os.File) (Runner, error)

// execRunner is the production Runner, backed by os/exec.Cmd. os/exec
// already marks every file descriptor not explicitly wired to the child as
// close-on-exec, so no pre-exec descriptor-closing hook is required to keep
// pipe ends from leaking into unrelated children.
type execRunner struct {
	cmd     *exec.Cmd
	devNull *os.File
}

func execRunnerFactory(task taskqueue.Task, stdout, stderr *os.File) (Runner, error) {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return nil, xerrors.Errorf("process: open %s: %w", os.DevNull, err)
	}

	cmd := exec.Command(task.Binary, task.Args...)
	cmd.Stdin = devNull
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if task.Dir != "" {
		cmd.Dir = task.Dir
	}

	return &execRunner{cmd: cmd, devNull: devNull}, nil
}

func (r *execRunner) Start() error {
	err := r.cmd.Start()
	// The child now owns its own duplicated descriptor; release ours
	// regardless of outcome.
	_ = r.devNull.Close()
	return err
}

func (r *execRunner) Wait() error {
	return r.cmd.Wait()
}

func (r *execRunner) Pid() int {
	if r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

func (r *execRunner) Kill() error {
	if r.cmd.Process == nil {
		return nil
	}
	return r.cmd.Process.Kill()
}
