/*Command pqueued is the daemon entry point: it wires a logrus logger, picks
the socket path (the -s flag or the default "${TMPDIR}/pqueue-<uid>"), and
runs server.Server.Serve until a shutdown signal or a StopServer request
drains every session.

When invoked without -f/--foreground, main re-execs itself once with a
detached session (syscall.ForkExec, SysProcAttr.Setsid) to approximate the
double-fork/reparent-to-init dance a raw fork can no longer safely perform
once goroutines exist. The parent blocks on a one-byte read from an os.Pipe
inherited by the child as an extra file descriptor, and exits once the child
has bound its listener and written to it; so a caller's shell only regains
control once the daemon is actually ready to accept connections.*/
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/brandonshearin/pqueue/server"
	"github.com/sirupsen/logrus"
)

// reexecEnvVar marks a process as the re-exec'd daemon child so it knows to
// treat fd readyFD as the parent's readiness pipe rather than re-forking.
const reexecEnvVar = "PQUEUED_REEXEC"

// readyFD is the file descriptor the readiness pipe's write end is handed to
// the child on, the first slot past stdin/stdout/stderr.
const readyFD = 3

func defaultSocketPath() string {
	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = os.TempDir()
	}
	return fmt.Sprintf("%s/pqueue-%d", tmp, os.Getuid())
}

func main() {
	socketPath := flag.String("s", defaultSocketPath(), "path to the daemon's stream socket")
	foreground := flag.Bool("f", false, "run in the foreground instead of daemonizing")
	flag.BoolVar(foreground, "foreground", false, "same as -f")
	verbose := flag.Bool("v", false, "enable debug logging")
	logPath := flag.String("l", "", "write logs to this file instead of stderr")
	flag.Parse()

	isReexecChild := os.Getenv(reexecEnvVar) != ""

	if !*foreground && !isReexecChild {
		daemonize(*socketPath)
		return
	}

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pqueue: open log file %s: %v\n", *logPath, err)
			os.Exit(1)
		}
		log.SetOutput(f)
	}

	srv := server.New(*socketPath, log)

	if isReexecChild {
		srv.Ready = make(chan struct{})
		go signalReady(srv.Ready)
	}

	log.WithField("socket", *socketPath).Info("starting pqueued")
	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "pqueue: %v\n", err)
		os.Exit(1)
	}
}

// signalReady waits for the server to finish binding its listener, then
// writes a single byte to the inherited readiness pipe and closes it. The
// parent process (daemonize, below) is blocked on reading that byte.
func signalReady(ready <-chan struct{}) {
	<-ready
	w := os.NewFile(readyFD, "pqueued-ready")
	if w == nil {
		return
	}
	_, _ = w.Write([]byte{'\n'})
	w.Close()
}

// daemonize re-execs the current binary with -f implied and a detached
// session, and blocks until the child signals readiness on an inherited
// pipe. It returns (and main then exits 0) once the child has written its
// readiness byte; it exits 1 itself if the executable path, the pipe, or
// the fork fails, or if the child exits before becoming ready.
func daemonize(socketPath string) {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pqueue: resolve executable path: %v\n", err)
		os.Exit(1)
	}

	r, w, err := os.Pipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pqueue: create readiness pipe: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pqueue: open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	defer devNull.Close()

	argv := append(append([]string{exe}, stripFlags(os.Args[1:], "-f", "-s")...), "-f", "-s", socketPath)
	env := append(os.Environ(), reexecEnvVar+"=1")

	pid, err := syscall.ForkExec(exe, argv, &syscall.ProcAttr{
		Dir:   "/",
		Env:   env,
		Files: []uintptr{devNull.Fd(), devNull.Fd(), devNull.Fd(), w.Fd()},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	w.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pqueue: fork daemon child: %v\n", err)
		os.Exit(1)
	}

	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "pqueue: daemon child (pid %d) exited before becoming ready: %v\n", pid, err)
		os.Exit(1)
	}
}

// stripFlags drops any of the named boolean-or-valued flags (and, for the
// valued ones, their following argument) from args, so daemonize can append
// its own authoritative "-f"/"-s" without a stray earlier occurrence
// silently overriding them when flag.Parse processes the re-exec'd argv.
func stripFlags(args []string, names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if drop[args[i]] {
			if args[i] == "-s" {
				i++ // also drop its value argument
			}
			continue
		}
		out = append(out, args[i])
	}
	return out
}
