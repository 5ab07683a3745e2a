/*Command pqueue is the thin client side of the wire protocol in package
protocol: one subcommand per request type, dialing the daemon's socket,
writing a single framed Request, and printing the framed Response. "start"
is the one subcommand that never dials anything: it execs pqueued itself,
which is the process that actually owns daemonization.

Shell completion generation and the richer per-flag help text of a full CLI
framework are out of scope here; this entry point implements just enough of
a flag surface to drive every request type end-to-end.*/
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/brandonshearin/pqueue/protocol"
	"golang.org/x/xerrors"
)

func defaultSocketPath() string {
	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = os.TempDir()
	}
	return fmt.Sprintf("%s/pqueue-%d", tmp, os.Getuid())
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "pqueue: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		fail("usage: pqueue [-s socket] <start|stop|create|remove|queues|send|tasks> [flags]")
	}

	globalFlags := flag.NewFlagSet("pqueue", flag.ExitOnError)
	socketPath := globalFlags.String("s", defaultSocketPath(), "path to the daemon's stream socket")
	globalFlags.Parse(os.Args[1:])
	if globalFlags.NArg() < 1 {
		fail("usage: pqueue [-s socket] <start|stop|create|remove|queues|send|tasks> [flags]")
	}

	cmd := globalFlags.Arg(0)
	rest := globalFlags.Args()[1:]

	if cmd == "start" {
		startDaemon(append([]string{"-s", *socketPath}, rest...))
		return
	}

	var req *protocol.Request
	switch cmd {
	case "stop":
		globalFlags.Parse(rest)
		req = &protocol.Request{Type: protocol.TypeStopServer}

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		name := fs.String("n", "", "queue name")
		parallel := fs.Uint("p", 1, "max_parallel")
		output := fs.String("f", "", "output file (defaults to the daemon's own stdout)")
		dir := fs.String("d", "", "default working directory")
		timeoutStr := fs.String("T", "", "default task timeout, e.g. \"1 min 30 secs\"")
		tmplStr := fs.String("t", "", "argument template, e.g. \"sh -c {} -- {...}\"")
		bindGlobal(fs, socketPath)
		fs.Parse(rest)
		if *name == "" {
			fail("create: -n is required")
		}
		req = &protocol.Request{
			Type:        protocol.TypeCreateQueue,
			Name:        *name,
			MaxParallel: *parallel,
		}
		if *output != "" {
			req.Output = output
		}
		if *dir != "" {
			req.Dir = dir
		}
		if *timeoutStr != "" {
			d, err := protocol.ParseDuration(*timeoutStr)
			if err != nil {
				fail("create: %v", err)
			}
			wire := protocol.DurationFromTime(d)
			req.Timeout = &wire
		}
		if *tmplStr != "" {
			req.Template = tmplStr
		}

	case "remove":
		fs := flag.NewFlagSet("remove", flag.ExitOnError)
		name := fs.String("n", "", "queue name")
		bindGlobal(fs, socketPath)
		fs.Parse(rest)
		if *name == "" {
			fail("remove: -n is required")
		}
		req = &protocol.Request{Type: protocol.TypeRemoveQueue, Name: *name}

	case "queues":
		globalFlags.Parse(rest)
		req = &protocol.Request{Type: protocol.TypeListQueues}

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		name := fs.String("n", "", "queue name")
		dir := fs.String("d", "", "working directory override")
		timeoutStr := fs.String("T", "", "timeout override, e.g. \"30 secs\"")
		bindGlobal(fs, socketPath)
		fs.Parse(rest)
		if *name == "" {
			fail("send: -n is required")
		}
		args := fs.Args()
		if len(args) > 0 && args[0] == "--" {
			args = args[1:]
		}
		req = &protocol.Request{Type: protocol.TypeSend, Name: *name, Args: args}
		if *dir != "" {
			req.Dir = dir
		}
		if *timeoutStr != "" {
			d, err := protocol.ParseDuration(*timeoutStr)
			if err != nil {
				fail("send: %v", err)
			}
			wire := protocol.DurationFromTime(d)
			req.Timeout = &wire
		}

	case "tasks":
		fs := flag.NewFlagSet("tasks", flag.ExitOnError)
		name := fs.String("n", "", "queue name")
		bindGlobal(fs, socketPath)
		fs.Parse(rest)
		if *name == "" {
			fail("tasks: -n is required")
		}
		req = &protocol.Request{Type: protocol.TypeListTasks, Name: *name}

	default:
		fail("unknown command %q", cmd)
	}

	resp, err := roundTrip(*socketPath, req)
	if err != nil {
		fail("%v", err)
	}
	if resp.Status == protocol.StatusError {
		fail("%s", resp.Message)
	}
	printResponse(cmd, resp)
}

// startDaemon implements the "start" subcommand: it forwards -f/-v/-l/-s to
// a pqueued process found on PATH and waits for it to exit. pqueued itself
// owns the actual daemonization (forking, Setsid, the readiness handshake),
// so this is a thin exec wrapper, not a reimplementation of it.
func startDaemon(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	foreground := fs.Bool("f", false, "run in the foreground instead of daemonizing")
	verbose := fs.Bool("v", false, "enable debug logging")
	logPath := fs.String("l", "", "write logs to this file instead of stderr")
	socketPath := fs.String("s", defaultSocketPath(), "path to the daemon's stream socket")
	fs.Parse(args)

	bin, err := exec.LookPath("pqueued")
	if err != nil {
		fail("start: pqueued not found on PATH: %v", err)
	}

	daemonArgs := []string{"-s", *socketPath}
	if *foreground {
		daemonArgs = append(daemonArgs, "-f")
	}
	if *verbose {
		daemonArgs = append(daemonArgs, "-v")
	}
	if *logPath != "" {
		daemonArgs = append(daemonArgs, "-l", *logPath)
	}

	c := exec.Command(bin, daemonArgs...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		fail("start: %v", err)
	}
}

// bindGlobal re-registers the -s flag on a subcommand's own FlagSet so it
// can appear either before or after the subcommand name.
func bindGlobal(fs *flag.FlagSet, socketPath *string) {
	fs.StringVar(socketPath, "s", *socketPath, "path to the daemon's stream socket")
}

func roundTrip(socketPath string, req *protocol.Request) (*protocol.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		// A missing socket file or a stale one nobody listens on both mean
		// the same thing to the user: there is no daemon to talk to.
		if xerrors.Is(err, os.ErrNotExist) || xerrors.Is(err, syscall.ENOENT) || xerrors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("server is not running (socket %s)", socketPath)
		}
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	c := protocol.NewConn(conn)
	if err := c.WriteRequest(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	resp, err := c.ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("server is not running: %w", err)
	}
	return resp, nil
}

func printResponse(cmd string, resp *protocol.Response) {
	switch cmd {
	case "queues":
		for _, q := range resp.Queues {
			fmt.Println(q.Name)
		}
	case "tasks":
		for _, t := range resp.Tasks {
			fmt.Println(strings.Join(t.Args, " "))
		}
	}
}
