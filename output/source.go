package output

import (
	"bufio"
	"os"

	"golang.org/x/xerrors"
)

// Source is one standard-stream reader feeding lines into a Sink. It owns a
// pipe: the write end is handed to the spawned child as its stdout or
// stderr; the read end is wrapped in a line-buffered reader once the
// child's process id is known, at which point SetPrefix spawns the reader
// goroutine. Until SetPrefix is called, a Source produces no output; the
// process package calls it immediately after a successful spawn.
type Source struct {
	sink   *Sink
	stream string // "stdout" or "stderr"
	read   *os.File
	write  *os.File
}

// NewSource allocates a pipe for one standard stream of one process.
func NewSource(sink *Sink, stream string) (*Source, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, xerrors.Errorf("output: allocate pipe for %s: %w", stream, err)
	}
	return &Source{sink: sink, stream: stream, read: r, write: w}, nil
}

// WriteEnd returns the *os.File to hand to exec.Cmd as Stdout/Stderr.
func (s *Source) WriteEnd() *os.File {
	return s.write
}

// CloseWriteEnd closes the parent's copy of the write end. Must be called
// once the child process has started (os/exec does not close files handed
// to it directly), or the read end will never observe EOF.
func (s *Source) CloseWriteEnd() {
	_ = s.write.Close()
}

// CloseBoth closes both ends of the pipe without spawning a reader; used
// when a spawn attempt fails after the pipe was already allocated.
func (s *Source) CloseBoth() {
	_ = s.write.Close()
	_ = s.read.Close()
}

// SetPrefix records the child's pid and starts the reader goroutine that
// funnels prefixed lines into the sink until the read end hits EOF or error.
func (s *Source) SetPrefix(pid int) {
	p := prefix(pid, s.stream)
	go s.run(p)
}

func (s *Source) run(linePrefix string) {
	defer s.read.Close()

	scanner := bufio.NewScanner(s.read)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.sink.send(linePrefix + scanner.Text())
	}
}
