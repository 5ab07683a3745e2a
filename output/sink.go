/*Package output implements the per-queue output multiplexer: a single
consumer goroutine merges lines from every standard-stream Source of every
process the queue has spawned into one append-only Sink, tagging each line
with a "[<pid>:stream]: " prefix. Funneling everything through one consumer
is what makes each emitted line atomic without any locking on the producer
side.*/
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/xerrors"
)

// lineBufferCap is the channel's practical stand-in for "unbounded": large
// enough that a burst of concurrent process output never blocks a Source
// under normal load, while still bounding memory if the consumer stalls.
const lineBufferCap = 4096

// Sink is the single writable destination for one queue's merged output: an
// append-opened file, or the server's own standard output when no file was
// configured. Exactly one consumer goroutine owns the underlying writer.
type Sink struct {
	lines  chan string
	stop   chan struct{}
	done   chan struct{}
	closer io.Closer
}

// NewSink opens the sink for a queue. An empty path uses the server's
// standard output (never closed on Close); a non-empty path is opened for
// append, creating it if necessary.
func NewSink(path string) (*Sink, error) {
	var w io.Writer
	var closer io.Closer
	if path == "" {
		w = os.Stdout
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, xerrors.Errorf("output: open sink %q: %w", path, err)
		}
		w, closer = f, f
	}

	s := &Sink{
		lines:  make(chan string, lineBufferCap),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		closer: closer,
	}
	go s.consume(w)
	return s, nil
}

// send delivers line to the sink's consumer, or drops it silently if the
// consumer has already exited (Close was called).
func (s *Sink) send(line string) {
	select {
	case s.lines <- line:
	case <-s.done:
	}
}

// Close stops the consumer goroutine and releases the underlying file, if
// any. Idempotent is not required of callers: the registry calls it exactly
// once, when a queue's worker is torn down.
func (s *Sink) Close() {
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Sink) consume(w io.Writer) {
	defer close(s.done)
	defer func() {
		if s.closer != nil {
			_ = s.closer.Close()
		}
	}()

	bw := bufio.NewWriter(w)
	for {
		select {
		case line := <-s.lines:
			bw.WriteString(line)
			bw.WriteByte('\n')
			bw.Flush()
		case <-s.stop:
			// Drain whatever is already queued before exiting so a RemoveQueue
			// racing with in-flight output does not silently truncate it.
			for {
				select {
				case line := <-s.lines:
					bw.WriteString(line)
					bw.WriteByte('\n')
				default:
					bw.Flush()
					return
				}
			}
		}
	}
}

// prefix formats the "[<pid>:stream]: " tag a Source prepends to every line
// it forwards.
func prefix(pid int, stream string) string {
	return fmt.Sprintf("[%d:%s]: ", pid, stream)
}

// NewSources allocates the stdout and stderr Source pair for one process
// about to be spawned against this sink.
func (s *Sink) NewSources() (stdout, stderr *Source, err error) {
	stdout, err = NewSource(s, "stdout")
	if err != nil {
		return nil, nil, err
	}
	stderr, err = NewSource(s, "stderr")
	if err != nil {
		stdout.CloseBoth()
		return nil, nil, err
	}
	return stdout, stderr, nil
}
