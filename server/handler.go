package server

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/brandonshearin/pqueue/protocol"
	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/brandonshearin/pqueue/taskqueue"
	"github.com/brandonshearin/pqueue/template"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// session is one accepted connection's handler: sequential, half-duplex,
// reading one request, computing a response, writing it, and repeating until
// the client closes or the server-wide shutdown waiter fires.
type session struct {
	conn         net.Conn
	registry     *Registry
	shutdown     syncutil.Trigger
	serverWaiter syncutil.Waiter
	guard        syncutil.Guard
	log          logrus.FieldLogger
}

// serve runs the session's read-dispatch-write loop until completion. It
// always releases its drop-barrier guard and closes the connection before
// returning, regardless of how the loop ends.
func (s *session) serve() {
	defer s.guard.Release()
	defer s.conn.Close()

	conn := protocol.NewConn(s.conn)

	reqCh := make(chan *protocol.Request, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			req, err := conn.ReadRequest()
			if err != nil {
				errCh <- err
				return
			}
			reqCh <- req
		}
	}()

	for {
		select {
		case <-s.serverWaiter.Done():
			return

		case err := <-errCh:
			if err == io.EOF {
				s.log.Debug("session closed by client")
			} else if xerrors.Is(err, protocol.ErrProtocol) {
				s.log.WithError(err).Error("malformed request, closing session")
			} else {
				s.log.WithError(err).Debug("session read error")
			}
			return

		case req := <-reqCh:
			resp := s.dispatch(req)
			if err := conn.WriteResponse(resp); err != nil {
				s.log.WithError(err).Warn("failed to write response, closing session")
				return
			}
			if req.Type == protocol.TypeStopServer {
				s.shutdown.Set()
			}
		}
	}
}

// dispatch computes the Response for one Request.
func (s *session) dispatch(req *protocol.Request) *protocol.Response {
	switch req.Type {
	case protocol.TypeStopServer:
		return protocol.Success()

	case protocol.TypeCreateQueue:
		return s.createQueue(req)

	case protocol.TypeRemoveQueue:
		if err := s.registry.Remove(req.Name); err != nil {
			return protocol.Error(err)
		}
		return protocol.Success()

	case protocol.TypeSend:
		return s.send(req)

	case protocol.TypeListQueues:
		return protocol.SuccessQueues(s.registry.Names())

	case protocol.TypeListTasks:
		return s.listTasks(req)

	default:
		return protocol.Error(xerrors.Errorf("%q: %w", req.Type, protocol.ErrUnknownRequestType))
	}
}

// createQueue builds the queue's worker and spawns its dispatch loop,
// started against context.Background() rather than anything tied to the
// session, so it outlives the session itself (a client need not stay
// connected for its queue to keep running).
func (s *session) createQueue(req *protocol.Request) *protocol.Response {
	var tmpl *template.Template
	if req.Template != nil {
		parsed, err := template.Parse(*req.Template)
		if err != nil {
			return protocol.Error(xerrors.Errorf("create queue %q: parse template: %w", req.Name, err))
		}
		tmpl = parsed
	}

	var output string
	if req.Output != nil {
		output = *req.Output
	}
	var dir string
	if req.Dir != nil {
		dir = *req.Dir
	}
	var timeout time.Duration
	if req.Timeout != nil {
		timeout = req.Timeout.ToTime()
	}
	maxParallel := int(req.MaxParallel)
	if maxParallel <= 0 {
		maxParallel = 1
	}

	h, err := s.registry.Create(CreateQueueParams{
		Name:           req.Name,
		MaxParallel:    maxParallel,
		Output:         output,
		DefaultTimeout: timeout,
		DefaultDir:     dir,
		Template:       tmpl,
		ServerWaiter:   s.serverWaiter,
	})
	if err != nil {
		return protocol.Error(err)
	}

	s.log.WithField("queue", req.Name).Info("queue created")
	go h.Worker().Process(context.Background())
	return protocol.Success()
}

// send expands req.Args through the queue's template (if any), splits the
// result into binary + args, and pushes a Task onto the queue's FIFO.
func (s *session) send(req *protocol.Request) *protocol.Response {
	h, err := s.registry.Get(req.Name)
	if err != nil {
		return protocol.Error(err)
	}

	argv := req.Args
	if h.Template != nil {
		expanded, err := h.Template.Instantiate(argv)
		if err != nil {
			return protocol.Error(xerrors.Errorf("send %q: %w: %v", req.Name, protocol.ErrTemplateArity, err))
		}
		argv = expanded
	}
	if len(argv) == 0 {
		return protocol.Error(xerrors.Errorf("send %q: %w", req.Name, protocol.ErrEmptyArgs))
	}

	var dir string
	if req.Dir != nil {
		dir = *req.Dir
	}
	var timeout time.Duration
	if req.Timeout != nil {
		timeout = req.Timeout.ToTime()
	}

	h.FIFO.Push(taskqueue.NewTask(argv[0], argv[1:], timeout, dir))
	return protocol.Success()
}

// listTasks snapshots the named queue's FIFO into TaskInfo entries,
// reconstructing the flattened argv (binary at position 0) for each.
func (s *session) listTasks(req *protocol.Request) *protocol.Response {
	h, err := s.registry.Get(req.Name)
	if err != nil {
		return protocol.Error(err)
	}

	tasks := h.FIFO.Snapshot()
	argv := make([][]string, len(tasks))
	for i, t := range tasks {
		entry := make([]string, 0, len(t.Args)+1)
		entry = append(entry, t.Binary)
		entry = append(entry, t.Args...)
		argv[i] = entry
	}
	return protocol.SuccessTasks(argv)
}
