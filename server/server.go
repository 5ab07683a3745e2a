package server

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Server owns the accept loop, the queue registry, and the shutdown
// orchestration: a server-wide shutdown trigger every worker and session
// observes, and a drop barrier counting live sessions.
type Server struct {
	SocketPath string
	Registry   *Registry
	Log        logrus.FieldLogger

	// Ready, if non-nil, is closed by Serve once the listener is bound (so
	// the socket is already dialable); the daemon entry point's readiness
	// handshake hooks in here rather than guessing at a startup delay.
	Ready chan struct{}

	shutdownTrigger syncutil.Trigger
	shutdownWaiter  syncutil.Waiter
	sessions        *syncutil.DropBarrier
}

// New constructs a Server listening at socketPath once Serve is called.
func New(socketPath string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	trigger, waiter := syncutil.NewCondition()
	return &Server{
		SocketPath:      socketPath,
		Registry:        NewRegistry(),
		Log:             log,
		shutdownTrigger: trigger,
		shutdownWaiter:  waiter,
		sessions:        syncutil.NewDropBarrier(),
	}
}

// Serve removes any stale socket file, binds a Unix domain listener, installs
// a SIGINT/SIGTERM handler that triggers graceful shutdown, and runs the
// accept loop until shutdown fires. It returns once every accepted session
// has drained, with the socket file removed.
func (srv *Server) Serve() error {
	_ = os.Remove(srv.SocketPath)

	ln, err := net.Listen("unix", srv.SocketPath)
	if err != nil {
		return xerrors.Errorf("listen on %s: %w", srv.SocketPath, err)
	}

	if srv.Ready != nil {
		close(srv.Ready)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Log.Info("received shutdown signal")
		srv.shutdownTrigger.Set()
	}()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		srv.acceptLoop(ln)
	}()

	<-srv.shutdownWaiter.Done()
	signal.Stop(sigCh)

	closeErr := ln.Close()
	<-acceptDone

	srv.Registry.ShutdownAll()
	srv.sessions.Wait()

	var result error
	if closeErr != nil {
		result = multierror.Append(result, xerrors.Errorf("close listener: %w", closeErr))
	}
	if err := os.Remove(srv.SocketPath); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, xerrors.Errorf("remove socket %s: %w", srv.SocketPath, err))
	}
	srv.Log.Info("server stopped")
	return result
}

// Shutdown fires the server-wide shutdown trigger, the programmatic
// equivalent of a StopServer request or an inbound signal.
func (srv *Server) Shutdown() {
	srv.shutdownTrigger.Set()
}

// acceptLoop accepts connections until ln is closed (which happens once the
// shutdown waiter fires in Serve), spawning one session per connection.
func (srv *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if srv.shutdownWaiter.IsSet() {
				return
			}
			srv.Log.WithError(err).Warn("accept failed")
			return
		}

		guard := srv.sessions.Guard()
		s := &session{
			conn:         conn,
			registry:     srv.Registry,
			shutdown:     srv.shutdownTrigger,
			serverWaiter: srv.shutdownWaiter,
			guard:        guard,
			log:          srv.Log,
		}
		go s.serve()
	}
}
