package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lvmi/presbridge/device"
	"github.com/lvmi/presbridge/internal/pool"
	"github.com/lvmi/presbridge/internal/task"
	"github.com/lvmi/presbridge/logger"
)

// sessionCheckInterval is how often Shutdown re-checks for drained sessions
// during the grace period.
const sessionCheckInterval = 10 * time.Millisecond

// Server accepts TCP clients and spawns one Session per connection. It owns
// the listener lifecycle and, transitively through the registry, the device
// connections and their supervisors.
type Server struct {
	cfg      *Config
	registry *device.Registry
	logger   logger.Logger

	taskMgr *task.Manager

	listenerMu sync.Mutex
	listener   net.Listener

	sessions  *xsync.MapOf[uint64, *Session]
	sessionID atomic.Uint64
	shutdown  atomic.Bool
}

// NewServer creates a server for the given registry. ctx bounds the whole
// server lifetime: cancelling it stops the accept loop, all sessions and
// all supervisors.
func NewServer(ctx context.Context, cfg *Config, registry *device.Registry) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bridge: server config is nil")
	}
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("bridge: registry has no devices")
	}

	return &Server{
		cfg:      cfg,
		registry: registry,
		logger:   cfg.logger,
		taskMgr:  task.NewManager(ctx, cfg.logger),
		sessions: xsync.NewMapOf[uint64, *Session](),
	}, nil
}

// Start opens the device links, starts their supervisors, binds the
// listener, and begins accepting clients. Device open failures are not
// fatal: the affected links stay Faulted and recover in the background.
func (s *Server) Start() error {
	if err := s.registry.StartSupervisors(s.taskMgr); err != nil {
		return err
	}

	if err := s.registry.OpenAll(); err != nil {
		s.logger.Warn("not all devices opened, supervisors will retry", "error", err)
	}

	listener, err := net.Listen("tcp", s.cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("bridge: listen on %s: %w", s.cfg.listenAddr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	s.logger.Info("listening", "address", listener.Addr().String(),
		"devices", s.registry.Names())

	return s.taskMgr.Start("acceptLoop", s.acceptOne)
}

// Addr returns the actual listen address, useful when configured with
// port 0.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// SessionCount returns the number of currently connected clients.
func (s *Server) SessionCount() int {
	return s.sessions.Size()
}

// acceptOne performs a single accept-loop iteration.
func (s *Server) acceptOne() bool {
	listener := s.deadlineListener()
	if listener == nil {
		return false
	}

	nc, err := listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true // deadline tick, re-accept
		}

		if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
			return false
		}

		s.logger.Error("accept failed", "error", err)

		return true
	}

	s.startSession(nc)

	return true
}

// deadlineListener returns the listener with a fresh accept deadline so the
// accept loop wakes up regularly to notice shutdown.
func (s *Server) deadlineListener() *net.TCPListener {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	tcpListener, ok := s.listener.(*net.TCPListener)
	if !ok {
		s.logger.Error("listener is not a TCP listener")

		return nil
	}

	if err := tcpListener.SetDeadline(time.Now().Add(s.cfg.acceptTimeout)); err != nil {
		s.logger.Error("failed to set accept deadline", "error", err)

		return nil
	}

	return tcpListener
}

// startSession registers and serves a newly accepted client.
func (s *Server) startSession(nc net.Conn) {
	id := s.sessionID.Add(1)
	sess := newSession(id, nc, s.registry, s.cfg)

	s.sessions.Store(id, sess)
	sess.logger.Info("client connected")

	ctx := s.taskMgr.Context()
	name := fmt.Sprintf("session/%d", id)

	err := s.taskMgr.StartWithCleanup(name,
		func() bool { return sess.serveOne(ctx) },
		func() {
			sess.close()
			s.sessions.Delete(id)
			sess.logger.Info("client closed")
		})
	if err != nil {
		sess.close()
		s.sessions.Delete(id)
	}
}

// Shutdown performs the graceful stop sequence: stop accepting, wait up to
// the configured grace period for in-flight sessions, force-close any
// stragglers, stop all tasks, and close every device connection.
func (s *Server) Shutdown() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Info("shutting down", "sessions", s.SessionCount())

	err := s.closeListener()

	s.waitSessions()

	// Force-close whatever is left; their task loops exit on the socket
	// error and run their cleanups.
	s.sessions.Range(func(_ uint64, sess *Session) bool {
		sess.close()

		return true
	})

	s.taskMgr.Stop()
	s.taskMgr.Wait()

	s.registry.CloseAll()

	s.logger.Info("shutdown complete")

	return err
}

// waitSessions waits up to the grace period for connected sessions to
// finish on their own.
func (s *Server) waitSessions() {
	if s.cfg.shutdownGrace <= 0 || s.SessionCount() == 0 {
		return
	}

	graceTimer := pool.GetTimer(s.cfg.shutdownGrace)
	defer pool.PutTimer(graceTimer)

	ticker := time.NewTicker(sessionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-graceTimer.C:
			s.logger.Warn("grace period expired, force-closing sessions",
				"sessions", s.SessionCount())

			return

		case <-ticker.C:
			if s.SessionCount() == 0 {
				return
			}
		}
	}
}

func (s *Server) closeListener() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()
	s.listener = nil

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
