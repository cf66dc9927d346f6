// Package supervisor implements the Connection Supervisor (spec.md §4.7):
// the accept loop, per-connection session goroutine, active-session
// registry, connection cap, and graceful shutdown drain, grounded on the
// teacher's NFSAdapter.Serve/NFSConnection.Serve pair
// (pkg/adapter/nfs/nfs_adapter.go, nfs_connection.go).
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/hors-sit/pesitd/internal/codec"
	"github.com/hors-sit/pesitd/internal/logger"
	"github.com/hors-sit/pesitd/internal/observer"
	"github.com/hors-sit/pesitd/internal/session"
	"github.com/hors-sit/pesitd/internal/transport"
)

// Handler drives one accepted session to completion. Implementations
// typically hand the session to internal/responder's Responder.Handle,
// which runs the validator checks and the responder-side transfer. The supervisor itself is protocol-
// agnostic — this is the "library API; any CLI is additive" seam spec.md
// §6.4 describes.
type Handler func(ctx context.Context, sess *session.Session, sessionID string)

var localIDCounter atomic.Uint32

func nextLocalID() uint16 {
	return uint16(localIDCounter.Add(1))
}

// Config configures a Supervisor.
type Config struct {
	// MaxConnections caps concurrent sessions; 0 means unlimited, mirroring
	// the teacher's NFSAdapter.Config.MaxConnections semantics.
	MaxConnections int
	// ShutdownGrace bounds how long Shutdown waits for in-flight sessions
	// to reach a terminal state before forcing their sockets closed.
	ShutdownGrace time.Duration
	// UnknownPolicy is applied to every session's FPDU decoder.
	UnknownPolicy codec.UnknownPolicy
}

// Supervisor accepts connections on one or more transport.Listeners and
// runs Handler once per accepted connection (spec.md §4.7).
type Supervisor struct {
	cfg     Config
	handler Handler
	obs     observer.Sink

	connSem chan struct{}
	wg      sync.WaitGroup

	sessions sync.Map // session id (string) -> *session.Session

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New constructs a Supervisor. A nil obs becomes observer.Noop.
func New(cfg Config, handler Handler, obs observer.Sink) *Supervisor {
	if obs == nil {
		obs = observer.Noop{}
	}
	s := &Supervisor{
		cfg:      cfg,
		handler:  handler,
		obs:      obs,
		shutdown: make(chan struct{}),
	}
	if cfg.MaxConnections > 0 {
		s.connSem = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// ActiveSessions returns the number of sessions currently registered.
func (s *Supervisor) ActiveSessions() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Serve accepts connections from ln until ctx is cancelled or Shutdown is
// called, running one goroutine per accepted connection. It returns nil on
// a clean shutdown.
func (s *Supervisor) Serve(ctx context.Context, ln *transport.Listener) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown(context.Background())
		case <-s.shutdown:
		}
	}()
	go func() {
		<-s.shutdown
		ln.Close()
	}()

	for {
		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.shutdown:
				return nil
			}
		}

		ch, err := ln.Accept()
		if err != nil {
			if s.connSem != nil {
				<-s.connSem
			}
			select {
			case <-s.shutdown:
				return nil
			default:
				logger.Debug("supervisor: accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(ctx, ch)
	}
}

func (s *Supervisor) handleConn(ctx context.Context, ch transport.Channel) {
	sessionID := xid.New().String()
	defer func() {
		if s.connSem != nil {
			<-s.connSem
		}
		s.wg.Done()
	}()

	sessCtx := &session.Context{LocalID: nextLocalID(), UnknownPolicy: s.cfg.UnknownPolicy}
	sess := session.New(ch, sessCtx)
	s.sessions.Store(sessionID, sess)
	defer func() {
		s.sessions.Delete(sessionID)
		sess.Close()
	}()

	defer s.recoverPanic(sessionID)

	s.obs.OnState(sessionID, "", "CONNECTED")
	s.handler(ctx, sess, sessionID)
	s.obs.OnState(sessionID, "CONNECTED", "TERMINAL")
}

func (s *Supervisor) recoverPanic(sessionID string) {
	if r := recover(); r != nil {
		logger.Warn("supervisor: session panicked", "session_id", sessionID, "panic", r, "stack", string(debug.Stack()))
	}
}

// Shutdown stops accepting new connections and waits up to cfg.ShutdownGrace
// for active sessions to finish, then forces remaining sockets closed
// (spec.md §4.7 "signal each active session to finish its current FPDU
// round... close remaining sockets after a grace period").
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdown) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		s.forceCloseAll()
		return fmt.Errorf("supervisor: shutdown grace period elapsed with sessions still active")
	case <-ctx.Done():
		s.forceCloseAll()
		return ctx.Err()
	}
}

func (s *Supervisor) forceCloseAll() {
	s.sessions.Range(func(_, value any) bool {
		if sess, ok := value.(*session.Session); ok {
			sess.Close()
		}
		return true
	})
}
