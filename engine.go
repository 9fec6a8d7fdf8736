// Package fixengine is the root of the FIX engine: it owns the set of
// configured sessions, wires each to the store/transport/logging/metrics
// infrastructure, and exposes the small surface an embedding application
// drives (spec §4.5, component C5). The call shape mirrors the teacher's
// quickfix.NewAcceptor(app, storeFactory, settings, logger) convention,
// generalized to own both Initiator and Acceptor roles itself.
package fixengine

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kprime/fixengine/fixlog"
	"github.com/kprime/fixengine/internal/metrics"
	"github.com/kprime/fixengine/session"
	"github.com/kprime/fixengine/store"
)

// EngineConfig is the top-level configuration: where the persistent
// store lives and every session to run (spec §6 "Engine configuration").
type EngineConfig struct {
	StoreDirectory string
	ListenAddr     string // empty disables the acceptor listener
	Sessions       []session.Config
}

// Engine owns every configured Session plus the shared Store, Logger and
// metrics Registry they're constructed with.
type Engine struct {
	cfg     EngineConfig
	log     fixlog.Logger
	metrics *metrics.Registry
	store   *store.Store
	app     session.Application

	mu       sync.RWMutex
	sessions map[session.ID]*session.Session

	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs an Engine and every configured Session in Created
// status; sessions are not started until Start is called.
func New(cfg EngineConfig, app session.Application, log fixlog.Logger, m *metrics.Registry) *Engine {
	if log == nil {
		log = fixlog.NopLogger{}
	}

	var opts []store.Option
	if cfg.StoreDirectory != "" {
		opts = append(opts, store.WithDirectory(cfg.StoreDirectory))
	}
	if m != nil {
		opts = append(opts, store.WithMetrics(m))
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    store.New(opts...),
		app:      app,
		sessions: make(map[session.ID]*session.Session),
	}

	for _, sc := range cfg.Sessions {
		s := session.New(sc, e.store, app, log, m)
		e.sessions[s.ID()] = s
	}
	return e
}

// AddSession registers an additional session after construction (e.g. one
// learned from a dynamic config reload).
func (e *Engine) AddSession(cfg session.Config) *session.Session {
	s := session.New(cfg, e.store, e.app, e.log, e.metrics)
	e.mu.Lock()
	e.sessions[s.ID()] = s
	e.mu.Unlock()
	return s
}

// GetSession returns the handle for id, if registered.
func (e *Engine) GetSession(id session.ID) (*session.Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Sessions returns every registered session, for iteration by callers
// such as a status endpoint.
func (e *Engine) Sessions() []*session.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// Start brings up every configured session: Initiators dial out
// immediately, Acceptors move to AwaitLogon and (if ListenAddr is set)
// the Engine's own listener hands each inbound connection to an Acceptor
// session still in AwaitLogon (see acceptLoop).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.RLock()
	sessions := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Start(ctx); err != nil {
			e.log.Error("session start failed", "session", s.ID().String(), "err", err)
		}
	}

	if e.cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", e.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("fixengine: listen %s: %w", e.cfg.ListenAddr, err)
		}
		e.listener = ln
		e.wg.Add(1)
		go e.acceptLoop(ctx, ln)
	}
	return nil
}

// acceptLoop hands each inbound TCP connection to the first Acceptor
// session found in AwaitLogon. It does not read the peer's Logon to pick a
// session: the chosen session's header validation answers messages whose
// CompIDs do not match its own with a Reject. A session stays in
// AwaitLogon until a Logon arrives, so it can be chosen again before then.
// This keeps listener glue outside CORE, as spec §1 chooses.
func (e *Engine) acceptLoop(ctx context.Context, ln net.Listener) {
	defer e.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			e.log.Warn("accept failed", "err", err)
			return
		}

		target := e.nextPendingAcceptor()
		if target == nil {
			e.log.Warn("no pending acceptor session for inbound connection, closing")
			c.Close()
			continue
		}
		if err := target.Accept(ctx, c); err != nil {
			e.log.Error("acceptor attach failed", "session", target.ID().String(), "err", err)
		}
	}
}

func (e *Engine) nextPendingAcceptor() *session.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sessions {
		if s.Status() == session.StatusAwaitLogon {
			return s
		}
	}
	return nil
}

// Stop stops every session and closes the listener, if any.
func (e *Engine) Stop(ctx context.Context) error {
	if e.listener != nil {
		e.listener.Close()
	}
	e.mu.RLock()
	sessions := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			_ = s.Stop(ctx)
		}(s)
	}
	wg.Wait()
	e.wg.Wait()
	return nil
}
