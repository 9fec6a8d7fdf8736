// Package session implements the per-session state machine of spec §4.4
// (component C4): logon, heartbeat, test-request, resend-request,
// sequence-reset, and logout logic with bidirectional sequence-number
// tracking and recovery after disconnect.
package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kprime/fixengine/fixerr"
	"github.com/kprime/fixengine/fixlog"
	"github.com/kprime/fixengine/internal/metrics"
	"github.com/kprime/fixengine/message"
	"github.com/kprime/fixengine/store"
	"github.com/kprime/fixengine/transport"
)

// Role distinguishes the active (dialing) from the passive (listening)
// side of a session (spec §1 "Initiator/Acceptor").
type Role int

const (
	RoleInitiator Role = iota
	RoleAcceptor
)

// Config is the session configuration enumerated in spec §6.
type Config struct {
	BeginString  string
	SenderCompID string
	TargetCompID string
	TargetAddr   string
	HeartBtInt   int
	Role         Role

	ResetOnLogon      bool
	ResetOnLogout     bool
	ResetOnDisconnect bool

	Transport transport.Config

	LogonTimeout      time.Duration
	ReconnectInterval time.Duration
}

func (c Config) id() ID {
	return ID{BeginString: c.BeginString, SenderCompID: c.SenderCompID, TargetCompID: c.TargetCompID}
}

// conn is the subset of *transport.Connection the session depends on,
// kept as an interface so tests can substitute an in-memory fake.
type conn interface {
	Send([]byte) error
	Recv(deadline time.Time) ([]byte, error)
	Close() error
}

// Session owns one counterparty relationship: its connection (for its
// lifetime), its sequence-number state, and dispatch into the Store and
// the user's Application.
type Session struct {
	cfg   Config
	id    ID
	st    *state
	store *store.Store
	app   Application
	log   fixlog.Logger
	metrics *metrics.Registry

	mu   sync.Mutex // guards conn/cancel, set once per connection lifetime
	conn conn
	cancel context.CancelFunc

	// dialFn lets tests substitute the initiator's transport construction.
	dialFn func(ctx context.Context) (conn, error)

	bufMu     sync.Mutex // guards pendingIn
	pendingIn map[int]*message.Message

	wg sync.WaitGroup
}

// New constructs a Session in Created status. The Application receives
// OnCreate immediately, matching quickfix's Application lifecycle.
func New(cfg Config, st *store.Store, app Application, log fixlog.Logger, m *metrics.Registry) *Session {
	if log == nil {
		log = fixlog.NopLogger{}
	}
	if app == nil {
		app = NopApplication{}
	}
	s := &Session{
		cfg:     cfg,
		id:      cfg.id(),
		st:      newState(cfg),
		store:   st,
		app:     app,
		log:     log,
		metrics: m,
	}
	s.dialFn = func(ctx context.Context) (conn, error) {
		c, err := transport.Connect(ctx, s.id.String(), cfg.TargetAddr, cfg.Transport)
		if err != nil {
			return nil, err
		}
		return c.WithMetrics(m), nil
	}
	app.OnCreate(s.id)
	return s
}

// ID returns the session's canonical identifier.
func (s *Session) ID() ID { return s.id }

// Status returns a read-only snapshot of the session's lifecycle state.
func (s *Session) Status() Status { return s.st.getStatus() }

func (s *Session) setStatus(v Status) {
	s.st.setStatus(v)
	if s.metrics != nil {
		s.metrics.SetSessionStatus(s.id.String(), int(v))
	}
}

// Start begins the session's connection lifecycle. For an Initiator this
// dials and sends Logon; for an Acceptor, Accept must be called once a
// listener hands this session an accepted connection (spec §4.4
// "Transitions").
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.Role == RoleAcceptor {
		s.setStatus(StatusAwaitLogon)
		return nil
	}
	return s.startInitiator(ctx)
}

func (s *Session) startInitiator(ctx context.Context) error {
	s.setStatus(StatusConnecting)

	backoff := s.cfg.ReconnectInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	const maxBackoff = 60 * time.Second

	c, err := s.dialFn(ctx)
	if err != nil {
		s.st.mu.Lock()
		attempt := s.st.reconnectAttempt
		s.st.reconnectAttempt++
		s.st.mu.Unlock()
		delay := backoff * time.Duration(1<<uint(minInt(attempt, 6)))
		if delay > maxBackoff {
			delay = maxBackoff
		}
		s.log.Warn("initiator dial failed", "session", s.id.String(), "err", err, "retry_in", delay)
		s.setStatus(StatusError)
		return fixerr.Wrap(fixerr.KindTransport, "dial", err)
	}

	return s.attach(ctx, c, true)
}

// Accept wraps an already-accepted net.Conn in this session's transport
// configuration (TLS, buffering) and attaches it, per spec §4.4
// "Created->AwaitLogon->Connected". The listener itself is out of scope
// (spec §1 non-goal "TCP listener glue") — a caller such as
// fixengine.Engine owns accepting the raw connection and routing it to
// the right pending session.
func (s *Session) Accept(ctx context.Context, raw net.Conn) error {
	c, err := transport.Accept(s.id.String(), raw, s.cfg.Transport)
	if err != nil {
		return err
	}
	if m := s.metrics; m != nil {
		c.WithMetrics(m)
	}
	return s.attach(ctx, c, false)
}

// AttachForTest wires an already-constructed conn directly, bypassing
// transport.Accept's net.Conn requirement — used by tests that substitute
// an in-memory pipe for a real socket.
func (s *Session) AttachForTest(ctx context.Context, c conn) error {
	return s.attach(ctx, c, false)
}

func (s *Session) attach(ctx context.Context, c conn, sendLogon bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.conn = c
	s.cancel = cancel
	s.mu.Unlock()

	if sendLogon {
		s.setStatus(StatusInitiateLogon)
		if err := s.sendLogon(); err != nil {
			s.setStatus(StatusError)
			return err
		}
	}

	s.wg.Add(1)
	go s.readLoop(runCtx)
	s.wg.Add(1)
	go s.timerLoop(runCtx)
	return nil
}

// Stop transitions the session through Disconnecting to Disconnected,
// sending Logout if the connection is live (spec §4.5 "stop").
func (s *Session) Stop(ctx context.Context) error {
	s.setStatus(StatusDisconnecting)

	s.mu.Lock()
	c := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	if c != nil {
		_ = s.sendAdmin(message.New(message.MsgTypeLogout))
	}
	if s.cfg.ResetOnDisconnect {
		_ = s.store.ResetSeq(s.id.String())
	}
	if cancel != nil {
		cancel()
	}
	if c != nil {
		_ = c.Close()
	}
	s.wg.Wait()
	s.setStatus(StatusDisconnected)
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SendApp sends an application-level message: stamps sequence/time,
// persists inside a transaction, commits, then writes to the wire (spec
// §4.4 "Persistence discipline" — durable before send).
func (s *Session) SendApp(msg *message.Message) error {
	if err := s.app.ToApp(msg, s.id); err != nil {
		return err
	}
	return s.send(msg)
}

func (s *Session) sendAdmin(msg *message.Message) error {
	s.app.ToAdmin(msg, s.id)
	return s.send(msg)
}

func (s *Session) send(msg *message.Message) error {
	sessID := s.id.String()
	seq := s.store.NextSeq(sessID)

	msg.Set(message.TagBeginString, s.cfg.BeginString)
	msg.Set(message.TagMsgSeqNum, itoa(seq))
	msg.Set(message.TagSenderCompID, s.cfg.SenderCompID)
	msg.Set(message.TagTargetCompID, s.cfg.TargetCompID)
	msg.Set(message.TagSendingTime, message.FormatUTCTimestamp(time.Now()))

	if err := s.store.BeginTx(sessID); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "send: begin_tx", err)
	}
	if err := s.store.Store(sessID, seq, msg); err != nil {
		_ = s.store.RollbackTx(sessID)
		return err
	}
	if err := s.store.CommitTx(sessID); err != nil {
		return err
	}

	frame, err := message.Encode(msg)
	if err != nil {
		return fixerr.Wrap(fixerr.KindParse, "encode outbound message", err)
	}

	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		// Message is durably persisted; it will go out on resend once a
		// connection exists (spec §4.4 "If send fails, the message
		// remains persisted and will be delivered via resend").
		return fixerr.TransportErr("send: no active connection")
	}

	s.log.LogMessage("out", string(frame))
	if err := c.Send(frame); err != nil {
		return fixerr.Wrap(fixerr.KindTransport, "send", err)
	}

	s.st.mu.Lock()
	s.st.lastOutbound = time.Now()
	s.st.mu.Unlock()
	return nil
}

func (s *Session) sendLogon() error {
	msg := message.New(message.MsgTypeLogon)
	msg.Set(98, "0") // EncryptMethod: none
	msg.Set(message.TagHeartBtInt, itoa(s.cfg.HeartBtInt))
	if s.cfg.ResetOnLogon {
		msg.Set(message.TagResetSeqNumFlag, "Y")
	}
	return s.sendAdmin(msg)
}

func (s *Session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		c := s.conn
		s.mu.Unlock()
		if c == nil {
			return
		}

		frame, err := c.Recv(time.Now().Add(time.Second))
		if err != nil {
			if err == transport.ErrTimeout {
				continue
			}
			if err == transport.ErrClosed {
				return
			}
			s.log.Error("recv failed", "session", s.id.String(), "err", err)
			s.setStatus(StatusError)
			return
		}

		s.log.LogMessage("in", string(frame))
		msg, _, err := message.Extract(frame)
		if err != nil {
			s.log.Warn("discarding unparsable frame", "session", s.id.String(), "err", err)
			continue
		}

		if err := s.handleInbound(msg); err != nil {
			s.log.Error("inbound handling failed", "session", s.id.String(), "err", err)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func newTestReqID() string {
	return "TR-" + uuid.NewString()[:8]
}
