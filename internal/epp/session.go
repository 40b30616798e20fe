package epp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"registrar/internal/platform/logger"
)

// SessionState is the lifecycle state of one registry connection.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateAuthenticated
	StateBusy
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateBusy:
		return "busy"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Credentials identify this registrar to the registry.
type Credentials struct {
	ClientID string
	Password string
	Bundle   *ClientBundle
}

// SessionConfig carries everything a session needs to establish and operate
// one connection. Dial is a test seam; when nil the session dials TLS using
// the credential bundle.
type SessionConfig struct {
	Addr            string
	Credentials     Credentials
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	Dial            func(ctx context.Context) (net.Conn, error)
	Logger          pslog.Logger
}

// Session owns one authenticated transport connection and transmits exactly
// one command at a time. A session that times out or desynchronizes is
// marked failed and must never be reused; the wire's state is unknown once a
// response goes missing.
type Session struct {
	id  string
	cfg SessionConfig
	log pslog.Logger

	state    atomic.Int32
	inFlight atomic.Bool
	useCount atomic.Int64

	mu       sync.Mutex // guards conn, br, lastUsed
	conn     net.Conn
	br       *bufio.Reader
	lastUsed time.Time

	greeting *GreetingData
}

// NewSession builds a disconnected session. Call Connect before Send.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	s := &Session{
		id:  "sess-" + uuid.NewString()[:8],
		cfg: cfg,
	}
	s.log = logger.WithSubsystem(cfg.Logger, "registry.session").With("session", s.id)
	s.state.Store(int32(StateDisconnected))
	return s
}

// ID returns the session's unique identifier, used in logs and pool metrics.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// UseCount returns how many commands this session has transmitted.
func (s *Session) UseCount() int64 { return s.useCount.Load() }

// IdleSince returns the time of last wire activity.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Connect establishes the transport connection, consumes the registry
// greeting, and authenticates. Certificate rejection surfaces as
// ErrAuthFailed; network-level connect errors pass through for the caller to
// treat as transient.
func (s *Session) Connect(ctx context.Context) error {
	if !s.transition(StateDisconnected, StateConnecting) {
		return fmt.Errorf("connect: session %s in state %s", s.id, s.State())
	}

	conn, err := s.dial(ctx)
	if err != nil {
		s.state.Store(int32(StateFailed))
		return fmt.Errorf("connect %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.br = bufio.NewReader(conn)
	s.lastUsed = time.Now()
	s.mu.Unlock()

	if err := s.readGreeting(ctx); err != nil {
		s.fail("greeting")
		return err
	}
	if err := s.login(ctx); err != nil {
		s.fail("login")
		return err
	}

	s.state.Store(int32(StateAuthenticated))
	s.log.Debug("registrar.session.authenticated", "addr", s.cfg.Addr)
	return nil
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	if s.cfg.Dial != nil {
		return s.cfg.Dial(ctx)
	}
	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	if s.cfg.Credentials.Bundle == nil {
		return nil, fmt.Errorf("no client bundle configured")
	}
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		host = s.cfg.Addr
	}
	tlsCfg := s.cfg.Credentials.Bundle.TLSConfig(host)
	conn, err := tls.DialWithDialer(dialer, "tcp", s.cfg.Addr, tlsCfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Session) readGreeting(ctx context.Context) error {
	doc, err := s.readFrame(ctx)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	_, greeting, err := Decode(doc)
	if err != nil {
		return fmt.Errorf("decode greeting: %w", err)
	}
	if greeting == nil {
		return fmt.Errorf("%w: expected greeting on connect", ErrUnexpectedGreeting)
	}
	s.greeting = greeting
	return nil
}

func (s *Session) login(ctx context.Context) error {
	cmd := NewCommand(login{
		ClientID: s.cfg.Credentials.ClientID,
		Password: s.cfg.Credentials.Password,
	})
	res, err := s.exchange(ctx, cmd)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if res.Outcome == OutcomeAuthFailure {
		return fmt.Errorf("%w: code %d %s", ErrAuthFailed, res.Code, res.Message)
	}
	if !res.OK() {
		return fmt.Errorf("login rejected: code %d %s", res.Code, res.Message)
	}
	return nil
}

// Send transmits one command and blocks for exactly one response or the
// response timeout. A second concurrent call is rejected with
// ErrCommandInFlight rather than interleaving bytes on the wire.
func (s *Session) Send(ctx context.Context, cmd Command) (*Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCommandInFlight
	}
	defer s.inFlight.Store(false)

	if !s.transition(StateAuthenticated, StateBusy) {
		return nil, fmt.Errorf("%w: state %s", ErrSessionNotReady, s.State())
	}

	res, err := s.exchange(ctx, cmd)
	if err != nil {
		s.fail("send")
		return nil, err
	}

	if res.TxID != "" && res.TxID != cmd.TxID {
		// The reply belongs to a different command; the stream is
		// desynchronized and nothing further on it can be trusted.
		s.fail("txid-mismatch")
		return &Result{
			Outcome: OutcomeProtocolFailure,
			Message: fmt.Sprintf("transaction id mismatch: sent %s got %s", cmd.TxID, res.TxID),
		}, nil
	}

	if res.Outcome == OutcomeProtocolFailure {
		s.fail("protocol")
		return res, nil
	}

	s.state.CompareAndSwap(int32(StateBusy), int32(StateAuthenticated))
	return res, nil
}

// exchange performs one framed write and one framed read without touching
// the Busy state; Connect uses it for login before the session is handed
// out.
func (s *Session) exchange(ctx context.Context, cmd Command) (*Result, error) {
	doc, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.writeFrame(ctx, doc); err != nil {
		return nil, err
	}
	reply, err := s.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	res, greeting, err := Decode(reply)
	if err != nil {
		return nil, err
	}
	if greeting != nil {
		return nil, fmt.Errorf("%w: greeting in reply to %s", ErrUnexpectedGreeting, cmd.Op.Kind())
	}

	s.useCount.Add(1)
	s.touch()
	return res, nil
}

// Keepalive verifies liveness with the protocol's no-op hello, which the
// registry answers with a greeting. Any failure marks the session failed.
func (s *Session) Keepalive(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrCommandInFlight
	}
	defer s.inFlight.Store(false)

	if s.State() != StateAuthenticated {
		return fmt.Errorf("%w: state %s", ErrSessionNotReady, s.State())
	}

	doc, err := encodeHello()
	if err != nil {
		return err
	}
	if err := s.writeFrame(ctx, doc); err != nil {
		s.fail("keepalive")
		return err
	}
	reply, err := s.readFrame(ctx)
	if err != nil {
		s.fail("keepalive")
		return err
	}
	_, greeting, err := Decode(reply)
	if err != nil || greeting == nil {
		s.fail("keepalive")
		if err == nil {
			err = fmt.Errorf("%w: hello not answered with greeting", ErrUnexpectedGreeting)
		}
		return err
	}
	s.touch()
	return nil
}

// Logout sends the protocol farewell and closes the connection. Best-effort:
// a session being logged out is on its way to destruction either way.
func (s *Session) Logout(ctx context.Context) error {
	if s.State() == StateAuthenticated && s.inFlight.CompareAndSwap(false, true) {
		cmd := NewCommand(logout{})
		if doc, err := Encode(cmd); err == nil {
			if err := s.writeFrame(ctx, doc); err == nil {
				if reply, err := s.readFrame(ctx); err == nil {
					_, _, _ = Decode(reply)
				}
			}
		}
		s.inFlight.Store(false)
	}
	return s.Close()
}

// Close tears down the transport. The session is unusable afterwards.
func (s *Session) Close() error {
	s.state.Store(int32(StateDisconnected))
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) writeFrame(ctx context.Context, doc []byte) error {
	conn := s.connection()
	if conn == nil {
		return ErrSessionNotReady
	}
	if err := conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := WriteFrame(conn, doc); err != nil {
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	return nil
}

func (s *Session) readFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	conn, br := s.conn, s.br
	s.mu.Unlock()
	if conn == nil || br == nil {
		return nil, ErrSessionNotReady
	}
	if err := conn.SetReadDeadline(s.deadline(ctx)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	doc, err := ReadFrame(br)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: session %s after %s", ErrResponseTimeout, s.id, s.cfg.ResponseTimeout)
		}
		return nil, fmt.Errorf("session %s: %w", s.id, err)
	}
	return doc, nil
}

// deadline combines the configured response timeout with any earlier context
// deadline so caller timeouts are honored even while the transport is alive.
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.cfg.ResponseTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) fail(reason string) {
	prev := SessionState(s.state.Swap(int32(StateFailed)))
	if prev != StateFailed {
		s.log.Warn("registrar.session.failed", "reason", reason, "prev_state", prev.String())
	}
}

func (s *Session) transition(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) connection() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
