package epp

import (
	"bufio"
	"context"
	"encoding/xml"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves one connection of the wire protocol in-process. It
// answers hello and login itself; everything else goes through handle. A nil
// reply from handle means "stay silent", which is how the timeout tests
// starve the client.
type fakeRegistry struct {
	handle func(env eppEnvelope) *responseEnvelope
}

func okReply(clTRID string) *responseEnvelope {
	return &responseEnvelope{Response: &responseElem{
		Result: resultElem{Code: CodeSuccess, Msg: "Command completed successfully"},
		TrID:   trIDElem{ClTRID: clTRID, SvTRID: "sv-fake"},
	}}
}

func codeReply(clTRID string, code int, msg string) *responseEnvelope {
	return &responseEnvelope{Response: &responseElem{
		Result: resultElem{Code: code, Msg: msg},
		TrID:   trIDElem{ClTRID: clTRID, SvTRID: "sv-fake"},
	}}
}

func greetingReply() *responseEnvelope {
	return &responseEnvelope{Greeting: &greetingElem{
		ServerID:   "fake-registry",
		ServerDate: time.Now().UTC().Format(time.RFC3339),
	}}
}

func (f *fakeRegistry) serve(conn net.Conn) {
	defer conn.Close()
	if !f.writeEnvelope(conn, greetingReply()) {
		return
	}
	br := bufio.NewReader(conn)
	for {
		doc, err := ReadFrame(br)
		if err != nil {
			return
		}
		var env eppEnvelope
		if err := xml.Unmarshal(doc, &env); err != nil {
			return
		}

		var reply *responseEnvelope
		switch {
		case env.Hello != nil:
			reply = greetingReply()
		case env.Command != nil && env.Command.Login != nil:
			reply = okReply(env.Command.ClTRID)
		case env.Command != nil && env.Command.Logout != nil:
			f.writeEnvelope(conn, codeReply(env.Command.ClTRID, 1500, "ending session"))
			return
		default:
			reply = f.handle(env)
		}
		if reply == nil {
			continue
		}
		if !f.writeEnvelope(conn, reply) {
			return
		}
	}
}

func (f *fakeRegistry) writeEnvelope(conn net.Conn, env *responseEnvelope) bool {
	doc, err := xml.Marshal(env)
	if err != nil {
		return false
	}
	return WriteFrame(conn, doc) == nil
}

// newTestSession connects a session to an in-process fake registry over a
// synchronous pipe.
func newTestSession(t *testing.T, cfg SessionConfig, handle func(env eppEnvelope) *responseEnvelope) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	reg := &fakeRegistry{handle: handle}
	go reg.serve(server)

	cfg.Addr = "fake:700"
	cfg.Credentials.ClientID = "registrar-us"
	cfg.Credentials.Password = "pw"
	cfg.Dial = func(ctx context.Context) (net.Conn, error) { return client, nil }
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = 2 * time.Second
	}
	return NewSession(cfg)
}

func echoCheck(env eppEnvelope) *responseEnvelope {
	reply := okReply(env.Command.ClTRID)
	reply.Response.ResData = &resDataElem{DomainCheck: &chkData{
		Name:      env.Command.Check.Domain.Name,
		Available: true,
	}}
	return reply
}

func TestSessionConnectAndSend(t *testing.T) {
	s := newTestSession(t, SessionConfig{}, echoCheck)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, StateAuthenticated, s.State())

	res, err := s.Send(ctx, NewCommand(CheckDomain{Name: "parks.gov"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	require.NotNil(t, res.Check)
	assert.True(t, res.Check.Available)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, int64(2), s.UseCount(), "login plus one command")
}

func TestSessionConnectRejectsNonGreeting(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go func() {
		// A response frame where a greeting belongs.
		doc, _ := xml.Marshal(okReply("reg-x"))
		_ = WriteFrame(server, doc)
	}()

	s := NewSession(SessionConfig{
		Addr:            "fake:700",
		Credentials:     Credentials{ClientID: "registrar-us", Password: "pw"},
		ResponseTimeout: time.Second,
		Dial:            func(ctx context.Context) (net.Conn, error) { return client, nil },
	})
	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedGreeting)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionConnectAuthFailure(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go func() {
		reg := &fakeRegistry{}
		if !reg.writeEnvelope(server, greetingReply()) {
			return
		}
		br := bufio.NewReader(server)
		doc, err := ReadFrame(br)
		if err != nil {
			return
		}
		var env eppEnvelope
		_ = xml.Unmarshal(doc, &env)
		reg.writeEnvelope(server, codeReply(env.Command.ClTRID, CodeAuthError, "Authentication error"))
	}()

	s := NewSession(SessionConfig{
		Addr:            "fake:700",
		Credentials:     Credentials{ClientID: "registrar-us", Password: "wrong"},
		ResponseTimeout: time.Second,
		Dial:            func(ctx context.Context) (net.Conn, error) { return client, nil },
	})
	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionConnectDialError(t *testing.T) {
	s := NewSession(SessionConfig{
		Addr: "fake:700",
		Dial: func(ctx context.Context) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Err: context.DeadlineExceeded}
		},
	})
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionSingleInFlight(t *testing.T) {
	gate := make(chan struct{})
	s := newTestSession(t, SessionConfig{}, func(env eppEnvelope) *responseEnvelope {
		<-gate
		return echoCheck(env)
	})

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, NewCommand(CheckDomain{Name: "one.gov"}))
		firstDone <- err
	}()

	require.Eventually(t, func() bool {
		return s.State() == StateBusy
	}, time.Second, 5*time.Millisecond, "first command should occupy the session")

	_, err := s.Send(ctx, NewCommand(CheckDomain{Name: "two.gov"}))
	require.ErrorIs(t, err, ErrCommandInFlight)

	close(gate)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSessionResponseTimeoutFailsSession(t *testing.T) {
	s := newTestSession(t, SessionConfig{ResponseTimeout: 50 * time.Millisecond},
		func(env eppEnvelope) *responseEnvelope { return nil })

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	_, err := s.Send(ctx, NewCommand(CheckDomain{Name: "slow.gov"}))
	require.ErrorIs(t, err, ErrResponseTimeout)
	assert.Equal(t, StateFailed, s.State())

	// The wire is ambiguous after a timeout; the session must refuse reuse.
	_, err = s.Send(ctx, NewCommand(CheckDomain{Name: "again.gov"}))
	require.ErrorIs(t, err, ErrSessionNotReady)
}

func TestSessionTxIDMismatchFailsSession(t *testing.T) {
	s := newTestSession(t, SessionConfig{}, func(env eppEnvelope) *responseEnvelope {
		return okReply("reg-someone-elses-command")
	})

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	res, err := s.Send(ctx, NewCommand(CheckDomain{Name: "parks.gov"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProtocolFailure, res.Outcome)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionGreetingMidCommandFailsSession(t *testing.T) {
	s := newTestSession(t, SessionConfig{}, func(env eppEnvelope) *responseEnvelope {
		return greetingReply()
	})

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	_, err := s.Send(ctx, NewCommand(CheckDomain{Name: "parks.gov"}))
	require.ErrorIs(t, err, ErrUnexpectedGreeting)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionKeepalive(t *testing.T) {
	s := newTestSession(t, SessionConfig{}, echoCheck)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	before := s.IdleSince()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Keepalive(ctx))
	assert.True(t, s.IdleSince().After(before))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSessionLogoutCloses(t *testing.T) {
	s := newTestSession(t, SessionConfig{}, echoCheck)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, StateDisconnected, s.State())

	_, err := s.Send(ctx, NewCommand(CheckDomain{Name: "parks.gov"}))
	require.ErrorIs(t, err, ErrSessionNotReady)
}

func TestSessionSendBeforeConnect(t *testing.T) {
	s := NewSession(SessionConfig{Addr: "fake:700"})
	_, err := s.Send(context.Background(), NewCommand(CheckDomain{Name: "parks.gov"}))
	require.ErrorIs(t, err, ErrSessionNotReady)
}
