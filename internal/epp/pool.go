package epp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"registrar/internal/platform/logger"
)

// PoolConfig bounds the number of concurrent registry sessions and controls
// how idle ones are kept warm or retired.
type PoolConfig struct {
	MaxSessions    int
	MinIdle        int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	KeepaliveAfter time.Duration
	Logger         pslog.Logger
}

// SessionFactory creates a fresh, authenticated session.
type SessionFactory func(ctx context.Context) (*Session, error)

// Pool hands out authenticated sessions up to a hard cap. Capacity is a
// token channel; a token is consumed on acquire and returned on release or
// destruction, so the number of live sessions never exceeds MaxSessions.
// Sessions are created lazily and idle ones are reused most-recent-first.
type Pool struct {
	cfg     PoolConfig
	factory SessionFactory
	log     pslog.Logger

	tokens chan struct{}

	mu     sync.Mutex
	idle   []*Session
	closed bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewPool builds a pool and starts its idle sweeper.
func NewPool(cfg PoolConfig, factory SessionFactory) *Pool {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 4
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	p := &Pool{
		cfg:       cfg,
		factory:   factory,
		log:       logger.WithSubsystem(cfg.Logger, "registry.pool"),
		tokens:    make(chan struct{}, cfg.MaxSessions),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for i := 0; i < cfg.MaxSessions; i++ {
		p.tokens <- struct{}{}
	}
	if cfg.SweepInterval > 0 {
		go p.sweep()
	} else {
		close(p.sweepDone)
	}
	return p
}

// Acquire returns an authenticated session, reusing an idle one when
// available and creating a new one otherwise. Blocks up to the shorter of
// the context deadline and the configured acquire timeout; at saturation it
// returns ErrPoolExhausted without opening an extra connection.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case <-p.tokens:
	case <-timer.C:
		return nil, fmt.Errorf("%w: all %d sessions busy after %s",
			ErrPoolExhausted, p.cfg.MaxSessions, p.cfg.AcquireTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, ctx.Err())
	}

	// Holding a token entitles us to exactly one live session.
	for {
		s := p.popIdle()
		if s == nil {
			break
		}
		if p.verifyIdle(ctx, s) {
			return s, nil
		}
		s.Close()
	}

	s, err := p.factory(ctx)
	if err != nil {
		p.tokens <- struct{}{}
		return nil, fmt.Errorf("create session: %w", err)
	}
	p.log.Debug("registrar.pool.session_created", "session", s.ID())
	return s, nil
}

// verifyIdle decides whether a parked session is still usable. Sessions idle
// past the keepalive threshold are probed with a hello first; a session that
// fails the probe is discarded rather than handed to a caller.
func (p *Pool) verifyIdle(ctx context.Context, s *Session) bool {
	if s.State() != StateAuthenticated {
		return false
	}
	if p.cfg.KeepaliveAfter > 0 && time.Since(s.IdleSince()) > p.cfg.KeepaliveAfter {
		if err := s.Keepalive(ctx); err != nil {
			p.log.Info("registrar.pool.keepalive_failed", "session", s.ID(), "error", err)
			return false
		}
	}
	return true
}

// Release returns a session to the pool. The outcome of the command it just
// carried decides its fate: transient, auth, and protocol failures mean the
// connection's wire state is suspect and the session is destroyed. A failed
// or non-authenticated session is never re-idled regardless of outcome.
func (p *Pool) Release(s *Session, outcome Outcome) {
	defer func() { p.tokens <- struct{}{} }()

	healthy := s.State() == StateAuthenticated
	switch outcome {
	case OutcomeTransientFailure, OutcomeAuthFailure, OutcomeProtocolFailure:
		healthy = false
	}
	if !healthy {
		p.log.Debug("registrar.pool.session_destroyed",
			"session", s.ID(), "outcome", outcome.String(), "state", s.State().String())
		s.Close()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.Close()
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

// Discard destroys a session without inspecting an outcome, for callers
// that hit a local error before any command reached the wire.
func (p *Pool) Discard(s *Session) {
	s.Close()
	p.tokens <- struct{}{}
}

func (p *Pool) popIdle() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	s := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return s
}

// sweep retires idle sessions beyond MinIdle that have been parked longer
// than IdleTimeout. Retired sessions get a best-effort logout.
func (p *Pool) sweep() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var keep, retire []*Session
	for _, s := range p.idle {
		if len(p.idle)-len(retire) > p.cfg.MinIdle && s.IdleSince().Before(cutoff) {
			retire = append(retire, s)
			continue
		}
		keep = append(keep, s)
	}
	p.idle = keep
	p.mu.Unlock()

	for _, s := range retire {
		p.log.Debug("registrar.pool.session_retired", "session", s.ID(), "idle_since", s.IdleSince())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.Logout(ctx)
		cancel()
	}
}

// Stats reports current occupancy for metrics gauges. An idle session does
// not hold a token (Release returns it before parking), so the missing
// tokens count exactly the checked-out sessions.
func (p *Pool) Stats() (idle, inUse, capacity int) {
	p.mu.Lock()
	idle = len(p.idle)
	p.mu.Unlock()
	capacity = p.cfg.MaxSessions
	inUse = capacity - len(p.tokens)
	if inUse < 0 {
		inUse = 0
	}
	return idle, inUse, capacity
}

// Drain stops the sweeper, logs out every idle session, and refuses further
// acquires. In-use sessions are the responsibility of their holders; Drain
// waits for them only as long as the context allows.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stopSweep)
	<-p.sweepDone

	for _, s := range idle {
		_ = s.Logout(ctx)
	}

	// Tokens return on Release, so collecting all of them proves every
	// outstanding session came back.
	for reclaimed := 0; reclaimed < p.cfg.MaxSessions; reclaimed++ {
		select {
		case <-p.tokens:
		case <-ctx.Done():
			return fmt.Errorf("drain: %d sessions still in use: %w",
				p.cfg.MaxSessions-reclaimed, ctx.Err())
		}
	}
	return nil
}
