// Package registry fronts the wire protocol with typed operations, pooled
// sessions, and the retry policy the raw protocol layer deliberately does
// not have.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"pkt.systems/pslog"

	"registrar/internal/epp"
	"registrar/internal/platform/logger"
	"registrar/internal/registry/metrics"
)

// Session is the slice of a pooled session the facade drives.
type Session interface {
	Send(ctx context.Context, cmd epp.Command) (*epp.Result, error)
}

// SessionPool hands out sessions and takes them back with the outcome of
// the command they carried.
type SessionPool interface {
	Acquire(ctx context.Context) (Session, error)
	Release(s Session, outcome epp.Outcome)
	Stats() (idle, inUse, capacity int)
}

// PoolAdapter bridges the concrete session pool to the facade contract.
type PoolAdapter struct {
	Pool *epp.Pool
}

func (a PoolAdapter) Acquire(ctx context.Context) (Session, error) {
	s, err := a.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a PoolAdapter) Release(s Session, outcome epp.Outcome) {
	a.Pool.Release(s.(*epp.Session), outcome)
}

func (a PoolAdapter) Stats() (idle, inUse, capacity int) {
	return a.Pool.Stats()
}

// Config tunes the facade's retry behavior.
type Config struct {
	ClientID       string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Error is a classified registry failure carried up to callers. Outcome
// decides how services react; Code and Message preserve the registry's own
// words for the audit trail.
type Error struct {
	Op      epp.Kind
	Outcome epp.Outcome
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("registry %s: %s (code %d, %s)", e.Op, e.Outcome, e.Code, e.Message)
	}
	return fmt.Sprintf("registry %s: %s: %s", e.Op, e.Outcome, e.Message)
}

// IsBusinessFailure reports whether err is a registry business rejection,
// which callers surface to users rather than retrying or alerting on.
func IsBusinessFailure(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Outcome == epp.OutcomeBusinessFailure
}

// IsTransient reports whether err exhausted the retry budget on transient
// registry failures.
func IsTransient(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Outcome == epp.OutcomeTransientFailure
}

// IsObjectMissing reports whether err is the registry answering that the
// object does not exist.
func IsObjectMissing(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == epp.CodeObjectNotExists
}

// CodeOf extracts the registry result code from err, or zero.
func CodeOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return 0
}

// Facade is the only path the rest of the system uses to reach the
// registry. One method per operation; every method is safe for concurrent
// use, each call holding at most one pooled session at a time.
type Facade struct {
	pool  SessionPool
	cfg   Config
	cache *CheckCache
	log   pslog.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a facade over an authenticated session pool. cache may be nil.
func New(pool SessionPool, cfg Config, cache *CheckCache, log pslog.Logger) *Facade {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	return &Facade{
		pool:  pool,
		cfg:   cfg,
		cache: cache,
		log:   logger.WithSubsystem(log, "registry.facade"),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryTransient reports whether a verb may be resent after a transient
// failure. Reads are harmless to repeat. CreateDomain and DeleteDomain are
// listed because their ambiguous outcomes are disambiguated after the
// retry; every other mutation could double-apply and is never resent.
func retryTransient(kind epp.Kind) bool {
	switch kind {
	case epp.KindCheckDomain, epp.KindInfoDomain, epp.KindInfoContact, epp.KindCheckHost:
		return true
	case epp.KindCreateDomain, epp.KindDeleteDomain:
		return true
	default:
		return false
	}
}

// CheckDomain reports whether a domain name is available, consulting the
// cache before the wire.
func (f *Facade) CheckDomain(ctx context.Context, name string) (*epp.CheckData, error) {
	if data := f.cache.Get(ctx, name); data != nil {
		return data, nil
	}
	res, err := f.do(ctx, func() epp.Operation { return epp.CheckDomain{Name: name} })
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resultError(epp.KindCheckDomain, res)
	}
	if res.Check == nil {
		return nil, &Error{Op: epp.KindCheckDomain, Outcome: epp.OutcomeProtocolFailure,
			Message: "response missing check data"}
	}
	f.cache.Put(ctx, name, res.Check)
	return res.Check, nil
}

// CreateDomain registers a domain. A create whose first attempt died in
// transit may find the object already registered on retry; when the
// registry reports it sponsored by us, the earlier attempt evidently
// succeeded and the create is treated as such.
func (f *Facade) CreateDomain(ctx context.Context, op epp.CreateDomain) (*epp.CreateData, error) {
	var retried bool
	res, err := f.doObserved(ctx, func() epp.Operation { return op }, &retried)
	if err != nil {
		return nil, err
	}
	if res.OK() {
		if res.Create != nil {
			return res.Create, nil
		}
		return &epp.CreateData{Name: op.Name}, nil
	}

	if retried && res.Code == epp.CodeObjectExists {
		info, infoErr := f.InfoDomain(ctx, epp.InfoDomain{Name: op.Name})
		if infoErr == nil && info.SponsorID == f.cfg.ClientID {
			f.log.Info("registrar.registry.create_reinterpreted",
				"domain", op.Name, "code", res.Code)
			return &epp.CreateData{
				Name:      info.Name,
				CreatedAt: info.CreatedAt,
				ExpiresAt: info.ExpiresAt,
			}, nil
		}
	}
	return nil, resultError(epp.KindCreateDomain, res)
}

// InfoDomain fetches the registry's authoritative view of a domain.
func (f *Facade) InfoDomain(ctx context.Context, op epp.InfoDomain) (*epp.InfoData, error) {
	res, err := f.do(ctx, func() epp.Operation { return op })
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resultError(epp.KindInfoDomain, res)
	}
	if res.Info == nil {
		return nil, &Error{Op: epp.KindInfoDomain, Outcome: epp.OutcomeProtocolFailure,
			Message: "response missing info data"}
	}
	return res.Info, nil
}

// UpdateDomain applies nameserver and contact changes. Never auto-retried.
func (f *Facade) UpdateDomain(ctx context.Context, op epp.UpdateDomain) error {
	res, err := f.do(ctx, func() epp.Operation { return op })
	if err != nil {
		return err
	}
	if !res.OK() {
		return resultError(epp.KindUpdateDomain, res)
	}
	return nil
}

// RenewDomain extends a registration. Never auto-retried; a double renewal
// would bill a second period.
func (f *Facade) RenewDomain(ctx context.Context, op epp.RenewDomain) (*epp.RenewData, error) {
	res, err := f.do(ctx, func() epp.Operation { return op })
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resultError(epp.KindRenewDomain, res)
	}
	if res.Renew == nil {
		return nil, &Error{Op: epp.KindRenewDomain, Outcome: epp.OutcomeProtocolFailure,
			Message: "response missing renewal data"}
	}
	return res.Renew, nil
}

// DeleteDomain removes a registration. A retried delete answered with
// "object does not exist" means the first attempt already landed.
func (f *Facade) DeleteDomain(ctx context.Context, name string) error {
	var retried bool
	res, err := f.doObserved(ctx, func() epp.Operation { return epp.DeleteDomain{Name: name} }, &retried)
	if err != nil {
		return err
	}
	if res.OK() {
		return nil
	}
	if retried && res.Code == epp.CodeObjectNotExists {
		f.log.Info("registrar.registry.delete_reinterpreted", "domain", name, "code", res.Code)
		return nil
	}
	return resultError(epp.KindDeleteDomain, res)
}

// CreateContact provisions a contact object.
func (f *Facade) CreateContact(ctx context.Context, op epp.CreateContact) (*epp.CreateData, error) {
	res, err := f.do(ctx, func() epp.Operation { return op })
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resultError(epp.KindCreateContact, res)
	}
	if res.Create != nil {
		return res.Create, nil
	}
	return &epp.CreateData{Name: op.ID}, nil
}

// InfoContact fetches a contact object.
func (f *Facade) InfoContact(ctx context.Context, id string) (*epp.ContactData, error) {
	res, err := f.do(ctx, func() epp.Operation { return epp.InfoContact{ID: id} })
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resultError(epp.KindInfoContact, res)
	}
	if res.ContactInfo == nil {
		return nil, &Error{Op: epp.KindInfoContact, Outcome: epp.OutcomeProtocolFailure,
			Message: "response missing contact data"}
	}
	return res.ContactInfo, nil
}

// CheckHost reports whether a host object exists.
func (f *Facade) CheckHost(ctx context.Context, name string) (*epp.CheckData, error) {
	res, err := f.do(ctx, func() epp.Operation { return epp.CheckHost{Name: name} })
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resultError(epp.KindCheckHost, res)
	}
	if res.HostCheck == nil {
		return nil, &Error{Op: epp.KindCheckHost, Outcome: epp.OutcomeProtocolFailure,
			Message: "response missing host check data"}
	}
	return res.HostCheck, nil
}

// CreateHost provisions a host (nameserver) object.
func (f *Facade) CreateHost(ctx context.Context, op epp.CreateHost) error {
	res, err := f.do(ctx, func() epp.Operation { return op })
	if err != nil {
		return err
	}
	if !res.OK() {
		return resultError(epp.KindCreateHost, res)
	}
	return nil
}

// UpdateHost changes host addresses.
func (f *Facade) UpdateHost(ctx context.Context, op epp.UpdateHost) error {
	res, err := f.do(ctx, func() epp.Operation { return op })
	if err != nil {
		return err
	}
	if !res.OK() {
		return resultError(epp.KindUpdateHost, res)
	}
	return nil
}

func (f *Facade) do(ctx context.Context, build func() epp.Operation) (*epp.Result, error) {
	var retried bool
	return f.doObserved(ctx, build, &retried)
}

// doObserved runs one operation through the acquire/send/release cycle with
// the retry policy. *retried is set when any attempt beyond the first was
// made; the create/delete reinterpretation rules only apply then, since a
// first-attempt business answer is unambiguous.
func (f *Facade) doObserved(ctx context.Context, build func() epp.Operation, retried *bool) (*epp.Result, error) {
	kind := build().Kind()
	bo := f.newBackoff()
	var authRetried bool

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			*retried = true
			metrics.RetriesTotal.WithLabelValues(string(kind)).Inc()
		}

		res, err := f.exchange(ctx, kind, build)
		if err != nil {
			outcome, retryable := classifyLocal(err)
			metrics.CommandsTotal.WithLabelValues(string(kind), outcome.String()).Inc()
			if retryable && retryTransient(kind) && attempt < f.cfg.MaxAttempts {
				if serr := f.sleep(ctx, bo.NextBackOff()); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, err
		}

		metrics.CommandsTotal.WithLabelValues(string(kind), res.Outcome.String()).Inc()

		switch res.Outcome {
		case epp.OutcomeTransientFailure:
			if retryTransient(kind) && attempt < f.cfg.MaxAttempts {
				f.log.Info("registrar.registry.retrying",
					"kind", string(kind), "code", res.Code, "attempt", attempt)
				if serr := f.sleep(ctx, bo.NextBackOff()); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, resultError(kind, res)
		case epp.OutcomeAuthFailure:
			// The pool destroyed the session; one fresh login is allowed
			// before giving up, in case the registry expired the old one.
			if !authRetried {
				authRetried = true
				f.log.Warn("registrar.registry.auth_retry", "kind", string(kind), "code", res.Code)
				continue
			}
			return nil, resultError(kind, res)
		case epp.OutcomeProtocolFailure:
			return nil, resultError(kind, res)
		default:
			// Success and business failures go back whole; callers and the
			// reinterpretation rules need the code.
			return res, nil
		}
	}
}

// exchange performs one attempt: acquire, send, release with the outcome.
func (f *Facade) exchange(ctx context.Context, kind epp.Kind, build func() epp.Operation) (*epp.Result, error) {
	start := time.Now()
	defer func() {
		metrics.ExchangeDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	sess, err := f.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, epp.ErrPoolExhausted) {
			metrics.PoolExhaustions.Inc()
		}
		return nil, err
	}

	// Fresh command per attempt so every transmission carries its own
	// transaction id.
	res, err := sess.Send(ctx, epp.NewCommand(build()))
	if err != nil {
		f.pool.Release(sess, epp.OutcomeTransientFailure)
		f.recordPool()
		return nil, err
	}
	f.pool.Release(sess, res.Outcome)
	f.recordPool()
	return res, nil
}

func (f *Facade) recordPool() {
	idle, inUse, _ := f.pool.Stats()
	metrics.RecordPoolStats(idle, inUse)
}

func (f *Facade) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialBackoff
	bo.MaxInterval = f.cfg.MaxBackoff
	// Deterministic, strictly increasing delays; jitter buys nothing
	// against a single upstream registry.
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// classifyLocal maps errors raised before or instead of a registry reply.
// A response timeout leaves the command's fate unknown, which is exactly
// the transient ambiguity the idempotency rules exist for. Pool exhaustion
// is a local capacity condition and is never retried here; the caller
// already waited its full acquire budget.
func classifyLocal(err error) (epp.Outcome, bool) {
	switch {
	case errors.Is(err, epp.ErrPoolExhausted), errors.Is(err, epp.ErrPoolClosed):
		return epp.OutcomeUnknown, false
	case errors.Is(err, epp.ErrResponseTimeout):
		return epp.OutcomeTransientFailure, true
	case errors.Is(err, epp.ErrCommandInFlight):
		return epp.OutcomeUnknown, false
	default:
		// Dial and transport errors: nothing reached the registry, or the
		// connection died underneath us. Safe to retry for any verb whose
		// policy allows it.
		return epp.OutcomeTransientFailure, true
	}
}

func resultError(kind epp.Kind, res *epp.Result) *Error {
	return &Error{Op: kind, Outcome: res.Outcome, Code: res.Code, Message: res.Message}
}
