// Package service drives domain requests through the review graph. The one
// transition with a registry side effect is approval: it becomes durable
// only after the registry confirms the domain was created.
package service

import (
	"context"
	"time"

	"pkt.systems/pslog"

	domainmodels "registrar/internal/domains/models"
	"registrar/internal/epp"
	"registrar/internal/platform/logger"
	"registrar/internal/platform/metrics"
	"registrar/internal/requests/models"
	"registrar/internal/requests/store"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	audit "registrar/pkg/platform/audit"
	"registrar/pkg/requestcontext"
)

// Registrar is the slice of the registry facade the request service uses.
type Registrar interface {
	CheckDomain(ctx context.Context, name string) (*epp.CheckData, error)
	CreateDomain(ctx context.Context, op epp.CreateDomain) (*epp.CreateData, error)
}

// Domains registers the confirmed domain after approval.
type Domains interface {
	Register(ctx context.Context, requestID id.RequestID, name, registrant string, expiresAt time.Time) (*domainmodels.Domain, error)
}

// SubmissionGuard is the external abuse-prevention check consulted before a
// submission is accepted. It is not part of the review graph.
type SubmissionGuard interface {
	AllowSubmission(ctx context.Context, requesterID, domainName string) error
}

// AuditEmitter records review events.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns requester and reviewer actions on domain requests.
type Service struct {
	requests store.Store
	registry Registrar
	domains  Domains
	guard    SubmissionGuard
	auditor  AuditEmitter
	log      pslog.Logger
	// registrationYears is the initial period for an approved domain.
	registrationYears int
}

type Option func(*Service)

// WithSubmissionGuard installs the external submission check.
func WithSubmissionGuard(g SubmissionGuard) Option {
	return func(s *Service) { s.guard = g }
}

// WithAuditEmitter installs the audit emitter.
func WithAuditEmitter(a AuditEmitter) Option {
	return func(s *Service) { s.auditor = a }
}

// WithRegistrationYears overrides the initial registration period.
func WithRegistrationYears(years int) Option {
	return func(s *Service) {
		if years > 0 {
			s.registrationYears = years
		}
	}
}

func New(requests store.Store, registry Registrar, domains Domains, log pslog.Logger, opts ...Option) *Service {
	s := &Service{
		requests:          requests,
		registry:          registry,
		domains:           domains,
		log:               logger.WithSubsystem(log, "requests"),
		registrationYears: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a draft request after confirming the name is available at
// the registry. Availability is advisory; the authoritative answer comes
// at approval time.
func (s *Service) Create(ctx context.Context, domainName, requesterID, organization, purpose string) (*models.DomainRequest, error) {
	now := requestcontext.Now(ctx)
	r, err := models.NewDomainRequest(id.NewRequestID(), domainName, requesterID, organization, purpose, now)
	if err != nil {
		return nil, err
	}

	check, err := s.registry.CheckDomain(ctx, r.DomainName)
	if err == nil && !check.Available {
		return nil, dErrors.Newf(dErrors.CodeConflict, "%s is not available: %s", r.DomainName, check.Reason)
	}
	if err != nil {
		// The registry being unreachable should not block drafting.
		s.log.Warn("registrar.requests.check_unavailable", "domain", r.DomainName, "error", err)
	}

	if err := s.requests.Create(ctx, r); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventRequestCreated, r, "")
	metrics.RequestsCreated.Inc()
	metrics.RequestsOpen.Inc()
	s.log.Info("registrar.requests.created", "domain", r.DomainName, "request", r.ID.String())
	return r, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	return s.requests.FindByID(ctx, requestID)
}

// ListByRequester returns a requester's requests.
func (s *Service) ListByRequester(ctx context.Context, requesterID string) ([]*models.DomainRequest, error) {
	return s.requests.ListByRequester(ctx, requesterID)
}

// ListByStatus returns the review queue for one status.
func (s *Service) ListByStatus(ctx context.Context, status models.Status) ([]*models.DomainRequest, error) {
	return s.requests.ListByStatus(ctx, status)
}

// Submit hands a completed draft to the reviewers. The submission guard is
// consulted first; a guard rejection surfaces unchanged and the request
// stays a draft.
func (s *Service) Submit(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.Submittable(); err != nil {
		return nil, err
	}
	if err := r.CanApply(models.ActionSubmit); err != nil {
		return nil, err
	}
	if s.guard != nil {
		if err := s.guard.AllowSubmission(ctx, r.RequesterID, r.DomainName); err != nil {
			return nil, err
		}
	}
	return s.transition(ctx, r, models.ActionSubmit, audit.EventRequestSubmitted, "")
}

// BeginReview claims a submitted request for evaluation.
func (s *Service) BeginReview(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, r, models.ActionBeginReview, audit.EventRequestReviewStarted, "")
}

// RequestChanges sends the request back to the requester with the
// reviewer's remarks.
func (s *Service) RequestChanges(ctx context.Context, requestID id.RequestID, remarks string) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	r.ReviewReason = remarks
	return s.transition(ctx, r, models.ActionRequestChanges, audit.EventRequestChangesRequested, remarks)
}

// Resolve returns an action-needed request to review.
func (s *Service) Resolve(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, r, models.ActionResolve, audit.EventRequestResolved, "")
}

// Approve registers the domain at the registry and, only once the registry
// confirms it, marks the request approved. Any registry failure leaves the
// request in review with the error recorded for reviewer remediation.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.CanApply(models.ActionApprove); err != nil {
		return nil, err
	}

	created, err := s.registry.CreateDomain(ctx, epp.CreateDomain{
		Name:        r.DomainName,
		PeriodYears: s.registrationYears,
		Registrant:  r.Organization,
	})
	if err != nil {
		return nil, s.recordApprovalFailure(ctx, r, err)
	}

	now := requestcontext.Now(ctx)
	expiresAt := created.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.AddDate(s.registrationYears, 0, 0)
	}

	if err := r.Apply(models.ActionApprove, now); err != nil {
		return nil, err
	}
	r.LastError = ""
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}

	if _, err := s.domains.Register(ctx, r.ID, r.DomainName, r.Organization, expiresAt); err != nil {
		// The registry committed the registration; the local record must
		// not be lost silently.
		s.log.Error("registrar.requests.domain_record_failed", "domain", r.DomainName, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record registered domain")
	}

	s.emit(ctx, audit.EventRequestApproved, r, "")
	metrics.RequestsApproved.Inc()
	metrics.RequestsOpen.Dec()
	s.log.Info("registrar.requests.approved", "domain", r.DomainName, "request", r.ID.String())
	return r, nil
}

// recordApprovalFailure pins the registry error on the request without
// changing its status.
func (s *Service) recordApprovalFailure(ctx context.Context, r *models.DomainRequest, cause error) error {
	r.LastError = cause.Error()
	r.UpdatedAt = requestcontext.Now(ctx)
	if err := s.requests.Update(ctx, r); err != nil {
		s.log.Error("registrar.requests.record_failure", "request", r.ID.String(), "error", err)
	}
	s.log.Warn("registrar.requests.approval_failed", "domain", r.DomainName, "error", cause)
	return cause
}

// Reject declines the request with a mandatory reason.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID, reason string) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.Reject(reason, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventRequestRejected, r, reason)
	metrics.RequestsOpen.Dec()
	return r, nil
}

// Reopen puts a rejected request back in the submission queue.
func (s *Service) Reopen(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	r, err = s.transition(ctx, r, models.ActionReopen, audit.EventRequestReopened, "")
	if err != nil {
		return nil, err
	}
	metrics.RequestsOpen.Inc()
	return r, nil
}

// Withdraw retires the request at the requester's initiative.
func (s *Service) Withdraw(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	r, err = s.transition(ctx, r, models.ActionWithdraw, audit.EventRequestWithdrawn, "")
	if err != nil {
		return nil, err
	}
	metrics.RequestsOpen.Dec()
	return r, nil
}

// MarkIneligible closes the request because the requesting organization is
// not eligible for the namespace.
func (s *Service) MarkIneligible(ctx context.Context, requestID id.RequestID, reason string) (*models.DomainRequest, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	r.ReviewReason = reason
	r, err = s.transition(ctx, r, models.ActionMarkIneligible, audit.EventRequestIneligible, reason)
	if err != nil {
		return nil, err
	}
	metrics.RequestsOpen.Dec()
	return r, nil
}

func (s *Service) transition(ctx context.Context, r *models.DomainRequest, action models.Action, event audit.AuditEvent, reason string) (*models.DomainRequest, error) {
	if err := r.Apply(action, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	s.emit(ctx, event, r, reason)
	s.log.Info("registrar.requests.transition", "request", r.ID.String(), "action", string(action), "status", string(r.Status))
	return r, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, r *models.DomainRequest, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		RequestID:     r.ID,
		DomainName:    r.DomainName,
		Action:        string(action),
		ActorID:       requestcontext.ActorID(ctx),
		Reason:        reason,
		CorrelationID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.log.Warn("registrar.requests.audit_failed", "action", string(action), "error", err)
	}
}
