// Package service owns registered-domain lifecycle. Every state change is
// driven by a confirmed registry result or the expiry clock; local intent
// alone never advances a domain.
package service

import (
	"context"
	"errors"
	"time"

	"pkt.systems/pslog"

	"registrar/internal/domains/models"
	"registrar/internal/domains/store"
	"registrar/internal/epp"
	"registrar/internal/platform/logger"
	"registrar/internal/platform/metrics"
	"registrar/internal/registry"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	audit "registrar/pkg/platform/audit"
	pstrings "registrar/pkg/platform/strings"
	"registrar/pkg/requestcontext"
)

// Registry is the slice of the registry facade the domain service uses.
type Registry interface {
	InfoDomain(ctx context.Context, op epp.InfoDomain) (*epp.InfoData, error)
	UpdateDomain(ctx context.Context, op epp.UpdateDomain) error
	RenewDomain(ctx context.Context, op epp.RenewDomain) (*epp.RenewData, error)
	DeleteDomain(ctx context.Context, name string) error
	CheckHost(ctx context.Context, name string) (*epp.CheckData, error)
	CreateHost(ctx context.Context, op epp.CreateHost) error
	UpdateHost(ctx context.Context, op epp.UpdateHost) error
	CreateContact(ctx context.Context, op epp.CreateContact) (*epp.CreateData, error)
	InfoContact(ctx context.Context, id string) (*epp.ContactData, error)
}

// AuditEmitter records lifecycle events.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates domain lifecycle against the registry and the store.
type Service struct {
	domains  store.Store
	registry Registry
	auditor  AuditEmitter
	log      pslog.Logger
	// redemption is the post-expiry grace window before a domain is
	// considered gone for good.
	redemption time.Duration
}

func New(domains store.Store, reg Registry, auditor AuditEmitter, redemption time.Duration, log pslog.Logger) *Service {
	if redemption <= 0 {
		redemption = 30 * 24 * time.Hour
	}
	return &Service{
		domains:    domains,
		registry:   reg,
		auditor:    auditor,
		log:        logger.WithSubsystem(log, "domains"),
		redemption: redemption,
	}
}

// Register records a domain the registry just confirmed created. Called by
// the request approval flow with the create result in hand; the domain
// starts in dns_needed until delegation is confirmed.
func (s *Service) Register(ctx context.Context, requestID id.RequestID, name, registrant string, expiresAt time.Time) (*models.Domain, error) {
	now := requestcontext.Now(ctx)
	d, err := models.NewDomain(id.NewDomainID(), requestID, name, registrant, expiresAt, now)
	if err != nil {
		return nil, err
	}
	if err := s.domains.Create(ctx, d); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist domain")
	}
	s.emit(ctx, audit.EventDomainRegistered, d, "")
	metrics.DomainsManaged.Inc()
	s.log.Info("registrar.domains.registered", "domain", name, "request", requestID.String())
	return d, nil
}

// Get returns one domain.
func (s *Service) Get(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return d, nil
}

// GetByName returns one domain by its name.
func (s *Service) GetByName(ctx context.Context, name string) (*models.Domain, error) {
	d, err := s.domains.FindByName(ctx, name)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return d, nil
}

// ListByState returns domains in one lifecycle state.
func (s *Service) ListByState(ctx context.Context, state models.State) ([]*models.Domain, error) {
	return s.domains.ListByState(ctx, state)
}

// SetNameservers pushes a delegation change to the registry, provisioning
// missing host objects first, then refreshes so the local state reflects
// what the registry confirmed rather than what we asked for. glue maps a
// host name to the addresses its host object needs; hosts inside the
// delegated domain itself cannot resolve without them.
func (s *Service) SetNameservers(ctx context.Context, domainID id.DomainID, hosts []string, glue map[string][]string) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !d.IsActive() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "domain %s is deleted", d.Name)
	}

	hosts = pstrings.DedupeAndTrimLower(hosts)
	for _, host := range hosts {
		if err := s.ensureHost(ctx, host, glue[host]); err != nil {
			return nil, err
		}
	}

	add, remove := diffHosts(d.Nameservers, hosts)
	if len(add) > 0 || len(remove) > 0 {
		err := s.registry.UpdateDomain(ctx, epp.UpdateDomain{
			Name:              d.Name,
			AddNameservers:    add,
			RemoveNameservers: remove,
		})
		if err != nil {
			return nil, err
		}
	}
	return s.Refresh(ctx, domainID)
}

// ensureHost provisions a host object if the registry does not know it
// yet, carrying any glue addresses. A known host only gets touched when
// there are addresses to add.
func (s *Service) ensureHost(ctx context.Context, host string, addrs []string) error {
	check, err := s.registry.CheckHost(ctx, host)
	if err != nil {
		return err
	}
	if check.Available {
		return s.registry.CreateHost(ctx, epp.CreateHost{Name: host, Addrs: addrs})
	}
	if len(addrs) > 0 {
		return s.registry.UpdateHost(ctx, epp.UpdateHost{Name: host, AddAddrs: addrs})
	}
	return nil
}

// ContactSpec describes a contact to provision and associate with a
// domain. RegistryID names the contact object; the remaining fields are
// only used when the object does not exist yet.
type ContactSpec struct {
	RegistryID string
	Role       models.ContactRole
	Name       string
	Org        string
	Email      string
	Phone      string
	Disclose   models.Disclosure
}

// SetContacts reconciles the domain's contact associations with the given
// set, provisioning missing contact objects first. Like delegation changes,
// the final word comes from the registry: the method ends with a refresh
// and the stored associations mirror the info result.
func (s *Service) SetContacts(ctx context.Context, domainID id.DomainID, specs []ContactSpec) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !d.IsActive() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "domain %s is deleted", d.Name)
	}
	for _, spec := range specs {
		if spec.RegistryID == "" || spec.Role == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "contact id and role are required")
		}
	}

	for _, spec := range specs {
		if err := s.ensureContact(ctx, spec); err != nil {
			return nil, err
		}
	}

	add, remove := diffContacts(d.Contacts, specs)
	if len(add) > 0 || len(remove) > 0 {
		err := s.registry.UpdateDomain(ctx, epp.UpdateDomain{
			Name:           d.Name,
			AddContacts:    add,
			RemoveContacts: remove,
		})
		if err != nil {
			return nil, err
		}
	}

	// Record the disclosure policies now; the registry never echoes them,
	// so the refresh below keeps them for the ids it confirms.
	d.Contacts = contactsFromSpecs(specs)
	d.UpdatedAt = requestcontext.Now(ctx)
	if err := s.domains.Update(ctx, d); err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emit(ctx, audit.EventDomainContacts, d, "")
	return s.Refresh(ctx, domainID)
}

// ensureContact provisions the contact object unless the registry already
// knows it.
func (s *Service) ensureContact(ctx context.Context, spec ContactSpec) error {
	_, err := s.registry.InfoContact(ctx, spec.RegistryID)
	if err == nil {
		return nil
	}
	if !registry.IsObjectMissing(err) {
		return err
	}
	_, err = s.registry.CreateContact(ctx, epp.CreateContact{
		ID:    spec.RegistryID,
		Name:  spec.Name,
		Org:   spec.Org,
		Email: spec.Email,
		Phone: spec.Phone,
		Disclose: epp.DisclosurePolicy{
			Name:  spec.Disclose.Name,
			Email: spec.Disclose.Email,
			Phone: spec.Disclose.Phone,
		},
	})
	return err
}

// Refresh pulls the registry's view of the domain and applies whatever it
// confirms: delegation, holds, expiry. This is the only path from
// dns_needed to ready.
func (s *Service) Refresh(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	info, err := s.registry.InfoDomain(ctx, epp.InfoDomain{Name: d.Name})
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	events := s.applyInfo(d, info, now)
	if err := s.domains.Update(ctx, d); err != nil {
		return nil, wrapStoreErr(err)
	}
	for _, ev := range events {
		s.emit(ctx, ev, d, "")
	}
	return d, nil
}

// applyInfo folds one registry info result into the aggregate and returns
// the audit actions for the transitions that happened.
func (s *Service) applyInfo(d *models.Domain, info *epp.InfoData, now time.Time) []audit.AuditEvent {
	var events []audit.AuditEvent

	apply := func(ev models.Event, action audit.AuditEvent) {
		if d.CanApply(ev) == nil {
			if err := d.Apply(ev, now); err == nil {
				events = append(events, action)
			}
		}
	}

	if info.OnHold() {
		if d.State != models.StateOnHold {
			apply(models.EventHoldSet, audit.EventDomainHoldSet)
		}
	} else {
		if d.State == models.StateOnHold {
			apply(models.EventHoldLifted, audit.EventDomainHoldLifted)
		}
		if len(info.Nameservers) > 0 && d.State == models.StateDnsNeeded {
			apply(models.EventNameserversConfirmed, audit.EventDomainReady)
		}
		if len(info.Nameservers) == 0 && d.State == models.StateReady {
			apply(models.EventNameserversRemoved, audit.EventDomainDnsNeeded)
		}
	}

	d.Nameservers = append([]string(nil), info.Nameservers...)
	d.Contacts = mergeContacts(d.Contacts, info.Contacts)
	if !info.ExpiresAt.IsZero() {
		d.ExpiresAt = info.ExpiresAt
	}
	d.LastSyncedAt = now
	d.UpdatedAt = now
	return events
}

// Renew extends the registration by the given number of years. Renewals
// are never auto-retried, so a transient failure here surfaces to the
// caller for a deliberate second attempt.
func (s *Service) Renew(ctx context.Context, domainID id.DomainID, years int) (*models.Domain, error) {
	if years < 1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "renewal period must be at least one year")
	}
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := d.CanApply(models.EventRenewed); err != nil {
		return nil, err
	}

	renewed, err := s.registry.RenewDomain(ctx, epp.RenewDomain{
		Name:          d.Name,
		CurrentExpiry: d.ExpiresAt.Format("2006-01-02"),
		PeriodYears:   years,
	})
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if err := d.Apply(models.EventRenewed, now); err != nil {
		return nil, err
	}
	if !renewed.ExpiresAt.IsZero() {
		d.ExpiresAt = renewed.ExpiresAt
	}
	if err := s.domains.Update(ctx, d); err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emit(ctx, audit.EventDomainRenewed, d, "")
	s.log.Info("registrar.domains.renewed", "domain", d.Name, "expires_at", d.ExpiresAt)
	return d, nil
}

// Delete removes the registration at the registry and locally.
func (s *Service) Delete(ctx context.Context, domainID id.DomainID) error {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return wrapStoreErr(err)
	}
	if err := d.CanApply(models.EventDeleted); err != nil {
		return err
	}
	if err := s.registry.DeleteDomain(ctx, d.Name); err != nil {
		return err
	}
	if err := d.Apply(models.EventDeleted, requestcontext.Now(ctx)); err != nil {
		return err
	}
	if err := s.domains.Update(ctx, d); err != nil {
		return wrapStoreErr(err)
	}
	s.emit(ctx, audit.EventDomainDeleted, d, "")
	metrics.DomainsManaged.Dec()
	s.log.Info("registrar.domains.deleted", "domain", d.Name)
	return nil
}

// SweepExpirations crosses clock boundaries: past-expiry domains become
// expired, and expired domains whose redemption window has elapsed become
// deleted. Returns how many domains changed state.
func (s *Service) SweepExpirations(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	candidates, err := s.domains.ListExpiring(ctx, now)
	if err != nil {
		return 0, err
	}

	var changed int
	for _, d := range candidates {
		switch {
		case d.State == models.StateExpired:
			if now.After(d.ExpiresAt.Add(s.redemption)) {
				if err := d.Apply(models.EventRedemptionElapsed, now); err != nil {
					continue
				}
				if err := s.domains.Update(ctx, d); err != nil {
					s.log.Error("registrar.domains.sweep_update_failed", "domain", d.Name, "error", err)
					continue
				}
				s.emit(ctx, audit.EventDomainDeleted, d, "redemption window elapsed")
				metrics.DomainsManaged.Dec()
				changed++
			}
		case d.CanApply(models.EventExpired) == nil:
			if err := d.Apply(models.EventExpired, now); err != nil {
				continue
			}
			if err := s.domains.Update(ctx, d); err != nil {
				s.log.Error("registrar.domains.sweep_update_failed", "domain", d.Name, "error", err)
				continue
			}
			s.emit(ctx, audit.EventDomainExpired, d, "")
			changed++
		}
	}
	if changed > 0 {
		s.log.Info("registrar.domains.sweep", "changed", changed)
	}
	return changed, nil
}

// StartExpirySweep runs SweepExpirations on an interval until ctx ends.
func (s *Service) StartExpirySweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepExpirations(ctx); err != nil {
				s.log.Error("registrar.domains.sweep_failed", "error", err)
			}
		}
	}
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, d *models.Domain, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		RequestID:     d.RequestID,
		DomainName:    d.Name,
		Action:        string(action),
		ActorID:       requestcontext.ActorID(ctx),
		Reason:        reason,
		CorrelationID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.log.Warn("registrar.domains.audit_failed", "action", string(action), "error", err)
	}
}

// mergeContacts mirrors the registry's contact associations, keeping the
// locally recorded disclosure policy for ids the registry confirms.
func mergeContacts(current []models.Contact, refs []epp.ContactRef) []models.Contact {
	disclose := make(map[string]models.Disclosure, len(current))
	for _, c := range current {
		disclose[c.RegistryID] = c.Disclose
	}
	out := make([]models.Contact, 0, len(refs))
	for _, ref := range refs {
		out = append(out, models.Contact{
			RegistryID: ref.ID,
			Role:       models.ContactRole(ref.Type),
			Disclose:   disclose[ref.ID],
		})
	}
	return out
}

func contactsFromSpecs(specs []ContactSpec) []models.Contact {
	out := make([]models.Contact, 0, len(specs))
	for _, spec := range specs {
		out = append(out, models.Contact{
			RegistryID: spec.RegistryID,
			Role:       spec.Role,
			Disclose:   spec.Disclose,
		})
	}
	return out
}

// diffContacts compares associations by id and role pair.
func diffContacts(current []models.Contact, desired []ContactSpec) (add, remove []epp.ContactRef) {
	type key struct {
		id   string
		role models.ContactRole
	}
	have := make(map[key]bool, len(current))
	for _, c := range current {
		have[key{c.RegistryID, c.Role}] = true
	}
	want := make(map[key]bool, len(desired))
	for _, spec := range desired {
		k := key{spec.RegistryID, spec.Role}
		want[k] = true
		if !have[k] {
			add = append(add, epp.ContactRef{ID: spec.RegistryID, Type: epp.ContactType(spec.Role)})
		}
	}
	for _, c := range current {
		if !want[key{c.RegistryID, c.Role}] {
			remove = append(remove, epp.ContactRef{ID: c.RegistryID, Type: epp.ContactType(c.Role)})
		}
	}
	return add, remove
}

func diffHosts(current, desired []string) (add, remove []string) {
	have := make(map[string]bool, len(current))
	for _, h := range current {
		have[h] = true
	}
	want := make(map[string]bool, len(desired))
	for _, h := range desired {
		want[h] = true
		if !have[h] {
			add = append(add, h)
		}
	}
	for _, h := range current {
		if !want[h] {
			remove = append(remove, h)
		}
	}
	return add, remove
}

func wrapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "domain store")
}
