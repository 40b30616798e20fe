package models

import (
	"time"

	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// Domain is the aggregate for a registered domain under our sponsorship.
//
// Invariants:
//   - Name is non-empty and immutable after registration
//   - State only changes along the lifecycle table, driven by confirmed
//     registry results or the expiry clock
//   - PriorState holds the pre-hold state while State is on_hold
//   - Deleted is terminal
type Domain struct {
	ID          id.DomainID  `json:"id"`
	RequestID   id.RequestID `json:"request_id"`
	Name        string       `json:"name"`
	State       State        `json:"state"`
	PriorState  State        `json:"prior_state,omitempty"`
	Registrant  string       `json:"registrant"`
	Nameservers []string     `json:"nameservers"`
	Contacts    []Contact    `json:"contacts,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewDomain records a freshly registered domain. Registration lands in
// dns_needed; delegation is only believed once the registry confirms it.
func NewDomain(domainID id.DomainID, requestID id.RequestID, name, registrant string, expiresAt, now time.Time) (*Domain, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "domain name cannot be empty")
	}
	if registrant == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registrant cannot be empty")
	}
	return &Domain{
		ID:           domainID,
		RequestID:    requestID,
		Name:         name,
		State:        StateDnsNeeded,
		Registrant:   registrant,
		RegisteredAt: now,
		ExpiresAt:    expiresAt,
		UpdatedAt:    now,
	}, nil
}

// CanApply checks whether ev is legal from the current state.
func (d *Domain) CanApply(ev Event) error {
	if d.State == StateDeleted {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"domain %s is deleted; no further transitions", d.Name)
	}
	if _, ok := TransitionFor(d.State, ev); !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"domain %s cannot apply %s in state %s", d.Name, ev, d.State)
	}
	return nil
}

// Apply moves the domain along one lifecycle edge. Illegal events return an
// error and leave the aggregate untouched. Call CanApply first when the
// check and the mutation happen in separate steps.
func (d *Domain) Apply(ev Event, now time.Time) error {
	if err := d.CanApply(ev); err != nil {
		return err
	}
	tr, _ := TransitionFor(d.State, ev)

	switch {
	case ev == EventHoldSet:
		d.PriorState = d.State
		d.State = StateOnHold
	case tr.Restore:
		prior := d.PriorState
		if prior == "" || prior == StateOnHold {
			prior = StateDnsNeeded
		}
		d.State = prior
		d.PriorState = ""
	default:
		d.State = tr.To
		d.PriorState = ""
	}
	d.UpdatedAt = now
	return nil
}

// IsActive reports whether the registration is still live at the registry.
func (d *Domain) IsActive() bool {
	return d.State != StateDeleted
}

// Expire is the clock-driven boundary crossing.
func (d *Domain) Expire(now time.Time) error {
	return d.Apply(EventExpired, now)
}
