package models

import (
	"strings"
	"time"

	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// DomainRequest is an application to obtain a domain. It lives entirely on
// our side of the registry until approval; only a confirmed registration
// makes an approval durable.
//
// Invariants:
//   - Status moves only along edges in transitionsTable.
//   - Approved, Withdrawn and Ineligible are terminal. Rejected can be
//     reopened to Submitted by a reviewer.
//   - A rejection always carries a reason.
type DomainRequest struct {
	ID           id.RequestID `json:"id"`
	DomainName   string       `json:"domain_name"`
	RequesterID  string       `json:"requester_id"`
	Organization string       `json:"organization"`
	Purpose      string       `json:"purpose"`
	Status       Status       `json:"status"`

	// ReviewReason is the wording from the last reviewer decision
	// (rejection, changes requested, ineligibility).
	ReviewReason string `json:"review_reason,omitempty"`
	// LastError records why the most recent approval attempt failed to
	// produce a registered domain.
	LastError string `json:"last_error,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	FirstSubmittedAt time.Time `json:"first_submitted_at,omitzero"`
	LastSubmittedAt  time.Time `json:"last_submitted_at,omitzero"`
	StatusChangedAt  time.Time `json:"status_changed_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewDomainRequest starts a draft request.
func NewDomainRequest(requestID id.RequestID, domainName, requesterID, organization, purpose string, now time.Time) (*DomainRequest, error) {
	if strings.TrimSpace(domainName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "domain name is required")
	}
	if strings.TrimSpace(requesterID) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "requester is required")
	}
	return &DomainRequest{
		ID:              requestID,
		DomainName:      strings.ToLower(strings.TrimSpace(domainName)),
		RequesterID:     requesterID,
		Organization:    organization,
		Purpose:         purpose,
		Status:          StatusStarted,
		CreatedAt:       now,
		StatusChangedAt: now,
		UpdatedAt:       now,
	}, nil
}

// CanApply reports whether the action is legal from the current status.
func (r *DomainRequest) CanApply(action Action) error {
	if _, ok := TransitionFor(r.Status, action); !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"request %s cannot %s from status %s", r.DomainName, action, r.Status)
	}
	return nil
}

// Apply moves the request along one edge of the review graph. The request
// is untouched when the edge does not exist.
func (r *DomainRequest) Apply(action Action, now time.Time) error {
	tr, ok := TransitionFor(r.Status, action)
	if !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"request %s cannot %s from status %s", r.DomainName, action, r.Status)
	}
	if action == ActionSubmit || action == ActionReopen {
		if r.FirstSubmittedAt.IsZero() {
			r.FirstSubmittedAt = now
		}
		r.LastSubmittedAt = now
	}
	r.Status = tr.To
	r.StatusChangedAt = now
	r.UpdatedAt = now
	return nil
}

// Reject applies the rejection edge with the mandatory reviewer reason.
func (r *DomainRequest) Reject(reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "rejection requires a reason")
	}
	if err := r.Apply(ActionReject, now); err != nil {
		return err
	}
	r.ReviewReason = reason
	return nil
}

// Submittable reports whether the draft has everything a submission needs.
func (r *DomainRequest) Submittable() error {
	if strings.TrimSpace(r.Organization) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "organization is required before submission")
	}
	if strings.TrimSpace(r.Purpose) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "purpose is required before submission")
	}
	return nil
}

// IsTerminal reports whether no further action can move the request.
// Rejected is deliberately not terminal.
func (r *DomainRequest) IsTerminal() bool {
	switch r.Status {
	case StatusApproved, StatusWithdrawn, StatusIneligible:
		return true
	}
	return false
}
