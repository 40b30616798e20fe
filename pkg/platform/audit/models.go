// Package audit records who did what to which domain, durably enough to
// answer a records request years later.
package audit

import (
	"context"
	"time"

	id "registrar/pkg/domain"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers reviewer decisions and registration
	// lifecycle changes; long retention, tamper-evident storage.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers credential and session anomalies.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine registry traffic; short retention,
	// sampling allowed downstream.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic on every lifecycle transition and
// registry operation outcome. Transport-agnostic so stores and sinks fan
// out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// RequestID ties the event to a domain request when one is involved.
	RequestID id.RequestID
	// DomainName is the registration the event concerns, when known.
	DomainName string
	Action     string
	// ActorID identifies the requester, reviewer, or "system" for
	// clock-driven transitions.
	ActorID string
	// Outcome carries the classified result of a registry operation.
	Outcome string
	// Reason preserves reviewer-supplied or registry-supplied wording.
	Reason string
	// CorrelationID is the request-scoped trace identifier.
	CorrelationID string
}

// AuditEvent names the actions this system records.
type AuditEvent string

const (
	// Request lifecycle
	EventRequestCreated          AuditEvent = "request_created"
	EventRequestSubmitted        AuditEvent = "request_submitted"
	EventRequestReviewStarted    AuditEvent = "request_review_started"
	EventRequestChangesRequested AuditEvent = "request_changes_requested"
	EventRequestResolved         AuditEvent = "request_resolved"
	EventRequestApproved         AuditEvent = "request_approved"
	EventRequestRejected         AuditEvent = "request_rejected"
	EventRequestWithdrawn        AuditEvent = "request_withdrawn"
	EventRequestReopened         AuditEvent = "request_reopened"
	EventRequestIneligible       AuditEvent = "request_ineligible"

	// Domain lifecycle
	EventDomainRegistered AuditEvent = "domain_registered"
	EventDomainReady      AuditEvent = "domain_ready"
	EventDomainDnsNeeded  AuditEvent = "domain_dns_needed"
	EventDomainHoldSet    AuditEvent = "domain_hold_set"
	EventDomainHoldLifted AuditEvent = "domain_hold_lifted"
	EventDomainContacts   AuditEvent = "domain_contacts_updated"
	EventDomainRenewed    AuditEvent = "domain_renewed"
	EventDomainExpired    AuditEvent = "domain_expired"
	EventDomainDeleted    AuditEvent = "domain_deleted"

	// Registry traffic
	EventRegistryCommand    AuditEvent = "registry_command"
	EventRegistryAuthFailed AuditEvent = "registry_auth_failed"
)

// eventCategories is the source of truth for categorization; Category()
// falls back to operations for unknown actions.
var eventCategories = map[AuditEvent]EventCategory{
	EventRequestCreated:          CategoryCompliance,
	EventRequestSubmitted:        CategoryCompliance,
	EventRequestReviewStarted:    CategoryCompliance,
	EventRequestChangesRequested: CategoryCompliance,
	EventRequestResolved:         CategoryCompliance,
	EventRequestApproved:         CategoryCompliance,
	EventRequestRejected:         CategoryCompliance,
	EventRequestWithdrawn:        CategoryCompliance,
	EventRequestReopened:         CategoryCompliance,
	EventRequestIneligible:       CategoryCompliance,

	EventDomainRegistered: CategoryCompliance,
	EventDomainReady:      CategoryOperations,
	EventDomainDnsNeeded:  CategoryOperations,
	EventDomainHoldSet:    CategoryCompliance,
	EventDomainHoldLifted: CategoryCompliance,
	EventDomainContacts:   CategoryCompliance,
	EventDomainRenewed:    CategoryCompliance,
	EventDomainExpired:    CategoryCompliance,
	EventDomainDeleted:    CategoryCompliance,

	EventRegistryCommand:    CategoryOperations,
	EventRegistryAuthFailed: CategorySecurity,
}

// Category returns the retention class for an action.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store is the persistence contract for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
