// Package domain provides typed identifiers shared across registrar modules.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-type assignment (a RequestID can never be passed where a DomainID is
// expected). Parsing enforces the invariant that IDs are valid, non-nil UUIDs
// at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "registrar/pkg/domain-errors"
)

// RequestID identifies a domain request (an application for a domain).
type RequestID uuid.UUID

// DomainID identifies a registry-confirmed domain registration.
type DomainID uuid.UUID

// ContactID identifies a registrant/admin/technical/security contact.
type ContactID uuid.UUID

func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id DomainID) String() string  { return uuid.UUID(id).String() }
func (id ContactID) String() string { return uuid.UUID(id).String() }

func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DomainID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ContactID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewRequestID returns a fresh random request identifier.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewDomainID returns a fresh random domain identifier.
func NewDomainID() DomainID { return DomainID(uuid.New()) }

// NewContactID returns a fresh random contact identifier.
func NewContactID() ContactID { return ContactID(uuid.New()) }

// ParseRequestID parses and validates a request identifier.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// ParseDomainID parses and validates a domain identifier.
func ParseDomainID(s string) (DomainID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DomainID{}, err
	}
	return DomainID(u), nil
}

// ParseContactID parses and validates a contact identifier.
func ParseContactID(s string) (ContactID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ContactID{}, err
	}
	return ContactID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id cannot be the nil UUID")
	}
	return u, nil
}
