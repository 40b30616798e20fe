// Package epp implements the registry-facing wire core: a codec for the
// length-prefixed XML provisioning protocol, an authenticated session that
// sends exactly one command at a time, a result-code classifier, and a
// bounded session pool.
//
// The package deliberately covers only the command subset needed for domain
// lifecycle operations; it is not a general-purpose protocol library.
package epp

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind enumerates the closed set of protocol operations this registrar
// issues. The set is fixed at design time; adding a kind means touching the
// codec, the classifier tests, and the facade's idempotency table.
type Kind string

const (
	KindCheckDomain   Kind = "check-domain"
	KindCreateDomain  Kind = "create-domain"
	KindInfoDomain    Kind = "info-domain"
	KindUpdateDomain  Kind = "update-domain"
	KindRenewDomain   Kind = "renew-domain"
	KindDeleteDomain  Kind = "delete-domain"
	KindCreateContact Kind = "create-contact"
	KindInfoContact   Kind = "info-contact"
	KindCheckHost     Kind = "check-host"
	KindCreateHost    Kind = "create-host"
	KindUpdateHost    Kind = "update-host"

	// Session-management kinds are internal to this package; callers never
	// build them directly.
	kindLogin  Kind = "login"
	kindLogout Kind = "logout"
)

// Operation is the closed tagged variant of command payloads. Only types in
// this package implement it.
type Operation interface {
	Kind() Kind
	isOperation()
}

// Command pairs an operation with its unique client transaction identifier.
// The identifier correlates the command to its eventual result; a fresh one
// is minted per transmission, never reused across retries.
type Command struct {
	TxID string
	Op   Operation
}

// NewCommand mints a command with a fresh transaction identifier.
func NewCommand(op Operation) Command {
	return Command{TxID: newTxID(), Op: op}
}

func newTxID() string {
	return "reg-" + uuid.NewString()
}

// ContactType distinguishes the roles a contact plays on a domain.
type ContactType string

const (
	ContactRegistrant ContactType = "registrant"
	ContactAdmin      ContactType = "admin"
	ContactTechnical  ContactType = "tech"
	ContactSecurity   ContactType = "security"
)

// ContactRef associates a registry contact identifier with a role.
type ContactRef struct {
	ID   string
	Type ContactType
}

// DisclosurePolicy controls which contact fields the registry may publish.
type DisclosurePolicy struct {
	Name  bool
	Email bool
	Phone bool
}

// CheckDomain asks whether a domain name is available for registration.
type CheckDomain struct {
	Name string
}

// CreateDomain registers a new domain.
type CreateDomain struct {
	Name        string
	PeriodYears int
	Registrant  string
	Contacts    []ContactRef
	Nameservers []string
	AuthInfo    string
}

// InfoDomain fetches the registry's view of a domain.
type InfoDomain struct {
	Name     string
	AuthInfo string
}

// UpdateDomain adds and removes nameserver and contact associations.
type UpdateDomain struct {
	Name              string
	AddNameservers    []string
	RemoveNameservers []string
	AddContacts       []ContactRef
	RemoveContacts    []ContactRef
}

// RenewDomain extends a registration. CurrentExpiry guards against renewing
// from a stale view of the registration period.
type RenewDomain struct {
	Name          string
	CurrentExpiry string // registry date, YYYY-MM-DD
	PeriodYears   int
}

// DeleteDomain removes a registration.
type DeleteDomain struct {
	Name string
}

// CreateContact provisions a contact object at the registry.
type CreateContact struct {
	ID       string
	Name     string
	Org      string
	Email    string
	Phone    string
	Street   string
	City     string
	Country  string
	Disclose DisclosurePolicy
}

// InfoContact fetches a contact object.
type InfoContact struct {
	ID string
}

// CheckHost asks whether a host object exists.
type CheckHost struct {
	Name string
}

// CreateHost provisions a host (nameserver) object.
type CreateHost struct {
	Name  string
	Addrs []string
}

// UpdateHost adds and removes host addresses.
type UpdateHost struct {
	Name        string
	AddAddrs    []string
	RemoveAddrs []string
}

type login struct {
	ClientID string
	Password string
}

type logout struct{}

func (CheckDomain) Kind() Kind   { return KindCheckDomain }
func (CreateDomain) Kind() Kind  { return KindCreateDomain }
func (InfoDomain) Kind() Kind    { return KindInfoDomain }
func (UpdateDomain) Kind() Kind  { return KindUpdateDomain }
func (RenewDomain) Kind() Kind   { return KindRenewDomain }
func (DeleteDomain) Kind() Kind  { return KindDeleteDomain }
func (CreateContact) Kind() Kind { return KindCreateContact }
func (InfoContact) Kind() Kind   { return KindInfoContact }
func (CheckHost) Kind() Kind     { return KindCheckHost }
func (CreateHost) Kind() Kind    { return KindCreateHost }
func (UpdateHost) Kind() Kind    { return KindUpdateHost }
func (login) Kind() Kind         { return kindLogin }
func (logout) Kind() Kind        { return kindLogout }

func (CheckDomain) isOperation()   {}
func (CreateDomain) isOperation()  {}
func (InfoDomain) isOperation()    {}
func (UpdateDomain) isOperation()  {}
func (RenewDomain) isOperation()   {}
func (DeleteDomain) isOperation()  {}
func (CreateContact) isOperation() {}
func (InfoContact) isOperation()   {}
func (CheckHost) isOperation()     {}
func (CreateHost) isOperation()    {}
func (UpdateHost) isOperation()    {}
func (login) isOperation()         {}
func (logout) isOperation()        {}

// Validate rejects commands that would be refused by the registry anyway.
func (c Command) Validate() error {
	if c.TxID == "" {
		return fmt.Errorf("command %s: missing transaction id", c.Op.Kind())
	}
	switch op := c.Op.(type) {
	case CheckDomain:
		if op.Name == "" {
			return fmt.Errorf("check-domain: name required")
		}
	case CreateDomain:
		if op.Name == "" || op.Registrant == "" {
			return fmt.Errorf("create-domain: name and registrant required")
		}
		if op.PeriodYears < 1 {
			return fmt.Errorf("create-domain: period must be at least one year")
		}
	case InfoDomain:
		if op.Name == "" {
			return fmt.Errorf("info-domain: name required")
		}
	case UpdateDomain:
		if op.Name == "" {
			return fmt.Errorf("update-domain: name required")
		}
	case RenewDomain:
		if op.Name == "" || op.CurrentExpiry == "" {
			return fmt.Errorf("renew-domain: name and current expiry required")
		}
	case DeleteDomain:
		if op.Name == "" {
			return fmt.Errorf("delete-domain: name required")
		}
	case CreateContact:
		if op.ID == "" || op.Email == "" {
			return fmt.Errorf("create-contact: id and email required")
		}
	case InfoContact:
		if op.ID == "" {
			return fmt.Errorf("info-contact: id required")
		}
	case CheckHost:
		if op.Name == "" {
			return fmt.Errorf("check-host: name required")
		}
	case CreateHost:
		if op.Name == "" {
			return fmt.Errorf("create-host: name required")
		}
	case UpdateHost:
		if op.Name == "" {
			return fmt.Errorf("update-host: name required")
		}
	}
	return nil
}
