package epp

import "time"

// Outcome classifies a decoded response (or the absence of one) into the
// categories the pool and facade act on.
type Outcome int

const (
	// OutcomeUnknown is the zero value; it never leaves this package.
	OutcomeUnknown Outcome = iota
	// OutcomeSuccess covers the registry's positive completion range.
	OutcomeSuccess
	// OutcomeBusinessFailure is a definitive registry decision (object
	// exists, object missing, authorization mismatch). Never retried.
	OutcomeBusinessFailure
	// OutcomeTransientFailure is a server-side or network condition worth
	// retrying on a fresh session.
	OutcomeTransientFailure
	// OutcomeAuthFailure means credentials were rejected; forces re-login.
	OutcomeAuthFailure
	// OutcomeProtocolFailure is a malformed or unsolicited response, or a
	// correlation mismatch. Always evicts the session.
	OutcomeProtocolFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBusinessFailure:
		return "business_failure"
	case OutcomeTransientFailure:
		return "transient_failure"
	case OutcomeAuthFailure:
		return "auth_failure"
	case OutcomeProtocolFailure:
		return "protocol_failure"
	default:
		return "unknown"
	}
}

// Result is the classified, decoded reply to a single transmitted command.
type Result struct {
	Outcome Outcome
	Code    int
	Message string
	TxID    string // client transaction id echoed by the registry
	SvTxID  string // registry-assigned transaction id

	// At most one payload field is set, matching the command kind.
	Check       *CheckData
	Create      *CreateData
	Info        *InfoData
	Renew       *RenewData
	ContactInfo *ContactData
	HostCheck   *CheckData
}

// OK reports whether the registry committed the operation.
func (r *Result) OK() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// CheckData reports availability for a domain or host name.
type CheckData struct {
	Name      string
	Available bool
	Reason    string
}

// CreateData reports the dates the registry assigned on creation.
type CreateData struct {
	Name      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// InfoData is the registry's authoritative view of a domain.
type InfoData struct {
	Name        string
	SponsorID   string // registrar of record
	Registrant  string
	Statuses    []string
	Nameservers []string
	Contacts    []ContactRef
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// OnHold reports whether the registry has a hold status on the domain.
func (d *InfoData) OnHold() bool {
	for _, s := range d.Statuses {
		if s == StatusServerHold || s == StatusClientHold {
			return true
		}
	}
	return false
}

// RenewData reports the new expiry after a renewal.
type RenewData struct {
	Name      string
	ExpiresAt time.Time
}

// ContactData is the registry's view of a contact object.
type ContactData struct {
	ID    string
	Name  string
	Org   string
	Email string
	Phone string
}

// Registry status values this core inspects.
const (
	StatusServerHold = "serverHold"
	StatusClientHold = "clientHold"
	StatusOK         = "ok"
)

// GreetingData is the registry's service announcement, received on connect
// and in reply to keepalive hellos.
type GreetingData struct {
	ServerID   string
	ServerDate time.Time
}
