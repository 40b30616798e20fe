package epp

import (
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Frame layout: a 4-byte big-endian total length (self-inclusive) followed by
// one XML document. maxFrameSize bounds reads so a corrupt length prefix
// cannot allocate unbounded memory.
const (
	frameHeaderSize = 4
	maxFrameSize    = 1 << 20
)

// WriteFrame writes one length-prefixed document to w.
func WriteFrame(w io.Writer, doc []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(doc)+frameHeaderSize))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed document from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	total := binary.BigEndian.Uint32(header[:])
	if total < frameHeaderSize || total > maxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d out of range", ErrMalformedResponse, total)
	}
	doc := make([]byte, total-frameHeaderSize)
	if _, err := io.ReadFull(r, doc); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return doc, nil
}

// Wire schema. Element names mirror the reference protocol's shape; both
// sides of the codec use the same structs so round-trips are lossless.

type eppEnvelope struct {
	XMLName xml.Name     `xml:"epp"`
	Hello   *helloElem   `xml:"hello,omitempty"`
	Command *commandElem `xml:"command,omitempty"`
}

type helloElem struct{}

type commandElem struct {
	Check  *objectElem `xml:"check,omitempty"`
	Create *objectElem `xml:"create,omitempty"`
	Info   *objectElem `xml:"info,omitempty"`
	Update *objectElem `xml:"update,omitempty"`
	Renew  *objectElem `xml:"renew,omitempty"`
	Delete *objectElem `xml:"delete,omitempty"`
	Login  *loginElem  `xml:"login,omitempty"`
	Logout *struct{}   `xml:"logout,omitempty"`
	ClTRID string      `xml:"clTRID"`
}

// objectElem carries the object-specific body of a command verb. Exactly one
// member is set.
type objectElem struct {
	Domain  *domainBody  `xml:"domain,omitempty"`
	Contact *contactBody `xml:"contact,omitempty"`
	Host    *hostBody    `xml:"host,omitempty"`
}

type domainBody struct {
	Name       string       `xml:"name"`
	Period     int          `xml:"period,omitempty"`
	Registrant string       `xml:"registrant,omitempty"`
	Contacts   []contactRef `xml:"contact,omitempty"`
	Ns         *nsElem      `xml:"ns,omitempty"`
	CurExpiry  string       `xml:"curExpDate,omitempty"`
	AuthInfo   string       `xml:"authInfo,omitempty"`
	Add        *changeSet   `xml:"add,omitempty"`
	Rem        *changeSet   `xml:"rem,omitempty"`
}

type nsElem struct {
	HostObjs []string `xml:"hostObj"`
}

type changeSet struct {
	Ns       *nsElem      `xml:"ns,omitempty"`
	Contacts []contactRef `xml:"contact,omitempty"`
	Addrs    []string     `xml:"addr,omitempty"`
}

type contactRef struct {
	Type string `xml:"type,attr"`
	ID   string `xml:",chardata"`
}

type contactBody struct {
	ID       string        `xml:"id"`
	Name     string        `xml:"postalInfo>name,omitempty"`
	Org      string        `xml:"postalInfo>org,omitempty"`
	Street   string        `xml:"postalInfo>addr>street,omitempty"`
	City     string        `xml:"postalInfo>addr>city,omitempty"`
	Country  string        `xml:"postalInfo>addr>cc,omitempty"`
	Email    string        `xml:"email,omitempty"`
	Phone    string        `xml:"voice,omitempty"`
	Disclose *discloseElem `xml:"disclose,omitempty"`
}

type discloseElem struct {
	Name  bool `xml:"name"`
	Email bool `xml:"email"`
	Phone bool `xml:"voice"`
}

type hostBody struct {
	Name string     `xml:"name"`
	Addr []string   `xml:"addr,omitempty"`
	Add  *changeSet `xml:"add,omitempty"`
	Rem  *changeSet `xml:"rem,omitempty"`
}

type loginElem struct {
	ClientID string `xml:"clID"`
	Password string `xml:"pw"`
}

type responseEnvelope struct {
	XMLName  xml.Name      `xml:"epp"`
	Greeting *greetingElem `xml:"greeting,omitempty"`
	Response *responseElem `xml:"response,omitempty"`
}

type greetingElem struct {
	ServerID   string `xml:"svID"`
	ServerDate string `xml:"svDate"`
}

type responseElem struct {
	Result  resultElem   `xml:"result"`
	ResData *resDataElem `xml:"resData,omitempty"`
	TrID    trIDElem     `xml:"trID"`
}

type resultElem struct {
	Code int    `xml:"code,attr"`
	Msg  string `xml:"msg"`
}

type trIDElem struct {
	ClTRID string `xml:"clTRID,omitempty"`
	SvTRID string `xml:"svTRID,omitempty"`
}

type resDataElem struct {
	DomainCheck   *chkData     `xml:"domainChkData,omitempty"`
	DomainCreate  *creData     `xml:"domainCreData,omitempty"`
	DomainInfo    *infData     `xml:"domainInfData,omitempty"`
	DomainRenew   *renData     `xml:"domainRenData,omitempty"`
	ContactInfo   *contactBody `xml:"contactInfData,omitempty"`
	ContactCreate *creData     `xml:"contactCreData,omitempty"`
	HostCheck     *chkData     `xml:"hostChkData,omitempty"`
	HostCreate    *creData     `xml:"hostCreData,omitempty"`
}

type chkData struct {
	Name      string `xml:"cd>name"`
	Available bool   `xml:"cd>avail"`
	Reason    string `xml:"cd>reason,omitempty"`
}

type creData struct {
	Name   string `xml:"name,omitempty"`
	ID     string `xml:"id,omitempty"`
	CrDate string `xml:"crDate,omitempty"`
	ExDate string `xml:"exDate,omitempty"`
}

type infData struct {
	Name       string       `xml:"name"`
	SponsorID  string       `xml:"clID,omitempty"`
	Registrant string       `xml:"registrant,omitempty"`
	Statuses   []string     `xml:"status,omitempty"`
	Ns         *nsElem      `xml:"ns,omitempty"`
	Contacts   []contactRef `xml:"contact,omitempty"`
	CrDate     string       `xml:"crDate,omitempty"`
	ExDate     string       `xml:"exDate,omitempty"`
}

type renData struct {
	Name   string `xml:"name"`
	ExDate string `xml:"exDate"`
}

// Encode serializes a command into one XML document ready for framing.
// Encoding is pure and deterministic; all I/O lives in the session.
func Encode(cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	env := eppEnvelope{Command: &commandElem{ClTRID: cmd.TxID}}
	c := env.Command

	switch op := cmd.Op.(type) {
	case CheckDomain:
		c.Check = &objectElem{Domain: &domainBody{Name: op.Name}}
	case CreateDomain:
		body := &domainBody{
			Name:       op.Name,
			Period:     op.PeriodYears,
			Registrant: op.Registrant,
			Contacts:   toContactRefs(op.Contacts),
			AuthInfo:   op.AuthInfo,
		}
		if len(op.Nameservers) > 0 {
			body.Ns = &nsElem{HostObjs: op.Nameservers}
		}
		c.Create = &objectElem{Domain: body}
	case InfoDomain:
		c.Info = &objectElem{Domain: &domainBody{Name: op.Name, AuthInfo: op.AuthInfo}}
	case UpdateDomain:
		body := &domainBody{Name: op.Name}
		if len(op.AddNameservers) > 0 || len(op.AddContacts) > 0 {
			body.Add = &changeSet{Contacts: toContactRefs(op.AddContacts)}
			if len(op.AddNameservers) > 0 {
				body.Add.Ns = &nsElem{HostObjs: op.AddNameservers}
			}
		}
		if len(op.RemoveNameservers) > 0 || len(op.RemoveContacts) > 0 {
			body.Rem = &changeSet{Contacts: toContactRefs(op.RemoveContacts)}
			if len(op.RemoveNameservers) > 0 {
				body.Rem.Ns = &nsElem{HostObjs: op.RemoveNameservers}
			}
		}
		c.Update = &objectElem{Domain: body}
	case RenewDomain:
		c.Renew = &objectElem{Domain: &domainBody{
			Name:      op.Name,
			CurExpiry: op.CurrentExpiry,
			Period:    op.PeriodYears,
		}}
	case DeleteDomain:
		c.Delete = &objectElem{Domain: &domainBody{Name: op.Name}}
	case CreateContact:
		c.Create = &objectElem{Contact: &contactBody{
			ID:      op.ID,
			Name:    op.Name,
			Org:     op.Org,
			Street:  op.Street,
			City:    op.City,
			Country: op.Country,
			Email:   op.Email,
			Phone:   op.Phone,
			Disclose: &discloseElem{
				Name:  op.Disclose.Name,
				Email: op.Disclose.Email,
				Phone: op.Disclose.Phone,
			},
		}}
	case InfoContact:
		c.Info = &objectElem{Contact: &contactBody{ID: op.ID}}
	case CheckHost:
		c.Check = &objectElem{Host: &hostBody{Name: op.Name}}
	case CreateHost:
		c.Create = &objectElem{Host: &hostBody{Name: op.Name, Addr: op.Addrs}}
	case UpdateHost:
		body := &hostBody{Name: op.Name}
		if len(op.AddAddrs) > 0 {
			body.Add = &changeSet{Addrs: op.AddAddrs}
		}
		if len(op.RemoveAddrs) > 0 {
			body.Rem = &changeSet{Addrs: op.RemoveAddrs}
		}
		c.Update = &objectElem{Host: body}
	case login:
		c.Login = &loginElem{ClientID: op.ClientID, Password: op.Password}
	case logout:
		c.Logout = &struct{}{}
	default:
		return nil, fmt.Errorf("encode: unsupported operation kind %s", cmd.Op.Kind())
	}

	doc, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Op.Kind(), err)
	}
	return append([]byte(xml.Header), doc...), nil
}

// encodeHello serializes the lightweight liveness probe.
func encodeHello() ([]byte, error) {
	doc, err := xml.Marshal(eppEnvelope{Hello: &helloElem{}})
	if err != nil {
		return nil, fmt.Errorf("encode hello: %w", err)
	}
	return append([]byte(xml.Header), doc...), nil
}

// Decode parses one response document into a classified Result. Well-formed
// but unexpected documents (greetings, unsolicited notifications) come back
// as a Result carrying Greeting data or OutcomeProtocolFailure rather than
// an error; only unparseable input errors out.
func Decode(doc []byte) (*Result, *GreetingData, error) {
	var env responseEnvelope
	if err := xml.Unmarshal(doc, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if env.Greeting != nil {
		g := &GreetingData{ServerID: env.Greeting.ServerID}
		if t, err := time.Parse(time.RFC3339, env.Greeting.ServerDate); err == nil {
			g.ServerDate = t
		}
		return nil, g, nil
	}

	if env.Response == nil {
		return &Result{
			Outcome: OutcomeProtocolFailure,
			Message: "document is neither a response nor a greeting",
		}, nil, nil
	}

	resp := env.Response
	res := &Result{
		Outcome: Classify(resp.Result.Code),
		Code:    resp.Result.Code,
		Message: resp.Result.Msg,
		TxID:    resp.TrID.ClTRID,
		SvTxID:  resp.TrID.SvTRID,
	}

	if rd := resp.ResData; rd != nil {
		switch {
		case rd.DomainCheck != nil:
			res.Check = &CheckData{
				Name:      rd.DomainCheck.Name,
				Available: rd.DomainCheck.Available,
				Reason:    rd.DomainCheck.Reason,
			}
		case rd.DomainCreate != nil:
			res.Create = &CreateData{
				Name:      rd.DomainCreate.Name,
				CreatedAt: parseDate(rd.DomainCreate.CrDate),
				ExpiresAt: parseDate(rd.DomainCreate.ExDate),
			}
		case rd.DomainInfo != nil:
			info := &InfoData{
				Name:       rd.DomainInfo.Name,
				SponsorID:  rd.DomainInfo.SponsorID,
				Registrant: rd.DomainInfo.Registrant,
				Statuses:   rd.DomainInfo.Statuses,
				Contacts:   fromContactRefs(rd.DomainInfo.Contacts),
				CreatedAt:  parseDate(rd.DomainInfo.CrDate),
				ExpiresAt:  parseDate(rd.DomainInfo.ExDate),
			}
			if rd.DomainInfo.Ns != nil {
				info.Nameservers = rd.DomainInfo.Ns.HostObjs
			}
			res.Info = info
		case rd.DomainRenew != nil:
			res.Renew = &RenewData{
				Name:      rd.DomainRenew.Name,
				ExpiresAt: parseDate(rd.DomainRenew.ExDate),
			}
		case rd.ContactInfo != nil:
			res.ContactInfo = &ContactData{
				ID:    rd.ContactInfo.ID,
				Name:  rd.ContactInfo.Name,
				Org:   rd.ContactInfo.Org,
				Email: rd.ContactInfo.Email,
				Phone: rd.ContactInfo.Phone,
			}
		case rd.ContactCreate != nil:
			res.Create = &CreateData{
				Name:      rd.ContactCreate.ID,
				CreatedAt: parseDate(rd.ContactCreate.CrDate),
			}
		case rd.HostCheck != nil:
			res.HostCheck = &CheckData{
				Name:      rd.HostCheck.Name,
				Available: rd.HostCheck.Available,
				Reason:    rd.HostCheck.Reason,
			}
		case rd.HostCreate != nil:
			res.Create = &CreateData{
				Name:      rd.HostCreate.Name,
				CreatedAt: parseDate(rd.HostCreate.CrDate),
			}
		}
	}

	return res, nil, nil
}

func toContactRefs(refs []ContactRef) []contactRef {
	if len(refs) == 0 {
		return nil
	}
	out := make([]contactRef, len(refs))
	for i, r := range refs {
		out[i] = contactRef{Type: string(r.Type), ID: r.ID}
	}
	return out
}

func fromContactRefs(refs []contactRef) []ContactRef {
	if len(refs) == 0 {
		return nil
	}
	out := make([]ContactRef, len(refs))
	for i, r := range refs {
		out[i] = ContactRef{Type: ContactType(r.Type), ID: r.ID}
	}
	return out
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02", s)
	return t
}
