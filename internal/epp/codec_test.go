package epp

import (
	"bytes"
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	doc := []byte(`<?xml version="1.0"?><epp><hello></hello></epp>`)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, doc))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Zero(t, buf.Len(), "frame should be fully consumed")
}

func TestReadFrameRejectsBadLength(t *testing.T) {
	t.Run("length below header size", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 2}))
		require.ErrorIs(t, err, ErrMalformedResponse)
	})
	t.Run("length above cap", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
		require.ErrorIs(t, err, ErrMalformedResponse)
	})
	t.Run("truncated body", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, []byte("<epp/>")))
		short := buf.Bytes()[:buf.Len()-3]
		_, err := ReadFrame(bytes.NewReader(short))
		require.Error(t, err)
	})
}

func TestEncodeCreateDomain(t *testing.T) {
	cmd := NewCommand(CreateDomain{
		Name:        "parks.gov",
		PeriodYears: 2,
		Registrant:  "org-501",
		Contacts: []ContactRef{
			{Type: ContactAdmin, ID: "ct-12"},
			{Type: ContactTechnical, ID: "ct-13"},
		},
		Nameservers: []string{"ns1.parks.gov", "ns2.parks.gov"},
		AuthInfo:    "s3cret",
	})

	doc, err := Encode(cmd)
	require.NoError(t, err)

	var env eppEnvelope
	require.NoError(t, xml.Unmarshal(doc, &env))
	require.NotNil(t, env.Command)
	require.NotNil(t, env.Command.Create)
	require.NotNil(t, env.Command.Create.Domain)

	body := env.Command.Create.Domain
	assert.Equal(t, "parks.gov", body.Name)
	assert.Equal(t, 2, body.Period)
	assert.Equal(t, "org-501", body.Registrant)
	require.NotNil(t, body.Ns)
	assert.Equal(t, []string{"ns1.parks.gov", "ns2.parks.gov"}, body.Ns.HostObjs)
	require.Len(t, body.Contacts, 2)
	assert.Equal(t, "admin", body.Contacts[0].Type)
	assert.Equal(t, "ct-12", body.Contacts[0].ID)
	assert.Equal(t, cmd.TxID, env.Command.ClTRID)
}

func TestEncodeRejectsInvalidCommand(t *testing.T) {
	_, err := Encode(NewCommand(CheckDomain{}))
	require.Error(t, err)
}

func TestEncodeTxIDsAreUnique(t *testing.T) {
	a := NewCommand(CheckDomain{Name: "a.gov"})
	b := NewCommand(CheckDomain{Name: "a.gov"})
	assert.NotEqual(t, a.TxID, b.TxID)
	assert.Contains(t, a.TxID, "reg-")
}

func TestDecodeGreeting(t *testing.T) {
	doc := []byte(`<epp><greeting><svID>registry.gov</svID><svDate>2026-08-30T12:00:00Z</svDate></greeting></epp>`)
	res, greeting, err := Decode(doc)
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NotNil(t, greeting)
	assert.Equal(t, "registry.gov", greeting.ServerID)
	assert.Equal(t, 2026, greeting.ServerDate.Year())
}

func TestDecodeCheckResponse(t *testing.T) {
	doc := []byte(`<epp><response>
		<result code="1000"><msg>Command completed successfully</msg></result>
		<resData><domainChkData><cd><name>parks.gov</name><avail>false</avail><reason>registered</reason></cd></domainChkData></resData>
		<trID><clTRID>reg-abc</clTRID><svTRID>sv-1</svTRID></trID>
	</response></epp>`)

	res, greeting, err := Decode(doc)
	require.NoError(t, err)
	assert.Nil(t, greeting)
	require.NotNil(t, res)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, CodeSuccess, res.Code)
	assert.Equal(t, "reg-abc", res.TxID)
	assert.Equal(t, "sv-1", res.SvTxID)
	require.NotNil(t, res.Check)
	assert.Equal(t, "parks.gov", res.Check.Name)
	assert.False(t, res.Check.Available)
	assert.Equal(t, "registered", res.Check.Reason)
}

func TestDecodeInfoResponse(t *testing.T) {
	doc := []byte(`<epp><response>
		<result code="1000"><msg>ok</msg></result>
		<resData><domainInfData>
			<name>parks.gov</name>
			<clID>registrar-us</clID>
			<registrant>org-501</registrant>
			<status>serverHold</status>
			<ns><hostObj>ns1.parks.gov</hostObj></ns>
			<contact type="admin">ct-12</contact>
			<crDate>2024-01-15T00:00:00Z</crDate>
			<exDate>2027-01-15T00:00:00Z</exDate>
		</domainInfData></resData>
		<trID><clTRID>reg-def</clTRID><svTRID>sv-2</svTRID></trID>
	</response></epp>`)

	res, _, err := Decode(doc)
	require.NoError(t, err)
	require.NotNil(t, res.Info)
	assert.Equal(t, "registrar-us", res.Info.SponsorID)
	assert.Equal(t, []string{"ns1.parks.gov"}, res.Info.Nameservers)
	require.Len(t, res.Info.Contacts, 1)
	assert.Equal(t, ContactAdmin, res.Info.Contacts[0].Type)
	assert.True(t, res.Info.OnHold())
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), res.Info.ExpiresAt)
}

func TestDecodeBusinessError(t *testing.T) {
	doc := []byte(`<epp><response>
		<result code="2302"><msg>Object exists</msg></result>
		<trID><clTRID>reg-ghi</clTRID><svTRID>sv-3</svTRID></trID>
	</response></epp>`)

	res, _, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBusinessFailure, res.Outcome)
	assert.Equal(t, CodeObjectExists, res.Code)
	assert.False(t, res.OK())
}

func TestDecodeMalformed(t *testing.T) {
	_, _, err := Decode([]byte(`<epp><respo`))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeNeitherResponseNorGreeting(t *testing.T) {
	res, greeting, err := Decode([]byte(`<epp></epp>`))
	require.NoError(t, err)
	assert.Nil(t, greeting)
	require.NotNil(t, res)
	assert.Equal(t, OutcomeProtocolFailure, res.Outcome)
}

func TestCommandRoundTrip(t *testing.T) {
	// Every encodable verb must survive a decode into the wire structs so
	// the fake registry used by higher layers can inspect it.
	ops := []Operation{
		CheckDomain{Name: "a.gov"},
		InfoDomain{Name: "a.gov"},
		RenewDomain{Name: "a.gov", CurrentExpiry: "2027-01-15", PeriodYears: 1},
		DeleteDomain{Name: "a.gov"},
		UpdateDomain{Name: "a.gov", AddNameservers: []string{"ns1.b.gov"}, RemoveNameservers: []string{"ns1.c.gov"}},
		CreateContact{
			ID:       "ct-1",
			Name:     "Registry Desk",
			Email:    "desk@a.gov",
			Disclose: DisclosurePolicy{Email: true},
		},
		InfoContact{ID: "ct-1"},
		CheckHost{Name: "ns1.a.gov"},
		CreateHost{Name: "ns1.a.gov", Addrs: []string{"192.0.2.1"}},
		UpdateHost{Name: "ns1.a.gov", AddAddrs: []string{"192.0.2.2"}},
	}
	for _, op := range ops {
		t.Run(string(op.Kind()), func(t *testing.T) {
			doc, err := Encode(NewCommand(op))
			require.NoError(t, err)
			var env eppEnvelope
			require.NoError(t, xml.Unmarshal(doc, &env))
			require.NotNil(t, env.Command)
		})
	}
}
