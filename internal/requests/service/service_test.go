package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainmodels "registrar/internal/domains/models"
	"registrar/internal/epp"
	"registrar/internal/registry"
	"registrar/internal/requests/models"
	"registrar/internal/requests/store"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

type fakeRegistrar struct {
	available  bool
	checkErr   error
	createData *epp.CreateData
	createErr  error
	creates    []epp.CreateDomain
}

func (r *fakeRegistrar) CheckDomain(ctx context.Context, name string) (*epp.CheckData, error) {
	if r.checkErr != nil {
		return nil, r.checkErr
	}
	return &epp.CheckData{Name: name, Available: r.available}, nil
}

func (r *fakeRegistrar) CreateDomain(ctx context.Context, op epp.CreateDomain) (*epp.CreateData, error) {
	r.creates = append(r.creates, op)
	if r.createErr != nil {
		return nil, r.createErr
	}
	if r.createData != nil {
		return r.createData, nil
	}
	return &epp.CreateData{Name: op.Name, CreatedAt: time.Now(), ExpiresAt: time.Now().AddDate(op.PeriodYears, 0, 0)}, nil
}

type fakeDomains struct {
	registered []string
	err        error
}

func (d *fakeDomains) Register(ctx context.Context, requestID id.RequestID, name, registrant string, expiresAt time.Time) (*domainmodels.Domain, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.registered = append(d.registered, name)
	dom, err := domainmodels.NewDomain(id.NewDomainID(), requestID, name, registrant, expiresAt, time.Now())
	if err != nil {
		return nil, err
	}
	return dom, nil
}

type guardFunc func(ctx context.Context, requesterID, domainName string) error

func (f guardFunc) AllowSubmission(ctx context.Context, requesterID, domainName string) error {
	return f(ctx, requesterID, domainName)
}

func newTestService(reg *fakeRegistrar, doms *fakeDomains, opts ...Option) (*Service, store.Store) {
	st := store.NewMemory()
	return New(st, reg, doms, nil, opts...), st
}

func createTestRequest(t *testing.T, svc *Service) *models.DomainRequest {
	t.Helper()
	r, err := svc.Create(context.Background(), "exampleton.gov", "req-1", "City of Exampleton", "official city website")
	require.NoError(t, err)
	return r
}

func submitToReview(t *testing.T, svc *Service, requestID id.RequestID) {
	t.Helper()
	_, err := svc.Submit(context.Background(), requestID)
	require.NoError(t, err)
	_, err = svc.BeginReview(context.Background(), requestID)
	require.NoError(t, err)
}

func TestCreateChecksAvailability(t *testing.T) {
	reg := &fakeRegistrar{available: true}
	svc, _ := newTestService(reg, &fakeDomains{})

	r := createTestRequest(t, svc)
	assert.Equal(t, models.StatusStarted, r.Status)
	assert.Equal(t, "exampleton.gov", r.DomainName)
}

func TestCreateRejectsTakenName(t *testing.T) {
	reg := &fakeRegistrar{available: false}
	svc, _ := newTestService(reg, &fakeDomains{})

	_, err := svc.Create(context.Background(), "taken.gov", "req-1", "org", "p")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestCreateToleratesRegistryOutage(t *testing.T) {
	reg := &fakeRegistrar{checkErr: errors.New("registry unreachable")}
	svc, _ := newTestService(reg, &fakeDomains{})

	r, err := svc.Create(context.Background(), "exampleton.gov", "req-1", "org", "p")
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, r.Status)
}

func TestSubmitConsultsGuard(t *testing.T) {
	guardErr := dErrors.New(dErrors.CodeForbidden, "first-time requesters need an approved request on file")
	var asked []string
	guard := guardFunc(func(_ context.Context, requesterID, domainName string) error {
		asked = append(asked, requesterID+"/"+domainName)
		return guardErr
	})
	svc, st := newTestService(&fakeRegistrar{available: true}, &fakeDomains{}, WithSubmissionGuard(guard))
	r := createTestRequest(t, svc)

	_, err := svc.Submit(context.Background(), r.ID)
	require.ErrorIs(t, err, guardErr)
	assert.Equal(t, []string{"req-1/exampleton.gov"}, asked)

	// Guard rejection leaves the draft where it was.
	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, got.Status)
}

func TestSubmitRequiresCompletedFields(t *testing.T) {
	svc, _ := newTestService(&fakeRegistrar{available: true}, &fakeDomains{})
	r, err := svc.Create(context.Background(), "exampleton.gov", "req-1", "City of Exampleton", "")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), r.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestApproveDurableOnlyAfterRegistryConfirms(t *testing.T) {
	expiry := time.Date(2027, 8, 30, 0, 0, 0, 0, time.UTC)
	reg := &fakeRegistrar{available: true, createData: &epp.CreateData{Name: "exampleton.gov", ExpiresAt: expiry}}
	doms := &fakeDomains{}
	svc, st := newTestService(reg, doms)
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)

	got, err := svc.Approve(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, []string{"exampleton.gov"}, doms.registered)
	require.Len(t, reg.creates, 1)
	assert.Equal(t, 1, reg.creates[0].PeriodYears)

	stored, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Empty(t, stored.LastError)
}

func TestApproveStaysInReviewWhenRegistryFails(t *testing.T) {
	createErr := &registry.Error{Op: epp.KindCreateDomain, Outcome: epp.OutcomeTransientFailure, Code: 2400, Message: "command failed"}
	reg := &fakeRegistrar{available: true, createErr: createErr}
	doms := &fakeDomains{}
	svc, st := newTestService(reg, doms)
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)

	_, err := svc.Approve(context.Background(), r.ID)
	require.Error(t, err)

	stored, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, stored.Status)
	assert.Contains(t, stored.LastError, "command failed")
	assert.Empty(t, doms.registered)

	// Remediation: a second approval attempt can still succeed.
	reg.createErr = nil
	got, err := svc.Approve(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Empty(t, got.LastError)
}

func TestApproveRequiresInReview(t *testing.T) {
	reg := &fakeRegistrar{available: true}
	svc, _ := newTestService(reg, &fakeDomains{})
	r := createTestRequest(t, svc)

	_, err := svc.Approve(context.Background(), r.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	assert.Empty(t, reg.creates)
}

func TestRejectRequiresReason(t *testing.T) {
	svc, _ := newTestService(&fakeRegistrar{available: true}, &fakeDomains{})
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)

	_, err := svc.Reject(context.Background(), r.ID, "")
	require.Error(t, err)

	got, err := svc.Reject(context.Background(), r.ID, "name does not match the organization")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, "name does not match the organization", got.ReviewReason)
}

func TestReopenReturnsRejectedToQueue(t *testing.T) {
	svc, _ := newTestService(&fakeRegistrar{available: true}, &fakeDomains{})
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)
	_, err := svc.Reject(context.Background(), r.ID, "incomplete")
	require.NoError(t, err)

	got, err := svc.Reopen(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)
}

func TestChangesRequestedRoundTrip(t *testing.T) {
	svc, _ := newTestService(&fakeRegistrar{available: true}, &fakeDomains{})
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)

	got, err := svc.RequestChanges(context.Background(), r.ID, "attach the authorization letter")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActionNeeded, got.Status)
	assert.Equal(t, "attach the authorization letter", got.ReviewReason)

	got, err = svc.Resolve(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, got.Status)
}

func TestWithdrawStopsReview(t *testing.T) {
	reg := &fakeRegistrar{available: true}
	svc, _ := newTestService(reg, &fakeDomains{})
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)

	got, err := svc.Withdraw(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWithdrawn, got.Status)

	_, err = svc.Approve(context.Background(), r.ID)
	require.Error(t, err)
	assert.Empty(t, reg.creates)
}

func TestMarkIneligibleIsTerminal(t *testing.T) {
	svc, _ := newTestService(&fakeRegistrar{available: true}, &fakeDomains{})
	r := createTestRequest(t, svc)
	submitToReview(t, svc, r.ID)

	got, err := svc.MarkIneligible(context.Background(), r.ID, "not a government entity")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIneligible, got.Status)

	_, err = svc.Reopen(context.Background(), r.ID)
	require.Error(t, err)
}
