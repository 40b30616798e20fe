//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrar/internal/requests/models"
	"registrar/internal/requests/store"
	id "registrar/pkg/domain"
	"registrar/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), store.Schema)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "domain_requests"))
}

func (s *PostgresStoreSuite) newRequest(name, requester string) *models.DomainRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	r, err := models.NewDomainRequest(id.NewRequestID(), name, requester, "City of Exampleton", "city website", now)
	s.Require().NoError(err)
	return r
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	r := s.newRequest("exampleton.gov", "req-1")
	s.Require().NoError(s.store.Create(ctx, r))

	got, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("exampleton.gov", got.DomainName)
	s.Equal(models.StatusStarted, got.Status)
	s.True(got.FirstSubmittedAt.IsZero())
}

func (s *PostgresStoreSuite) TestOpenNameUniqueness() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newRequest("exampleton.gov", "req-1")))

	err := s.store.Create(ctx, s.newRequest("exampleton.gov", "req-2"))
	s.Require().ErrorIs(err, store.ErrOpenRequestExists)
}

func (s *PostgresStoreSuite) TestNameReusableAfterWithdrawal() {
	ctx := context.Background()
	first := s.newRequest("exampleton.gov", "req-1")
	s.Require().NoError(s.store.Create(ctx, first))

	now := time.Now().UTC()
	s.Require().NoError(first.Apply(models.ActionSubmit, now))
	s.Require().NoError(first.Apply(models.ActionWithdraw, now))
	s.Require().NoError(s.store.Update(ctx, first))

	s.Require().NoError(s.store.Create(ctx, s.newRequest("exampleton.gov", "req-2")))
}

func (s *PostgresStoreSuite) TestUpdatePersistsReviewState() {
	ctx := context.Background()
	r := s.newRequest("exampleton.gov", "req-1")
	s.Require().NoError(s.store.Create(ctx, r))

	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(r.Apply(models.ActionSubmit, now))
	s.Require().NoError(r.Apply(models.ActionBeginReview, now))
	s.Require().NoError(r.Reject("name does not match the organization", now))
	s.Require().NoError(s.store.Update(ctx, r))

	got, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.Equal("name does not match the organization", got.ReviewReason)
	s.WithinDuration(now, got.FirstSubmittedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestListByRequesterAndStatus() {
	ctx := context.Background()
	now := time.Now().UTC()

	a := s.newRequest("a.gov", "req-1")
	b := s.newRequest("b.gov", "req-1")
	s.Require().NoError(b.Apply(models.ActionSubmit, now))
	c := s.newRequest("c.gov", "req-2")

	for _, r := range []*models.DomainRequest{a, b, c} {
		s.Require().NoError(s.store.Create(ctx, r))
	}

	mine, err := s.store.ListByRequester(ctx, "req-1")
	s.Require().NoError(err)
	s.Len(mine, 2)

	submitted, err := s.store.ListByStatus(ctx, models.StatusSubmitted)
	s.Require().NoError(err)
	s.Require().Len(submitted, 1)
	s.Equal("b.gov", submitted[0].DomainName)
}
