//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "registrar/pkg/platform/audit"
	"registrar/pkg/platform/audit/store/postgres"
	id "registrar/pkg/domain"
	"registrar/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), postgres.Schema)
	s.store = postgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox", "audit_events"))
}

func (s *AuditStoreSuite) newEvent(requestID id.RequestID, action audit.AuditEvent) audit.Event {
	ev := audit.Event{
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		RequestID:  requestID,
		DomainName: "exampleton.gov",
		Action:     string(action),
		ActorID:    "reviewer-7",
		Outcome:    "success",
	}
	ev.Category = action.Category()
	return ev
}

func (s *AuditStoreSuite) TestAppendWritesOutboxAndTrail() {
	ctx := context.Background()
	requestID := id.NewRequestID()
	s.Require().NoError(s.store.Append(ctx, s.newEvent(requestID, audit.EventRequestSubmitted)))

	var outboxRows int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&outboxRows))
	s.Equal(1, outboxRows)

	events, err := s.store.ListByRequest(ctx, requestID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventRequestSubmitted), events[0].Action)
	s.Equal("exampleton.gov", events[0].DomainName)
	s.Equal("reviewer-7", events[0].ActorID)
}

func (s *AuditStoreSuite) TestListByRequestFiltersOtherRequests() {
	ctx := context.Background()
	mine := id.NewRequestID()
	other := id.NewRequestID()
	s.Require().NoError(s.store.Append(ctx, s.newEvent(mine, audit.EventRequestCreated)))
	s.Require().NoError(s.store.Append(ctx, s.newEvent(other, audit.EventRequestCreated)))

	events, err := s.store.ListByRequest(ctx, mine)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *AuditStoreSuite) TestListRecentOrdersNewestFirst() {
	ctx := context.Background()
	requestID := id.NewRequestID()
	for _, action := range []audit.AuditEvent{
		audit.EventRequestCreated, audit.EventRequestSubmitted, audit.EventRequestReviewStarted,
	} {
		ev := s.newEvent(requestID, action)
		s.Require().NoError(s.store.Append(ctx, ev))
		time.Sleep(2 * time.Millisecond)
	}

	events, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventRequestReviewStarted), events[0].Action)
}
