package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/domains/models"
	id "registrar/pkg/domain"
)

var storeNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func seedDomain(t *testing.T, s *MemoryStore, name string) *models.Domain {
	t.Helper()
	d, err := models.NewDomain(id.NewDomainID(), id.NewRequestID(), name, "org-501",
		storeNow.AddDate(1, 0, 0), storeNow)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), d))
	return d
}

func TestMemoryStoreCreateAndFind(t *testing.T) {
	s := NewMemory()
	d := seedDomain(t, s, "parks.gov")

	byID, err := s.FindByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, byID.Name)

	byName, err := s.FindByName(context.Background(), "parks.gov")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byName.ID)
}

func TestMemoryStoreRejectsDuplicateLiveName(t *testing.T) {
	s := NewMemory()
	seedDomain(t, s, "parks.gov")

	dup, err := models.NewDomain(id.NewDomainID(), id.NewRequestID(), "parks.gov", "org-502",
		storeNow.AddDate(1, 0, 0), storeNow)
	require.NoError(t, err)
	require.ErrorIs(t, s.Create(context.Background(), dup), ErrDuplicateName)
}

func TestMemoryStoreAllowsReregistrationAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	d := seedDomain(t, s, "parks.gov")

	require.NoError(t, d.Apply(models.EventDeleted, storeNow))
	require.NoError(t, s.Update(ctx, d))

	again, err := models.NewDomain(id.NewDomainID(), id.NewRequestID(), "parks.gov", "org-502",
		storeNow.AddDate(1, 0, 0), storeNow)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, again))
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.FindByID(context.Background(), id.NewDomainID())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByName(context.Background(), "missing.gov")
	require.ErrorIs(t, err, ErrNotFound)

	d, _ := models.NewDomain(id.NewDomainID(), id.NewRequestID(), "x.gov", "org", storeNow, storeNow)
	require.ErrorIs(t, s.Update(context.Background(), d), ErrNotFound)
}

func TestMemoryStoreCopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	d := seedDomain(t, s, "parks.gov")

	d.Nameservers = append(d.Nameservers, "ns1.parks.gov")

	fetched, err := s.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, fetched.Nameservers, "caller mutations must not leak into the store")

	fetched.State = models.StateReady
	refetched, err := s.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDnsNeeded, refetched.State)
}

func TestMemoryStoreListExpiring(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	soon := seedDomain(t, s, "soon.gov")
	soon.ExpiresAt = storeNow.Add(24 * time.Hour)
	require.NoError(t, s.Update(ctx, soon))

	later := seedDomain(t, s, "later.gov")
	later.ExpiresAt = storeNow.AddDate(0, 6, 0)
	require.NoError(t, s.Update(ctx, later))

	gone := seedDomain(t, s, "gone.gov")
	gone.ExpiresAt = storeNow.Add(time.Hour)
	require.NoError(t, gone.Apply(models.EventDeleted, storeNow))
	require.NoError(t, s.Update(ctx, gone))

	expiring, err := s.ListExpiring(ctx, storeNow.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "soon.gov", expiring[0].Name)
}

func TestMemoryStoreListByState(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	d := seedDomain(t, s, "parks.gov")
	seedDomain(t, s, "water.gov")

	require.NoError(t, d.Apply(models.EventNameserversConfirmed, storeNow))
	require.NoError(t, s.Update(ctx, d))

	ready, err := s.ListByState(ctx, models.StateReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "parks.gov", ready[0].Name)
}
