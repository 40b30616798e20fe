// Package store persists Domain aggregates.
package store

import (
	"context"
	"time"

	"registrar/internal/domains/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across
	// implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "domain not found")
	// ErrDuplicateName rejects a second live registration of the same name.
	ErrDuplicateName = dErrors.New(dErrors.CodeConflict, "domain name already registered")
)

// Store is the persistence contract for registered domains.
type Store interface {
	Create(ctx context.Context, d *models.Domain) error
	Update(ctx context.Context, d *models.Domain) error
	FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	FindByName(ctx context.Context, name string) (*models.Domain, error)
	ListByState(ctx context.Context, state models.State) ([]*models.Domain, error)
	// ListExpiring returns active domains whose expiry falls on or before
	// the cutoff, for the expiration sweep.
	ListExpiring(ctx context.Context, cutoff time.Time) ([]*models.Domain, error)
}
