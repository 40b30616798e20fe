// Package store persists domain requests.
package store

import (
	"context"

	"registrar/internal/requests/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

var (
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "domain request not found")
	// ErrOpenRequestExists signals another live request for the same name.
	ErrOpenRequestExists = dErrors.New(dErrors.CodeConflict, "an open request for this domain already exists")
)

type Store interface {
	Create(ctx context.Context, r *models.DomainRequest) error
	Update(ctx context.Context, r *models.DomainRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*models.DomainRequest, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.DomainRequest, error)
}
