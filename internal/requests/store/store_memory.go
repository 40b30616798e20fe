package store

import (
	"context"
	"sync"

	"registrar/internal/requests/models"
	id "registrar/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[id.RequestID]*models.DomainRequest
}

func NewMemory() *MemoryStore {
	return &MemoryStore{byID: make(map[id.RequestID]*models.DomainRequest)}
}

func (s *MemoryStore) Create(ctx context.Context, r *models.DomainRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.DomainName == r.DomainName && !existing.IsTerminal() && existing.Status != models.StatusRejected {
			return ErrOpenRequestExists
		}
	}
	s.byID[r.ID] = cloneRequest(r)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, r *models.DomainRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; !ok {
		return ErrNotFound
	}
	s.byID[r.ID] = cloneRequest(r)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *MemoryStore) ListByRequester(ctx context.Context, requesterID string) ([]*models.DomainRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DomainRequest
	for _, r := range s.byID {
		if r.RequesterID == requesterID {
			out = append(out, cloneRequest(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.DomainRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DomainRequest
	for _, r := range s.byID {
		if r.Status == status {
			out = append(out, cloneRequest(r))
		}
	}
	return out, nil
}

func cloneRequest(r *models.DomainRequest) *models.DomainRequest {
	cp := *r
	return &cp
}
