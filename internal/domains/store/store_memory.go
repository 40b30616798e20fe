package store

import (
	"context"
	"sync"
	"time"

	"registrar/internal/domains/models"
	id "registrar/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[id.DomainID]*models.Domain
	byName map[string]id.DomainID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[id.DomainID]*models.Domain),
		byName: make(map[string]id.DomainID),
	}
}

func (s *MemoryStore) Create(ctx context.Context, d *models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byName[d.Name]; ok {
		if existing := s.byID[existingID]; existing != nil && existing.IsActive() {
			return ErrDuplicateName
		}
	}
	cp := clone(d)
	s.byID[d.ID] = cp
	s.byName[d.Name] = d.ID
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, d *models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[d.ID]; !ok {
		return ErrNotFound
	}
	s.byID[d.ID] = clone(d)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[domainID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d), nil
}

func (s *MemoryStore) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domainID, ok := s.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	d, ok := s.byID[domainID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d), nil
}

func (s *MemoryStore) ListByState(ctx context.Context, state models.State) ([]*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Domain
	for _, d := range s.byID {
		if d.State == state {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Domain
	for _, d := range s.byID {
		if d.IsActive() && !d.ExpiresAt.After(cutoff) {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func clone(d *models.Domain) *models.Domain {
	cp := *d
	cp.Nameservers = append([]string(nil), d.Nameservers...)
	cp.Contacts = append([]models.Contact(nil), d.Contacts...)
	return &cp
}
