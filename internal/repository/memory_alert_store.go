package repository

import (
	"context"
	"sync"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
)

// MemoryAlertStore is the default in-process AlertStore. List returns alerts
// in insertion order.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*models.Alert
	order  []string
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*models.Alert)}
}

var _ repository.AlertStore = (*MemoryAlertStore)(nil)

func (s *MemoryAlertStore) Save(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryAlertStore) Get(_ context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryAlertStore) Update(_ context.Context, id string, fn func(a *models.Alert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return repository.ErrAlertNotFound
	}
	fn(a)
	return nil
}

func (s *MemoryAlertStore) List(_ context.Context) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.alerts[id].Clone())
	}
	return out, nil
}

func (s *MemoryAlertStore) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.alerts[id]; ok {
			drop[id] = struct{}{}
			delete(s.alerts, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}
