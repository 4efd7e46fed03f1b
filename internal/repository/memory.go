package repository

import (
	"context"
	"sync"

	"github.com/pagepick/backend/internal/model"
)

// MemoryStore keeps saved selections in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*model.SavedSelection
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*model.SavedSelection)}
}

func (s *MemoryStore) Save(ctx context.Context, sel *model.SavedSelection) error {
	if err := validateForSave(sel); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[sel.ID]; !ok {
		s.order = append(s.order, sel.ID)
	}
	s.items[sel.ID] = clone(sel)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.SavedSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sel, ok := s.items[id]
	if !ok {
		return nil, model.ErrSelectionNotFound
	}
	return clone(sel), nil
}

func (s *MemoryStore) List(ctx context.Context, sourceURL string) ([]*model.SavedSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.SavedSelection, 0, len(s.order))
	// newest insertion first, then stable sort by time
	for i := len(s.order) - 1; i >= 0; i-- {
		sel := s.items[s.order[i]]
		if sourceURL != "" && sel.SourceURL != sourceURL {
			continue
		}
		out = append(out, clone(sel))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return model.ErrSelectionNotFound
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func clone(sel *model.SavedSelection) *model.SavedSelection {
	c := *sel
	c.Selectors = append([]string{}, sel.Selectors...)
	c.Attributes = append([]string{}, sel.Attributes...)
	return &c
}
