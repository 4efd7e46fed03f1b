// Package repository persists saved selections.
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagepick/backend/internal/model"
)

// SelectionStore persists saved selections. List returns newest first and
// filters by source URL unless sourceURL is empty.
type SelectionStore interface {
	Save(ctx context.Context, sel *model.SavedSelection) error
	GetByID(ctx context.Context, id string) (*model.SavedSelection, error)
	List(ctx context.Context, sourceURL string) ([]*model.SavedSelection, error)
	Delete(ctx context.Context, id string) error
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// NewSavedSelection builds a SavedSelection from a validated request. Blank
// and duplicate selectors and attributes are dropped, order is kept.
func NewSavedSelection(req *model.SaveSelectionRequest) (*model.SavedSelection, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &model.SavedSelection{
		ID:         uuid.New().String(),
		SourceURL:  strings.TrimSpace(req.SourceURL),
		Selectors:  dedupe(req.Selectors),
		Attributes: dedupe(req.Attributes),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func validateForSave(sel *model.SavedSelection) error {
	if sel == nil || sel.ID == "" {
		return fmt.Errorf("saved selection must have an id")
	}
	if len(sel.Selectors) == 0 {
		return model.ErrSelectorsRequired
	}
	if sel.SourceURL == "" {
		return model.ErrSourceURLRequired
	}
	return nil
}

func sortNewestFirst(list []*model.SavedSelection) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
