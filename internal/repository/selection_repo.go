package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pagepick/backend/internal/model"
)

// SelectionRepository provides SQLite data access for saved selections.
type SelectionRepository struct {
	db *sql.DB
}

// NewSelectionRepository creates a new SelectionRepository.
func NewSelectionRepository(db *sql.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// Save inserts a saved selection, replacing one with the same id.
func (r *SelectionRepository) Save(ctx context.Context, sel *model.SavedSelection) error {
	if err := validateForSave(sel); err != nil {
		return err
	}
	selectorsJSON, err := sel.SelectorsToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize selectors: %w", err)
	}
	attributesJSON, err := sel.AttributesToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize attributes: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO saved_selections (id, source_url, selectors, attributes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		sel.ID,
		sel.SourceURL,
		selectorsJSON,
		attributesJSON,
		sel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}

	return nil
}

// GetByID retrieves a saved selection by its ID.
func (r *SelectionRepository) GetByID(ctx context.Context, id string) (*model.SavedSelection, error) {
	query := `
		SELECT id, source_url, selectors, attributes, created_at
		FROM saved_selections
		WHERE id = ?
	`

	sel, err := scanSelection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrSelectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}
	return sel, nil
}

// List retrieves saved selections, newest first. An empty sourceURL lists all.
func (r *SelectionRepository) List(ctx context.Context, sourceURL string) ([]*model.SavedSelection, error) {
	query := `
		SELECT id, source_url, selectors, attributes, created_at
		FROM saved_selections
		WHERE (? = '' OR source_url = ?)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sourceURL, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	selections := []*model.SavedSelection{}
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		selections = append(selections, sel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating selections: %w", err)
	}

	return selections, nil
}

// Delete removes a saved selection.
func (r *SelectionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM saved_selections WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete selection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSelectionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSelection(row rowScanner) (*model.SavedSelection, error) {
	sel := &model.SavedSelection{}
	var selectorsJSON, attributesJSON string

	err := row.Scan(
		&sel.ID,
		&sel.SourceURL,
		&selectorsJSON,
		&attributesJSON,
		&sel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := sel.SelectorsFromJSON(selectorsJSON); err != nil {
		return nil, fmt.Errorf("failed to parse selectors: %w", err)
	}
	if err := sel.AttributesFromJSON(attributesJSON); err != nil {
		return nil, fmt.Errorf("failed to parse attributes: %w", err)
	}
	return sel, nil
}
