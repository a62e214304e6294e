package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

const categoryColumns = `id, name, description, type, created_at, is_active`

// GetCategories returns active categories, or every category when includeInactive is set.
func (s *SQLiteStorage) GetCategories(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCategoriesTx(ctx, s.db, includeInactive)
}

func (s *SQLiteStorage) getCategoriesTx(ctx context.Context, q queryable, includeInactive bool) ([]model.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("failed to query categories", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByName returns an active category by its name, or nil when it is
// unknown or retired.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCategoryByNameTx(ctx, s.db, name)
}

func (s *SQLiteStorage) getCategoryByNameTx(ctx context.Context, q queryable, name string) (*model.Category, error) {
	if err := validateString(name, "category name"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = ? AND is_active = 1`, name)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Category not found
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// CreateCategory adds a category. A retired category with the same name is
// reactivated instead. The stored ID and creation time are written back.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createCategoryTx(ctx, s.db, category)
}

func (s *SQLiteStorage) createCategoryTx(ctx context.Context, q queryable, category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.Name, "category name"); err != nil {
		return err
	}
	if category.Type == "" {
		category.Type = model.CategoryTypeExpense
	}
	if !category.Type.Valid() {
		return fmt.Errorf("%w: category type %q", ErrInvalidRecord, category.Type)
	}

	// Check if category already exists (including inactive ones)
	row := q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = ?`, category.Name)
	existing, err := scanCategory(row)
	switch {
	case err == nil:
		if existing.IsActive {
			return fmt.Errorf("%w: category %q", common.ErrDuplicateEntry, category.Name)
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE categories SET is_active = 1, description = ?, type = ? WHERE id = ?
		`, category.Description, string(category.Type), existing.ID); err != nil {
			return storeErr("failed to reactivate category", err)
		}
		category.ID = existing.ID
		category.CreatedAt = existing.CreatedAt
		category.IsActive = true
		slog.Info("reactivated existing category", "name", category.Name)
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	var result sql.Result
	if category.ID > 0 {
		result, err = q.ExecContext(ctx, `
			INSERT INTO categories (id, name, description, type, created_at, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
		`, category.ID, category.Name, category.Description, string(category.Type), category.CreatedAt, category.IsActive)
	} else {
		category.IsActive = true
		result, err = q.ExecContext(ctx, `
			INSERT INTO categories (name, description, type, created_at, is_active)
			VALUES (?, ?, ?, ?, 1)
		`, category.Name, category.Description, string(category.Type), category.CreatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: category %q", common.ErrDuplicateEntry, category.Name)
		}
		return storeErr("failed to create category", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category ID: %w", err)
	}
	category.ID = int(id)

	slog.Info("created new category", "name", category.Name, "id", id)
	return nil
}

// DeleteCategory retires a category. Existing transactions keep their
// category name; new ones can no longer use it.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteCategoryTx(ctx, s.db, name)
}

func (s *SQLiteStorage) deleteCategoryTx(ctx context.Context, q queryable, name string) error {
	if err := validateString(name, "category name"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE categories SET is_active = 0 WHERE name = ? AND is_active = 1 AND type != ?
	`, name, string(model.CategoryTypeSystem))
	if err != nil {
		return storeErr("failed to retire category", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		cat, err := s.getCategoryByNameTx(ctx, q, name)
		if err != nil {
			return err
		}
		if cat != nil && cat.Type == model.CategoryTypeSystem {
			return common.NewValidationError("category", fmt.Sprintf("%q is managed by the ledger and cannot be removed", name))
		}
		return fmt.Errorf("%w: category %q", common.ErrNotFound, name)
	}

	slog.Info("retired category", "name", name)
	return nil
}

func scanCategory(r rowScanner) (model.Category, error) {
	var cat model.Category
	var kind string
	err := r.Scan(&cat.ID, &cat.Name, &cat.Description, &kind, &cat.CreatedAt, &cat.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return cat, err
	}
	if err != nil {
		return cat, storeErr("failed to scan category", err)
	}
	cat.Type = model.CategoryType(kind)
	cat.CreatedAt = cat.CreatedAt.UTC()
	return cat, nil
}
