package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// Categories lists the recognized categories.
func (l *Ledger) Categories(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetCategories(ctx, includeInactive)
}

// AddCategory adds a category to the recognized set, reactivating it when it
// was retired.
func (l *Ledger) AddCategory(ctx context.Context, name, description string, kind model.CategoryType) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if err := requireText("name", name); err != nil {
		return nil, err
	}
	if kind != model.CategoryTypeIncome && kind != model.CategoryTypeExpense {
		return nil, common.NewValidationError("type", fmt.Sprintf("must be income or expense, got %q", kind))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	category := &model.Category{Name: name, Description: strings.TrimSpace(description), Type: kind, CreatedAt: l.stamp()}
	if err := l.store.CreateCategory(ctx, category); err != nil {
		return nil, err
	}

	l.activity.Append(ctx, fmt.Sprintf("added %s category %q", kind, name))
	return category, nil
}

// RemoveCategory retires a category. Recorded transactions keep it.
func (l *Ledger) RemoveCategory(ctx context.Context, name string) error {
	if err := requireText("name", name); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.DeleteCategory(ctx, name); err != nil {
		return err
	}

	l.activity.Append(ctx, fmt.Sprintf("retired category %q", name))
	return nil
}

// Vendors lists known vendors.
func (l *Ledger) Vendors(ctx context.Context) ([]model.Vendor, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetAllVendors(ctx)
}

// SetVendor creates or updates a vendor with its default category.
func (l *Ledger) SetVendor(ctx context.Context, name, category string) (*model.Vendor, error) {
	name = strings.TrimSpace(name)
	if err := requireText("name", name); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cat, err := l.store.GetCategoryByName(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, err
	}
	if cat == nil || cat.Type == model.CategoryTypeSystem {
		return nil, common.NewValidationError("category", fmt.Sprintf("%q is not a usable category", category))
	}

	vendor, err := l.store.GetVendor(ctx, name)
	if err != nil {
		return nil, err
	}
	if vendor == nil {
		vendor = &model.Vendor{Name: name}
	}
	vendor.Category = cat.Name
	vendor.LastUpdated = l.stamp()
	if err := l.store.SaveVendor(ctx, vendor); err != nil {
		return nil, err
	}

	slog.Info("vendor saved", "vendor", name, "category", cat.Name)
	l.activity.Append(ctx, fmt.Sprintf("set vendor %q to category %q", name, cat.Name))
	return vendor, nil
}

// RemoveVendor forgets a vendor.
func (l *Ledger) RemoveVendor(ctx context.Context, name string) error {
	if err := requireText("name", name); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.DeleteVendor(ctx, name); err != nil {
		return err
	}

	l.activity.Append(ctx, fmt.Sprintf("removed vendor %q", name))
	return nil
}
