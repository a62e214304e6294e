package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

const vendorCacheTTL = 5 * time.Minute

// GetVendor retrieves a vendor by name, or nil when it is unknown.
func (s *SQLiteStorage) GetVendor(ctx context.Context, name string) (*model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "vendor name"); err != nil {
		return nil, err
	}

	// Check cache first
	if vendor := s.getCachedVendor(name); vendor != nil {
		return vendor, nil
	}

	vendor, err := s.getVendorTx(ctx, s.db, name)
	if err != nil || vendor == nil {
		return vendor, err
	}
	s.cacheVendor(vendor)
	return vendor, nil
}

// getVendorTx never touches the cache; rows read inside an open transaction
// may still be rolled back.
func (s *SQLiteStorage) getVendorTx(ctx context.Context, q queryable, name string) (*model.Vendor, error) {
	var vendor model.Vendor

	err := q.QueryRowContext(ctx, `
		SELECT name, category, last_updated, use_count
		FROM vendors
		WHERE name = ?
	`, name).Scan(
		&vendor.Name,
		&vendor.Category,
		&vendor.LastUpdated,
		&vendor.UseCount,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get vendor", err)
	}

	vendor.LastUpdated = vendor.LastUpdated.UTC()
	return &vendor, nil
}

// SaveVendor saves or updates a vendor.
func (s *SQLiteStorage) SaveVendor(ctx context.Context, vendor *model.Vendor) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVendor(vendor); err != nil {
		return err
	}
	if err := s.saveVendorTx(ctx, s.db, vendor); err != nil {
		return err
	}
	s.cacheVendor(vendor)
	return nil
}

func (s *SQLiteStorage) saveVendorTx(ctx context.Context, q queryable, vendor *model.Vendor) error {
	if vendor.LastUpdated.IsZero() {
		vendor.LastUpdated = time.Now().UTC()
	}

	var categoryExists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM categories WHERE name = ?)
	`, vendor.Category).Scan(&categoryExists)
	if err != nil {
		return storeErr("failed to check category existence", err)
	}
	if !categoryExists {
		return &common.ReferenceError{Kind: "category", ID: vendor.Category}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO vendors (name, category, last_updated, use_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			last_updated = excluded.last_updated,
			use_count = excluded.use_count
	`, vendor.Name, vendor.Category, vendor.LastUpdated, vendor.UseCount)
	if err != nil {
		return storeErr("failed to save vendor", err)
	}

	// A vendor written in a transaction must not be served from the cache
	// until the transaction is known to have committed.
	s.forgetVendor(vendor.Name)
	return nil
}

// GetAllVendors retrieves all vendors by name.
func (s *SQLiteStorage) GetAllVendors(ctx context.Context) ([]model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAllVendorsTx(ctx, s.db)
}

func (s *SQLiteStorage) getAllVendorsTx(ctx context.Context, q queryable) ([]model.Vendor, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, category, last_updated, use_count
		FROM vendors
		ORDER BY name
	`)
	if err != nil {
		return nil, storeErr("failed to query vendors", err)
	}
	defer func() { _ = rows.Close() }()

	var vendors []model.Vendor
	for rows.Next() {
		var vendor model.Vendor
		err := rows.Scan(
			&vendor.Name,
			&vendor.Category,
			&vendor.LastUpdated,
			&vendor.UseCount,
		)
		if err != nil {
			return nil, storeErr("failed to scan vendor", err)
		}
		vendor.LastUpdated = vendor.LastUpdated.UTC()
		vendors = append(vendors, vendor)
	}

	return vendors, rows.Err()
}

// DeleteVendor deletes a vendor.
func (s *SQLiteStorage) DeleteVendor(ctx context.Context, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteVendorTx(ctx, s.db, name)
}

func (s *SQLiteStorage) deleteVendorTx(ctx context.Context, q queryable, name string) error {
	if err := validateString(name, "vendor name"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `DELETE FROM vendors WHERE name = ?`, name)
	if err != nil {
		return storeErr("failed to delete vendor", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: vendor %q", common.ErrNotFound, name)
	}

	s.forgetVendor(name)
	return nil
}

// getCachedVendor retrieves a vendor from the cache.
func (s *SQLiteStorage) getCachedVendor(name string) *model.Vendor {
	s.cacheMutex.RLock()

	if time.Now().After(s.cacheExpiry) {
		// Upgrade to write lock
		s.cacheMutex.RUnlock()
		s.cacheMutex.Lock()
		defer s.cacheMutex.Unlock()

		// Double-check after acquiring write lock
		if time.Now().After(s.cacheExpiry) {
			s.vendorCache = make(map[string]*model.Vendor)
		}
		return nil
	}

	vendor := s.vendorCache[name]
	s.cacheMutex.RUnlock()
	if vendor == nil {
		return nil
	}
	cp := *vendor
	return &cp
}

// cacheVendor adds a copy of vendor to the cache.
func (s *SQLiteStorage) cacheVendor(vendor *model.Vendor) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.vendorCache) == 0 {
		// Set cache expiry on first entry
		s.cacheExpiry = time.Now().Add(vendorCacheTTL)
	}
	cp := *vendor
	s.vendorCache[vendor.Name] = &cp
}

func (s *SQLiteStorage) forgetVendor(name string) {
	s.cacheMutex.Lock()
	delete(s.vendorCache, name)
	s.cacheMutex.Unlock()
}

// invalidateVendorCache drops every cached vendor.
func (s *SQLiteStorage) invalidateVendorCache() {
	s.cacheMutex.Lock()
	s.vendorCache = make(map[string]*model.Vendor)
	s.cacheExpiry = time.Time{}
	s.cacheMutex.Unlock()
}

// WarmVendorCache loads all vendors into the cache.
func (s *SQLiteStorage) WarmVendorCache(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	vendors, err := s.GetAllVendors(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.vendorCache = make(map[string]*model.Vendor)
	for i := range vendors {
		s.vendorCache[vendors[i].Name] = &vendors[i]
	}

	s.cacheExpiry = time.Now().Add(vendorCacheTTL)
	return nil
}
