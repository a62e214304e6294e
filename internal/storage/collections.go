package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/model"
)

// ClearCollection physically removes every record of a tracked collection,
// soft-deleted ones included.
func (s *SQLiteStorage) ClearCollection(ctx context.Context, collection model.Collection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.clearCollectionTx(ctx, s.db, collection)
}

func (s *SQLiteStorage) clearCollectionTx(ctx context.Context, q queryable, collection model.Collection) error {
	if !collection.IsTracked() {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	// #nosec G202 - collection names are a fixed set matching the table names
	result, err := q.ExecContext(ctx, `DELETE FROM `+string(collection))
	if err != nil {
		return storeErr(fmt.Sprintf("failed to clear %s", collection), err)
	}
	if collection == model.CollectionVendors {
		s.invalidateVendorCache()
	}

	removed, _ := result.RowsAffected()
	slog.Debug("cleared collection", "collection", collection, "removed", removed)
	return nil
}

// CountRecords returns the number of stored records per tracked collection,
// soft-deleted ones included.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (map[model.Collection]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	counts := make(map[model.Collection]int)
	for _, collection := range model.TrackedCollections() {
		var count int
		// #nosec G202 - collection names are a fixed set matching the table names
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(collection)).Scan(&count); err != nil {
			return nil, storeErr(fmt.Sprintf("failed to count %s", collection), err)
		}
		counts[collection] = count
	}
	return counts, nil
}
