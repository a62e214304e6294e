package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// AppendActivity adds an entry to the end of the activity log.
func (s *SQLiteStorage) AppendActivity(ctx context.Context, entry *model.ActivityEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.appendActivityTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) appendActivityTx(ctx context.Context, q queryable, entry *model.ActivityEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: activity entry", ErrNilParameter)
	}
	if err := validateRecordID("activity entry", entry.ID, entry.Timestamp.IsZero()); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO activity_log (id, timestamp, actor_id, actor_label, description)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.Timestamp, entry.ActorID, entry.ActorLabel, entry.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: activity entry %s", common.ErrDuplicateEntry, entry.ID)
		}
		return storeErr("failed to append activity", err)
	}
	return nil
}

// GetActivity lists activity entries in append order, or newest first.
func (s *SQLiteStorage) GetActivity(ctx context.Context, filter service.ActivityFilter) ([]model.ActivityEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getActivityTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getActivityTx(ctx context.Context, q queryable, filter service.ActivityFilter) ([]model.ActivityEntry, error) {
	query := `SELECT id, timestamp, actor_id, actor_label, description FROM activity_log ORDER BY seq`
	if filter.Newest {
		query += ` DESC`
	}
	var args []any
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("failed to query activity", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ActivityEntry
	for rows.Next() {
		var entry model.ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.ActorID, &entry.ActorLabel, &entry.Description); err != nil {
			return nil, storeErr("failed to scan activity entry", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
