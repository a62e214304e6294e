package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

// defaultCategories seeds the recognized category set of a new ledger.
var defaultCategories = []struct {
	name        string
	description string
	kind        string
}{
	{"Sales", "Revenue from selling goods", "income"},
	{"Services", "Revenue from services rendered", "income"},
	{"Owner Contribution", "Money put into the business by the owner", "income"},
	{"Rent", "Premises rent", "expense"},
	{"Utilities", "Electricity, water, internet", "expense"},
	{"Salaries", "Wages paid to staff", "expense"},
	{"Supplies", "Consumables and small equipment", "expense"},
	{"Transport", "Fuel, freight and delivery", "expense"},
	{"Bank Fees", "Charges levied by the bank", "expense"},
	{"Owner Drawings", "Money taken out by the owner", "expense"},
	{"Transfer", "Movement between cash and bank", "system"},
	{"Uncategorized", "Not yet categorized", "system"},
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial ledger schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_accounts (
					id TEXT PRIMARY KEY,
					name TEXT UNIQUE NOT NULL,
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL DEFAULT 'expense',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					is_active BOOLEAN DEFAULT 1
				)`,
				`CREATE INDEX idx_categories_active ON categories(is_active)`,

				`CREATE TABLE IF NOT EXISTS vendors (
					name TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP,
					use_count INTEGER DEFAULT 0
				)`,

				// One row for the cash pool plus one per bank account.
				`CREATE TABLE IF NOT EXISTS initial_balance (
					pool TEXT NOT NULL CHECK (pool IN ('cash', 'bank')),
					bank_account_id TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					set_at DATETIME NOT NULL,
					PRIMARY KEY (pool, bank_account_id)
				)`,

				`CREATE TABLE IF NOT EXISTS cash_transactions (
					id TEXT PRIMARY KEY,
					date DATE NOT NULL,
					amount TEXT NOT NULL,
					direction TEXT NOT NULL CHECK (direction IN ('income', 'expense')),
					category TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					vendor TEXT NOT NULL DEFAULT '',
					transfer_id TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_cash_transactions_date ON cash_transactions(date)`,
				`CREATE INDEX idx_cash_transactions_deleted ON cash_transactions(deleted_at)`,

				`CREATE TABLE IF NOT EXISTS bank_transactions (
					id TEXT PRIMARY KEY,
					date DATE NOT NULL,
					amount TEXT NOT NULL,
					direction TEXT NOT NULL CHECK (direction IN ('deposit', 'withdrawal')),
					bank_account_id TEXT NOT NULL,
					category TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					vendor TEXT NOT NULL DEFAULT '',
					transfer_id TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_bank_transactions_date ON bank_transactions(date)`,
				`CREATE INDEX idx_bank_transactions_account ON bank_transactions(bank_account_id)`,
				`CREATE INDEX idx_bank_transactions_deleted ON bank_transactions(deleted_at)`,

				`CREATE TABLE IF NOT EXISTS stock_transactions (
					id TEXT PRIMARY KEY,
					date DATE NOT NULL,
					item TEXT NOT NULL,
					weight TEXT NOT NULL,
					price TEXT NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('purchase', 'sale')),
					payment TEXT NOT NULL CHECK (payment IN ('cash', 'bank')),
					bank_account_id TEXT NOT NULL DEFAULT '',
					vendor TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_stock_transactions_item ON stock_transactions(item)`,
				`CREATE INDEX idx_stock_transactions_deleted ON stock_transactions(deleted_at)`,

				`CREATE TABLE IF NOT EXISTS activity_log (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					id TEXT UNIQUE NOT NULL,
					timestamp DATETIME NOT NULL,
					actor_id TEXT NOT NULL,
					actor_label TEXT NOT NULL,
					description TEXT NOT NULL
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Seed default categories",
		Up: func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`INSERT OR IGNORE INTO categories (name, description, type) VALUES (?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("failed to prepare statement: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, cat := range defaultCategories {
				if _, err := stmt.Exec(cat.name, cat.description, cat.kind); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", cat.name, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Index transfer links and external references",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_cash_transactions_transfer ON cash_transactions(transfer_id)`,
				`CREATE INDEX IF NOT EXISTS idx_bank_transactions_transfer ON bank_transactions(transfer_id)`,
				`CREATE INDEX IF NOT EXISTS idx_bank_transactions_reference ON bank_transactions(bank_account_id, reference)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return storeErr("failed to get schema version", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return storeErr("failed to begin transaction", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the current schema version of the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, storeErr("failed to get schema version", err)
	}
	return version, nil
}
