// Package testutil provides test databases and ledgers with proper isolation.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
)

// TestDB represents a test database with a ledger over it.
type TestDB struct {
	Storage  *storage.SQLiteStorage
	Ledger   *ledger.Ledger
	t        *testing.T
	Accounts map[string]string // account name to id
	Clock    *Clock
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup  func(context.Context, *storage.SQLiteStorage) error
	OpeningBank  map[string]string // account name to opening amount
	OpeningCash  string            // empty leaves the ledger uninitialized
	Accounts     []string
	Categories   []model.Category
	LedgerOption []ledger.Option
}

// SetupTestDB creates a migrated in-memory database and a ledger over it.
// It automatically handles cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.TestDBOptions{
//		Accounts:    []string{"Main"},
//		OpeningCash: "1000",
//		OpeningBank: map[string]string{"Main": "500"},
//	})
func SetupTestDB(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for i := range opts.Categories {
		if err := store.CreateCategory(ctx, &opts.Categories[i]); err != nil {
			t.Fatalf("failed to seed category %q: %v", opts.Categories[i].Name, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	clock := NewClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	ledgerOpts := append([]ledger.Option{ledger.WithClock(clock.Now), ledger.WithIDGenerator(NewIDs())}, opts.LedgerOption...)
	db := &TestDB{
		Storage:  store,
		Ledger:   ledger.New(store, ledgerOpts...),
		Accounts: make(map[string]string),
		Clock:    clock,
		t:        t,
	}

	for _, name := range opts.Accounts {
		account, err := db.Ledger.CreateBankAccount(ctx, name)
		if err != nil {
			t.Fatalf("failed to create account %q: %v", name, err)
		}
		db.Accounts[name] = account.ID
	}

	if opts.OpeningCash != "" {
		opening := ledger.OpeningBalances{Cash: Dec(t, opts.OpeningCash), Bank: map[string]decimal.Decimal{}}
		for name, amount := range opts.OpeningBank {
			opening.Bank[db.MustAccount(name)] = Dec(t, amount)
		}
		if _, err := db.Ledger.SetInitialBalance(ctx, opening); err != nil {
			t.Fatalf("failed to set opening balances: %v", err)
		}
	}

	return db
}

// MustAccount returns the id of the named account or fails the test.
func (db *TestDB) MustAccount(name string) string {
	db.t.Helper()
	id, ok := db.Accounts[name]
	if !ok {
		db.t.Fatalf("no test account named %q", name)
	}
	return id
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// Dec parses a decimal or fails the test.
func Dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

// Day returns midnight UTC of the given day in March 2024.
func Day(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}
