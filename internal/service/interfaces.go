// Package service defines the interfaces the ledger consumes.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
// Zero values match everything; Scope defaults to live records only.
type TransactionFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	BankAccountID string
	Item          string
	Reference     string
	TransferID    string
	Scope         model.Scope
}

// ActivityFilter controls activity log listing.
type ActivityFilter struct {
	Limit  int
	Newest bool // newest first instead of append order
}

// Store is the record store the ledger is built on. Reads with ScopeLive apply
// the one liveness predicate; no caller filters soft-deleted rows itself.
type Store interface {
	// Transaction logs
	CreateCashTransaction(ctx context.Context, txn *model.CashTransaction) error
	GetCashTransactions(ctx context.Context, filter TransactionFilter) ([]model.CashTransaction, error)
	GetCashTransaction(ctx context.Context, id string) (*model.CashTransaction, error)
	CreateBankTransaction(ctx context.Context, txn *model.BankTransaction) error
	GetBankTransactions(ctx context.Context, filter TransactionFilter) ([]model.BankTransaction, error)
	GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error)
	CreateStockTransaction(ctx context.Context, txn *model.StockTransaction) error
	GetStockTransactions(ctx context.Context, filter TransactionFilter) ([]model.StockTransaction, error)
	GetStockTransaction(ctx context.Context, id string) (*model.StockTransaction, error)

	// SoftDelete stamps a record as deleted. It reports false when the record
	// was already deleted and returns common.ErrNotFound when it does not exist.
	SoftDelete(ctx context.Context, collection model.Collection, id string, at time.Time) (bool, error)
	// Restore clears the soft-delete stamp, reporting false when already live.
	Restore(ctx context.Context, collection model.Collection, id string) (bool, error)

	// Initial balance
	GetInitialBalance(ctx context.Context) (*model.InitialBalance, error)
	CreateInitialBalance(ctx context.Context, balance *model.InitialBalance) error

	// Bank accounts
	CreateBankAccount(ctx context.Context, account *model.BankAccount) error
	GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error)
	GetBankAccounts(ctx context.Context) ([]model.BankAccount, error)

	// Categories
	GetCategories(ctx context.Context, includeInactive bool) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, name string) error

	// Vendors
	GetVendor(ctx context.Context, name string) (*model.Vendor, error)
	SaveVendor(ctx context.Context, vendor *model.Vendor) error
	GetAllVendors(ctx context.Context) ([]model.Vendor, error)
	DeleteVendor(ctx context.Context, name string) error

	// Activity log
	AppendActivity(ctx context.Context, entry *model.ActivityEntry) error
	GetActivity(ctx context.Context, filter ActivityFilter) ([]model.ActivityEntry, error)

	// ClearCollection physically removes every record of a tracked collection.
	// Only snapshot import calls it.
	ClearCollection(ctx context.Context, collection model.Collection) error
}

// TransactionalStore is a Store that can group writes into one atomic unit.
type TransactionalStore interface {
	Store
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Store methods for use within transaction
	Store
}

// IdentityProvider tells the ledger who is acting.
type IdentityProvider interface {
	CurrentActor(ctx context.Context) (model.Actor, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
