package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements service.TransactionalStore using SQLite.
type SQLiteStorage struct {
	cacheExpiry time.Time
	db          *sql.DB
	vendorCache map[string]*model.Vendor
	dbPath      string
	cacheMutex  sync.RWMutex
}

var _ service.TransactionalStore = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storeErr("failed to open database", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		if corrupted(err) {
			return nil, storeErr("failed to ping database", err)
		}
		return nil, fmt.Errorf("%w: failed to ping database: %v", common.ErrStoreUnavailable, err)
	}

	return &SQLiteStorage{
		db:          db,
		dbPath:      dbPath,
		vendorCache: make(map[string]*model.Vendor),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("failed to begin transaction", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// storeErr wraps err with msg, tagging failures that mean the database itself
// cannot be reached so callers can tell them apart from bad input.
func storeErr(msg string, err error) error {
	if corrupted(err) {
		return fmt.Errorf("%w: %s: %v", common.ErrDatabaseCorrupted, msg, err)
	}
	if unavailable(err) {
		return fmt.Errorf("%w: %s: %v", common.ErrStoreUnavailable, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func unavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return true
		}
	}
	return strings.Contains(err.Error(), "database is closed")
}

// corrupted reports whether err means the database file is damaged or is not
// a database at all. Retrying will not help.
func corrupted(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrCorrupt || sqliteErr.Code == sqlite3.ErrNotADB
	}
	return false
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY conflict.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return storeErr("failed to commit transaction", err)
	}
	return nil
}

func (t *sqliteTransaction) Rollback() error {
	// Vendor rows written inside the transaction may have reached the cache.
	t.storage.invalidateVendorCache()
	return t.tx.Rollback()
}

// Store methods delegate to the main storage with the transaction.

func (t *sqliteTransaction) CreateCashTransaction(ctx context.Context, txn *model.CashTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createCashTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) GetCashTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.CashTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCashTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) GetCashTransaction(ctx context.Context, id string) (*model.CashTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCashByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) CreateBankTransaction(ctx context.Context, txn *model.BankTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createBankTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) GetBankTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getBankTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getBankByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) CreateStockTransaction(ctx context.Context, txn *model.StockTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createStockTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) GetStockTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.StockTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getStockTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) GetStockTransaction(ctx context.Context, id string) (*model.StockTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getStockByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) SoftDelete(ctx context.Context, collection model.Collection, id string, at time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return t.storage.softDeleteTx(ctx, t.tx, collection, id, at)
}

func (t *sqliteTransaction) Restore(ctx context.Context, collection model.Collection, id string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return t.storage.restoreTx(ctx, t.tx, collection, id)
}

func (t *sqliteTransaction) GetInitialBalance(ctx context.Context) (*model.InitialBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getInitialBalanceTx(ctx, t.tx)
}

func (t *sqliteTransaction) CreateInitialBalance(ctx context.Context, balance *model.InitialBalance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createInitialBalanceTx(ctx, t.tx, balance)
}

func (t *sqliteTransaction) CreateBankAccount(ctx context.Context, account *model.BankAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createBankAccountTx(ctx, t.tx, account)
}

func (t *sqliteTransaction) GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getBankAccountTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetBankAccounts(ctx context.Context) ([]model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getBankAccountsTx(ctx, t.tx)
}

func (t *sqliteTransaction) GetCategories(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCategoriesTx(ctx, t.tx, includeInactive)
}

func (t *sqliteTransaction) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCategoryByNameTx(ctx, t.tx, name)
}

func (t *sqliteTransaction) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createCategoryTx(ctx, t.tx, category)
}

func (t *sqliteTransaction) DeleteCategory(ctx context.Context, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteCategoryTx(ctx, t.tx, name)
}

func (t *sqliteTransaction) GetVendor(ctx context.Context, name string) (*model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getVendorTx(ctx, t.tx, name)
}

func (t *sqliteTransaction) SaveVendor(ctx context.Context, vendor *model.Vendor) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVendor(vendor); err != nil {
		return err
	}
	return t.storage.saveVendorTx(ctx, t.tx, vendor)
}

func (t *sqliteTransaction) GetAllVendors(ctx context.Context) ([]model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAllVendorsTx(ctx, t.tx)
}

func (t *sqliteTransaction) DeleteVendor(ctx context.Context, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteVendorTx(ctx, t.tx, name)
}

func (t *sqliteTransaction) AppendActivity(ctx context.Context, entry *model.ActivityEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.appendActivityTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) GetActivity(ctx context.Context, filter service.ActivityFilter) ([]model.ActivityEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getActivityTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) ClearCollection(ctx context.Context, collection model.Collection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.clearCollectionTx(ctx, t.tx, collection)
}
