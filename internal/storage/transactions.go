package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// livePredicate is the only definition of a live record in the store.
const livePredicate = "deleted_at IS NULL"

// filterClause builds the WHERE clause for a transaction query. Columns that
// a table does not have are never referenced because the ledger only sets the
// filter fields that apply to the collection being read.
func filterClause(filter service.TransactionFilter) (string, []any, error) {
	var conds []string
	var args []any

	if filter.Scope == model.ScopeLive {
		conds = append(conds, livePredicate)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return "", nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}
	if filter.StartDate != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *filter.EndDate)
	}
	if filter.BankAccountID != "" {
		conds = append(conds, "bank_account_id = ?")
		args = append(args, filter.BankAccountID)
	}
	if filter.Item != "" {
		conds = append(conds, "item = ?")
		args = append(args, filter.Item)
	}
	if filter.Reference != "" {
		conds = append(conds, "reference = ?")
		args = append(args, filter.Reference)
	}
	if filter.TransferID != "" {
		conds = append(conds, "transfer_id = ?")
		args = append(args, filter.TransferID)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func deletedAt(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Cash transactions

const cashColumns = `id, date, amount, direction, category, description, vendor, transfer_id, created_at, deleted_at`

// CreateCashTransaction inserts a cash transaction, keeping its ID and soft-delete stamp.
func (s *SQLiteStorage) CreateCashTransaction(ctx context.Context, txn *model.CashTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createCashTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) createCashTx(ctx context.Context, q queryable, txn *model.CashTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: cash transaction", ErrNilParameter)
	}
	if err := validateRecordID("cash transaction", txn.ID, txn.CreatedAt.IsZero()); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO cash_transactions (`+cashColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ID, txn.Date, txn.Amount, string(txn.Direction), txn.Category, txn.Description,
		txn.Vendor, txn.TransferID, txn.CreatedAt, txn.DeletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: cash transaction %s", common.ErrDuplicateEntry, txn.ID)
		}
		return storeErr(fmt.Sprintf("failed to insert cash transaction %s", txn.ID), err)
	}

	slog.Debug("stored cash transaction", "id", txn.ID, "amount", txn.Amount.String(), "direction", txn.Direction)
	return nil
}

// GetCashTransactions returns cash transactions matching filter.
func (s *SQLiteStorage) GetCashTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.CashTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCashTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getCashTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.CashTransaction, error) {
	where, args, err := filterClause(filter)
	if err != nil {
		return nil, err
	}

	// #nosec G202 - where is built from fixed column names only
	rows, err := q.QueryContext(ctx, `SELECT `+cashColumns+` FROM cash_transactions`+where+` ORDER BY date, created_at, id`, args...)
	if err != nil {
		return nil, storeErr("failed to query cash transactions", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.CashTransaction
	for rows.Next() {
		txn, err := scanCash(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// GetCashTransaction returns one cash transaction, live or not.
func (s *SQLiteStorage) GetCashTransaction(ctx context.Context, id string) (*model.CashTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCashByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getCashByIDTx(ctx context.Context, q queryable, id string) (*model.CashTransaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+cashColumns+` FROM cash_transactions WHERE id = ?`, id)
	txn, err := scanCash(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cash transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanCash(r rowScanner) (model.CashTransaction, error) {
	var txn model.CashTransaction
	var direction string
	var deleted sql.NullTime
	err := r.Scan(&txn.ID, &txn.Date, &txn.Amount, &direction, &txn.Category, &txn.Description,
		&txn.Vendor, &txn.TransferID, &txn.CreatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return txn, err
	}
	if err != nil {
		return txn, storeErr("failed to scan cash transaction", err)
	}
	txn.Direction = model.CashDirection(direction)
	txn.Date = txn.Date.UTC()
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.DeletedAt = deletedAt(deleted)
	return txn, nil
}

// Bank transactions

const bankColumns = `id, date, amount, direction, bank_account_id, category, description, vendor, transfer_id, reference, created_at, deleted_at`

// CreateBankTransaction inserts a bank transaction, keeping its ID and soft-delete stamp.
func (s *SQLiteStorage) CreateBankTransaction(ctx context.Context, txn *model.BankTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createBankTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) createBankTx(ctx context.Context, q queryable, txn *model.BankTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: bank transaction", ErrNilParameter)
	}
	if err := validateRecordID("bank transaction", txn.ID, txn.CreatedAt.IsZero()); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bank_transactions (`+bankColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ID, txn.Date, txn.Amount, string(txn.Direction), txn.BankAccountID, txn.Category,
		txn.Description, txn.Vendor, txn.TransferID, txn.Reference, txn.CreatedAt, txn.DeletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: bank transaction %s", common.ErrDuplicateEntry, txn.ID)
		}
		return storeErr(fmt.Sprintf("failed to insert bank transaction %s", txn.ID), err)
	}

	slog.Debug("stored bank transaction", "id", txn.ID, "account", txn.BankAccountID, "amount", txn.Amount.String())
	return nil
}

// GetBankTransactions returns bank transactions matching filter.
func (s *SQLiteStorage) GetBankTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getBankTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getBankTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	where, args, err := filterClause(filter)
	if err != nil {
		return nil, err
	}

	// #nosec G202 - where is built from fixed column names only
	rows, err := q.QueryContext(ctx, `SELECT `+bankColumns+` FROM bank_transactions`+where+` ORDER BY date, created_at, id`, args...)
	if err != nil {
		return nil, storeErr("failed to query bank transactions", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.BankTransaction
	for rows.Next() {
		txn, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// GetBankTransaction returns one bank transaction, live or not.
func (s *SQLiteStorage) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getBankByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getBankByIDTx(ctx context.Context, q queryable, id string) (*model.BankTransaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM bank_transactions WHERE id = ?`, id)
	txn, err := scanBank(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bank transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanBank(r rowScanner) (model.BankTransaction, error) {
	var txn model.BankTransaction
	var direction string
	var deleted sql.NullTime
	err := r.Scan(&txn.ID, &txn.Date, &txn.Amount, &direction, &txn.BankAccountID, &txn.Category,
		&txn.Description, &txn.Vendor, &txn.TransferID, &txn.Reference, &txn.CreatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return txn, err
	}
	if err != nil {
		return txn, storeErr("failed to scan bank transaction", err)
	}
	txn.Direction = model.BankDirection(direction)
	txn.Date = txn.Date.UTC()
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.DeletedAt = deletedAt(deleted)
	return txn, nil
}

// Stock transactions

const stockColumns = `id, date, item, weight, price, kind, payment, bank_account_id, vendor, created_at, deleted_at`

// CreateStockTransaction inserts a stock transaction, keeping its ID and soft-delete stamp.
func (s *SQLiteStorage) CreateStockTransaction(ctx context.Context, txn *model.StockTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createStockTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) createStockTx(ctx context.Context, q queryable, txn *model.StockTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: stock transaction", ErrNilParameter)
	}
	if err := validateRecordID("stock transaction", txn.ID, txn.CreatedAt.IsZero()); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_transactions (`+stockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ID, txn.Date, txn.Item, txn.Weight, txn.Price, string(txn.Kind), string(txn.Payment),
		txn.BankAccountID, txn.Vendor, txn.CreatedAt, txn.DeletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: stock transaction %s", common.ErrDuplicateEntry, txn.ID)
		}
		return storeErr(fmt.Sprintf("failed to insert stock transaction %s", txn.ID), err)
	}

	slog.Debug("stored stock transaction", "id", txn.ID, "item", txn.Item, "kind", txn.Kind, "weight", txn.Weight.String())
	return nil
}

// GetStockTransactions returns stock transactions matching filter.
func (s *SQLiteStorage) GetStockTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.StockTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getStockTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getStockTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.StockTransaction, error) {
	where, args, err := filterClause(filter)
	if err != nil {
		return nil, err
	}

	// #nosec G202 - where is built from fixed column names only
	rows, err := q.QueryContext(ctx, `SELECT `+stockColumns+` FROM stock_transactions`+where+` ORDER BY date, created_at, id`, args...)
	if err != nil {
		return nil, storeErr("failed to query stock transactions", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.StockTransaction
	for rows.Next() {
		txn, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// GetStockTransaction returns one stock transaction, live or not.
func (s *SQLiteStorage) GetStockTransaction(ctx context.Context, id string) (*model.StockTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getStockByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getStockByIDTx(ctx context.Context, q queryable, id string) (*model.StockTransaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_transactions WHERE id = ?`, id)
	txn, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: stock transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanStock(r rowScanner) (model.StockTransaction, error) {
	var txn model.StockTransaction
	var kind, payment string
	var deleted sql.NullTime
	err := r.Scan(&txn.ID, &txn.Date, &txn.Item, &txn.Weight, &txn.Price, &kind, &payment,
		&txn.BankAccountID, &txn.Vendor, &txn.CreatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return txn, err
	}
	if err != nil {
		return txn, storeErr("failed to scan stock transaction", err)
	}
	txn.Kind = model.StockKind(kind)
	txn.Payment = model.PaymentMethod(payment)
	txn.Date = txn.Date.UTC()
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.DeletedAt = deletedAt(deleted)
	return txn, nil
}

// Soft delete and restore

// SoftDelete stamps a transaction as deleted.
func (s *SQLiteStorage) SoftDelete(ctx context.Context, collection model.Collection, id string, at time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return s.softDeleteTx(ctx, s.db, collection, id, at)
}

func (s *SQLiteStorage) softDeleteTx(ctx context.Context, q queryable, collection model.Collection, id string, at time.Time) (bool, error) {
	table, err := softDeleteTable(collection)
	if err != nil {
		return false, err
	}

	// #nosec G201 - table comes from the fixed collection set
	result, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at = ? WHERE id = ? AND %s`, table, livePredicate), at, id)
	if err != nil {
		return false, storeErr(fmt.Sprintf("failed to soft-delete %s %s", collection, id), err)
	}
	return s.changedOrExists(ctx, q, result, table, id)
}

// Restore clears the soft-delete stamp of a transaction.
func (s *SQLiteStorage) Restore(ctx context.Context, collection model.Collection, id string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return s.restoreTx(ctx, s.db, collection, id)
}

func (s *SQLiteStorage) restoreTx(ctx context.Context, q queryable, collection model.Collection, id string) (bool, error) {
	table, err := softDeleteTable(collection)
	if err != nil {
		return false, err
	}

	// #nosec G201 - table comes from the fixed collection set
	result, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at = NULL WHERE id = ? AND NOT (%s)`, table, livePredicate), id)
	if err != nil {
		return false, storeErr(fmt.Sprintf("failed to restore %s %s", collection, id), err)
	}
	return s.changedOrExists(ctx, q, result, table, id)
}

// changedOrExists reports true when the update touched a row, false when the
// row exists but was already in the requested state, and ErrNotFound otherwise.
func (s *SQLiteStorage) changedOrExists(ctx context.Context, q queryable, result sql.Result, table, id string) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	var exists bool
	// #nosec G201 - table comes from the fixed collection set
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)`, table), id).Scan(&exists); err != nil {
		return false, storeErr("failed to check record existence", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s %s", common.ErrNotFound, table, id)
	}
	return false, nil
}
