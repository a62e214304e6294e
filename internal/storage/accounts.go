package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// CreateBankAccount registers a bank account.
func (s *SQLiteStorage) CreateBankAccount(ctx context.Context, account *model.BankAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createBankAccountTx(ctx, s.db, account)
}

func (s *SQLiteStorage) createBankAccountTx(ctx context.Context, q queryable, account *model.BankAccount) error {
	if account == nil {
		return fmt.Errorf("%w: bank account", ErrNilParameter)
	}
	if err := validateRecordID("bank account", account.ID, account.CreatedAt.IsZero()); err != nil {
		return err
	}
	if err := validateString(account.Name, "name"); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, name, created_at)
		VALUES (?, ?, ?)
	`, account.ID, strings.TrimSpace(account.Name), account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: bank account %q", common.ErrDuplicateEntry, account.Name)
		}
		return storeErr("failed to create bank account", err)
	}

	slog.Debug("created bank account", "id", account.ID, "name", account.Name)
	return nil
}

// GetBankAccount returns the account with id, or nil when there is none.
func (s *SQLiteStorage) GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getBankAccountTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getBankAccountTx(ctx context.Context, q queryable, id string) (*model.BankAccount, error) {
	var account model.BankAccount
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM bank_accounts WHERE id = ?
	`, id).Scan(&account.ID, &account.Name, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get bank account", err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

// GetBankAccounts lists all bank accounts by name.
func (s *SQLiteStorage) GetBankAccounts(ctx context.Context) ([]model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getBankAccountsTx(ctx, s.db)
}

func (s *SQLiteStorage) getBankAccountsTx(ctx context.Context, q queryable) ([]model.BankAccount, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, created_at FROM bank_accounts ORDER BY name`)
	if err != nil {
		return nil, storeErr("failed to query bank accounts", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.BankAccount
	for rows.Next() {
		var account model.BankAccount
		if err := rows.Scan(&account.ID, &account.Name, &account.CreatedAt); err != nil {
			return nil, storeErr("failed to scan bank account", err)
		}
		account.CreatedAt = account.CreatedAt.UTC()
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetInitialBalance returns the opening balances, or nil before initialization.
func (s *SQLiteStorage) GetInitialBalance(ctx context.Context) (*model.InitialBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getInitialBalanceTx(ctx, s.db)
}

func (s *SQLiteStorage) getInitialBalanceTx(ctx context.Context, q queryable) (*model.InitialBalance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pool, bank_account_id, amount, set_at FROM initial_balance ORDER BY pool DESC, bank_account_id
	`)
	if err != nil {
		return nil, storeErr("failed to query initial balance", err)
	}
	defer func() { _ = rows.Close() }()

	var balance *model.InitialBalance
	for rows.Next() {
		var pool, accountID string
		var amount decimal.Decimal
		var row model.InitialBalance
		if err := rows.Scan(&pool, &accountID, &amount, &row.SetAt); err != nil {
			return nil, storeErr("failed to scan initial balance", err)
		}
		if balance == nil {
			balance = &model.InitialBalance{SetAt: row.SetAt.UTC(), Bank: make(map[string]decimal.Decimal)}
		}
		switch pool {
		case "cash":
			balance.Cash = amount
		case "bank":
			balance.Bank[accountID] = amount
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("error iterating initial balance", err)
	}
	return balance, nil
}

// CreateInitialBalance stores the opening balances. It fails with
// common.ErrAlreadyInitialized when a balance already exists.
func (s *SQLiteStorage) CreateInitialBalance(ctx context.Context, balance *model.InitialBalance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createInitialBalanceTx(ctx, s.db, balance)
}

func (s *SQLiteStorage) createInitialBalanceTx(ctx context.Context, q queryable, balance *model.InitialBalance) error {
	if balance == nil {
		return fmt.Errorf("%w: initial balance", ErrNilParameter)
	}
	if balance.SetAt.IsZero() {
		return fmt.Errorf("%w: initial balance missing set_at", ErrInvalidRecord)
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM initial_balance)`).Scan(&exists); err != nil {
		return storeErr("failed to check initial balance", err)
	}
	if exists {
		return common.ErrAlreadyInitialized
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO initial_balance (pool, bank_account_id, amount, set_at) VALUES ('cash', '', ?, ?)
	`, balance.Cash, balance.SetAt); err != nil {
		return storeErr("failed to store opening cash", err)
	}
	for accountID, amount := range balance.Bank {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO initial_balance (pool, bank_account_id, amount, set_at) VALUES ('bank', ?, ?, ?)
		`, accountID, amount, balance.SetAt); err != nil {
			return storeErr(fmt.Sprintf("failed to store opening balance for account %s", accountID), err)
		}
	}

	slog.Debug("stored initial balance", "cash", balance.Cash.String(), "accounts", len(balance.Bank))
	return nil
}
