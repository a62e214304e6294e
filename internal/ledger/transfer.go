package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// TransferDirection says which way money moves between cash and bank.
type TransferDirection string

const (
	// CashToBank deposits cash into a bank account.
	CashToBank TransferDirection = "cash_to_bank"
	// BankToCash withdraws cash from a bank account.
	BankToCash TransferDirection = "bank_to_cash"
)

// Valid reports whether d is a known transfer direction.
func (d TransferDirection) Valid() bool {
	return d == CashToBank || d == BankToCash
}

// ParseTransferDirection accepts the canonical names and the short forms
// "deposit" and "withdraw".
func ParseTransferDirection(s string) (TransferDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(CashToBank), "cash->bank", "deposit":
		return CashToBank, nil
	case string(BankToCash), "bank->cash", "withdraw", "withdrawal":
		return BankToCash, nil
	default:
		return "", common.NewValidationError("direction", fmt.Sprintf("must be cash_to_bank or bank_to_cash, got %q", s))
	}
}

// TransferInput describes a movement of money between cash and a bank account.
type TransferInput struct {
	Date          time.Time
	Direction     TransferDirection
	BankAccountID string
	Description   string
	Amount        decimal.Decimal
}

// Transfer is a reconstructed pair of linked legs.
type Transfer struct {
	Cash model.CashTransaction
	Bank model.BankTransaction
	ID   string
}

// Direction derives the direction from the legs.
func (t Transfer) Direction() TransferDirection {
	if t.Cash.Direction == model.CashExpense {
		return CashToBank
	}
	return BankToCash
}

// Transfer writes both legs of a transfer or neither.
//
// When the store supports transactions the legs are written in one. Otherwise
// the cash leg is written first and soft-deleted again if the bank leg fails;
// the returned TransferError reports whether that compensation succeeded.
func (l *Ledger) Transfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	if err := requireDate(in.Date); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return nil, err
	}
	if !in.Direction.Valid() {
		return nil, common.NewValidationError("direction", fmt.Sprintf("must be cash_to_bank or bank_to_cash, got %q", in.Direction))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireInitialized(ctx); err != nil {
		return nil, err
	}
	if err := l.requireAccount(ctx, l.store, in.BankAccountID); err != nil {
		return nil, err
	}

	linkID := l.newID()
	created := l.stamp()
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = string(in.Direction)
	}

	t := &Transfer{
		ID: linkID,
		Cash: model.CashTransaction{
			ID:          l.newID(),
			Date:        in.Date.UTC(),
			CreatedAt:   created,
			Amount:      in.Amount,
			Category:    model.CategoryTransfer,
			Description: description,
			TransferID:  linkID,
		},
		Bank: model.BankTransaction{
			ID:            l.newID(),
			Date:          in.Date.UTC(),
			CreatedAt:     created,
			Amount:        in.Amount,
			BankAccountID: in.BankAccountID,
			Category:      model.CategoryTransfer,
			Description:   description,
			TransferID:    linkID,
		},
	}
	if in.Direction == CashToBank {
		t.Cash.Direction, t.Bank.Direction = model.CashExpense, model.BankDeposit
	} else {
		t.Cash.Direction, t.Bank.Direction = model.CashIncome, model.BankWithdrawal
	}

	var err error
	if ts, ok := l.store.(service.TransactionalStore); ok {
		err = l.transferInTx(ctx, ts, t)
	} else {
		err = l.transferCompensating(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("transfer recorded", "id", linkID, "direction", in.Direction, "amount", in.Amount.String(), "account", in.BankAccountID)
	l.activity.Append(ctx, fmt.Sprintf("transferred %s %s account %s (%s)",
		in.Amount.String(), map[TransferDirection]string{CashToBank: "from cash to", BankToCash: "to cash from"}[in.Direction],
		in.BankAccountID, linkID))
	return t, nil
}

func (l *Ledger) transferInTx(ctx context.Context, ts service.TransactionalStore, t *Transfer) error {
	tx, err := ts.BeginTx(ctx)
	if err != nil {
		return &common.TransferError{Stage: "begin", Err: err}
	}

	stage := "cash leg"
	err = tx.CreateCashTransaction(ctx, &t.Cash)
	if err == nil {
		stage = "bank leg"
		err = tx.CreateBankTransaction(ctx, &t.Bank)
	}
	if err == nil {
		stage = "commit"
		if err = tx.Commit(); err == nil {
			return nil
		}
		return &common.TransferError{Stage: stage, Err: err}
	}

	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("failed to roll back transfer", "id", t.ID, "error", rbErr)
		return &common.TransferError{Stage: stage, Err: errors.Join(err, rbErr)}
	}
	return &common.TransferError{Stage: stage, Err: err}
}

func (l *Ledger) transferCompensating(ctx context.Context, t *Transfer) error {
	if err := l.store.CreateCashTransaction(ctx, &t.Cash); err != nil {
		return &common.TransferError{Stage: "cash leg", Err: err}
	}

	err := l.store.CreateBankTransaction(ctx, &t.Bank)
	if err == nil {
		return nil
	}

	slog.Warn("bank leg failed, undoing cash leg", "transfer", t.ID, "cash", t.Cash.ID, "error", err)
	if _, undoErr := l.store.SoftDelete(ctx, model.CollectionCashTransactions, t.Cash.ID, l.stamp()); undoErr != nil {
		slog.Error("failed to undo cash leg of transfer", "transfer", t.ID, "cash", t.Cash.ID, "error", undoErr)
		return &common.TransferError{Stage: "bank leg", Err: errors.Join(err, undoErr)}
	}
	return &common.TransferError{Stage: "bank leg", Err: err, Compensated: true}
}

// Transfers reconstructs live transfers from their linked legs, oldest first.
// A link with a missing or deleted leg is not reported.
func (l *Ledger) Transfers(ctx context.Context) ([]Transfer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cash, err := l.store.GetCashTransactions(ctx, liveOnly)
	if err != nil {
		return nil, err
	}
	bank, err := l.store.GetBankTransactions(ctx, liveOnly)
	if err != nil {
		return nil, err
	}

	bankByLink := make(map[string]model.BankTransaction)
	for _, txn := range bank {
		if txn.TransferID != "" {
			bankByLink[txn.TransferID] = txn
		}
	}

	var transfers []Transfer
	for _, txn := range cash {
		if txn.TransferID == "" {
			continue
		}
		other, ok := bankByLink[txn.TransferID]
		if !ok {
			slog.Debug("transfer leg without partner", "transfer", txn.TransferID, "cash", txn.ID)
			continue
		}
		transfers = append(transfers, Transfer{ID: txn.TransferID, Cash: txn, Bank: other})
	}
	sort.SliceStable(transfers, func(i, j int) bool {
		return transfers[i].Cash.Date.Before(transfers[j].Cash.Date)
	})
	return transfers, nil
}
