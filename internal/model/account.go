package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is a bank account money can be deposited to or withdrawn from.
type BankAccount struct {
	CreatedAt time.Time
	ID        string
	Name      string
}

// InitialBalance holds the opening balances of a ledger. It exists at most once
// and its presence marks the ledger as initialized.
type InitialBalance struct {
	SetAt time.Time
	Cash  decimal.Decimal
	Bank  map[string]decimal.Decimal // keyed by bank account ID
}

// OpeningBank returns the opening amount for an account, zero when none was set.
func (b *InitialBalance) OpeningBank(accountID string) decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	return b.Bank[accountID]
}
