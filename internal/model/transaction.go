// Package model defines the typed records kept by the ledger.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashDirection says whether a cash transaction adds to or takes from the cash pool.
type CashDirection string

const (
	// CashIncome adds to the cash balance.
	CashIncome CashDirection = "income"
	// CashExpense takes from the cash balance.
	CashExpense CashDirection = "expense"
)

// Valid reports whether d is a known cash direction.
func (d CashDirection) Valid() bool {
	return d == CashIncome || d == CashExpense
}

// BankDirection says whether a bank transaction adds to or takes from an account.
type BankDirection string

const (
	// BankDeposit adds to the account balance.
	BankDeposit BankDirection = "deposit"
	// BankWithdrawal takes from the account balance.
	BankWithdrawal BankDirection = "withdrawal"
)

// Valid reports whether d is a known bank direction.
func (d BankDirection) Valid() bool {
	return d == BankDeposit || d == BankWithdrawal
}

// StockKind distinguishes purchases from sales.
type StockKind string

const (
	// StockPurchase increases the held quantity of an item.
	StockPurchase StockKind = "purchase"
	// StockSale decreases the held quantity of an item.
	StockSale StockKind = "sale"
)

// Valid reports whether k is a known stock kind.
func (k StockKind) Valid() bool {
	return k == StockPurchase || k == StockSale
}

// PaymentMethod names the pool that settles a stock transaction.
type PaymentMethod string

const (
	// PayCash settles against the cash balance.
	PayCash PaymentMethod = "cash"
	// PayBank settles against a bank account.
	PayBank PaymentMethod = "bank"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PayCash || m == PayBank
}

// CashTransaction is one movement of physical cash.
type CashTransaction struct {
	Date        time.Time
	CreatedAt   time.Time
	DeletedAt   *time.Time
	ID          string
	Category    string
	Description string
	Vendor      string
	TransferID  string // set on both legs of a transfer
	Direction   CashDirection
	Amount      decimal.Decimal
}

// Live reports whether the transaction has not been soft-deleted.
func (t CashTransaction) Live() bool { return t.DeletedAt == nil }

// Signed returns the amount with the sign of its effect on the cash balance.
func (t CashTransaction) Signed() decimal.Decimal {
	if t.Direction == CashExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BankTransaction is one movement on a bank account.
type BankTransaction struct {
	Date          time.Time
	CreatedAt     time.Time
	DeletedAt     *time.Time
	ID            string
	BankAccountID string
	Category      string
	Description   string
	Vendor        string
	TransferID    string
	Reference     string // external reference, e.g. an OFX FITID
	Direction     BankDirection
	Amount        decimal.Decimal
}

// Live reports whether the transaction has not been soft-deleted.
func (t BankTransaction) Live() bool { return t.DeletedAt == nil }

// Signed returns the amount with the sign of its effect on the account balance.
func (t BankTransaction) Signed() decimal.Decimal {
	if t.Direction == BankWithdrawal {
		return t.Amount.Neg()
	}
	return t.Amount
}

// StockTransaction is a purchase or sale of an inventory item by weight.
type StockTransaction struct {
	Date          time.Time
	CreatedAt     time.Time
	DeletedAt     *time.Time
	ID            string
	Item          string // case-sensitive identity
	BankAccountID string // required iff Payment is PayBank
	Vendor        string
	Kind          StockKind
	Payment       PaymentMethod
	Weight        decimal.Decimal // kg
	Price         decimal.Decimal // per kg
}

// Live reports whether the transaction has not been soft-deleted.
func (t StockTransaction) Live() bool { return t.DeletedAt == nil }

// Total is weight multiplied by price.
func (t StockTransaction) Total() decimal.Decimal {
	return t.Weight.Mul(t.Price)
}

// SignedWeight is the effect on the held quantity of the item.
func (t StockTransaction) SignedWeight() decimal.Decimal {
	if t.Kind == StockSale {
		return t.Weight.Neg()
	}
	return t.Weight
}

// SignedTotal is the effect on the paying pool: purchases spend, sales earn.
func (t StockTransaction) SignedTotal() decimal.Decimal {
	if t.Kind == StockPurchase {
		return t.Total().Neg()
	}
	return t.Total()
}
