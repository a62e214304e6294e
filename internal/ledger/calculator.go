package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/balance"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

var liveOnly = service.TransactionFilter{Scope: model.ScopeLive}

// CashBalance returns the current cash balance. Before initialization the
// opening cash is zero.
func (l *Ledger) CashBalance(ctx context.Context) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	initial, err := l.store.GetInitialBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	cash, err := l.store.GetCashTransactions(ctx, liveOnly)
	if err != nil {
		return decimal.Zero, err
	}
	stock, err := l.store.GetStockTransactions(ctx, liveOnly)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Cash(openingCash(initial), cash, stock), nil
}

// BankBalance returns the current balance of one bank account.
func (l *Ledger) BankBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.requireAccount(ctx, l.store, accountID); err != nil {
		return decimal.Zero, err
	}
	initial, err := l.store.GetInitialBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	bank, err := l.store.GetBankTransactions(ctx, service.TransactionFilter{BankAccountID: accountID})
	if err != nil {
		return decimal.Zero, err
	}
	stock, err := l.store.GetStockTransactions(ctx, liveOnly)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Bank(initial.OpeningBank(accountID), accountID, bank, stock), nil
}

// StockQuantity returns the live held weight of item.
func (l *Ledger) StockQuantity(ctx context.Context, item string) (decimal.Decimal, error) {
	if err := requireText("item", item); err != nil {
		return decimal.Zero, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quantity(ctx, item)
}

// quantity expects a lock to be held.
func (l *Ledger) quantity(ctx context.Context, item string) (decimal.Decimal, error) {
	stock, err := l.store.GetStockTransactions(ctx, service.TransactionFilter{Item: item})
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Quantity(item, stock), nil
}

// StockValuation values all held stock at its weighted-average purchase price.
func (l *Ledger) StockValuation(ctx context.Context) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stock, err := l.store.GetStockTransactions(ctx, liveOnly)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Valuation(stock), nil
}

// AccountBalance is the balance of one bank account.
type AccountBalance struct {
	Account model.BankAccount
	Balance decimal.Decimal
}

// Summary is every derived total read under one lock.
type Summary struct {
	Cash        decimal.Decimal
	Valuation   decimal.Decimal
	Banks       []AccountBalance
	Positions   []balance.Position
	Initialized bool
}

// BankTotal is the sum of all account balances.
func (s *Summary) BankTotal() decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.Banks {
		total = total.Add(b.Balance)
	}
	return total
}

// Summary computes cash, per-account bank balances, stock positions and
// valuation from one consistent read.
func (l *Ledger) Summary(ctx context.Context) (*Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	initial, err := l.store.GetInitialBalance(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := l.store.GetBankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	cash, err := l.store.GetCashTransactions(ctx, liveOnly)
	if err != nil {
		return nil, err
	}
	bank, err := l.store.GetBankTransactions(ctx, liveOnly)
	if err != nil {
		return nil, err
	}
	stock, err := l.store.GetStockTransactions(ctx, liveOnly)
	if err != nil {
		return nil, err
	}

	banks := balance.Banks(initial, bank, stock)
	summary := &Summary{
		Initialized: initial != nil,
		Cash:        balance.Cash(openingCash(initial), cash, stock),
		Positions:   balance.Positions(stock),
		Valuation:   balance.Valuation(stock),
	}
	for _, account := range accounts {
		summary.Banks = append(summary.Banks, AccountBalance{Account: account, Balance: banks[account.ID]})
		delete(banks, account.ID)
	}
	// Rows pointing at accounts that no longer exist still count.
	orphans := make([]string, 0, len(banks))
	for id := range banks {
		orphans = append(orphans, id)
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		summary.Banks = append(summary.Banks, AccountBalance{Account: model.BankAccount{ID: id, Name: id}, Balance: banks[id]})
	}
	return summary, nil
}

func openingCash(initial *model.InitialBalance) decimal.Decimal {
	if initial == nil {
		return decimal.Zero
	}
	return initial.Cash
}
