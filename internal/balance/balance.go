// Package balance derives balances and stock positions from transaction logs.
// Every function is a fold over its input: the result depends only on the
// multiset of records passed in, never on their order. Callers pass live
// records only; soft-deleted rows are skipped here as well.
package balance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/model"
)

// Cash returns the cash balance: opening cash, plus signed cash transactions,
// plus the effect of stock transactions settled in cash.
func Cash(opening decimal.Decimal, cash []model.CashTransaction, stock []model.StockTransaction) decimal.Decimal {
	total := opening
	for _, txn := range cash {
		if !txn.Live() {
			continue
		}
		total = total.Add(txn.Signed())
	}
	for _, txn := range stock {
		if !txn.Live() || txn.Payment != model.PayCash {
			continue
		}
		total = total.Add(txn.SignedTotal())
	}
	return total
}

// Bank returns the balance of one bank account.
func Bank(opening decimal.Decimal, accountID string, bank []model.BankTransaction, stock []model.StockTransaction) decimal.Decimal {
	total := opening
	for _, txn := range bank {
		if !txn.Live() || txn.BankAccountID != accountID {
			continue
		}
		total = total.Add(txn.Signed())
	}
	for _, txn := range stock {
		if !txn.Live() || txn.Payment != model.PayBank || txn.BankAccountID != accountID {
			continue
		}
		total = total.Add(txn.SignedTotal())
	}
	return total
}

// Banks returns the balance of every account that has an opening amount or
// at least one transaction.
func Banks(initial *model.InitialBalance, bank []model.BankTransaction, stock []model.StockTransaction) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	if initial != nil {
		for id, amount := range initial.Bank {
			totals[id] = amount
		}
	}
	for _, txn := range bank {
		if !txn.Live() {
			continue
		}
		totals[txn.BankAccountID] = totals[txn.BankAccountID].Add(txn.Signed())
	}
	for _, txn := range stock {
		if !txn.Live() || txn.Payment != model.PayBank {
			continue
		}
		totals[txn.BankAccountID] = totals[txn.BankAccountID].Add(txn.SignedTotal())
	}
	return totals
}

// Quantity returns the held weight of item. Items have no opening stock.
func Quantity(item string, stock []model.StockTransaction) decimal.Decimal {
	held := decimal.Zero
	for _, txn := range stock {
		if !txn.Live() || txn.Item != item {
			continue
		}
		held = held.Add(txn.SignedWeight())
	}
	return held
}

// Position is the held quantity and value of one item.
type Position struct {
	Item         string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	Value        decimal.Decimal
}

// Positions returns every item with live stock activity, sorted by item name.
//
// Valuation uses the weighted-average purchase price: the sum of purchase
// totals divided by the sum of purchased weight, multiplied by the held
// quantity. Sales do not move the average, so the result is independent of
// the order in which purchases and sales happened.
func Positions(stock []model.StockTransaction) []Position {
	type acc struct {
		held      decimal.Decimal
		bought    decimal.Decimal
		boughtFor decimal.Decimal
	}
	byItem := make(map[string]*acc)
	for _, txn := range stock {
		if !txn.Live() {
			continue
		}
		a := byItem[txn.Item]
		if a == nil {
			a = &acc{}
			byItem[txn.Item] = a
		}
		a.held = a.held.Add(txn.SignedWeight())
		if txn.Kind == model.StockPurchase {
			a.bought = a.bought.Add(txn.Weight)
			a.boughtFor = a.boughtFor.Add(txn.Total())
		}
	}

	positions := make([]Position, 0, len(byItem))
	for item, a := range byItem {
		p := Position{Item: item, Quantity: a.held}
		if a.bought.IsPositive() {
			p.AveragePrice = a.boughtFor.Div(a.bought)
			p.Value = p.AveragePrice.Mul(a.held)
		}
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Item < positions[j].Item })
	return positions
}

// Valuation is the total value of all held stock.
func Valuation(stock []model.StockTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, p := range Positions(stock) {
		total = total.Add(p.Value)
	}
	return total
}
