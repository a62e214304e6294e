package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// OpeningBalances are the amounts a ledger starts from.
type OpeningBalances struct {
	Cash decimal.Decimal
	Bank map[string]decimal.Decimal // keyed by bank account ID
}

func (o OpeningBalances) validate() error {
	if o.Cash.IsNegative() {
		return common.NewValidationError("cash", "opening balance cannot be negative")
	}
	for id, amount := range o.Bank {
		if amount.IsNegative() {
			return common.NewValidationError("bank", fmt.Sprintf("opening balance for %s cannot be negative", id))
		}
	}
	return nil
}

// CashInput describes a cash transaction to record.
type CashInput struct {
	Date        time.Time
	Category    string // empty uses the vendor's category, then Uncategorized
	Description string
	Vendor      string
	Direction   model.CashDirection
	Amount      decimal.Decimal
}

// BankInput describes a bank transaction to record.
type BankInput struct {
	Date          time.Time
	BankAccountID string
	Category      string
	Description   string
	Vendor        string
	Reference     string
	Direction     model.BankDirection
	Amount        decimal.Decimal
}

// StockInput describes a stock purchase or sale to record.
type StockInput struct {
	Date          time.Time
	Item          string
	BankAccountID string // required iff Payment is model.PayBank
	Vendor        string
	Kind          model.StockKind
	Payment       model.PaymentMethod
	Weight        decimal.Decimal
	Price         decimal.Decimal
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return common.NewValidationError(field, "is required")
	}
	return nil
}

func requirePositive(field string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return common.NewValidationError(field, fmt.Sprintf("must be greater than zero, got %s", value.String()))
	}
	return nil
}

func requireDate(date time.Time) error {
	if date.IsZero() {
		return common.NewValidationError("date", "is required")
	}
	return nil
}

func (in CashInput) validate() error {
	if err := requireDate(in.Date); err != nil {
		return err
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	if !in.Direction.Valid() {
		return common.NewValidationError("direction", fmt.Sprintf("must be income or expense, got %q", in.Direction))
	}
	return nil
}

func (in BankInput) validate() error {
	if err := requireDate(in.Date); err != nil {
		return err
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	if !in.Direction.Valid() {
		return common.NewValidationError("direction", fmt.Sprintf("must be deposit or withdrawal, got %q", in.Direction))
	}
	return requireText("bank_account_id", in.BankAccountID)
}

func (in StockInput) validate() error {
	if err := requireDate(in.Date); err != nil {
		return err
	}
	if err := requireText("item", in.Item); err != nil {
		return err
	}
	if err := requirePositive("weight", in.Weight); err != nil {
		return err
	}
	if err := requirePositive("price", in.Price); err != nil {
		return err
	}
	if !in.Kind.Valid() {
		return common.NewValidationError("kind", fmt.Sprintf("must be purchase or sale, got %q", in.Kind))
	}
	switch in.Payment {
	case model.PayBank:
		return requireText("bank_account_id", in.BankAccountID)
	case model.PayCash:
		if in.BankAccountID != "" {
			return common.NewValidationError("bank_account_id", "must be empty for cash payments")
		}
		return nil
	default:
		return common.NewValidationError("payment", fmt.Sprintf("must be cash or bank, got %q", in.Payment))
	}
}

// RecordCash validates and stores a cash transaction.
func (l *Ledger) RecordCash(ctx context.Context, in CashInput) (*model.CashTransaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireInitialized(ctx); err != nil {
		return nil, err
	}
	category, vendor, err := l.resolveCategory(ctx, in.Category, in.Vendor)
	if err != nil {
		return nil, err
	}

	txn := &model.CashTransaction{
		ID:          l.newID(),
		Date:        in.Date.UTC(),
		CreatedAt:   l.stamp(),
		Amount:      in.Amount,
		Direction:   in.Direction,
		Category:    category,
		Description: strings.TrimSpace(in.Description),
		Vendor:      strings.TrimSpace(in.Vendor),
	}
	if err := l.store.CreateCashTransaction(ctx, txn); err != nil {
		return nil, err
	}
	l.noteVendor(ctx, vendor, txn.Vendor, category)

	slog.Info("cash transaction recorded", "id", txn.ID, "direction", txn.Direction, "amount", txn.Amount.String(), "category", category)
	l.activity.Append(ctx, fmt.Sprintf("recorded cash %s %s (%s)", txn.Direction, txn.Amount.String(), category))
	return txn, nil
}

// RecordBank validates and stores a bank transaction.
func (l *Ledger) RecordBank(ctx context.Context, in BankInput) (*model.BankTransaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.recordBank(ctx, in)
}

// recordBank expects the write lock to be held.
func (l *Ledger) recordBank(ctx context.Context, in BankInput) (*model.BankTransaction, error) {
	if err := l.requireInitialized(ctx); err != nil {
		return nil, err
	}
	if err := l.requireAccount(ctx, l.store, in.BankAccountID); err != nil {
		return nil, err
	}
	category, vendor, err := l.resolveCategory(ctx, in.Category, in.Vendor)
	if err != nil {
		return nil, err
	}

	txn := &model.BankTransaction{
		ID:            l.newID(),
		Date:          in.Date.UTC(),
		CreatedAt:     l.stamp(),
		Amount:        in.Amount,
		Direction:     in.Direction,
		BankAccountID: in.BankAccountID,
		Category:      category,
		Description:   strings.TrimSpace(in.Description),
		Vendor:        strings.TrimSpace(in.Vendor),
		Reference:     strings.TrimSpace(in.Reference),
	}
	if err := l.store.CreateBankTransaction(ctx, txn); err != nil {
		return nil, err
	}
	l.noteVendor(ctx, vendor, txn.Vendor, category)

	slog.Info("bank transaction recorded", "id", txn.ID, "account", txn.BankAccountID, "direction", txn.Direction, "amount", txn.Amount.String())
	l.activity.Append(ctx, fmt.Sprintf("recorded bank %s %s on %s (%s)", txn.Direction, txn.Amount.String(), txn.BankAccountID, category))
	return txn, nil
}

// RecordStock validates and stores a stock purchase or sale. A sale larger
// than the live held quantity of the item fails with an InsufficientStockError.
func (l *Ledger) RecordStock(ctx context.Context, in StockInput) (*model.StockTransaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireInitialized(ctx); err != nil {
		return nil, err
	}
	if in.Payment == model.PayBank {
		if err := l.requireAccount(ctx, l.store, in.BankAccountID); err != nil {
			return nil, err
		}
	}
	if in.Kind == model.StockSale {
		if err := l.checkStock(ctx, in.Item, in.Weight); err != nil {
			return nil, err
		}
	}

	vendorName := strings.TrimSpace(in.Vendor)
	var vendor *model.Vendor
	if vendorName != "" {
		v, err := l.store.GetVendor(ctx, vendorName)
		if err != nil {
			return nil, err
		}
		vendor = v
	}

	txn := &model.StockTransaction{
		ID:            l.newID(),
		Date:          in.Date.UTC(),
		CreatedAt:     l.stamp(),
		Item:          in.Item,
		Weight:        in.Weight,
		Price:         in.Price,
		Kind:          in.Kind,
		Payment:       in.Payment,
		BankAccountID: in.BankAccountID,
		Vendor:        vendorName,
	}
	if err := l.store.CreateStockTransaction(ctx, txn); err != nil {
		return nil, err
	}
	if vendor != nil {
		l.noteVendor(ctx, vendor, vendorName, vendor.Category)
	}

	slog.Info("stock transaction recorded", "id", txn.ID, "item", txn.Item, "kind", txn.Kind, "weight", txn.Weight.String(), "total", txn.Total().String())
	l.activity.Append(ctx, fmt.Sprintf("recorded stock %s of %s kg %s at %s (%s)",
		txn.Kind, txn.Weight.String(), txn.Item, txn.Price.String(), txn.Payment))
	return txn, nil
}

// checkStock fails when less than weight of item is held.
func (l *Ledger) checkStock(ctx context.Context, item string, weight decimal.Decimal) error {
	held, err := l.quantity(ctx, item)
	if err != nil {
		return err
	}
	if held.LessThan(weight) {
		return &common.InsufficientStockError{Item: item, Held: held, Requested: weight}
	}
	return nil
}

// resolveCategory picks the category for a cash or bank transaction and
// returns the known vendor, if any. An empty category falls back to the
// vendor's category and then to Uncategorized.
func (l *Ledger) resolveCategory(ctx context.Context, category, vendorName string) (string, *model.Vendor, error) {
	category = strings.TrimSpace(category)
	vendorName = strings.TrimSpace(vendorName)

	var vendor *model.Vendor
	if vendorName != "" {
		v, err := l.store.GetVendor(ctx, vendorName)
		if err != nil {
			return "", nil, err
		}
		vendor = v
	}

	if category == "" && vendor != nil {
		category = vendor.Category
	}
	if category == "" {
		category = model.CategoryUncategorized
	}
	if category == model.CategoryTransfer {
		return "", nil, common.NewValidationError("category", "Transfer is reserved for transfers")
	}

	cat, err := l.store.GetCategoryByName(ctx, category)
	if err != nil {
		return "", nil, err
	}
	if cat == nil {
		return "", nil, common.NewValidationError("category", fmt.Sprintf("%q is not a recognized category", category))
	}
	return cat.Name, vendor, nil
}

// noteVendor bumps the use count of a known vendor, or learns a new vendor
// with the category it was first used with. Failures are logged only.
func (l *Ledger) noteVendor(ctx context.Context, known *model.Vendor, name, category string) {
	if name == "" {
		return
	}

	vendor := known
	if vendor == nil {
		if category == model.CategoryUncategorized {
			return
		}
		vendor = &model.Vendor{Name: name, Category: category}
	}
	vendor.UseCount++
	vendor.LastUpdated = l.stamp()

	if err := l.store.SaveVendor(ctx, vendor); err != nil {
		slog.Warn("failed to update vendor", "vendor", name, "error", err)
	}
}

// Listing

// CashTransactions lists cash transactions matching filter.
func (l *Ledger) CashTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.CashTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetCashTransactions(ctx, filter)
}

// BankTransactions lists bank transactions matching filter.
func (l *Ledger) BankTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetBankTransactions(ctx, filter)
}

// StockTransactions lists stock transactions matching filter.
func (l *Ledger) StockTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.StockTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetStockTransactions(ctx, filter)
}
