package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/testutil"
)

func TestRecordCashValidation(t *testing.T) {
	ctx := context.Background()
	db := setup(t)

	tests := []struct {
		name      string
		input     ledger.CashInput
		wantField string
	}{
		{
			name:      "zero amount",
			input:     ledger.CashInput{Date: testutil.Day(1), Direction: model.CashIncome, Category: "Sales"},
			wantField: "amount",
		},
		{
			name:      "negative amount",
			input:     ledger.CashInput{Date: testutil.Day(1), Direction: model.CashIncome, Category: "Sales", Amount: testutil.Dec(t, "-3")},
			wantField: "amount",
		},
		{
			name:      "missing date",
			input:     ledger.CashInput{Direction: model.CashIncome, Category: "Sales", Amount: testutil.Dec(t, "3")},
			wantField: "date",
		},
		{
			name:      "bad direction",
			input:     ledger.CashInput{Date: testutil.Day(1), Direction: "sideways", Category: "Sales", Amount: testutil.Dec(t, "3")},
			wantField: "direction",
		},
		{
			name:      "unknown category",
			input:     ledger.CashInput{Date: testutil.Day(1), Direction: model.CashIncome, Category: "Lottery", Amount: testutil.Dec(t, "3")},
			wantField: "category",
		},
		{
			name:      "transfer category is reserved",
			input:     ledger.CashInput{Date: testutil.Day(1), Direction: model.CashIncome, Category: model.CategoryTransfer, Amount: testutil.Dec(t, "3")},
			wantField: "category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Ledger.RecordCash(ctx, tt.input)
			var verr *common.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}

	assertDecimal(t, "1000", cashBalance(t, db.Ledger))
}

func TestRecordBank(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	main := db.MustAccount("Main")

	txn, err := db.Ledger.RecordBank(ctx, ledger.BankInput{
		Date: testutil.Day(2), BankAccountID: main, Direction: model.BankWithdrawal,
		Amount: testutil.Dec(t, "120.50"), Category: "Utilities", Reference: " INV-7 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-7", txn.Reference)
	assertDecimal(t, "379.50", bankBalance(t, db.Ledger, main))

	_, err = db.Ledger.RecordBank(ctx, ledger.BankInput{
		Date: testutil.Day(2), BankAccountID: "ghost", Direction: model.BankDeposit, Amount: testutil.Dec(t, "1"),
	})
	require.ErrorIs(t, err, common.ErrReference)

	_, err = db.Ledger.RecordBank(ctx, ledger.BankInput{
		Date: testutil.Day(2), Direction: model.BankDeposit, Amount: testutil.Dec(t, "1"),
	})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestRecordStockScenario(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	l := db.Ledger
	main := db.MustAccount("Main")

	_, err := l.RecordStock(ctx, ledger.StockInput{
		Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayCash,
		Weight: testutil.Dec(t, "50"), Price: testutil.Dec(t, "20"),
	})
	require.NoError(t, err)

	_, err = l.RecordStock(ctx, ledger.StockInput{
		Date: testutil.Day(2), Item: "Rice", Kind: model.StockSale, Payment: model.PayBank, BankAccountID: main,
		Weight: testutil.Dec(t, "20"), Price: testutil.Dec(t, "25"),
	})
	require.NoError(t, err)

	quantity, err := l.StockQuantity(ctx, "Rice")
	require.NoError(t, err)
	assertDecimal(t, "30", quantity)
	assertDecimal(t, "0", cashBalance(t, l))
	assertDecimal(t, "1000", bankBalance(t, l, main))

	// Item names are case-sensitive.
	quantity, err = l.StockQuantity(ctx, "rice")
	require.NoError(t, err)
	assertDecimal(t, "0", quantity)

	valuation, err := l.StockValuation(ctx)
	require.NoError(t, err)
	assertDecimal(t, "600", valuation)
}

func TestRecordStockInsufficient(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	l := db.Ledger

	_, err := l.RecordStock(ctx, ledger.StockInput{
		Date: testutil.Day(1), Item: "Beans", Kind: model.StockPurchase, Payment: model.PayCash,
		Weight: testutil.Dec(t, "10"), Price: testutil.Dec(t, "3"),
	})
	require.NoError(t, err)

	_, err = l.RecordStock(ctx, ledger.StockInput{
		Date: testutil.Day(2), Item: "Beans", Kind: model.StockSale, Payment: model.PayCash,
		Weight: testutil.Dec(t, "10.5"), Price: testutil.Dec(t, "4"),
	})
	require.ErrorIs(t, err, common.ErrInsufficientStock)

	var stockErr *common.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assertDecimal(t, "10", stockErr.Held)
	assertDecimal(t, "10.5", stockErr.Requested)

	// Nothing was written.
	sales, err := l.StockTransactions(ctx, service.TransactionFilter{Item: "Beans", Scope: model.ScopeAll})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestRecordStockPaymentRules(t *testing.T) {
	ctx := context.Background()
	db := setup(t)

	tests := []struct {
		name    string
		input   ledger.StockInput
		wantErr error
	}{
		{
			name: "bank payment needs an account",
			input: ledger.StockInput{Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayBank,
				Weight: testutil.Dec(t, "1"), Price: testutil.Dec(t, "1")},
			wantErr: common.ErrValidation,
		},
		{
			name: "cash payment cannot name an account",
			input: ledger.StockInput{Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayCash,
				BankAccountID: db.MustAccount("Main"), Weight: testutil.Dec(t, "1"), Price: testutil.Dec(t, "1")},
			wantErr: common.ErrValidation,
		},
		{
			name: "unknown account",
			input: ledger.StockInput{Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayBank,
				BankAccountID: "ghost", Weight: testutil.Dec(t, "1"), Price: testutil.Dec(t, "1")},
			wantErr: common.ErrReference,
		},
		{
			name: "zero price",
			input: ledger.StockInput{Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayCash,
				Weight: testutil.Dec(t, "1")},
			wantErr: common.ErrValidation,
		},
		{
			name: "missing item",
			input: ledger.StockInput{Date: testutil.Day(1), Kind: model.StockPurchase, Payment: model.PayCash,
				Weight: testutil.Dec(t, "1"), Price: testutil.Dec(t, "1")},
			wantErr: common.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Ledger.RecordStock(ctx, tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRestoreSaleRechecksStock(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	l := db.Ledger

	purchase := ledger.StockInput{Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayCash,
		Weight: testutil.Dec(t, "50"), Price: testutil.Dec(t, "2")}
	_, err := l.RecordStock(ctx, purchase)
	require.NoError(t, err)

	first, err := l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(2), Item: "Rice", Kind: model.StockSale,
		Payment: model.PayCash, Weight: testutil.Dec(t, "30"), Price: testutil.Dec(t, "3")})
	require.NoError(t, err)
	require.NoError(t, l.SoftDelete(ctx, model.CollectionStockTransactions, first.ID))

	_, err = l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(3), Item: "Rice", Kind: model.StockSale,
		Payment: model.PayCash, Weight: testutil.Dec(t, "40"), Price: testutil.Dec(t, "3")})
	require.NoError(t, err)

	err = l.Restore(ctx, model.CollectionStockTransactions, first.ID)
	require.ErrorIs(t, err, common.ErrInsufficientStock)

	quantity, err := l.StockQuantity(ctx, "Rice")
	require.NoError(t, err)
	assertDecimal(t, "10", quantity)
}

func TestDeletePurchaseBelowZeroIsAllowed(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	l := db.Ledger

	purchase, err := l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(1), Item: "Rice", Kind: model.StockPurchase,
		Payment: model.PayCash, Weight: testutil.Dec(t, "50"), Price: testutil.Dec(t, "2")})
	require.NoError(t, err)
	_, err = l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(2), Item: "Rice", Kind: model.StockSale,
		Payment: model.PayCash, Weight: testutil.Dec(t, "20"), Price: testutil.Dec(t, "3")})
	require.NoError(t, err)

	require.NoError(t, l.SoftDelete(ctx, model.CollectionStockTransactions, purchase.ID))

	quantity, err := l.StockQuantity(ctx, "Rice")
	require.NoError(t, err)
	assertDecimal(t, "-20", quantity)
}

func TestVendorDefaultCategory(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	l := db.Ledger

	_, err := l.SetVendor(ctx, "City Power", "Utilities")
	require.NoError(t, err)

	txn, err := l.RecordCash(ctx, ledger.CashInput{
		Date: testutil.Day(4), Direction: model.CashExpense, Amount: testutil.Dec(t, "40"), Vendor: "City Power",
	})
	require.NoError(t, err)
	assert.Equal(t, "Utilities", txn.Category)

	// An explicit category wins over the vendor's.
	txn, err = l.RecordCash(ctx, ledger.CashInput{
		Date: testutil.Day(5), Direction: model.CashExpense, Amount: testutil.Dec(t, "5"), Vendor: "City Power", Category: "Supplies",
	})
	require.NoError(t, err)
	assert.Equal(t, "Supplies", txn.Category)

	vendor, err := db.Storage.GetVendor(ctx, "City Power")
	require.NoError(t, err)
	require.NotNil(t, vendor)
	assert.Equal(t, 2, vendor.UseCount)
	assert.Equal(t, "Utilities", vendor.Category)

	// No vendor and no category lands in Uncategorized without learning a vendor.
	txn, err = l.RecordCash(ctx, ledger.CashInput{
		Date: testutil.Day(6), Direction: model.CashExpense, Amount: testutil.Dec(t, "1"), Vendor: "Street Stall",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryUncategorized, txn.Category)
	vendor, err = db.Storage.GetVendor(ctx, "Street Stall")
	require.NoError(t, err)
	assert.Nil(t, vendor)

	// A new vendor used with a real category is learned.
	_, err = l.RecordBank(ctx, ledger.BankInput{
		Date: testutil.Day(6), BankAccountID: db.MustAccount("Main"), Direction: model.BankWithdrawal,
		Amount: testutil.Dec(t, "9"), Vendor: "Fuel Depot", Category: "Transport",
	})
	require.NoError(t, err)
	vendor, err = db.Storage.GetVendor(ctx, "Fuel Depot")
	require.NoError(t, err)
	require.NotNil(t, vendor)
	assert.Equal(t, "Transport", vendor.Category)
	assert.Equal(t, 1, vendor.UseCount)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	l := db.Ledger

	_, err := l.AddCategory(ctx, "Packaging", "Bags and boxes", model.CategoryTypeExpense)
	require.NoError(t, err)

	_, err = l.AddCategory(ctx, "Packaging", "", model.CategoryTypeExpense)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)

	_, err = l.AddCategory(ctx, "Magic", "", model.CategoryTypeSystem)
	require.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, l.RemoveCategory(ctx, "Packaging"))
	_, err = l.RecordCash(ctx, ledger.CashInput{
		Date: testutil.Day(1), Direction: model.CashExpense, Amount: testutil.Dec(t, "1"), Category: "Packaging",
	})
	require.ErrorIs(t, err, common.ErrValidation)

	err = l.RemoveCategory(ctx, model.CategoryTransfer)
	require.ErrorIs(t, err, common.ErrValidation)

	active, err := l.Categories(ctx, false)
	require.NoError(t, err)
	all, err := l.Categories(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, len(active)+1)

	_, err = l.SetVendor(ctx, "Someone", model.CategoryUncategorized)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = l.SetVendor(ctx, "Landlord", "Rent")
	require.NoError(t, err)
	vendors, err := l.Vendors(ctx)
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	require.NoError(t, l.RemoveVendor(ctx, "Landlord"))
	require.ErrorIs(t, l.RemoveVendor(ctx, "Landlord"), common.ErrNotFound)
}
