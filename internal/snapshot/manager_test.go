package snapshot_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/identity"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/snapshot"
	"github.com/Veraticus/tally/internal/testutil"
)

var exportTime = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

// populated returns a ledger with live and soft-deleted records in every
// transaction collection, a vendor, and a retired category.
func populated(t *testing.T) *testutil.TestDB {
	t.Helper()
	ctx := context.Background()
	db := testutil.SetupTestDB(t, testutil.TestDBOptions{
		Accounts:    []string{"Main", "Savings"},
		OpeningCash: "1000",
		OpeningBank: map[string]string{"Main": "500", "Savings": "25.75"},
	})
	l := db.Ledger

	_, err := l.SetVendor(ctx, "Landlord", "Rent")
	require.NoError(t, err)
	_, err = l.AddCategory(ctx, "Packaging", "", model.CategoryTypeExpense)
	require.NoError(t, err)
	require.NoError(t, l.RemoveCategory(ctx, "Packaging"))

	rent, err := l.RecordCash(ctx, ledger.CashInput{Date: testutil.Day(2), Direction: model.CashExpense, Amount: testutil.Dec(t, "200"), Vendor: "Landlord"})
	require.NoError(t, err)
	_, err = l.RecordCash(ctx, ledger.CashInput{Date: testutil.Day(3), Direction: model.CashIncome, Amount: testutil.Dec(t, "0.10"), Category: "Sales"})
	require.NoError(t, err)
	require.NoError(t, l.SoftDelete(ctx, model.CollectionCashTransactions, rent.ID))

	_, err = l.RecordBank(ctx, ledger.BankInput{Date: testutil.Day(3), BankAccountID: db.MustAccount("Main"), Direction: model.BankDeposit,
		Amount: testutil.Dec(t, "300"), Category: "Sales", Reference: "FIT-1"})
	require.NoError(t, err)
	_, err = l.Transfer(ctx, ledger.TransferInput{Date: testutil.Day(4), Direction: ledger.CashToBank,
		BankAccountID: db.MustAccount("Savings"), Amount: testutil.Dec(t, "100")})
	require.NoError(t, err)

	_, err = l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(5), Item: "Rice", Kind: model.StockPurchase, Payment: model.PayCash,
		Weight: testutil.Dec(t, "50"), Price: testutil.Dec(t, "20")})
	require.NoError(t, err)
	sale, err := l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(6), Item: "Rice", Kind: model.StockSale, Payment: model.PayBank,
		BankAccountID: db.MustAccount("Main"), Weight: testutil.Dec(t, "20"), Price: testutil.Dec(t, "25")})
	require.NoError(t, err)
	require.NoError(t, l.SoftDelete(ctx, model.CollectionStockTransactions, sale.ID))

	return db
}

func export(t *testing.T, db *testutil.TestDB) *snapshot.Document {
	t.Helper()
	doc, err := snapshot.NewManager(db.Ledger, snapshot.WithClock(func() time.Time { return exportTime })).ExportAll(context.Background())
	require.NoError(t, err)
	return doc
}

func TestExportIncludesDeletedRecords(t *testing.T) {
	doc := export(t, populated(t))

	assert.Equal(t, snapshot.DocumentVersion, doc.Version)
	counts := doc.Count()
	assert.Equal(t, 2, counts["bank_accounts"])
	assert.Equal(t, 3, counts["cash_transactions"])
	assert.Equal(t, 2, counts["bank_transactions"])
	assert.Equal(t, 2, counts["stock_transactions"])
	assert.Equal(t, 3, counts["initial_balance"])
	assert.Equal(t, 1, counts["vendors"])

	deleted := 0
	for _, rec := range doc.Collections["cash_transactions"] {
		if rec["deleted_at"] != "" {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted)
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := populated(t)
	doc := export(t, source)

	for _, format := range []snapshot.Format{snapshot.FormatJSON, snapshot.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, snapshot.Encode(&buf, doc, format))
			decoded, err := snapshot.Decode(&buf, format)
			require.NoError(t, err)

			target := testutil.SetupTestDB(t, testutil.TestDBOptions{Accounts: []string{"Old"}, OpeningCash: "1"})
			_, err = target.Ledger.RecordCash(ctx, ledger.CashInput{Date: testutil.Day(9), Direction: model.CashIncome, Amount: testutil.Dec(t, "9"), Category: "Sales"})
			require.NoError(t, err)

			var steps []model.Collection
			progress := func(c model.Collection, done, total int) {
				assert.Equal(t, len(model.TrackedCollections()), total)
				steps = append(steps, c)
			}
			require.NoError(t, snapshot.NewManager(target.Ledger).ImportAll(ctx, decoded, progress))
			assert.Equal(t, model.TrackedCollections(), steps)

			again := export(t, target)
			assert.Equal(t, doc.Collections, again.Collections)

			want, err := source.Ledger.Summary(ctx)
			require.NoError(t, err)
			got, err := target.Ledger.Summary(ctx)
			require.NoError(t, err)
			assert.True(t, want.Cash.Equal(got.Cash))
			assert.True(t, want.BankTotal().Equal(got.BankTotal()))
			assert.True(t, want.Valuation.Equal(got.Valuation))
		})
	}
}

func TestImportRejectsMissingCollection(t *testing.T) {
	ctx := context.Background()
	source := populated(t)
	doc := export(t, source)
	delete(doc.Collections, "stock_transactions")

	target := populated(t)
	before := export(t, target)

	err := snapshot.NewManager(target.Ledger).ImportAll(ctx, doc, nil)
	require.ErrorIs(t, err, common.ErrImportValidation)
	var verr *common.ImportValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "stock_transactions", verr.Collection)

	assert.Equal(t, before.Collections, export(t, target).Collections)
}

func TestImportEmptyListClearsCollection(t *testing.T) {
	ctx := context.Background()
	db := populated(t)
	doc := export(t, db)
	doc.Collections["stock_transactions"] = []snapshot.Record{}

	require.NoError(t, snapshot.NewManager(db.Ledger).ImportAll(ctx, doc, nil))

	stock, err := db.Storage.GetStockTransactions(ctx, service.TransactionFilter{Scope: model.ScopeAll})
	require.NoError(t, err)
	assert.Empty(t, stock)

	cash, err := db.Storage.GetCashTransactions(ctx, service.TransactionFilter{Scope: model.ScopeAll})
	require.NoError(t, err)
	assert.Len(t, cash, 3)
}

func TestImportValidation(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(doc *snapshot.Document)
		collection string
	}{
		{
			name:   "missing version",
			mutate: func(doc *snapshot.Document) { doc.Version = 0 },
		},
		{
			name:       "unknown collection",
			mutate:     func(doc *snapshot.Document) { doc.Collections["invoices"] = nil },
			collection: "invoices",
		},
		{
			name: "negative amount",
			mutate: func(doc *snapshot.Document) {
				doc.Collections["cash_transactions"][0]["amount"] = "-5"
			},
			collection: "cash_transactions",
		},
		{
			name: "bad time",
			mutate: func(doc *snapshot.Document) {
				doc.Collections["bank_transactions"][0]["date"] = "yesterday"
			},
			collection: "bank_transactions",
		},
		{
			name: "dangling account",
			mutate: func(doc *snapshot.Document) {
				doc.Collections["bank_transactions"][0]["bank_account_id"] = "ghost"
			},
			collection: "bank_transactions",
		},
		{
			name: "duplicate id",
			mutate: func(doc *snapshot.Document) {
				recs := doc.Collections["stock_transactions"]
				recs[1]["id"] = recs[0]["id"]
			},
			collection: "stock_transactions",
		},
		{
			name: "vendor with unknown category",
			mutate: func(doc *snapshot.Document) {
				doc.Collections["vendors"][0]["category"] = "Nope"
			},
			collection: "vendors",
		},
		{
			name: "cash with unknown category",
			mutate: func(doc *snapshot.Document) {
				doc.Collections["cash_transactions"][0]["category"] = "Nope"
			},
			collection: "cash_transactions",
		},
		{
			name: "bank with unknown category",
			mutate: func(doc *snapshot.Document) {
				doc.Collections["bank_transactions"][0]["category"] = "Nope"
			},
			collection: "bank_transactions",
		},
		{
			name: "transfer legs differ in amount",
			mutate: func(doc *snapshot.Document) {
				transferLeg(doc, "bank_transactions")["amount"] = "99"
			},
			collection: "cash_transactions",
		},
		{
			name: "transfer legs move the same way",
			mutate: func(doc *snapshot.Document) {
				transferLeg(doc, "bank_transactions")["direction"] = "withdrawal"
			},
			collection: "cash_transactions",
		},
		{
			name: "live transfer leg without partner",
			mutate: func(doc *snapshot.Document) {
				dropTransferLeg(doc, "bank_transactions")
			},
			collection: "cash_transactions",
		},
		{
			name: "transfer with one deleted leg",
			mutate: func(doc *snapshot.Document) {
				transferLeg(doc, "bank_transactions")["deleted_at"] = exportTime.Format(time.RFC3339Nano)
			},
			collection: "cash_transactions",
		},
		{
			name: "transfer with two bank legs",
			mutate: func(doc *snapshot.Document) {
				leg := snapshot.Record{}
				for k, v := range transferLeg(doc, "bank_transactions") {
					leg[k] = v
				}
				leg["id"] = "second-leg"
				doc.Collections["bank_transactions"] = append(doc.Collections["bank_transactions"], leg)
			},
			collection: "cash_transactions",
		},
	}

	db := populated(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := export(t, db)
			tt.mutate(doc)

			err := snapshot.Validate(doc)
			require.ErrorIs(t, err, common.ErrImportValidation)
			var verr *common.ImportValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.collection, verr.Collection)
		})
	}
}

// transferLeg returns the record in collection that belongs to a transfer.
func transferLeg(doc *snapshot.Document, collection string) snapshot.Record {
	for _, rec := range doc.Collections[collection] {
		if rec["transfer_id"] != "" {
			return rec
		}
	}
	panic("no transfer leg in " + collection)
}

func dropTransferLeg(doc *snapshot.Document, collection string) {
	kept := doc.Collections[collection][:0]
	for _, rec := range doc.Collections[collection] {
		if rec["transfer_id"] == "" {
			kept = append(kept, rec)
		}
	}
	doc.Collections[collection] = kept
}

func TestImportAcceptsUndoneTransferLeg(t *testing.T) {
	ctx := context.Background()
	doc := export(t, populated(t))
	dropTransferLeg(doc, "bank_transactions")
	transferLeg(doc, "cash_transactions")["deleted_at"] = exportTime.Format(time.RFC3339Nano)
	require.NoError(t, snapshot.Validate(doc))

	target := testutil.SetupTestDB(t, testutil.TestDBOptions{})
	require.NoError(t, snapshot.NewManager(target.Ledger).ImportAll(ctx, doc, nil))

	leg := transferLeg(doc, "cash_transactions")
	err := target.Ledger.Restore(ctx, model.CollectionCashTransactions, leg["id"])
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestImportRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	source := populated(t)
	doc := export(t, source)

	clerk := identity.NewStatic(model.Actor{ID: "amira", Label: "Amira", Role: model.RoleClerk})
	target := testutil.SetupTestDB(t, testutil.TestDBOptions{
		LedgerOption: []ledger.Option{ledger.WithIdentity(clerk)},
	})

	err := snapshot.NewManager(target.Ledger).ImportAll(ctx, doc, nil)
	require.ErrorIs(t, err, common.ErrPermissionDenied)

	initialized, err := target.Ledger.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)
}

func TestImportStopsOnCancelledContext(t *testing.T) {
	source := populated(t)
	doc := export(t, source)
	target := populated(t)
	before := export(t, target)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := snapshot.NewManager(target.Ledger).ImportAll(ctx, doc, nil)
	require.ErrorIs(t, err, common.ErrImportFailed)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, before.Collections, export(t, target).Collections)
}

// plainStore hides BeginTx so imports run collection by collection.
type plainStore struct {
	service.Store
	failOn model.Collection
}

func (s plainStore) ClearCollection(ctx context.Context, c model.Collection) error {
	if c == s.failOn {
		return errors.New("disk full")
	}
	return s.Store.ClearCollection(ctx, c)
}

func TestSequentialImportReportsReplaced(t *testing.T) {
	ctx := context.Background()
	doc := export(t, populated(t))
	target := populated(t)

	l := ledger.New(plainStore{Store: target.Storage, failOn: model.CollectionInitialBalance})
	err := snapshot.NewManager(l).ImportAll(ctx, doc, nil)
	require.ErrorIs(t, err, common.ErrImportFailed)

	var ierr *common.ImportError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "initial_balance", ierr.Failed)
	assert.Equal(t, []string{"bank_accounts", "categories", "vendors"}, ierr.Replaced)
}

// stockFailingStore hands out transactions that refuse stock writes, so an
// import fails after every earlier collection was cleared and rewritten.
type stockFailingStore struct {
	service.TransactionalStore
}

func (s stockFailingStore) BeginTx(ctx context.Context) (service.Transaction, error) {
	tx, err := s.TransactionalStore.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return stockFailingTx{Transaction: tx}, nil
}

type stockFailingTx struct {
	service.Transaction
}

func (stockFailingTx) CreateStockTransaction(context.Context, *model.StockTransaction) error {
	return errors.New("disk full")
}

func TestTransactionalImportRollsBackPartialWrites(t *testing.T) {
	ctx := context.Background()
	doc := export(t, snapshotSource(t))
	target := populated(t)
	before := export(t, target)

	var steps []model.Collection
	l := ledger.New(stockFailingStore{TransactionalStore: target.Storage})
	err := snapshot.NewManager(l).ImportAll(ctx, doc, func(c model.Collection, _, _ int) {
		steps = append(steps, c)
	})
	require.ErrorIs(t, err, common.ErrImportFailed)

	var ierr *common.ImportError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "stock_transactions", ierr.Failed)
	assert.Empty(t, ierr.Replaced)
	assert.Equal(t, model.TrackedCollections()[:6], steps)

	assert.Equal(t, before.Collections, export(t, target).Collections)
}

// snapshotSource is a ledger that differs from populated in every collection.
func snapshotSource(t *testing.T) *testutil.TestDB {
	t.Helper()
	ctx := context.Background()
	db := testutil.SetupTestDB(t, testutil.TestDBOptions{
		Accounts:    []string{"Till"},
		OpeningCash: "50",
		OpeningBank: map[string]string{"Till": "5"},
	})
	l := db.Ledger

	_, err := l.SetVendor(ctx, "Mill", "Rent")
	require.NoError(t, err)
	_, err = l.AddCategory(ctx, "Fuel", "", model.CategoryTypeExpense)
	require.NoError(t, err)
	_, err = l.RecordCash(ctx, ledger.CashInput{Date: testutil.Day(1), Direction: model.CashIncome, Amount: testutil.Dec(t, "7"), Category: "Sales"})
	require.NoError(t, err)
	_, err = l.RecordBank(ctx, ledger.BankInput{Date: testutil.Day(1), BankAccountID: db.MustAccount("Till"), Direction: model.BankDeposit,
		Amount: testutil.Dec(t, "8"), Category: "Sales"})
	require.NoError(t, err)
	_, err = l.RecordStock(ctx, ledger.StockInput{Date: testutil.Day(2), Item: "Flour", Kind: model.StockPurchase, Payment: model.PayCash,
		Weight: testutil.Dec(t, "2"), Price: testutil.Dec(t, "3")})
	require.NoError(t, err)
	return db
}

func TestImportTakesAutomaticBackup(t *testing.T) {
	ctx := context.Background()
	db := populated(t)
	doc := export(t, db)

	archive, err := snapshot.NewArchive(t.TempDir(), 2)
	require.NoError(t, err)
	manager := snapshot.NewManager(db.Ledger, snapshot.WithArchive(archive))

	for i := 0; i < 3; i++ {
		require.NoError(t, manager.ImportAll(ctx, doc, nil))
	}

	backups, err := archive.List(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
	for _, b := range backups {
		assert.True(t, b.IsAuto)
	}

	restored, err := archive.Load(ctx, backups[0].ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Collections, restored.Collections)
}
