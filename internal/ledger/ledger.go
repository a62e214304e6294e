// Package ledger records cash, bank and stock transactions and derives
// balances from them.
//
// A Ledger serializes its writers with one RWMutex per instance. Every
// mutation holds the write lock for its whole read-validate-write sequence;
// balance reads hold the read lock, so no reader can observe one half of a
// transfer or a partially applied reversal.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/activity"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/identity"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Ledger is one bookkeeping instance over a record store.
type Ledger struct {
	store    service.Store
	identity service.IdentityProvider
	activity *activity.Recorder
	now      func() time.Time
	newID    func() string
	mu       sync.RWMutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for creation and deletion stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the record id source.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithIdentity sets who is acting. Defaults to identity.System.
func WithIdentity(provider service.IdentityProvider) Option {
	return func(l *Ledger) { l.identity = provider }
}

// WithActivity replaces the activity recorder.
func WithActivity(recorder *activity.Recorder) Option {
	return func(l *Ledger) { l.activity = recorder }
}

// New creates a ledger over store.
func New(store service.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		identity: identity.NewStatic(identity.System),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.activity == nil {
		l.activity = activity.NewRecorder(store, l.identity,
			activity.WithClock(l.now),
			activity.WithIDGenerator(l.newID))
	}
	return l
}

// Store returns the underlying record store.
func (l *Ledger) Store() service.Store {
	return l.store
}

// Mutex returns the instance lock. The snapshot manager holds it for the
// duration of an export or import.
func (l *Ledger) Mutex() *sync.RWMutex {
	return &l.mu
}

// Identity returns the identity provider in use.
func (l *Ledger) Identity() service.IdentityProvider {
	return l.identity
}

// Activity returns the activity recorder in use.
func (l *Ledger) Activity() *activity.Recorder {
	return l.activity
}

func (l *Ledger) stamp() time.Time {
	return l.now().UTC()
}

// atomically runs fn against a store transaction when the store supports
// them, and against the store itself otherwise. fn must only use the store
// it is given.
func (l *Ledger) atomically(ctx context.Context, fn func(service.Store) error) error {
	ts, ok := l.store.(service.TransactionalStore)
	if !ok {
		return fn(l.store)
	}

	tx, err := ts.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("failed to roll back", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Initialization

// IsInitialized reports whether the opening balances have been set.
func (l *Ledger) IsInitialized(ctx context.Context) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	initial, err := l.store.GetInitialBalance(ctx)
	if err != nil {
		return false, err
	}
	return initial != nil, nil
}

func (l *Ledger) requireInitialized(ctx context.Context) error {
	initial, err := l.store.GetInitialBalance(ctx)
	if err != nil {
		return err
	}
	if initial == nil {
		return fmt.Errorf("%w: set the opening balances first", common.ErrNotInitialized)
	}
	return nil
}

// SetInitialBalance records the opening cash and per-account bank amounts.
// It can succeed only once per ledger; later calls fail with
// common.ErrAlreadyInitialized and leave the first value in place.
func (l *Ledger) SetInitialBalance(ctx context.Context, opening OpeningBalances) (*model.InitialBalance, error) {
	if err := opening.validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.store.GetInitialBalance(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, common.ErrAlreadyInitialized
	}

	for accountID := range opening.Bank {
		if err := l.requireAccount(ctx, l.store, accountID); err != nil {
			return nil, err
		}
	}

	balance := &model.InitialBalance{
		SetAt: l.stamp(),
		Cash:  opening.Cash,
		Bank:  opening.Bank,
	}
	if balance.Bank == nil {
		balance.Bank = map[string]decimal.Decimal{}
	}
	if err := l.atomically(ctx, func(s service.Store) error {
		return s.CreateInitialBalance(ctx, balance)
	}); err != nil {
		return nil, err
	}

	slog.Info("opening balances set", "cash", balance.Cash.String(), "accounts", len(balance.Bank))
	l.activity.Append(ctx, fmt.Sprintf("set opening balances: cash %s, %d bank account(s)", balance.Cash.String(), len(balance.Bank)))
	return balance, nil
}

// Bank accounts

// CreateBankAccount registers a bank account. Allowed before initialization.
func (l *Ledger) CreateBankAccount(ctx context.Context, name string) (*model.BankAccount, error) {
	if err := requireText("name", name); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account := &model.BankAccount{ID: l.newID(), Name: name, CreatedAt: l.stamp()}
	if err := l.store.CreateBankAccount(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("bank account created", "id", account.ID, "name", account.Name)
	l.activity.Append(ctx, fmt.Sprintf("created bank account %q", account.Name))
	return account, nil
}

// BankAccounts lists the registered bank accounts.
func (l *Ledger) BankAccounts(ctx context.Context) ([]model.BankAccount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetBankAccounts(ctx)
}

func (l *Ledger) requireAccount(ctx context.Context, s service.Store, id string) error {
	if id == "" {
		return common.NewValidationError("bank_account_id", "is required")
	}
	account, err := s.GetBankAccount(ctx, id)
	if err != nil {
		return err
	}
	if account == nil {
		return &common.ReferenceError{Kind: "bank account", ID: id}
	}
	return nil
}

// Soft delete and restore

// SoftDelete logically removes a transaction. Deleting an already deleted
// transaction succeeds without changing anything. Deleting either leg of a
// transfer deletes both legs.
func (l *Ledger) SoftDelete(ctx context.Context, collection model.Collection, id string) error {
	if !collection.SoftDeletable() {
		return common.NewValidationError("kind", fmt.Sprintf("%q cannot be deleted", collection))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	target, err := l.locate(ctx, collection, id)
	if err != nil {
		return err
	}

	legs := []leg{{collection: collection, id: id}}
	if target.transferID != "" {
		if legs, err = l.transferLegs(ctx, l.store, target.transferID); err != nil {
			return err
		}
	}

	at := l.stamp()
	changed := false
	if err := l.atomically(ctx, func(s service.Store) error {
		for _, lg := range legs {
			ok, err := s.SoftDelete(ctx, lg.collection, lg.id, at)
			if err != nil {
				return err
			}
			changed = changed || ok
		}
		return nil
	}); err != nil {
		return err
	}
	if !changed {
		slog.Debug("already deleted", "collection", collection, "id", id)
		return nil
	}

	if collection == model.CollectionStockTransactions && target.item != "" {
		l.warnNegativeStock(ctx, target.item)
	}

	slog.Info("transaction deleted", "collection", collection, "id", id, "legs", len(legs))
	l.activity.Append(ctx, target.describe("deleted", len(legs)))
	return nil
}

// Restore reinstates a soft-deleted transaction. Restoring a live transaction
// succeeds without changing anything. Restoring a stock sale fails with an
// InsufficientStockError when the item is no longer held in that quantity.
// A transfer leg is restored only together with its partner; a leg without
// one fails with a ValidationError.
func (l *Ledger) Restore(ctx context.Context, collection model.Collection, id string) error {
	if !collection.SoftDeletable() {
		return common.NewValidationError("kind", fmt.Sprintf("%q cannot be restored", collection))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	target, err := l.locate(ctx, collection, id)
	if err != nil {
		return err
	}
	if target.live {
		slog.Debug("already live", "collection", collection, "id", id)
		return nil
	}

	if target.sale {
		if err := l.checkStock(ctx, target.item, target.weight); err != nil {
			return err
		}
	}

	legs := []leg{{collection: collection, id: id}}
	if target.transferID != "" {
		if legs, err = l.transferLegs(ctx, l.store, target.transferID); err != nil {
			return err
		}
		if !pairedLegs(legs) {
			return common.NewValidationError("transfer",
				fmt.Sprintf("transfer %s does not have one cash and one bank leg; its legs cannot be restored", target.transferID))
		}
	}

	changed := false
	if err := l.atomically(ctx, func(s service.Store) error {
		for _, lg := range legs {
			ok, err := s.Restore(ctx, lg.collection, lg.id)
			if err != nil {
				return err
			}
			changed = changed || ok
		}
		return nil
	}); err != nil {
		return err
	}
	if !changed {
		return nil
	}

	slog.Info("transaction restored", "collection", collection, "id", id, "legs", len(legs))
	l.activity.Append(ctx, target.describe("restored", len(legs)))
	return nil
}

// located summarizes the transaction a delete or restore targets.
type located struct {
	weight     decimal.Decimal
	collection model.Collection
	id         string
	transferID string
	item       string
	summary    string
	live       bool
	sale       bool
}

func (t located) describe(verb string, legs int) string {
	if legs > 1 {
		return fmt.Sprintf("%s transfer %s (%d legs)", verb, t.transferID, legs)
	}
	return fmt.Sprintf("%s %s", verb, t.summary)
}

func (l *Ledger) locate(ctx context.Context, collection model.Collection, id string) (located, error) {
	t := located{collection: collection, id: id}
	switch collection {
	case model.CollectionCashTransactions:
		txn, err := l.store.GetCashTransaction(ctx, id)
		if err != nil {
			return t, err
		}
		t.live, t.transferID = txn.Live(), txn.TransferID
		t.summary = fmt.Sprintf("cash %s %s (%s)", txn.Direction, txn.Amount.String(), id)
	case model.CollectionBankTransactions:
		txn, err := l.store.GetBankTransaction(ctx, id)
		if err != nil {
			return t, err
		}
		t.live, t.transferID = txn.Live(), txn.TransferID
		t.summary = fmt.Sprintf("bank %s %s (%s)", txn.Direction, txn.Amount.String(), id)
	case model.CollectionStockTransactions:
		txn, err := l.store.GetStockTransaction(ctx, id)
		if err != nil {
			return t, err
		}
		t.live, t.item, t.weight = txn.Live(), txn.Item, txn.Weight
		t.sale = txn.Kind == model.StockSale
		t.summary = fmt.Sprintf("stock %s of %s kg %s (%s)", txn.Kind, txn.Weight.String(), txn.Item, id)
	default:
		return t, fmt.Errorf("%w: %s", common.ErrNotFound, collection)
	}
	return t, nil
}

type leg struct {
	collection model.Collection
	id         string
}

func (l *Ledger) transferLegs(ctx context.Context, s service.Store, transferID string) ([]leg, error) {
	filter := service.TransactionFilter{TransferID: transferID, Scope: model.ScopeAll}

	cash, err := s.GetCashTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	bank, err := s.GetBankTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	legs := make([]leg, 0, len(cash)+len(bank))
	for _, txn := range cash {
		legs = append(legs, leg{collection: model.CollectionCashTransactions, id: txn.ID})
	}
	for _, txn := range bank {
		legs = append(legs, leg{collection: model.CollectionBankTransactions, id: txn.ID})
	}
	return legs, nil
}

// pairedLegs reports whether legs are exactly one cash and one bank leg. A
// transfer whose bank leg was never written is left with its cash leg only.
func pairedLegs(legs []leg) bool {
	var cash, bank int
	for _, lg := range legs {
		switch lg.collection {
		case model.CollectionCashTransactions:
			cash++
		case model.CollectionBankTransactions:
			bank++
		}
	}
	return cash == 1 && bank == 1
}

func (l *Ledger) warnNegativeStock(ctx context.Context, item string) {
	held, err := l.quantity(ctx, item)
	if err != nil {
		slog.Warn("failed to recheck stock after delete", "item", item, "error", err)
		return
	}
	if held.IsNegative() {
		slog.Warn("held quantity is negative after delete", "item", item, "quantity", held.String())
	}
}
