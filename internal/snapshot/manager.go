package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/identity"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Progress is told when a collection has been replaced during an import.
type Progress func(collection model.Collection, done, total int)

// Manager exports and imports whole ledgers.
type Manager struct {
	ledger  *ledger.Ledger
	archive *Archive
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithArchive makes every import take an automatic backup first.
func WithArchive(archive *Archive) Option {
	return func(m *Manager) { m.archive = archive }
}

// WithClock overrides the export timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a snapshot manager for l.
func NewManager(l *ledger.Ledger, opts ...Option) *Manager {
	m := &Manager{ledger: l, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ExportAll reads every record of every tracked collection, soft-deleted
// ones included.
func (m *Manager) ExportAll(ctx context.Context) (*Document, error) {
	mu := m.ledger.Mutex()
	mu.RLock()
	defer mu.RUnlock()
	return m.export(ctx)
}

// export expects the ledger lock to be held.
func (m *Manager) export(ctx context.Context) (*Document, error) {
	s := m.ledger.Store()
	all := service.TransactionFilter{Scope: model.ScopeAll}
	d := &dataset{}

	var err error
	if d.accounts, err = s.GetBankAccounts(ctx); err != nil {
		return nil, fmt.Errorf("failed to export bank accounts: %w", err)
	}
	if d.categories, err = s.GetCategories(ctx, true); err != nil {
		return nil, fmt.Errorf("failed to export categories: %w", err)
	}
	if d.vendors, err = s.GetAllVendors(ctx); err != nil {
		return nil, fmt.Errorf("failed to export vendors: %w", err)
	}
	if d.initial, err = s.GetInitialBalance(ctx); err != nil {
		return nil, fmt.Errorf("failed to export initial balance: %w", err)
	}
	if d.cash, err = s.GetCashTransactions(ctx, all); err != nil {
		return nil, fmt.Errorf("failed to export cash transactions: %w", err)
	}
	if d.bank, err = s.GetBankTransactions(ctx, all); err != nil {
		return nil, fmt.Errorf("failed to export bank transactions: %w", err)
	}
	if d.stock, err = s.GetStockTransactions(ctx, all); err != nil {
		return nil, fmt.Errorf("failed to export stock transactions: %w", err)
	}

	doc := &Document{
		Version:     DocumentVersion,
		ExportedAt:  m.now().UTC(),
		Collections: encodeDataset(d),
	}
	slog.Debug("exported snapshot", "counts", doc.Count())
	return doc, nil
}

// Validate checks doc without writing anything.
func Validate(doc *Document) error {
	_, err := decodeDocument(doc)
	return err
}

// ImportAll replaces the contents of every tracked collection with doc.
//
// Only an admin may import. The whole document is checked before anything is
// written; a malformed document fails with an ImportValidationError and leaves
// the ledger untouched. When the store supports transactions every collection
// is replaced in one, so a failure leaves the prior data in place. Otherwise
// collections are replaced one at a time and a failure is reported as an
// ImportError naming the collections already replaced.
func (m *Manager) ImportAll(ctx context.Context, doc *Document, progress Progress) error {
	actor, err := identity.Require(ctx, m.ledger.Identity(), model.RoleAdmin)
	if err != nil {
		return err
	}

	data, err := decodeDocument(doc)
	if err != nil {
		return err
	}

	mu := m.ledger.Mutex()
	mu.Lock()
	defer mu.Unlock()

	if m.archive != nil {
		current, err := m.export(ctx)
		if err != nil {
			return fmt.Errorf("failed to back up before import: %w", err)
		}
		if _, err := m.archive.AutoBackup(ctx, "import", current); err != nil {
			return fmt.Errorf("failed to back up before import: %w", err)
		}
	}

	store := m.ledger.Store()
	if ts, ok := store.(service.TransactionalStore); ok {
		err = m.importInTx(ctx, ts, data, progress)
	} else {
		err = m.importSequential(ctx, store, data, progress)
	}
	if err != nil {
		return err
	}

	counts := doc.Count()
	slog.Info("snapshot imported", "actor", actor.ID, "counts", counts)
	m.ledger.Activity().AppendAs(ctx, actor, fmt.Sprintf("imported snapshot exported at %s (%d cash, %d bank, %d stock records)",
		doc.ExportedAt.UTC().Format(time.RFC3339),
		counts[string(model.CollectionCashTransactions)],
		counts[string(model.CollectionBankTransactions)],
		counts[string(model.CollectionStockTransactions)]))
	return nil
}

func (m *Manager) importInTx(ctx context.Context, ts service.TransactionalStore, data *dataset, progress Progress) error {
	tx, err := ts.BeginTx(ctx)
	if err != nil {
		return &common.ImportError{Failed: "begin", Err: err}
	}

	collections := model.TrackedCollections()
	for i, c := range collections {
		err = ctx.Err()
		if err == nil {
			err = replace(ctx, tx, c, data)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("failed to roll back import", "error", rbErr)
				err = errors.Join(err, rbErr)
			}
			return &common.ImportError{Failed: string(c), Err: err}
		}
		if progress != nil {
			progress(c, i+1, len(collections))
		}
	}

	if err := tx.Commit(); err != nil {
		return &common.ImportError{Failed: "commit", Err: err}
	}
	return nil
}

func (m *Manager) importSequential(ctx context.Context, s service.Store, data *dataset, progress Progress) error {
	collections := model.TrackedCollections()
	var replaced []string
	for i, c := range collections {
		err := ctx.Err()
		if err == nil {
			err = replace(ctx, s, c, data)
		}
		if err != nil {
			slog.Error("import stopped part way", "failed", c, "replaced", replaced, "error", err)
			return &common.ImportError{Failed: string(c), Replaced: replaced, Err: err}
		}
		replaced = append(replaced, string(c))
		if progress != nil {
			progress(c, i+1, len(collections))
		}
	}
	return nil
}

// replace clears one collection and writes the snapshot's records into it.
func replace(ctx context.Context, s service.Store, c model.Collection, data *dataset) error {
	if err := s.ClearCollection(ctx, c); err != nil {
		return err
	}

	switch c {
	case model.CollectionBankAccounts:
		for i := range data.accounts {
			if err := s.CreateBankAccount(ctx, &data.accounts[i]); err != nil {
				return err
			}
		}
	case model.CollectionCategories:
		for i := range data.categories {
			category := data.categories[i]
			if err := s.CreateCategory(ctx, &category); err != nil {
				return err
			}
		}
	case model.CollectionVendors:
		for i := range data.vendors {
			if err := s.SaveVendor(ctx, &data.vendors[i]); err != nil {
				return err
			}
		}
	case model.CollectionInitialBalance:
		if data.initial != nil {
			if err := s.CreateInitialBalance(ctx, data.initial); err != nil {
				return err
			}
		}
	case model.CollectionCashTransactions:
		for i := range data.cash {
			if err := s.CreateCashTransaction(ctx, &data.cash[i]); err != nil {
				return err
			}
		}
	case model.CollectionBankTransactions:
		for i := range data.bank {
			if err := s.CreateBankTransaction(ctx, &data.bank[i]); err != nil {
				return err
			}
		}
	case model.CollectionStockTransactions:
		for i := range data.stock {
			if err := s.CreateStockTransaction(ctx, &data.stock[i]); err != nil {
				return err
			}
		}
	}

	slog.Debug("replaced collection", "collection", c, "records", data.size(c))
	return nil
}
