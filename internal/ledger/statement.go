package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// StatementResult summarizes a bank statement import.
type StatementResult struct {
	Imported []model.BankTransaction
	Skipped  int // entries whose reference was already recorded on the account
}

// ImportBankStatement records statement entries against one bank account.
// Entries with a reference that the account already carries, deleted or not,
// are skipped so a statement can be imported more than once. Entries are
// recorded one at a time; on failure the entries before it stay recorded and
// the partial result is returned with the error.
func (l *Ledger) ImportBankStatement(ctx context.Context, accountID string, entries []BankInput, progress func(done, total int)) (*StatementResult, error) {
	for i := range entries {
		entries[i].BankAccountID = accountID
		if err := entries[i].validate(); err != nil {
			return nil, fmt.Errorf("statement entry %d: %w", i+1, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireInitialized(ctx); err != nil {
		return nil, err
	}
	if err := l.requireAccount(ctx, l.store, accountID); err != nil {
		return nil, err
	}

	result := &StatementResult{}
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ref := strings.TrimSpace(entry.Reference)
		if ref != "" {
			dup, err := l.hasReference(ctx, accountID, ref)
			if err != nil {
				return result, err
			}
			if dup {
				slog.Debug("skipping statement entry already recorded", "account", accountID, "reference", ref)
				result.Skipped++
				if progress != nil {
					progress(i+1, len(entries))
				}
				continue
			}
		}

		txn, err := l.recordBank(ctx, entry)
		if err != nil {
			return result, fmt.Errorf("statement entry %d: %w", i+1, err)
		}
		result.Imported = append(result.Imported, *txn)
		if progress != nil {
			progress(i+1, len(entries))
		}
	}

	slog.Info("bank statement imported", "account", accountID, "imported", len(result.Imported), "skipped", result.Skipped)
	return result, nil
}

func (l *Ledger) hasReference(ctx context.Context, accountID, ref string) (bool, error) {
	existing, err := l.store.GetBankTransactions(ctx, service.TransactionFilter{
		BankAccountID: accountID,
		Reference:     ref,
		Scope:         model.ScopeAll,
	})
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}
