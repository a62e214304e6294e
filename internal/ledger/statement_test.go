package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/testutil"
)

func statementEntries(t *testing.T) []ledger.BankInput {
	t.Helper()
	return []ledger.BankInput{
		{Date: testutil.Day(1), Direction: model.BankWithdrawal, Amount: testutil.Dec(t, "25.50"), Reference: "F1", Description: "fees", Category: "Bank Fees"},
		{Date: testutil.Day(2), Direction: model.BankDeposit, Amount: testutil.Dec(t, "400"), Reference: "F2", Description: "customer"},
		{Date: testutil.Day(3), Direction: model.BankWithdrawal, Amount: testutil.Dec(t, "10"), Description: "no reference"},
	}
}

func TestImportBankStatement(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	main := db.MustAccount("Main")

	var calls []int
	progress := func(done, total int) {
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	}

	result, err := db.Ledger.ImportBankStatement(ctx, main, statementEntries(t), progress)
	require.NoError(t, err)
	assert.Len(t, result.Imported, 3)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, []int{1, 2, 3}, calls)
	assertDecimal(t, "864.50", bankBalance(t, db.Ledger, main))
	assert.Equal(t, model.CategoryUncategorized, result.Imported[1].Category)

	t.Run("reimport skips known references", func(t *testing.T) {
		again, err := db.Ledger.ImportBankStatement(ctx, main, statementEntries(t), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, again.Skipped)
		// Entries without a reference cannot be matched and are recorded again.
		assert.Len(t, again.Imported, 1)
		assertDecimal(t, "854.50", bankBalance(t, db.Ledger, main))
	})

	t.Run("deleted entries stay skipped", func(t *testing.T) {
		require.NoError(t, db.Ledger.SoftDelete(ctx, model.CollectionBankTransactions, result.Imported[0].ID))
		again, err := db.Ledger.ImportBankStatement(ctx, main, statementEntries(t)[:1], nil)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Skipped)
		assert.Empty(t, again.Imported)
	})
}

func TestImportBankStatementErrors(t *testing.T) {
	ctx := context.Background()
	db := setup(t)

	_, err := db.Ledger.ImportBankStatement(ctx, "ghost", statementEntries(t), nil)
	require.ErrorIs(t, err, common.ErrReference)

	bad := statementEntries(t)
	bad[1].Amount = testutil.Dec(t, "0")
	_, err = db.Ledger.ImportBankStatement(ctx, db.MustAccount("Main"), bad, nil)
	require.ErrorIs(t, err, common.ErrValidation)

	// Validation happens before anything is written.
	assertDecimal(t, "500", bankBalance(t, db.Ledger, db.MustAccount("Main")))
}
