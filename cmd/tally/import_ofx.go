package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ofx"
)

func importOFXCmd(a *app) *cobra.Command {
	var account, statementID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-ofx <file>...",
		Short: "Record bank statement lines from OFX/QFX files",
		Long: `Record the lines of downloaded OFX/QFX bank statements as deposits and
withdrawals on one bank account. Lines already recorded on the account (matched
by their statement id) are skipped, so overlapping downloads can be imported
again safely.

When a file holds statements for several bank accounts, choose one with
--statement or answer the prompt.`,
		Example: `  tally import-ofx ~/Downloads/checking.qfx --account Main
  tally import-ofx jan.ofx feb.ofx --account Main --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := resolveAccount(ctx, a.ledger, account)
			if err != nil {
				return err
			}

			parser := ofx.NewParser()
			var selected []ofx.Statement
			for _, path := range args {
				f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				statements, err := parser.ParseFile(ctx, f)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				stmt, err := pickStatement(cmd, a, path, statements, statementID)
				if err != nil {
					return err
				}
				selected = append(selected, stmt)
			}

			if dryRun {
				var rows [][]string
				for _, stmt := range selected {
					for _, e := range stmt.Entries {
						rows = append(rows, []string{
							formatDate(e.Date), string(e.Direction), e.Amount.StringFixed(2), e.Vendor, e.Description, e.Reference,
						})
					}
				}
				printTable(cmd.OutOrStdout(), []string{"DATE", "DIRECTION", "AMOUNT", "VENDOR", "DESCRIPTION", "REF"}, rows)
				printLine(cmd, cli.FormatInfo(fmt.Sprintf("Dry run: %d line(s) would be offered to %s", len(rows), target.Name)))
				return nil
			}

			imported, skipped := 0, 0
			for _, stmt := range selected {
				bar := cli.NewProgress(cmd.ErrOrStderr(), len(stmt.Entries), "Recording "+stmt.AccountID)
				result, err := a.ledger.ImportBankStatement(ctx, target.ID, stmt.Entries, bar.Steps())
				if result != nil {
					imported += len(result.Imported)
					skipped += result.Skipped
				}
				if err != nil {
					return common.NewUserError(
						fmt.Sprintf("Statement import stopped after recording %d line(s)", imported), err)
				}
				bar.Finish()
			}

			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Recorded %d line(s) on %s, skipped %d already recorded",
				imported, target.Name, skipped)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "bank account to record the lines on")
	cmd.Flags().StringVar(&statementID, "statement", "", "account number of the statement to use when a file holds several")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the lines without recording them")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// pickStatement chooses which statement in a file to record.
func pickStatement(cmd *cobra.Command, a *app, path string, statements []ofx.Statement, want string) (ofx.Statement, error) {
	if want != "" {
		for _, s := range statements {
			if s.AccountID == want {
				return s, nil
			}
		}
		return ofx.Statement{}, common.NewValidationError("statement", fmt.Sprintf("%s has no statement for account %q", path, want))
	}

	switch len(statements) {
	case 0:
		return ofx.Statement{}, common.NewValidationError("file", path+" holds no bank or credit card statements")
	case 1:
		return statements[0], nil
	}

	options := make([]string, len(statements))
	for i, s := range statements {
		options[i] = fmt.Sprintf("%s (%d lines)", s.AccountID, len(s.Entries))
	}
	idx, err := cli.NewCLIPrompter(a.stdin, cmd.OutOrStdout()).Choose(cmd.Context(),
		fmt.Sprintf("%s holds several statements. Which one?", path), options)
	if err != nil {
		return ofx.Statement{}, err
	}
	return statements[idx], nil
}
