package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func balanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show cash, bank and stock balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := a.ledger.Summary(cmd.Context())
			if err != nil {
				return err
			}
			if !summary.Initialized {
				printLine(cmd, cli.FormatWarning("Opening balances have not been set. Run 'tally init' first."))
				return nil
			}

			out := cmd.OutOrStdout()
			printLine(cmd, cli.FormatTitle("Balances"))
			printf(cmd, "%-12s %s\n", "Cash", cli.FormatAmount(summary.Cash))
			printf(cmd, "%-12s %s\n", "Bank", cli.FormatAmount(summary.BankTotal()))
			printf(cmd, "%-12s %s\n\n", "Stock", cli.FormatAmount(summary.Valuation))

			rows := make([][]string, 0, len(summary.Banks))
			for _, b := range summary.Banks {
				rows = append(rows, []string{b.Account.Name, cli.FormatAmount(b.Balance)})
			}
			printLine(cmd, cli.BoldStyle.Render("Bank accounts"))
			printTable(out, []string{"ACCOUNT", "BALANCE"}, rows)

			rows = make([][]string, 0, len(summary.Positions))
			for _, p := range summary.Positions {
				rows = append(rows, []string{
					p.Item,
					p.Quantity.String(),
					p.AveragePrice.StringFixed(2),
					cli.FormatAmount(p.Value),
				})
			}
			printLine(cmd, "")
			printLine(cmd, cli.BoldStyle.Render("Stock"))
			printTable(out, []string{"ITEM", "KG", "AVG PRICE", "VALUE"}, rows)
			return nil
		},
	}
}

// listFlags narrow a transaction listing.
type listFlags struct {
	from    string
	to      string
	account string
	item    string
	deleted bool
}

func (f *listFlags) filter(cmd *cobra.Command, l *ledger.Ledger) (service.TransactionFilter, error) {
	var filter service.TransactionFilter
	start, err := parseOptionalDate(f.from)
	if err != nil {
		return filter, err
	}
	end, err := parseOptionalDate(f.to)
	if err != nil {
		return filter, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return filter, common.NewValidationError("to", "must not be before --from")
	}
	filter.StartDate = start
	filter.EndDate = end
	filter.Item = f.item
	if f.deleted {
		filter.Scope = model.ScopeAll
	}
	if f.account != "" {
		account, err := resolveAccount(cmd.Context(), l, f.account)
		if err != nil {
			return filter, err
		}
		filter.BankAccountID = account.ID
	}
	return filter, nil
}

func listCmd(a *app) *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "list <cash|bank|stock|transfers>",
		Short: "List recorded transactions",
		Long: `List recorded transactions, oldest first. Deleted transactions are hidden
unless --deleted is given. Transfers are listed while both legs are live.`,
		Example: `  tally list cash --from 2024-01-01
  tally list bank --account Main --deleted
  tally list stock --item Rice`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"cash", "bank", "stock", "transfers"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filter, err := f.filter(cmd, a.ledger)
			if err != nil {
				return err
			}
			names, err := accountNames(ctx, a.ledger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch strings.ToLower(args[0]) {
			case "cash":
				txns, err := a.ledger.CashTransactions(ctx, filter)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(txns))
				for _, t := range txns {
					rows = append(rows, []string{
						t.ID, formatDate(t.Date), string(t.Direction), cli.FormatAmount(t.Signed()),
						t.Category, t.Vendor, t.Description, status(t.DeletedAt),
					})
				}
				printTable(out, []string{"ID", "DATE", "DIRECTION", "AMOUNT", "CATEGORY", "VENDOR", "DESCRIPTION", "STATUS"}, rows)

			case "bank":
				txns, err := a.ledger.BankTransactions(ctx, filter)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(txns))
				for _, t := range txns {
					rows = append(rows, []string{
						t.ID, formatDate(t.Date), names[t.BankAccountID], string(t.Direction), cli.FormatAmount(t.Signed()),
						t.Category, t.Vendor, t.Description, status(t.DeletedAt),
					})
				}
				printTable(out, []string{"ID", "DATE", "ACCOUNT", "DIRECTION", "AMOUNT", "CATEGORY", "VENDOR", "DESCRIPTION", "STATUS"}, rows)

			case "stock":
				txns, err := a.ledger.StockTransactions(ctx, filter)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(txns))
				for _, t := range txns {
					paid := string(t.Payment)
					if t.Payment == model.PayBank {
						paid = names[t.BankAccountID]
					}
					rows = append(rows, []string{
						t.ID, formatDate(t.Date), string(t.Kind), t.Item, t.Weight.String(), t.Price.StringFixed(2),
						cli.FormatAmount(t.SignedTotal()), paid, status(t.DeletedAt),
					})
				}
				printTable(out, []string{"ID", "DATE", "KIND", "ITEM", "KG", "PRICE", "TOTAL", "PAID", "STATUS"}, rows)

			case "transfers":
				transfers, err := a.ledger.Transfers(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(transfers))
				for _, t := range transfers {
					rows = append(rows, []string{
						t.ID, formatDate(t.Cash.Date), string(t.Direction()), names[t.Bank.BankAccountID],
						t.Cash.Amount.StringFixed(2), t.Cash.Description,
					})
				}
				printTable(out, []string{"ID", "DATE", "DIRECTION", "ACCOUNT", "AMOUNT", "DESCRIPTION"}, rows)

			default:
				return common.NewValidationError("kind", fmt.Sprintf("must be cash, bank, stock or transfers, got %q", args[0]))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.from, "from", "", "earliest date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "latest date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.account, "account", "", "only this bank account")
	cmd.Flags().StringVar(&f.item, "item", "", "only this stock item")
	cmd.Flags().BoolVar(&f.deleted, "deleted", false, "include deleted transactions")
	return cmd
}
