package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
)

func initCmd(a *app) *cobra.Command {
	var cash string
	var banks []string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set the opening balances",
		Long: `Set the opening cash and bank balances. This can be done once; nothing
else can be recorded until it has been done. Bank accounts named here that do
not exist yet are created.`,
		Example: `  tally init --cash 1000 --bank Main=500 --bank Savings=25.75`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			opening := ledger.OpeningBalances{Bank: map[string]decimal.Decimal{}}
			amount, err := parseAmount("cash", cash)
			if err != nil {
				return err
			}
			opening.Cash = amount

			for _, entry := range banks {
				name, value, ok := strings.Cut(entry, "=")
				if !ok || strings.TrimSpace(name) == "" {
					return common.NewValidationError("bank", fmt.Sprintf("expected NAME=AMOUNT, got %q", entry))
				}
				amount, err := parseAmount("bank", value)
				if err != nil {
					return err
				}
				account, err := resolveAccount(ctx, a.ledger, strings.TrimSpace(name))
				var missing *common.ReferenceError
				if errors.As(err, &missing) {
					account, err = a.ledger.CreateBankAccount(ctx, strings.TrimSpace(name))
				}
				if err != nil {
					return err
				}
				opening.Bank[account.ID] = amount
			}

			if _, err := a.ledger.SetInitialBalance(ctx, opening); err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Opening balances set: cash %s, %d bank account(s)",
				opening.Cash.StringFixed(2), len(opening.Bank))))
			return nil
		},
	}

	cmd.Flags().StringVar(&cash, "cash", "0", "opening cash balance")
	cmd.Flags().StringArrayVar(&banks, "bank", nil, "opening bank balance as NAME=AMOUNT (repeatable)")
	return cmd
}

// entryFlags are the optional fields shared by cash and bank entries.
type entryFlags struct {
	date        string
	category    string
	vendor      string
	description string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "transaction date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category (default: the vendor's, else Uncategorized)")
	cmd.Flags().StringVar(&f.vendor, "vendor", "", "counterparty")
	cmd.Flags().StringVarP(&f.description, "message", "m", "", "description")
}

func cashCmd(a *app) *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:   "cash <income|expense> <amount>",
		Short: "Record a cash transaction",
		Example: `  tally cash income 120 -c Sales -m "market stall"
  tally cash expense 200 --vendor Landlord`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(f.date)
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}

			txn, err := a.ledger.RecordCash(cmd.Context(), ledger.CashInput{
				Date:        date,
				Direction:   model.CashDirection(strings.ToLower(args[0])),
				Amount:      amount,
				Category:    f.category,
				Vendor:      f.vendor,
				Description: f.description,
			})
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Recorded cash %s %s (%s) %s",
				txn.Direction, txn.Amount.StringFixed(2), txn.Category, cli.SubtleStyle.Render(txn.ID))))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func bankCmd(a *app) *cobra.Command {
	var f entryFlags
	var reference string

	cmd := &cobra.Command{
		Use:   "bank <deposit|withdrawal> <account> <amount>",
		Short: "Record a bank transaction",
		Example: `  tally bank deposit Main 300 -c Sales
  tally bank withdrawal Main 45.10 -c Utilities --ref INV-2291`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			date, err := parseDate(f.date)
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[2])
			if err != nil {
				return err
			}
			account, err := resolveAccount(ctx, a.ledger, args[1])
			if err != nil {
				return err
			}

			direction := strings.ToLower(args[0])
			if direction == "withdraw" {
				direction = string(model.BankWithdrawal)
			}

			txn, err := a.ledger.RecordBank(ctx, ledger.BankInput{
				Date:          date,
				BankAccountID: account.ID,
				Direction:     model.BankDirection(direction),
				Amount:        amount,
				Category:      f.category,
				Vendor:        f.vendor,
				Description:   f.description,
				Reference:     reference,
			})
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Recorded bank %s %s on %s (%s) %s",
				txn.Direction, txn.Amount.StringFixed(2), account.Name, txn.Category, cli.SubtleStyle.Render(txn.ID))))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&reference, "ref", "", "external reference, e.g. a statement line id")
	return cmd
}

func stockCmd(a *app) *cobra.Command {
	var date, payment, account, vendor string

	cmd := &cobra.Command{
		Use:   "stock <purchase|sale> <item> <weight> <price>",
		Short: "Record a stock purchase or sale",
		Long: `Record a purchase or sale of an item by weight (kg) at a price per kg.
A sale larger than the quantity currently held is refused.`,
		Example: `  tally stock purchase Rice 50 20
  tally stock sale Rice 20 25 --pay bank --account Main`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			when, err := parseDate(date)
			if err != nil {
				return err
			}
			weight, err := parseAmount("weight", args[2])
			if err != nil {
				return err
			}
			price, err := parseAmount("price", args[3])
			if err != nil {
				return err
			}

			kind := strings.ToLower(args[0])
			switch kind {
			case "buy":
				kind = string(model.StockPurchase)
			case "sell":
				kind = string(model.StockSale)
			}

			in := ledger.StockInput{
				Date:    when,
				Item:    args[1],
				Kind:    model.StockKind(kind),
				Payment: model.PaymentMethod(strings.ToLower(payment)),
				Weight:  weight,
				Price:   price,
				Vendor:  vendor,
			}
			if account != "" {
				acct, err := resolveAccount(ctx, a.ledger, account)
				if err != nil {
					return err
				}
				in.BankAccountID = acct.ID
			}

			txn, err := a.ledger.RecordStock(ctx, in)
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Recorded %s of %s kg %s for %s (%s) %s",
				txn.Kind, txn.Weight.String(), txn.Item, txn.Total().StringFixed(2), txn.Payment, cli.SubtleStyle.Render(txn.ID))))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "transaction date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&payment, "pay", string(model.PayCash), "payment method (cash, bank)")
	cmd.Flags().StringVar(&account, "account", "", "bank account for bank payments")
	cmd.Flags().StringVar(&vendor, "vendor", "", "supplier or customer")
	return cmd
}

func transferCmd(a *app) *cobra.Command {
	var date, description string

	cmd := &cobra.Command{
		Use:   "transfer <deposit|withdraw> <account> <amount>",
		Short: "Move money between cash and a bank account",
		Long: `Move money between cash and a bank account. deposit moves cash into the
account, withdraw moves money from the account into cash. Both sides are
recorded together or not at all.`,
		Example: `  tally transfer deposit Main 300
  tally transfer withdraw Savings 50 -m "petty cash"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			direction, err := ledger.ParseTransferDirection(args[0])
			if err != nil {
				return err
			}
			when, err := parseDate(date)
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[2])
			if err != nil {
				return err
			}
			account, err := resolveAccount(ctx, a.ledger, args[1])
			if err != nil {
				return err
			}

			t, err := a.ledger.Transfer(ctx, ledger.TransferInput{
				Date:          when,
				Direction:     direction,
				BankAccountID: account.ID,
				Description:   description,
				Amount:        amount,
			})
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Transferred %s %s (%s) %s",
				t.Cash.Amount.StringFixed(2), t.Direction(), account.Name, cli.SubtleStyle.Render(t.ID))))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "transfer date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&description, "message", "m", "", "description")
	return cmd
}
