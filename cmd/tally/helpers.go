package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty value is today.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, common.NewValidationError("date", fmt.Sprintf("expected YYYY-MM-DD, got %q", s))
	}
	return t.UTC(), nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, common.NewValidationError(field, fmt.Sprintf("%q is not a number", s))
	}
	return d, nil
}

// resolveAccount finds a bank account by id or, ignoring case, by name.
func resolveAccount(ctx context.Context, l *ledger.Ledger, ref string) (*model.BankAccount, error) {
	accounts, err := l.BankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == ref {
			return &accounts[i], nil
		}
	}
	for i := range accounts {
		if strings.EqualFold(accounts[i].Name, ref) {
			return &accounts[i], nil
		}
	}
	return nil, &common.ReferenceError{Kind: "bank account", ID: ref}
}

// accountNames maps account ids to names for display.
func accountNames(ctx context.Context, l *ledger.Ledger) (map[string]string, error) {
	accounts, err := l.BankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}
	return names, nil
}

// parseKind maps the short names used on the command line to collections.
func parseKind(s string) (model.Collection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", string(model.CollectionCashTransactions):
		return model.CollectionCashTransactions, nil
	case "bank", string(model.CollectionBankTransactions):
		return model.CollectionBankTransactions, nil
	case "stock", string(model.CollectionStockTransactions):
		return model.CollectionStockTransactions, nil
	default:
		return "", common.NewValidationError("kind", fmt.Sprintf("must be cash, bank or stock, got %q", s))
	}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func printLine(cmd *cobra.Command, s string) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, cli.SubtleStyle.Render("(none)"))
		return
	}
	_, _ = fmt.Fprintln(w, cli.RenderTable(headers, rows))
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func status(deletedAt *time.Time) string {
	if deletedAt == nil {
		return "live"
	}
	return "deleted " + formatDate(*deletedAt)
}
