package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
)

func accountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := a.ledger.BankAccounts(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(accounts))
			for _, acct := range accounts {
				rows = append(rows, []string{acct.ID, acct.Name, formatDate(acct.CreatedAt)})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CREATED"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add a bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := a.ledger.CreateBankAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Added bank account %s %s", acct.Name, cli.SubtleStyle.Render(acct.ID))))
			return nil
		},
	})

	return cmd
}

func categoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := a.ledger.Categories(cmd.Context(), all)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(categories))
			for _, c := range categories {
				active := "yes"
				if !c.IsActive {
					active = "no"
				}
				rows = append(rows, []string{strconv.Itoa(c.ID), c.Name, string(c.Type), c.Description, active})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "TYPE", "DESCRIPTION", "ACTIVE"}, rows)
			return nil
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include removed categories")
	cmd.AddCommand(list)

	var kind, description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.ledger.AddCategory(cmd.Context(), args[0], description, model.CategoryType(strings.ToLower(kind)))
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Added %s category %s", c.Type, c.Name)))
			return nil
		},
	}
	add.Flags().StringVarP(&kind, "type", "t", string(model.CategoryTypeExpense), "category type (income, expense)")
	add.Flags().StringVarP(&description, "description", "d", "", "what belongs in the category")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a category",
		Long:  "Remove a category. Transactions already filed under it keep their category.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ledger.RemoveCategory(cmd.Context(), args[0]); err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess("Removed category "+args[0]))
			return nil
		},
	})

	return cmd
}

func vendorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Manage vendors and their default categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List vendors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vendors, err := a.ledger.Vendors(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(vendors))
			for _, v := range vendors {
				rows = append(rows, []string{v.Name, v.Category, strconv.Itoa(v.UseCount), formatDate(v.LastUpdated)})
			}
			printTable(cmd.OutOrStdout(), []string{"NAME", "CATEGORY", "USES", "UPDATED"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <category>",
		Short: "Set the default category for a vendor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.ledger.SetVendor(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("%s now files under %s", v.Name, v.Category)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Forget a vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ledger.RemoveVendor(cmd.Context(), args[0]); err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess("Removed vendor "+args[0]))
			return nil
		},
	})

	return cmd
}
