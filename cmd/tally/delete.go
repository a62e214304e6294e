package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
)

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cash|bank|stock> <id>",
		Short: "Delete a transaction",
		Long: `Delete a transaction. Deleted transactions stop counting towards balances
but are kept, and can be brought back with 'tally restore'. Deleting either leg
of a transfer deletes both.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := parseKind(args[0])
			if err != nil {
				return err
			}
			if err := a.ledger.SoftDelete(cmd.Context(), collection, args[1]); err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Deleted %s transaction %s", args[0], args[1])))
			return nil
		},
	}
}

func restoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <cash|bank|stock> <id>",
		Short: "Restore a deleted transaction",
		Long: `Restore a deleted transaction. Restoring either leg of a transfer restores
both. A stock sale cannot be restored while less stock is held than it sold.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := parseKind(args[0])
			if err != nil {
				return err
			}
			if err := a.ledger.Restore(cmd.Context(), collection, args[1]); err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Restored %s transaction %s", args[0], args[1])))
			return nil
		},
	}
}
