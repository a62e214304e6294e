package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/service"
)

func activityCmd(a *app) *cobra.Command {
	var limit int
	var newest bool

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show who changed what",
		Long:  "Show the activity log: every change to the ledger with the actor who made it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.ledger.Activity().List(cmd.Context(), service.ActivityFilter{Limit: limit, Newest: newest})
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					e.ActorLabel,
					e.Description,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"WHEN", "WHO", "WHAT"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many entries")
	cmd.Flags().BoolVar(&newest, "newest", false, "newest first")
	return cmd
}
