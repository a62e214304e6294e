package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/snapshot"
)

func exportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the whole ledger",
		Long: `Export every bank account, category, vendor, opening balance and
transaction, deleted ones included, to a file or to standard output.

The format follows the file extension (.json, .yaml) unless --format is given;
standard output uses the configured default.`,
		Example: `  tally export ledger.json
  tally export - --format yaml > ledger.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			chosen, err := exportFormat(a, format, path)
			if err != nil {
				return err
			}

			doc, err := a.snapshots.ExportAll(cmd.Context())
			if err != nil {
				return err
			}

			if path == "-" {
				return snapshot.Encode(cmd.OutOrStdout(), doc, chosen)
			}

			f, err := os.Create(path) //nolint:gosec // path is chosen by the operator
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := snapshot.Encode(f, doc, chosen); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}

			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Exported %s to %s", describeCounts(doc), path)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "snapshot format (json, yaml)")
	return cmd
}

func exportFormat(a *app, flag, path string) (snapshot.Format, error) {
	if flag != "" {
		return snapshot.ParseFormat(flag)
	}
	if path == "-" {
		return a.settings.SnapshotFormat(), nil
	}
	return snapshot.FormatForPath(path), nil
}

// readDocument decodes a snapshot file; "-" reads standard input.
func readDocument(path, format string, stdin io.Reader) (*snapshot.Document, error) {
	chosen := snapshot.FormatForPath(path)
	if format != "" {
		var err error
		if chosen, err = snapshot.ParseFormat(format); err != nil {
			return nil, err
		}
	}

	if path == "-" {
		return snapshot.Decode(stdin, chosen)
	}
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	return snapshot.Decode(f, chosen)
}

func importCmd(a *app) *cobra.Command {
	var format string
	var yes, check bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the ledger with an exported snapshot",
		Long: `Replace the contents of the ledger with a snapshot written by 'tally export'.

The snapshot is checked in full before anything is changed, and an automatic
backup of the current ledger is taken first. Only an admin may import.`,
		Example: `  tally import ledger.json
  tally import ledger.yaml --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0], format, a.stdin)
			if err != nil {
				return err
			}
			if check {
				if err := snapshot.Validate(doc); err != nil {
					return err
				}
				printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Snapshot is valid: %s", describeCounts(doc))))
				return nil
			}
			return a.restore(cmd, doc, fmt.Sprintf("Replace the ledger with %s from %s?", describeCounts(doc), args[0]), yes)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "snapshot format (json, yaml)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&check, "check", false, "only validate the snapshot")
	return cmd
}

// restore confirms with the operator, then imports doc with a progress bar.
func (a *app) restore(cmd *cobra.Command, doc *snapshot.Document, question string, yes bool) error {
	ctx := cmd.Context()
	if err := snapshot.Validate(doc); err != nil {
		return err
	}

	if !yes {
		ok, err := cli.NewCLIPrompter(a.stdin, cmd.OutOrStdout()).Confirm(ctx, question)
		if err != nil {
			if errors.Is(err, cli.ErrInputTerminated) {
				return common.NewUserError("Import cancelled: no confirmation given (use --yes to skip)", err)
			}
			return err
		}
		if !ok {
			printLine(cmd, cli.FormatInfo("Import cancelled"))
			return nil
		}
	}

	collections := model.TrackedCollections()
	bar := cli.NewProgress(cmd.ErrOrStderr(), len(collections), "Importing")
	err := a.snapshots.ImportAll(ctx, doc, func(c model.Collection, done, _ int) {
		bar.Describe(string(c))
		bar.Set(done)
	})
	if err != nil {
		return describeImportFailure(ctx, err)
	}
	bar.Finish()

	printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Imported %s", describeCounts(doc))))
	return nil
}

func describeImportFailure(ctx context.Context, err error) error {
	var importErr *common.ImportError
	if !errors.As(err, &importErr) {
		return err
	}
	replaced := "none"
	if len(importErr.Replaced) > 0 {
		replaced = strings.Join(importErr.Replaced, ", ")
	}
	msg := fmt.Sprintf("Import failed while replacing %s; collections replaced: %s", importErr.Failed, replaced)
	if ctx.Err() != nil {
		msg = fmt.Sprintf("Import interrupted while replacing %s; collections replaced: %s", importErr.Failed, replaced)
	}
	return common.NewUserError(msg, err)
}

func describeCounts(doc *snapshot.Document) string {
	counts := doc.Count()
	return fmt.Sprintf("%d accounts, %d cash, %d bank and %d stock records",
		counts[string(model.CollectionBankAccounts)],
		counts[string(model.CollectionCashTransactions)],
		counts[string(model.CollectionBankTransactions)],
		counts[string(model.CollectionStockTransactions)])
}

func backupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage ledger backups",
		Long: `Manage named backups of the whole ledger. An automatic backup is also taken
before every import; only the newest automatic backups are kept.`,
	}

	var tag, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Back up the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := a.snapshots.ExportAll(cmd.Context())
			if err != nil {
				return err
			}
			metadata, err := a.archive.Create(cmd.Context(), tag, description, doc)
			if err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Created backup %s (%s)", metadata.ID, describeCounts(doc))))
			return nil
		},
	}
	create.Flags().StringVar(&tag, "tag", "", "backup name (default: backup-<timestamp>)")
	create.Flags().StringVarP(&description, "description", "d", "", "note stored with the backup")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := a.archive.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(backups))
			for _, b := range backups {
				kind := "manual"
				if b.IsAuto {
					kind = "auto"
				}
				rows = append(rows, []string{
					b.ID,
					b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					kind,
					strconv.FormatInt(b.FileSize, 10),
					b.Description,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"TAG", "CREATED", "KIND", "BYTES", "DESCRIPTION"}, rows)
			return nil
		},
	})

	var yes bool
	restore := &cobra.Command{
		Use:   "restore <tag>",
		Short: "Replace the ledger with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.archive.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.restore(cmd, doc, fmt.Sprintf("Replace the ledger with backup %s (%s)?", args[0], describeCounts(doc)), yes)
		},
	}
	restore.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.AddCommand(restore)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <tag>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.archive.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printLine(cmd, cli.FormatSuccess("Deleted backup "+args[0]))
			return nil
		},
	})

	return cmd
}
