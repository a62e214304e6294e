package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/snapshot"
	"github.com/Veraticus/tally/internal/storage"
)

var version = "dev"

// skipLedger marks commands that run without opening the database.
const skipLedger = "skip-ledger"

// app holds what every command needs once configuration has been read.
type app struct {
	v         *viper.Viper
	stdin     io.Reader
	logOut    io.Writer
	settings  *config.Settings
	store     *storage.SQLiteStorage
	ledger    *ledger.Ledger
	archive   *snapshot.Archive
	snapshots *snapshot.Manager
	cfgFile   string
}

func newApp(stdin io.Reader, logOut io.Writer) *app {
	return &app{v: viper.New(), stdin: stdin, logOut: logOut}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tally",
		Short: "📒 Small-business bookkeeping ledger",
		Long: `tally keeps the books of a small business: cash, bank accounts and stock.

Balances are always derived from the recorded transactions and the opening
balances; deleted transactions can be restored, transfers move money between
cash and the bank as one unit, and the whole ledger can be exported, backed up
and restored.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.preRun,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/tally/config.yaml)")
	flags.String("database", "", "ledger database path (default: $HOME/.local/share/tally/tally.db)")
	flags.String("actor", "", "actor id recorded in the activity log (default: the OS user)")
	flags.String("role", "", "actor role (admin, clerk)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	_ = a.v.BindPFlag("database.path", flags.Lookup("database"))
	_ = a.v.BindPFlag("actor.id", flags.Lookup("actor"))
	_ = a.v.BindPFlag("actor.role", flags.Lookup("role"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(initCmd(a))
	rootCmd.AddCommand(cashCmd(a))
	rootCmd.AddCommand(bankCmd(a))
	rootCmd.AddCommand(stockCmd(a))
	rootCmd.AddCommand(transferCmd(a))
	rootCmd.AddCommand(balanceCmd(a))
	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(deleteCmd(a))
	rootCmd.AddCommand(restoreCmd(a))
	rootCmd.AddCommand(accountsCmd(a))
	rootCmd.AddCommand(categoriesCmd(a))
	rootCmd.AddCommand(vendorsCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(importCmd(a))
	rootCmd.AddCommand(backupCmd(a))
	rootCmd.AddCommand(activityCmd(a))
	rootCmd.AddCommand(importOFXCmd(a))
	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	handler := cli.NewInterruptHandler(os.Stderr)
	ctx := handler.HandleInterrupts(context.Background(),
		"Stopping at the next safe point. An interrupted import reports which collections it replaced.")

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(describeError(err)))
		os.Exit(1)
	}
}

// run executes the command line in args and releases the database afterwards.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := newApp(stdin, stderr)
	defer a.close()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

func describeError(err error) string {
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}

func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	if err := a.initConfig(); err != nil {
		return err
	}
	if cmd.Annotations[skipLedger] == "true" {
		return nil
	}
	return a.open(cmd.Context(), true)
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		a.v.AddConfigPath(filepath.Join(home, ".config", "tally"))
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("TALLY")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	settings, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.settings = settings

	if err := common.SetupLogger(a.logOut, settings.LogLevel(), settings.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

// open connects to the database, retrying while it is busy, and builds the
// ledger over it.
func (a *app) open(ctx context.Context, migrate bool) error {
	var store *storage.SQLiteStorage
	err := common.WithRetry(ctx, func() error {
		s, err := storage.NewSQLiteStorage(a.settings.Database.Path)
		if err != nil {
			return err
		}
		store = s
		return nil
	}, service.RetryOptions{MaxAttempts: 3})
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	a.store = store

	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	provider, err := a.settings.Identity()
	if err != nil {
		return err
	}
	a.ledger = ledger.New(store, ledger.WithIdentity(provider))

	archive, err := snapshot.NewArchive(a.settings.Backups.Dir, a.settings.Backups.KeepAuto)
	if err != nil {
		return err
	}
	a.archive = archive
	a.snapshots = snapshot.NewManager(a.ledger, snapshot.WithArchive(archive))

	slog.Debug("ledger opened", "database", a.settings.Database.Path, "backups", a.settings.Backups.Dir)
	return nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
	a.store = nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipLedger: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tally %s\n", version)
		},
	}
}
