package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	"github.com/JonMunkholm/bookkeeper/internal/admin"
	"github.com/JonMunkholm/bookkeeper/internal/application"
	"github.com/JonMunkholm/bookkeeper/internal/config"
	"github.com/JonMunkholm/bookkeeper/internal/core"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/reconcile"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
)

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var commands = []subcommands.Command{
	&importCmd{},
	&exportCmd{},
	&restoreCmd{},
	&reconcileCmd{},
	&balanceCmd{},
	&backupCmd{},
	&resetCmd{},
}

// run loads the configuration, builds the application and calls fn. Errors
// are reported as user messages; background backups are awaited before the
// store is closed.
func run(ctx context.Context, fn func(ctx context.Context, app *application.App) error) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	// Logs go to stderr so stdout stays clean for exported documents.
	slog.SetDefault(logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format))

	app, err := application.Build(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer app.Close()

	err = fn(ctx, app)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Backup.Timeout)
	defer cancel()
	if werr := app.Service.WaitForBackups(waitCtx); werr != nil {
		slog.Warn("backups still running at exit", "error", werr)
	}

	if err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

func fail(err error) subcommands.ExitStatus {
	if core.IsUserFacing(err) {
		fmt.Fprintln(stderr, core.FormatUserError(err))
		slog.Debug("error detail", "error", err)
	} else {
		fmt.Fprintln(stderr, "error:", err)
	}
	return subcommands.ExitFailure
}

type importCmd struct {
	verbose bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import bank statement CSV exports into the ledger" }
func (*importCmd) Usage() string {
	return `ledgerctl import [-v] FILE...

  Books every row of each statement that is not already in the ledger. Each
  file is committed on its own; a file that cannot be read leaves the ledger
  unchanged.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.verbose, "v", false, "List rejected and already booked rows.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(stderr, "import: at least one FILE is required")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, app *application.App) error {
		var errs []error
		for _, name := range f.Args() {
			if err := c.importFile(ctx, app.Service, name); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (c *importCmd) importFile(ctx context.Context, svc *core.Service, name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := svc.Import(ctx, name, file)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, res.Summary(svc.Currency()))
	if c.verbose {
		for _, s := range res.Skipped {
			fmt.Fprintf(stdout, "  line %d: already booked as %s\n", s.Line, s.DuplicateOf)
		}
		for _, fr := range res.Failed {
			fmt.Fprintf(stdout, "  line %d: %s\n", fr.Line, fr.Reason)
		}
	}
	return nil
}

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the ledger as a snapshot document" }
func (*exportCmd) Usage() string {
	return `ledgerctl export [-o FILE]

  Writes the committed ledger as JSON to FILE, or to stdout.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file (default stdout).")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, app *application.App) error {
		doc, err := app.Service.Export(ctx)
		if err != nil {
			return err
		}
		if c.output == "" {
			return snapshot.Encode(stdout, doc)
		}

		file, err := os.Create(c.output)
		if err != nil {
			return err
		}
		if err := snapshot.Encode(file, doc); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "exported %d transactions to %s\n", len(doc.Transactions), c.output)
		return nil
	})
}

type restoreCmd struct {
	latest bool
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace the ledger with a snapshot or the newest backup" }
func (*restoreCmd) Usage() string {
	return `ledgerctl restore FILE | -latest

  Replaces the whole ledger. Entries whose references cannot be resolved are
  skipped and listed.
`
}

func (c *restoreCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.latest, "latest", false, "Restore the newest backup instead of FILE.")
}

func (c *restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.latest == (f.NArg() == 1) || f.NArg() > 1 {
		fmt.Fprintln(stderr, "restore: give either FILE or -latest")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, app *application.App) error {
		if c.latest {
			name, stats, err := app.Service.RestoreLatest(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "restored backup %s\n", name)
			printStats(stats)
			return nil
		}

		doc, err := readSnapshot(f.Arg(0))
		if err != nil {
			return err
		}
		stats, err := app.Service.Restore(ctx, doc)
		if err != nil {
			return err
		}
		printStats(stats)
		return nil
	})
}

type reconcileCmd struct {
	strategy string
	asJSON   bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "merge a snapshot from another replica into the ledger" }
func (*reconcileCmd) Usage() string {
	return `ledgerctl reconcile [-strategy S] [-json] FILE

  Strategies: replace, merge, preserve-local, ask-user. Nothing is changed
  unless the whole reconciliation succeeds.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.strategy, "strategy", string(reconcile.Merge), "Reconciliation strategy.")
	f.BoolVar(&c.asJSON, "json", false, "Print the result as JSON.")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "reconcile: exactly one FILE is required")
		return subcommands.ExitUsageError
	}
	strategy, err := reconcile.ParseStrategy(c.strategy)
	if err != nil {
		return fail(err)
	}
	return run(ctx, func(ctx context.Context, app *application.App) error {
		doc, err := readSnapshot(f.Arg(0))
		if err != nil {
			return err
		}
		res, err := app.Service.Reconcile(ctx, doc, strategy)
		if c.asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if jerr := enc.Encode(res); jerr != nil {
				return jerr
			}
		}
		if err != nil {
			return err
		}
		if !c.asJSON {
			fmt.Fprintf(stdout, "reconciled with %s\n", res.Strategy)
			printStats(res.Stats)
			if res.PendingDecision {
				fmt.Fprintln(stdout, "remote ledger applied; review pending")
			}
		}
		return nil
	})
}

type balanceCmd struct{}

func (*balanceCmd) Name() string             { return "balance" }
func (*balanceCmd) Synopsis() string         { return "print the balance of an account" }
func (*balanceCmd) Usage() string            { return "ledgerctl balance ACCOUNT\n" }
func (*balanceCmd) SetFlags(_ *flag.FlagSet) {}

func (*balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "balance: exactly one ACCOUNT is required")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, app *application.App) error {
		bal, err := app.Service.Balance(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: %s\n", f.Arg(0), ledger.FormatMoney(bal, app.Service.Currency()))
		return nil
	})
}

type backupCmd struct{}

func (*backupCmd) Name() string             { return "backup" }
func (*backupCmd) Synopsis() string         { return "write a backup of the ledger now" }
func (*backupCmd) Usage() string            { return "ledgerctl backup\n" }
func (*backupCmd) SetFlags(_ *flag.FlagSet) {}

func (*backupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, app *application.App) error {
		name, err := app.Service.Backup(ctx, "manual")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, name)
		return nil
	})
}

type resetCmd struct {
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "remove every entity from the ledger" }
func (*resetCmd) Usage() string {
	return `ledgerctl reset -yes

  Deletes all groups, accounts, categories and transactions. When backups
  are configured a backup is written first.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm the reset.")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(stderr, "reset: refusing to delete the ledger without -yes")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, app *application.App) error {
		name, err := app.Service.Backup(ctx, "reset")
		switch {
		case errors.Is(err, core.ErrBackupsDisabled):
		case err != nil:
			return fmt.Errorf("backup before reset: %w", err)
		default:
			fmt.Fprintf(stdout, "backup %s written\n", name)
		}

		counts, err := admin.ResetAll(ctx, app.Store)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "removed %s\n", counts)
		return nil
	})
}

func readSnapshot(name string) (*snapshot.Document, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return snapshot.Decode(file)
}

func printStats(s snapshot.Stats) {
	fmt.Fprintf(stdout, "created %d groups, %d accounts, %d categories, %d transactions\n",
		s.Groups, s.Accounts, s.Categories, s.Transactions)
	for _, sk := range s.Skipped {
		fmt.Fprintf(stdout, "  skipped %s %s: %s\n", sk.Entity, sk.Name, sk.Reason)
	}
}
