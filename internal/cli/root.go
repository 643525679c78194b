package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"moneyflow/internal/backend"
	"moneyflow/internal/config"
	"moneyflow/internal/core"
	"moneyflow/internal/log"
)

// RootOptions holds global flags and the dependencies shared by every
// command. Config, Logger, OpenStore and Now are resolved from the
// environment when left nil.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DB      string

	Config    *config.Config
	Logger    *log.Logger
	OpenStore func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error)
	Now       func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of recurctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurctl",
		Short: "Inspect and run recurring transactions",
		Long: `recurctl works on the moneyflow store directly.

It shows which recurring transactions are due, projects their next dates,
runs the daily job by hand and manages definitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging on stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.AddCommand(NewDueCommand(opts))
	cmd.AddCommand(NewNextCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRecurringCommand(opts))

	return cmd
}

// Execute runs recurctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Message != "" || exitErr.Err != nil {
		out := stderr
		if opts.Format == "json" {
			out = stdout
		}
		_ = (&OutputFormatter{Format: opts.Format, Writer: out}).Error(err)
	}
	return GetExitCode(err)
}

func (o *RootOptions) resolve(stderr io.Writer) error {
	if o.Config == nil {
		LoadEnvFile()
		cfg, err := config.Load()
		if err != nil {
			return WrapExitError(ExitCommandError, "load configuration", err)
		}
		o.Config = cfg
	}
	if o.DB != "" {
		o.Config.DataBackend = string(backend.SQLiteBackend)
		o.Config.SQLiteDBPath = o.DB
	}
	if err := o.Config.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if o.Logger == nil {
		// Logs go to stderr so JSON on stdout stays parseable.
		lc := log.DefaultConfig()
		lc.Output = stderr
		lc.Format = o.Config.LogFormat
		lc.Component = log.ComponentCLI
		lc.Level = slog.LevelWarn
		if o.Verbose {
			lc.Level = slog.LevelDebug
		}
		o.Logger = log.New(lc)
		log.SetDefault(o.Logger)
	}
	if o.OpenStore == nil {
		o.OpenStore = backend.Open
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

// openStore opens the configured store. The returned function releases it.
func (o *RootOptions) openStore(ctx context.Context) (backend.Store, func(), error) {
	res, err := o.OpenStore(ctx, o.Config, o.Logger)
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "open store", err)
	}
	return res.Store, func() {
		if res.Cleanup == nil {
			return
		}
		if err := res.Cleanup(); err != nil {
			o.Logger.Warn("Failed to close store", log.FieldError, err)
		}
	}, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// today is the calendar day in CRON_TIMEZONE.
func (o *RootOptions) today() core.Date {
	return core.DateOf(o.Now().In(o.Config.Location()))
}

// dateFlag parses a YYYY-MM-DD flag value; empty means def.
func dateFlag(name, value string, def core.Date) (core.Date, error) {
	if value == "" {
		return def, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return core.Date{}, WrapExitError(ExitCommandError, "invalid --"+name, err)
	}
	return d, nil
}

// exactArgs is cobra.ExactArgs reporting a command error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
