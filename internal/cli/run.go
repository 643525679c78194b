package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/services"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recurring-transaction job once",
		Long: `Generate the transactions due on the given date (default: today in
CRON_TIMEZONE) exactly as the scheduled job does, and print the run summary.
New transactions are announced on AMQP when AMQP_URL is set.

Exit status is 1 when the run fails or reports per-definition errors.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, rootOpts, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to run for (YYYY-MM-DD)")

	return cmd
}

func runJob(cmd *cobra.Command, opts *RootOptions, date string) error {
	ctx := cmd.Context()
	day, err := dateFlag("date", date, opts.today())
	if err != nil {
		return err
	}

	store, closeStore, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher services.EventPublisher
	if opts.Config.AMQPEnabled() {
		client, err := amqp.NewClient(opts.Config.AMQPURL, opts.Config.AMQPExchange, opts.Config.AMQPQueue)
		if err != nil {
			opts.Logger.Warn("Failed to initialize AMQP client, transactions will sync on the next sweep",
				log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	processor := services.NewRecurringProcessor(store, services.NewTransactionService(store, publisher), opts.Logger).
		WithClock(opts.Now)
	summary, err := processor.Run(ctx, day)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	err = opts.formatter(cmd).Success(summary, func(w io.Writer) error {
		return writeSummary(w, day, summary)
	})
	if err != nil {
		return WrapExitError(ExitFailure, "write output", err)
	}
	if len(summary.Errors) > 0 {
		return exitWith(ExitFailure)
	}
	return nil
}

func writeSummary(w io.Writer, day core.Date, s core.RunSummary) error {
	fmt.Fprintf(w, "%s: created %d, skipped %d, errors %d\n", day, s.Created, s.SkippedCount, len(s.Errors))
	for _, id := range s.CreatedIDs {
		fmt.Fprintf(w, "created %s\n", id)
	}
	for _, sk := range s.SkippedReason {
		fmt.Fprintf(w, "skipped %s (%s)\n", sk.ID, sk.Reason)
	}
	for _, e := range s.Errors {
		if _, err := fmt.Fprintf(w, "error %s: %s\n", e.ID, e.Error); err != nil {
			return err
		}
	}
	return nil
}
