package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"moneyflow/internal/calendar"
	"moneyflow/internal/core"
	"moneyflow/internal/recurrence"
	"moneyflow/internal/storage"
)

// maxCount matches the upcoming endpoint of the HTTP API.
const maxCount = 366

type nextResult struct {
	ID        string         `json:"id"`
	Frequency core.Frequency `json:"frequency"`
	Cadence   string         `json:"cadence"`
	Active    bool           `json:"active"`
	RRule     string         `json:"rrule,omitempty"`
	DTStart   *core.Date     `json:"dtstart,omitempty"`
	Dates     []core.Date    `json:"dates"`
}

// NewNextCommand creates the next command.
func NewNextCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		from  string
		count int
	)

	cmd := &cobra.Command{
		Use:   "next <id>",
		Short: "Show the next dates of a recurring transaction",
		Long: `Project the next dates on which the job would generate the recurring
transaction, assuming each occurrence is generated, together with the
equivalent RRULE. Inactive definitions have no dates.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNext(cmd, rootOpts, args[0], from, count)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to consider (YYYY-MM-DD, default today)")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of dates (1-366)")

	return cmd
}

func runNext(cmd *cobra.Command, opts *RootOptions, id, from string, count int) error {
	ctx := cmd.Context()
	start, err := dateFlag("from", from, opts.today())
	if err != nil {
		return err
	}
	if count < 1 || count > maxCount {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --count %d: must be between 1 and %d", count, maxCount))
	}

	store, closeStore, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rt, err := store.GetRecurring(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return WrapExitError(ExitCommandError, "unknown recurring transaction", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "get recurring transaction", err)
	}
	def, err := recurrence.FromRecord(rt)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid definition "+rt.ID, err)
	}

	result := nextResult{
		ID:        rt.ID,
		Frequency: rt.Frequency,
		Cadence:   def.Cadence.String(),
		Active:    rt.IsActive,
		Dates:     []core.Date{},
	}
	if rt.IsActive {
		result.Dates = recurrence.Upcoming(def, start, count)
	}
	if rule, dtstart, err := calendar.RRule(def); err == nil {
		result.RRule = rule
		result.DTStart = &dtstart
	}

	err = opts.formatter(cmd).Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "%s (%s)\n", result.ID, result.Cadence)
		if result.RRule != "" {
			fmt.Fprintf(w, "RRULE:%s starting %s\n", result.RRule, result.DTStart)
		}
		switch {
		case !result.Active:
			fmt.Fprintln(w, "inactive")
		case len(result.Dates) == 0:
			fmt.Fprintln(w, "no upcoming dates")
		}
		for _, d := range result.Dates {
			fmt.Fprintln(w, d)
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, "write output", err)
	}
	return nil
}
