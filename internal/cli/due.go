package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"moneyflow/internal/core"
	"moneyflow/internal/recurrence"
)

type dueItem struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Frequency   core.Frequency `json:"frequency"`
	Cadence     string         `json:"cadence"`
	Amount      string         `json:"amount"`
	Currency    core.Currency  `json:"currency"`
	Description string         `json:"description"`

	display string
}

type invalidItem struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type dueResult struct {
	Date    core.Date     `json:"date"`
	Due     []dueItem     `json:"due"`
	Invalid []invalidItem `json:"invalid,omitempty"`
}

// NewDueCommand creates the due command.
func NewDueCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List recurring transactions due on a date",
		Long: `List the active recurring transactions the job would generate on the
given date (default: today in CRON_TIMEZONE). Definitions the engine cannot
read are reported and make the command exit with status 1.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDue(cmd, rootOpts, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to check (YYYY-MM-DD)")

	return cmd
}

func runDue(cmd *cobra.Command, opts *RootOptions, date string) error {
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

	items, err := store.ListActiveRecurring(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "list recurring transactions", err)
	}

	result := dueResult{Date: day, Due: []dueItem{}}
	for _, rt := range items {
		def, err := recurrence.FromRecord(rt)
		if err != nil {
			result.Invalid = append(result.Invalid, invalidItem{ID: rt.ID, Error: err.Error()})
			continue
		}
		if !recurrence.ShouldGenerateToday(def, day) {
			continue
		}
		result.Due = append(result.Due, dueItem{
			ID:          rt.ID,
			UserID:      rt.UserID,
			Type:        string(rt.Type),
			Category:    rt.CategoryKey,
			Frequency:   rt.Frequency,
			Cadence:     def.Cadence.String(),
			Amount:      rt.Amount.Key(),
			Currency:    rt.Amount.Currency,
			Description: rt.Description,
			display:     rt.Amount.Format(language.English),
		})
	}

	err = opts.formatter(cmd).Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "%s: %d due\n", day, len(result.Due))
		if len(result.Due) > 0 {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCADENCE\tAMOUNT\tDESCRIPTION")
			for _, item := range result.Due {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.ID, item.Cadence, item.display, item.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		for _, bad := range result.Invalid {
			fmt.Fprintf(w, "invalid %s: %s\n", bad.ID, bad.Error)
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, "write output", err)
	}
	if len(result.Invalid) > 0 {
		return exitWith(ExitFailure)
	}
	return nil
}
