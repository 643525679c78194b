package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"moneyflow/internal/core"
	"moneyflow/internal/recurrence"
	"moneyflow/internal/storage"
)

// NewRecurringCommand creates the recurring command group.
func NewRecurringCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage recurring transaction definitions",
	}

	cmd.AddCommand(newRecurringAddCommand(rootOpts))
	cmd.AddCommand(newRecurringListCommand(rootOpts))
	cmd.AddCommand(newRecurringActiveCommand(rootOpts, "pause", false))
	cmd.AddCommand(newRecurringActiveCommand(rootOpts, "resume", true))

	return cmd
}

type addFlags struct {
	user        string
	txType      string
	category    string
	amount      string
	currency    string
	description string
	frequency   string
	weekday     string
	dayOfMonth  int
	every       int
	start       string
	end         string
	inactive    bool
}

func newRecurringAddCommand(rootOpts *RootOptions) *cobra.Command {
	var f addFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Validate and store a new recurring transaction",
		Example: `  recurctl recurring add --category housing --amount 1200 --description Rent \
    --frequency monthly --day-of-month 31 --start 2024-01-31`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecurringAdd(cmd, rootOpts, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.user, "user", "default", "owner of the definition")
	flags.StringVar(&f.txType, "type", string(core.Expense), "income or expense")
	flags.StringVar(&f.category, "category", "", "category key")
	flags.StringVar(&f.amount, "amount", "", "amount, e.g. 12.50")
	flags.StringVar(&f.currency, "currency", string(core.USD), "ISO currency code")
	flags.StringVar(&f.description, "description", "", "description of the generated transactions")
	flags.StringVar(&f.frequency, "frequency", "", "daily, weekly, bi-weekly, monthly, quarterly, yearly or random")
	flags.StringVar(&f.weekday, "weekday", "", "weekday for weekly and bi-weekly (0-6 or name)")
	flags.IntVar(&f.dayOfMonth, "day-of-month", 0, "day for monthly, quarterly and yearly (1-31)")
	flags.IntVar(&f.every, "every", 0, "interval in days for random (1-365)")
	flags.StringVar(&f.start, "start", "", "start date (YYYY-MM-DD, default today)")
	flags.StringVar(&f.end, "end", "", "optional end date (YYYY-MM-DD)")
	flags.BoolVar(&f.inactive, "inactive", false, "store the definition paused")
	for _, name := range []string{"category", "amount", "description", "frequency"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runRecurringAdd(cmd *cobra.Command, opts *RootOptions, f addFlags) error {
	ctx := cmd.Context()
	today := opts.today()

	rt, err := f.definition(cmd, today)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid recurring transaction", err)
	}
	rt.Normalize()
	if err := rt.Validate(today); err != nil {
		return WrapExitError(ExitCommandError, "invalid recurring transaction", err)
	}

	store, closeStore, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	id, err := store.CreateRecurring(ctx, rt)
	if err != nil {
		return WrapExitError(ExitFailure, "create recurring transaction", err)
	}
	rt.ID = id

	item := listItemFor(rt, today)
	err = opts.formatter(cmd).Success(item, func(w io.Writer) error {
		next := "none"
		if item.Next != nil {
			next = item.Next.String()
		}
		_, err := fmt.Fprintf(w, "created %s (%s), next %s\n", item.ID, item.Cadence, next)
		return err
	})
	if err != nil {
		return WrapExitError(ExitFailure, "write output", err)
	}
	return nil
}

func (f addFlags) definition(cmd *cobra.Command, today core.Date) (core.RecurringTransaction, error) {
	freq, err := core.ParseFrequency(f.frequency)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	cur, err := core.ParseCurrency(f.currency)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	amount, err := core.ParseAmount(f.amount, cur)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	start, err := dateFlag("start", f.start, today)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	end, err := dateFlag("end", f.end, core.Date{})
	if err != nil {
		return core.RecurringTransaction{}, err
	}

	rt := core.RecurringTransaction{
		UserID:      strings.TrimSpace(f.user),
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(f.txType))),
		CategoryKey: f.category,
		Amount:      amount,
		Description: f.description,
		Frequency:   freq,
		StartDate:   start,
		EndDate:     end,
		IsActive:    !f.inactive,
	}
	if cmd.Flags().Changed("weekday") {
		wd, err := parseWeekday(f.weekday)
		if err != nil {
			return rt, err
		}
		rt.Weekday = core.IntPtr(int(wd))
	}
	if cmd.Flags().Changed("day-of-month") {
		rt.DayOfMonth = core.IntPtr(f.dayOfMonth)
	}
	if cmd.Flags().Changed("every") {
		rt.RandomEveryXDays = core.IntPtr(f.every)
	}
	return rt, nil
}

// parseWeekday accepts 0-6 (Sunday first) or an English day name or its
// three-letter prefix.
func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, core.ErrInvalidWeekday
		}
		return time.Weekday(n), nil
	}
	if len(s) >= 3 {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if strings.HasPrefix(strings.ToLower(wd.String()), s) {
				return wd, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrInvalidWeekday, s)
}

type listItem struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Type          string         `json:"type"`
	Category      string         `json:"category"`
	Frequency     core.Frequency `json:"frequency"`
	Cadence       string         `json:"cadence"`
	Amount        string         `json:"amount"`
	Currency      core.Currency  `json:"currency"`
	Description   string         `json:"description"`
	StartDate     core.Date      `json:"startDate"`
	EndDate       *core.Date     `json:"endDate,omitempty"`
	LastGenerated *core.Date     `json:"lastGenerated,omitempty"`
	Next          *core.Date     `json:"next"`
	Active        bool           `json:"active"`
	Error         string         `json:"error,omitempty"`

	display string
}

func listItemFor(rt core.RecurringTransaction, today core.Date) listItem {
	item := listItem{
		ID:          rt.ID,
		UserID:      rt.UserID,
		Type:        string(rt.Type),
		Category:    rt.CategoryKey,
		Frequency:   rt.Frequency,
		Amount:      rt.Amount.Key(),
		Currency:    rt.Amount.Currency,
		Description: rt.Description,
		StartDate:   rt.StartDate,
		Active:      rt.IsActive,
		display:     rt.Amount.Format(language.English),
	}
	if !rt.EndDate.IsZero() {
		end := rt.EndDate
		item.EndDate = &end
	}
	if !rt.LastGenerated.IsZero() {
		last := rt.LastGenerated
		item.LastGenerated = &last
	}

	def, err := recurrence.FromRecord(rt)
	if err != nil {
		item.Cadence = "invalid"
		item.Error = err.Error()
		return item
	}
	item.Cadence = def.Cadence.String()
	if rt.IsActive {
		if next, ok := recurrence.NextScheduled(def, today); ok {
			item.Next = &next
		}
	}
	return item
}

func newRecurringListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		user       string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring transactions with their next date",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecurringList(cmd, rootOpts, user, activeOnly)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only definitions of this user")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active definitions")

	return cmd
}

func runRecurringList(cmd *cobra.Command, opts *RootOptions, user string, activeOnly bool) error {
	ctx := cmd.Context()
	today := opts.today()

	store, closeStore, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := store.ListRecurring(ctx, user)
	if err != nil {
		return WrapExitError(ExitFailure, "list recurring transactions", err)
	}

	out := make([]listItem, 0, len(items))
	for _, rt := range items {
		if activeOnly && !rt.IsActive {
			continue
		}
		out = append(out, listItemFor(rt, today))
	}

	err = opts.formatter(cmd).Success(out, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCADENCE\tAMOUNT\tNEXT\tACTIVE\tDESCRIPTION")
		for _, item := range out {
			next := "-"
			if item.Next != nil {
				next = item.Next.String()
			}
			cadence := item.Cadence
			if item.Error != "" {
				cadence += " (" + item.Error + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				item.ID, cadence, item.display, next, item.Active, item.Description)
		}
		return tw.Flush()
	})
	if err != nil {
		return WrapExitError(ExitFailure, "write output", err)
	}
	return nil
}

func newRecurringActiveCommand(rootOpts *RootOptions, verb string, active bool) *cobra.Command {
	short := "Stop generating a recurring transaction"
	if active {
		short = "Resume generating a recurring transaction"
	}
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetActive(cmd, rootOpts, args[0], active)
		},
	}
}

func runSetActive(cmd *cobra.Command, opts *RootOptions, id string, active bool) error {
	ctx := cmd.Context()

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
	if active && !rt.EndDate.IsZero() && rt.EndDate.Before(opts.today()) {
		return WrapExitError(ExitCommandError, "cannot resume "+id, core.ErrExpiredActive)
	}

	if err := store.SetRecurringActive(ctx, id, active); err != nil {
		return WrapExitError(ExitFailure, "update recurring transaction", err)
	}
	rt.IsActive = active

	item := listItemFor(rt, opts.today())
	err = opts.formatter(cmd).Success(item, func(w io.Writer) error {
		state := "paused"
		if active {
			state = "resumed"
		}
		_, err := fmt.Fprintf(w, "%s %s\n", state, id)
		return err
	})
	if err != nil {
		return WrapExitError(ExitFailure, "write output", err)
	}
	return nil
}
