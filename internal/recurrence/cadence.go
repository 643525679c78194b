// Package recurrence decides when a recurring transaction is due.
//
// Each frequency is a variant of the sealed Cadence interface and carries
// exactly the anchor field it needs: a weekday for weekly schedules, a day of
// month for monthly, quarterly and yearly ones, an interval for random ones.
// All functions are pure and operate on calendar dates only.
package recurrence

import (
	"fmt"
	"time"

	"moneyflow/internal/core"
)

// Cadence is the frequency-specific rule deciding which dates are occurrences.
// Implementations live in this package only.
type Cadence interface {
	Frequency() core.Frequency
	String() string

	// due reports whether today is an occurrence given the anchor.
	// Callers have already applied the start/end/idempotence gates.
	due(anchor, today core.Date) bool

	// next returns the smallest date >= lo for which due(anchor, date) holds.
	// lo is always after anchor. ok is false when no such date exists.
	next(anchor, lo core.Date) (d core.Date, ok bool)
}

type (
	Daily    struct{}
	Weekly   struct{ Weekday time.Weekday }
	BiWeekly struct{ Weekday time.Weekday }
	Monthly  struct{ Day int }
	// Quarterly fires exactly three months after the anchor.
	Quarterly struct{ Day int }
	// Yearly fires a whole number of years after the anchor, in the anchor's month.
	Yearly struct{ Day int }
	// Random fires exactly EveryXDays after the anchor. A missed day is not caught up.
	Random struct{ EveryXDays int }
)

func (Daily) Frequency() core.Frequency     { return core.Daily }
func (Weekly) Frequency() core.Frequency    { return core.Weekly }
func (BiWeekly) Frequency() core.Frequency  { return core.BiWeekly }
func (Monthly) Frequency() core.Frequency   { return core.Monthly }
func (Quarterly) Frequency() core.Frequency { return core.Quarterly }
func (Yearly) Frequency() core.Frequency    { return core.Yearly }
func (Random) Frequency() core.Frequency    { return core.Random }

func (Daily) String() string       { return "daily" }
func (c Weekly) String() string    { return fmt.Sprintf("weekly on %s", c.Weekday) }
func (c BiWeekly) String() string  { return fmt.Sprintf("every other %s", c.Weekday) }
func (c Monthly) String() string   { return fmt.Sprintf("monthly on day %d", c.Day) }
func (c Quarterly) String() string { return fmt.Sprintf("quarterly on day %d", c.Day) }
func (c Yearly) String() string    { return fmt.Sprintf("yearly on day %d", c.Day) }
func (c Random) String() string    { return fmt.Sprintf("every %d days", c.EveryXDays) }

func (Daily) due(anchor, today core.Date) bool {
	return today.After(anchor)
}

func (Daily) next(_, lo core.Date) (core.Date, bool) {
	return lo, true
}

func (c Weekly) due(anchor, today core.Date) bool {
	return today.Weekday() == c.Weekday && today.After(anchor)
}

func (c Weekly) next(_, lo core.Date) (core.Date, bool) {
	offset := (int(c.Weekday) - int(lo.Weekday()) + 7) % 7
	return lo.AddDays(offset), true
}

func (c BiWeekly) due(anchor, today core.Date) bool {
	if today.Weekday() != c.Weekday {
		return false
	}
	diff := anchor.DaysUntil(today)
	return diff > 0 && diff%14 == 0
}

// A 14-day step keeps the weekday, so an anchor on another weekday never fires.
func (c BiWeekly) next(anchor, lo core.Date) (core.Date, bool) {
	if anchor.Weekday() != c.Weekday {
		return core.Date{}, false
	}
	diff := anchor.DaysUntil(lo)
	periods := (diff + 13) / 14
	return anchor.AddDays(14 * periods), true
}

func (c Monthly) due(anchor, today core.Date) bool {
	return matchesDay(c.Day, today) && today.MonthIndex() > anchor.MonthIndex()
}

func (c Monthly) next(anchor, lo core.Date) (core.Date, bool) {
	idx := max(lo.MonthIndex(), anchor.MonthIndex()+1)
	d := core.DateFromMonthIndex(idx, c.Day)
	if d.Before(lo) {
		d = core.DateFromMonthIndex(idx+1, c.Day)
	}
	return d, true
}

func (c Quarterly) due(anchor, today core.Date) bool {
	return matchesDay(c.Day, today) && today.MonthIndex() == anchor.MonthIndex()+3
}

func (c Quarterly) next(anchor, lo core.Date) (core.Date, bool) {
	d := core.DateFromMonthIndex(anchor.MonthIndex()+3, c.Day)
	if d.Before(lo) {
		return core.Date{}, false
	}
	return d, true
}

func (c Yearly) due(anchor, today core.Date) bool {
	elapsed := today.MonthIndex() - anchor.MonthIndex()
	return matchesDay(c.Day, today) && elapsed > 0 && elapsed%12 == 0
}

func (c Yearly) next(anchor, lo core.Date) (core.Date, bool) {
	years := max((lo.MonthIndex()-anchor.MonthIndex()+11)/12, 1)
	d := core.DateFromMonthIndex(anchor.MonthIndex()+12*years, c.Day)
	if d.Before(lo) {
		d = core.DateFromMonthIndex(anchor.MonthIndex()+12*(years+1), c.Day)
	}
	return d, true
}

func (c Random) due(anchor, today core.Date) bool {
	return anchor.DaysUntil(today) == c.EveryXDays
}

func (c Random) next(anchor, lo core.Date) (core.Date, bool) {
	d := anchor.AddDays(c.EveryXDays)
	if d.Before(lo) {
		return core.Date{}, false
	}
	return d, true
}

// matchesDay reports whether today is the requested day of month, clamped
// to the length of today's month.
func matchesDay(requested int, today core.Date) bool {
	return today.Day == core.ClampDay(requested, today.Year, today.Month)
}
