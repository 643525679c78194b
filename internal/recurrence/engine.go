package recurrence

import (
	"errors"
	"fmt"
	"time"

	"moneyflow/internal/core"
)

var (
	ErrNilCadence       = errors.New("definition has no cadence")
	ErrNoNextOccurrence = errors.New("no next occurrence from current anchor")

	// Data-integrity errors share the write-path sentinels so callers can
	// match either layer with errors.Is.
	ErrUnknownFrequency  = core.ErrInvalidFrequency
	ErrMissingWeekday    = core.ErrMissingWeekday
	ErrMissingDayOfMonth = core.ErrMissingDayOfMonth
	ErrMissingInterval   = core.ErrMissingInterval
	ErrInvalidWeekday    = core.ErrInvalidWeekday
	ErrInvalidDayOfMonth = core.ErrInvalidDayOfMonth
	ErrInvalidInterval   = core.ErrInvalidInterval
)

// Definition is the engine's view of a recurring transaction.
// A zero EndDate or LastGenerated means unset.
type Definition struct {
	Cadence       Cadence
	StartDate     core.Date
	EndDate       core.Date
	LastGenerated core.Date
}

// Anchor returns the date the cadence is measured from.
func (d Definition) Anchor() core.Date {
	if !d.LastGenerated.IsZero() {
		return d.LastGenerated
	}
	return d.StartDate
}

type cadenceBuilder func(weekday, dayOfMonth, everyXDays *int) (Cadence, error)

var cadenceBuilders = map[core.Frequency]cadenceBuilder{
	core.Daily: func(_, _, _ *int) (Cadence, error) { return Daily{}, nil },
	core.Weekly: func(weekday, _, _ *int) (Cadence, error) {
		wd, err := requireWeekday(weekday)
		return Weekly{Weekday: wd}, err
	},
	core.BiWeekly: func(weekday, _, _ *int) (Cadence, error) {
		wd, err := requireWeekday(weekday)
		return BiWeekly{Weekday: wd}, err
	},
	core.Monthly: func(_, day, _ *int) (Cadence, error) {
		d, err := requireDay(day)
		return Monthly{Day: d}, err
	},
	core.Quarterly: func(_, day, _ *int) (Cadence, error) {
		d, err := requireDay(day)
		return Quarterly{Day: d}, err
	},
	core.Yearly: func(_, day, _ *int) (Cadence, error) {
		d, err := requireDay(day)
		return Yearly{Day: d}, err
	},
	core.Random: func(_, _, every *int) (Cadence, error) {
		if every == nil {
			return nil, ErrMissingInterval
		}
		if *every < 1 || *every > 365 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidInterval, *every)
		}
		return Random{EveryXDays: *every}, nil
	},
}

// NewCadence builds the cadence for freq from the stored anchor fields.
// Fields the frequency does not use are ignored.
func NewCadence(freq core.Frequency, weekday, dayOfMonth, everyXDays *int) (Cadence, error) {
	build, ok := cadenceBuilders[freq]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
	}
	c, err := build(weekday, dayOfMonth, everyXDays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", freq, err)
	}
	return c, nil
}

// FromRecord converts a stored definition. Errors indicate a record the
// write path should never have accepted.
func FromRecord(rt core.RecurringTransaction) (Definition, error) {
	c, err := NewCadence(rt.Frequency, rt.Weekday, rt.DayOfMonth, rt.RandomEveryXDays)
	if err != nil {
		return Definition{}, err
	}
	if rt.StartDate.IsZero() {
		return Definition{}, core.ErrMissingStartDate
	}
	return Definition{
		Cadence:       c,
		StartDate:     rt.StartDate,
		EndDate:       rt.EndDate,
		LastGenerated: rt.LastGenerated,
	}, nil
}

func requireWeekday(v *int) (time.Weekday, error) {
	if v == nil {
		return 0, ErrMissingWeekday
	}
	if *v < 0 || *v > 6 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, *v)
	}
	return time.Weekday(*v), nil
}

func requireDay(v *int) (int, error) {
	if v == nil {
		return 0, ErrMissingDayOfMonth
	}
	if *v < 1 || *v > 31 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDayOfMonth, *v)
	}
	return *v, nil
}

// ShouldGenerateToday reports whether an occurrence must be materialized on
// today. The caller filters inactive definitions.
func ShouldGenerateToday(def Definition, today core.Date) bool {
	if def.Cadence == nil {
		return false
	}
	if today.Before(def.StartDate) {
		return false
	}
	if !def.EndDate.IsZero() && today.After(def.EndDate) {
		return false
	}
	if !def.LastGenerated.IsZero() && today == def.LastGenerated {
		return false
	}
	if def.LastGenerated.IsZero() && today == def.StartDate {
		return true
	}
	return def.Cadence.due(def.Anchor(), today)
}

// NextDate returns the smallest date >= from on which ShouldGenerateToday
// would return true, assuming nothing is generated in between. EndDate is
// not applied; callers decide how to present a date past it.
func NextDate(def Definition, from core.Date) (core.Date, error) {
	if def.Cadence == nil {
		return core.Date{}, ErrNilCadence
	}
	lo := from
	if lo.Before(def.StartDate) {
		lo = def.StartDate
	}
	if def.LastGenerated.IsZero() && lo == def.StartDate {
		return lo, nil
	}

	anchor := def.Anchor()
	if !lo.After(anchor) {
		lo = anchor.AddDays(1)
	}
	next, ok := def.Cadence.next(anchor, lo)
	if !ok {
		return core.Date{}, fmt.Errorf("%s after %s: %w", def.Cadence, anchor, ErrNoNextOccurrence)
	}
	return next, nil
}

// NextScheduled is NextDate with the EndDate gate applied. ok is false when
// the cadence can no longer fire or the next date falls after EndDate.
func NextScheduled(def Definition, from core.Date) (next core.Date, ok bool) {
	next, err := NextDate(def, from)
	if err != nil {
		return core.Date{}, false
	}
	if !def.EndDate.IsZero() && next.After(def.EndDate) {
		return core.Date{}, false
	}
	return next, true
}

// Upcoming lists up to n occurrences on or after from, assuming each one is
// generated on its date. The list stops at EndDate.
func Upcoming(def Definition, from core.Date, n int) []core.Date {
	out := make([]core.Date, 0, max(n, 0))
	cur := def
	for len(out) < n {
		next, err := NextDate(cur, from)
		if err != nil {
			break
		}
		if !cur.EndDate.IsZero() && next.After(cur.EndDate) {
			break
		}
		out = append(out, next)
		cur.LastGenerated = next
		from = next.AddDays(1)
	}
	return out
}
