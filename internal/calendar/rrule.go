// Package calendar renders recurring transactions as RFC 5545 recurrence
// rules and iCalendar feeds.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"moneyflow/internal/core"
	"moneyflow/internal/recurrence"
)

// ErrEmptySeries is returned when no occurrence follows the pending one.
var ErrEmptySeries = errors.New("recurrence has no further occurrences")

// maxExpandSteps bounds iteration when from is far past DTSTART.
const maxExpandSteps = 100_000

var weekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Series is the calendar form of a definition: an optional pending first
// occurrence on the start date followed by a rule-driven series.
type Series struct {
	Pending core.Date // zero when the start date was already generated
	Start   core.Date // DTSTART of the rule; zero when the rule is empty
	Until   core.Date // last allowed date; zero for open series
	Option  rrule.ROption
}

// Rule returns the RRULE value without the DTSTART line, or "" when the
// series is empty. UNTIL is written as a DATE to match the all-day DTSTART.
func (s Series) Rule() string {
	if s.Start.IsZero() {
		return ""
	}
	opt := s.Option
	opt.Until = time.Time{}
	rule := opt.RRuleString()
	if !s.Until.IsZero() {
		rule += ";UNTIL=" + s.Until.Time().Format(rrule.DateFormat)
	}
	return rule
}

// NewSeries maps the cadence onto rrule options. The rule assumes every
// occurrence is generated on its date; for quarterly and random cadences a
// missed date ends the real schedule, which a static rule cannot express.
func NewSeries(def recurrence.Definition) (Series, error) {
	if def.Cadence == nil {
		return Series{}, recurrence.ErrNilCadence
	}

	var s Series
	steady := def
	if def.LastGenerated.IsZero() {
		s.Pending = def.StartDate
		steady.LastGenerated = def.StartDate
	}

	first, err := recurrence.NextDate(steady, steady.LastGenerated.AddDays(1))
	if err != nil {
		if errors.Is(err, recurrence.ErrNoNextOccurrence) {
			return s, nil
		}
		return s, err
	}
	if !def.EndDate.IsZero() && first.After(def.EndDate) {
		return s, nil
	}

	opt, err := options(def.Cadence, first)
	if err != nil {
		return s, err
	}
	if !def.EndDate.IsZero() {
		opt.Until = def.EndDate.Time()
		s.Until = def.EndDate
	}
	s.Start = first
	s.Option = opt
	return s, nil
}

func options(c recurrence.Cadence, first core.Date) (rrule.ROption, error) {
	opt := rrule.ROption{Dtstart: first.Time()}
	switch c := c.(type) {
	case recurrence.Daily:
		opt.Freq = rrule.DAILY
	case recurrence.Weekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{weekdays[c.Weekday]}
	case recurrence.BiWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		opt.Byweekday = []rrule.Weekday{weekdays[c.Weekday]}
	case recurrence.Monthly:
		opt.Freq = rrule.MONTHLY
		setMonthDay(&opt, c.Day)
	case recurrence.Quarterly:
		opt.Freq = rrule.MONTHLY
		opt.Interval = 3
		setMonthDay(&opt, c.Day)
	case recurrence.Yearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(first.Month)}
		setMonthDay(&opt, c.Day)
	case recurrence.Random:
		opt.Freq = rrule.DAILY
		opt.Interval = c.EveryXDays
	default:
		return opt, fmt.Errorf("unsupported cadence %T", c)
	}
	return opt, nil
}

// setMonthDay expresses clamping: days past 28 take the last existing day
// of the candidate set 28..day.
func setMonthDay(opt *rrule.ROption, day int) {
	if day <= 28 {
		opt.Bymonthday = []int{day}
		return
	}
	for d := 28; d <= day; d++ {
		opt.Bymonthday = append(opt.Bymonthday, d)
	}
	opt.Bysetpos = []int{-1}
}

// RRule returns the RRULE value and its DTSTART. A definition whose only
// remaining occurrence is the pending start date returns ErrEmptySeries.
func RRule(def recurrence.Definition) (string, core.Date, error) {
	s, err := NewSeries(def)
	if err != nil {
		return "", core.Date{}, err
	}
	if s.Start.IsZero() {
		return "", core.Date{}, ErrEmptySeries
	}
	return s.Rule(), s.Start, nil
}

// Expand lists up to n occurrences on or after from using the rrule
// iterator, pending start date included.
func Expand(def recurrence.Definition, from core.Date, n int) ([]core.Date, error) {
	s, err := NewSeries(def)
	if err != nil {
		return nil, err
	}

	out := make([]core.Date, 0, max(n, 0))
	if !s.Pending.IsZero() && !s.Pending.Before(from) && n > 0 {
		out = append(out, s.Pending)
	}
	if s.Start.IsZero() {
		return out, nil
	}

	r, err := rrule.NewRRule(s.Option)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	next := r.Iterator()
	for steps := 0; len(out) < n && steps < maxExpandSteps; steps++ {
		t, ok := next()
		if !ok {
			break
		}
		day := core.DateOf(t)
		if day.Before(from) {
			continue
		}
		out = append(out, day)
	}
	return out, nil
}
