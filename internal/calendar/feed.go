package calendar

import (
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"moneyflow/internal/core"
	"moneyflow/internal/recurrence"
)

const (
	productService = "moneyflow"
	uidDomain      = "moneyflow"
)

// Feed renders active definitions as an iCalendar document with one all-day
// recurring VEVENT per definition. Definitions that cannot be converted are
// left out and reported in the returned error; the document is still usable.
func Feed(name string, items []core.RecurringTransaction, now time.Time) (string, error) {
	cal := ical.NewCalendarFor(productService)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName(name)
	cal.SetXWRCalName(name)

	var errs []error
	for _, rt := range items {
		if !rt.IsActive {
			continue
		}
		if err := addDefinition(cal, rt, now); err != nil {
			errs = append(errs, fmt.Errorf("recurring %s: %w", rt.ID, err))
		}
	}
	return cal.Serialize(), errors.Join(errs...)
}

func addDefinition(cal *ical.Calendar, rt core.RecurringTransaction, now time.Time) error {
	def, err := recurrence.FromRecord(rt)
	if err != nil {
		return err
	}
	s, err := NewSeries(def)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("%s (%s)", rt.Description, rt.Amount)
	description := fmt.Sprintf("%s %s, %s", rt.Type, rt.CategoryKey, def.Cadence)

	if !s.Pending.IsZero() {
		ev := newEvent(cal, rt.ID+"-start", summary, description, rt.CategoryKey, now)
		setAllDay(ev, s.Pending)
	}
	if !s.Start.IsZero() {
		ev := newEvent(cal, rt.ID, summary, description, rt.CategoryKey, now)
		setAllDay(ev, s.Start)
		ev.AddRrule(s.Rule())
	}
	return nil
}

func newEvent(cal *ical.Calendar, id, summary, description, category string, now time.Time) *ical.VEvent {
	ev := cal.AddEvent(id + "@" + uidDomain)
	ev.SetDtStampTime(now)
	ev.SetSummary(summary)
	ev.SetDescription(description)
	ev.AddCategory(category)
	ev.SetTimeTransparency(ical.TransparencyTransparent)
	return ev
}

func setAllDay(ev *ical.VEvent, d core.Date) {
	ev.SetAllDayStartAt(d.Time())
	ev.SetAllDayEndAt(d.AddDays(1).Time())
}
