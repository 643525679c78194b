package recurrence

import (
	"errors"
	"testing"
	"time"

	"moneyflow/internal/core"
)

func d(y int, m time.Month, day int) core.Date {
	return core.NewDate(y, m, day)
}

func TestShouldGenerateTodayScenarios(t *testing.T) {
	tests := []struct {
		name  string
		def   Definition
		today core.Date
		want  bool
	}{
		{
			name:  "daily first occurrence on start date",
			def:   Definition{Cadence: Daily{}, StartDate: d(2024, 1, 10)},
			today: d(2024, 1, 10),
			want:  true,
		},
		{
			name:  "weekly next monday",
			def:   Definition{Cadence: Weekly{Weekday: time.Monday}, StartDate: d(2024, 1, 1), LastGenerated: d(2024, 1, 8)},
			today: d(2024, 1, 15),
			want:  true,
		},
		{
			name:  "weekly tuesday",
			def:   Definition{Cadence: Weekly{Weekday: time.Monday}, StartDate: d(2024, 1, 1), LastGenerated: d(2024, 1, 8)},
			today: d(2024, 1, 16),
			want:  false,
		},
		{
			name:  "weekly skipped week still fires",
			def:   Definition{Cadence: Weekly{Weekday: time.Monday}, StartDate: d(2024, 1, 1), LastGenerated: d(2024, 1, 8)},
			today: d(2024, 1, 22),
			want:  true,
		},
		{
			name:  "quarterly one month elapsed",
			def:   Definition{Cadence: Quarterly{Day: 15}, StartDate: d(2024, 1, 15), LastGenerated: d(2024, 1, 15)},
			today: d(2024, 2, 15),
			want:  false,
		},
		{
			name:  "quarterly three months elapsed",
			def:   Definition{Cadence: Quarterly{Day: 15}, StartDate: d(2024, 1, 15), LastGenerated: d(2024, 1, 15)},
			today: d(2024, 4, 15),
			want:  true,
		},
		{
			name:  "quarterly six months elapsed",
			def:   Definition{Cadence: Quarterly{Day: 15}, StartDate: d(2024, 1, 15), LastGenerated: d(2024, 1, 15)},
			today: d(2024, 7, 15),
			want:  false,
		},
		{
			name:  "yearly leap day clamps in non-leap year",
			def:   Definition{Cadence: Yearly{Day: 29}, StartDate: d(2024, 2, 29)},
			today: d(2025, 2, 28),
			want:  true,
		},
		{
			name:  "yearly two years later",
			def:   Definition{Cadence: Yearly{Day: 29}, StartDate: d(2024, 2, 29), LastGenerated: d(2024, 2, 29)},
			today: d(2026, 2, 28),
			want:  true,
		},
		{
			name:  "yearly wrong month",
			def:   Definition{Cadence: Yearly{Day: 29}, StartDate: d(2024, 2, 29)},
			today: d(2025, 3, 29),
			want:  false,
		},
		{
			name:  "monthly on end date",
			def:   Definition{Cadence: Monthly{Day: 31}, StartDate: d(2024, 1, 31), EndDate: d(2024, 4, 30), LastGenerated: d(2024, 3, 31)},
			today: d(2024, 4, 30),
			want:  true,
		},
		{
			name:  "monthly after end date",
			def:   Definition{Cadence: Monthly{Day: 1}, StartDate: d(2024, 1, 1), EndDate: d(2024, 4, 30), LastGenerated: d(2024, 4, 1)},
			today: d(2024, 5, 1),
			want:  false,
		},
		{
			name:  "monthly start mid-month waits for day",
			def:   Definition{Cadence: Monthly{Day: 15}, StartDate: d(2024, 1, 20), LastGenerated: d(2024, 1, 20)},
			today: d(2024, 2, 15),
			want:  true,
		},
		{
			name:  "nil cadence",
			def:   Definition{StartDate: d(2024, 1, 1)},
			today: d(2024, 1, 1),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldGenerateToday(tt.def, tt.today)
			if got != tt.want {
				t.Fatalf("ShouldGenerateToday(%v) = %v, want %v", tt.today, got, tt.want)
			}
			// Pure: a second call must agree.
			if again := ShouldGenerateToday(tt.def, tt.today); again != got {
				t.Fatalf("second call = %v, first = %v", again, got)
			}
		})
	}
}

func TestMonthEndClamping(t *testing.T) {
	for _, year := range []int{2023, 2024} {
		def := Definition{Cadence: Monthly{Day: 31}, StartDate: d(year, 1, 31), LastGenerated: d(year, 1, 31)}
		last := core.DaysIn(year, time.February)
		for day := 1; day <= last; day++ {
			today := d(year, time.February, day)
			want := day == last
			if got := ShouldGenerateToday(def, today); got != want {
				t.Errorf("%d: ShouldGenerateToday(%v) = %v, want %v", year, today, got, want)
			}
		}
	}
}

func TestBiWeeklySpacing(t *testing.T) {
	// 2024-01-05 is a Friday.
	def := Definition{Cadence: BiWeekly{Weekday: time.Friday}, StartDate: d(2024, 1, 5), LastGenerated: d(2024, 1, 5)}
	want := map[core.Date]bool{
		d(2024, 1, 12): false,
		d(2024, 1, 19): true,
		d(2024, 1, 26): false,
		d(2024, 2, 2):  true,
		d(2024, 1, 18): false,
	}
	for today, w := range want {
		if got := ShouldGenerateToday(def, today); got != w {
			t.Errorf("ShouldGenerateToday(%v) = %v, want %v", today, got, w)
		}
	}
}

func TestRandomExactness(t *testing.T) {
	anchor := d(2024, 3, 10)
	def := Definition{Cadence: Random{EveryXDays: 5}, StartDate: d(2024, 3, 1), LastGenerated: anchor}
	for offset, want := range map[int]bool{4: false, 5: true, 6: false, 10: false} {
		today := anchor.AddDays(offset)
		if got := ShouldGenerateToday(def, today); got != want {
			t.Errorf("ShouldGenerateToday(D+%d) = %v, want %v", offset, got, want)
		}
	}
}

func TestNextDateScenarios(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		from core.Date
		want core.Date
		err  error
	}{
		{
			name: "pending start",
			def:  Definition{Cadence: Monthly{Day: 1}, StartDate: d(2024, 3, 1)},
			from: d(2024, 1, 1),
			want: d(2024, 3, 1),
		},
		{
			name: "monthly clamps into february",
			def:  Definition{Cadence: Monthly{Day: 31}, StartDate: d(2024, 1, 31), LastGenerated: d(2024, 1, 31)},
			from: d(2024, 2, 1),
			want: d(2024, 2, 29),
		},
		{
			name: "monthly from after day rolls to next month",
			def:  Definition{Cadence: Monthly{Day: 10}, StartDate: d(2024, 1, 10), LastGenerated: d(2024, 1, 10)},
			from: d(2024, 3, 11),
			want: d(2024, 4, 10),
		},
		{
			name: "weekly from anchor day",
			def:  Definition{Cadence: Weekly{Weekday: time.Monday}, StartDate: d(2024, 1, 1), LastGenerated: d(2024, 1, 8)},
			from: d(2024, 1, 8),
			want: d(2024, 1, 15),
		},
		{
			name: "bi-weekly skips one week",
			def:  Definition{Cadence: BiWeekly{Weekday: time.Friday}, StartDate: d(2024, 1, 5), LastGenerated: d(2024, 1, 5)},
			from: d(2024, 1, 6),
			want: d(2024, 1, 19),
		},
		{
			name: "bi-weekly misaligned anchor",
			def:  Definition{Cadence: BiWeekly{Weekday: time.Friday}, StartDate: d(2024, 1, 1), LastGenerated: d(2024, 1, 1)},
			from: d(2024, 1, 2),
			err:  ErrNoNextOccurrence,
		},
		{
			name: "quarterly window",
			def:  Definition{Cadence: Quarterly{Day: 15}, StartDate: d(2024, 1, 15), LastGenerated: d(2024, 1, 15)},
			from: d(2024, 2, 1),
			want: d(2024, 4, 15),
		},
		{
			name: "quarterly window missed",
			def:  Definition{Cadence: Quarterly{Day: 15}, StartDate: d(2024, 1, 15), LastGenerated: d(2024, 1, 15)},
			from: d(2024, 4, 16),
			err:  ErrNoNextOccurrence,
		},
		{
			name: "yearly leap anchor",
			def:  Definition{Cadence: Yearly{Day: 29}, StartDate: d(2024, 2, 29), LastGenerated: d(2024, 2, 29)},
			from: d(2024, 3, 1),
			want: d(2025, 2, 28),
		},
		{
			name: "yearly after this year's date",
			def:  Definition{Cadence: Yearly{Day: 29}, StartDate: d(2024, 2, 29), LastGenerated: d(2024, 2, 29)},
			from: d(2025, 3, 1),
			want: d(2026, 2, 28),
		},
		{
			name: "random exact",
			def:  Definition{Cadence: Random{EveryXDays: 5}, StartDate: d(2024, 3, 1), LastGenerated: d(2024, 3, 10)},
			from: d(2024, 3, 11),
			want: d(2024, 3, 15),
		},
		{
			name: "random missed",
			def:  Definition{Cadence: Random{EveryXDays: 5}, StartDate: d(2024, 3, 1), LastGenerated: d(2024, 3, 10)},
			from: d(2024, 3, 16),
			err:  ErrNoNextOccurrence,
		},
		{
			name: "nil cadence",
			def:  Definition{StartDate: d(2024, 3, 1)},
			from: d(2024, 3, 1),
			err:  ErrNilCadence,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDate(tt.def, tt.from)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("NextDate() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextDate() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("NextDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpcomingStopsAtEndDate(t *testing.T) {
	def := Definition{Cadence: Monthly{Day: 31}, StartDate: d(2024, 1, 31), EndDate: d(2024, 6, 15)}
	got := Upcoming(def, d(2024, 1, 1), 10)
	want := []core.Date{d(2024, 1, 31), d(2024, 2, 29), d(2024, 3, 31), d(2024, 4, 30), d(2024, 5, 31)}
	if len(got) != len(want) {
		t.Fatalf("Upcoming() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Upcoming()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNextScheduled(t *testing.T) {
	def := Definition{Cadence: Monthly{Day: 31}, StartDate: d(2024, 1, 31), LastGenerated: d(2024, 1, 31), EndDate: d(2024, 3, 15)}
	if got, ok := NextScheduled(def, d(2024, 2, 1)); !ok || got != d(2024, 2, 29) {
		t.Errorf("NextScheduled() = %v, %v, want 2024-02-29, true", got, ok)
	}
	def.LastGenerated = d(2024, 2, 29)
	if got, ok := NextScheduled(def, d(2024, 3, 1)); ok {
		t.Errorf("NextScheduled() past end date = %v, want none", got)
	}
	missed := Definition{Cadence: Random{EveryXDays: 5}, StartDate: d(2024, 1, 1), LastGenerated: d(2024, 1, 1)}
	if got, ok := NextScheduled(missed, d(2024, 1, 10)); ok {
		t.Errorf("NextScheduled() after missed window = %v, want none", got)
	}
}

func TestUpcomingRandomChains(t *testing.T) {
	def := Definition{Cadence: Random{EveryXDays: 10}, StartDate: d(2024, 1, 1)}
	got := Upcoming(def, d(2024, 1, 1), 3)
	want := []core.Date{d(2024, 1, 1), d(2024, 1, 11), d(2024, 1, 21)}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("Upcoming() = %v, want %v", got, want)
		}
	}
	if n := len(Upcoming(def, d(2024, 1, 1), 0)); n != 0 {
		t.Errorf("Upcoming(n=0) returned %d dates", n)
	}
}

func TestFromRecord(t *testing.T) {
	base := core.RecurringTransaction{ID: "r1", StartDate: d(2024, 1, 1)}
	tests := []struct {
		name string
		mod  func(*core.RecurringTransaction)
		want Cadence
		err  error
	}{
		{"daily", func(r *core.RecurringTransaction) { r.Frequency = core.Daily }, Daily{}, nil},
		{"weekly", func(r *core.RecurringTransaction) { r.Frequency = core.Weekly; r.Weekday = core.IntPtr(3) }, Weekly{Weekday: time.Wednesday}, nil},
		{"weekly missing weekday", func(r *core.RecurringTransaction) { r.Frequency = core.Weekly }, nil, ErrMissingWeekday},
		{"bi-weekly bad weekday", func(r *core.RecurringTransaction) { r.Frequency = core.BiWeekly; r.Weekday = core.IntPtr(9) }, nil, ErrInvalidWeekday},
		{"monthly missing day", func(r *core.RecurringTransaction) { r.Frequency = core.Monthly }, nil, ErrMissingDayOfMonth},
		{"quarterly", func(r *core.RecurringTransaction) { r.Frequency = core.Quarterly; r.DayOfMonth = core.IntPtr(31) }, Quarterly{Day: 31}, nil},
		{"yearly day zero", func(r *core.RecurringTransaction) { r.Frequency = core.Yearly; r.DayOfMonth = core.IntPtr(0) }, nil, ErrInvalidDayOfMonth},
		{"random", func(r *core.RecurringTransaction) { r.Frequency = core.Random; r.RandomEveryXDays = core.IntPtr(45) }, Random{EveryXDays: 45}, nil},
		{"random missing", func(r *core.RecurringTransaction) { r.Frequency = core.Random }, nil, ErrMissingInterval},
		{"random too large", func(r *core.RecurringTransaction) { r.Frequency = core.Random; r.RandomEveryXDays = core.IntPtr(400) }, nil, ErrInvalidInterval},
		{"unknown", func(r *core.RecurringTransaction) { r.Frequency = "hourly" }, nil, ErrUnknownFrequency},
		{"no start", func(r *core.RecurringTransaction) { r.Frequency = core.Daily; r.StartDate = core.Date{} }, nil, core.ErrMissingStartDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := base
			tt.mod(&rt)
			def, err := FromRecord(rt)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("FromRecord() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromRecord() error = %v", err)
			}
			if def.Cadence != tt.want {
				t.Fatalf("FromRecord() cadence = %#v, want %#v", def.Cadence, tt.want)
			}
			if def.Cadence.Frequency() != rt.Frequency {
				t.Errorf("Frequency() = %s, want %s", def.Cadence.Frequency(), rt.Frequency)
			}
		})
	}
}

func TestBoundaryNormalizationAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	def := Definition{Cadence: Daily{}, StartDate: d(2024, 3, 9), LastGenerated: d(2024, 3, 9)}

	// 2024-03-10 is 23 hours long in New York. Late evening is still the 10th.
	late := time.Date(2024, 3, 10, 23, 30, 0, 0, ny)
	today := core.DateOf(late)
	if today != d(2024, 3, 10) {
		t.Fatalf("DateOf() = %v", today)
	}
	if !ShouldGenerateToday(def, today) {
		t.Error("expected daily occurrence the day after the anchor")
	}
	def.LastGenerated = today
	if ShouldGenerateToday(def, core.DateOf(late.Add(-time.Hour))) {
		t.Error("same local day must not fire twice")
	}
}
