package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/storage/memory"
)

func rent() core.RecurringTransaction {
	return core.RecurringTransaction{
		ID:            "rent",
		UserID:        "u1",
		Type:          core.Expense,
		CategoryKey:   "housing",
		Amount:        core.MustMoney("1200", core.USD),
		Description:   "Rent",
		Frequency:     core.Monthly,
		DayOfMonth:    core.IntPtr(31),
		StartDate:     core.NewDate(2024, 1, 31),
		LastGenerated: core.NewDate(2024, 1, 31),
		IsActive:      true,
	}
}

func gym() core.RecurringTransaction {
	rt := rent()
	rt.ID = "gym"
	rt.CategoryKey = "health"
	rt.Amount = core.MustMoney("15", core.USD)
	rt.Description = "Gym"
	rt.Frequency = core.Weekly
	rt.DayOfMonth = nil
	rt.Weekday = core.IntPtr(int(time.Monday))
	rt.StartDate = core.NewDate(2024, 1, 1)
	rt.LastGenerated = core.NewDate(2024, 2, 26)
	return rt
}

func broken() core.RecurringTransaction {
	rt := rent()
	rt.ID = "broken"
	rt.DayOfMonth = nil
	return rt
}

func seeded(items ...core.RecurringTransaction) *memory.Store {
	store := memory.New(memory.WithIDs(memory.SequentialIDs("tx")))
	store.Seed(items...)
	return store
}

func TestDue(t *testing.T) {
	opts := memoryOptions(seeded(rent(), gym()))

	res := runCLI(t, opts, "due")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "2024-02-29: 1 due")
	assert.Contains(t, res.stdout, "monthly on day 31")
	assert.NotContains(t, res.stdout, "Gym")

	res = runCLI(t, opts, "--format", "json", "due", "--date", "2024-03-04")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var got dueResult
	decodeData(t, res.stdout, &got)
	assert.Equal(t, core.NewDate(2024, 3, 4), got.Date)
	require.Len(t, got.Due, 1)
	assert.Equal(t, "gym", got.Due[0].ID)
	assert.Equal(t, "15.00", got.Due[0].Amount)
}

func TestDue_InvalidDefinitionFails(t *testing.T) {
	res := runCLI(t, memoryOptions(seeded(rent(), broken())), "due")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "1 due")
	assert.Contains(t, res.stdout, "invalid broken: monthly: day of month is required")
	assert.Empty(t, res.stderr)
}

func TestNext(t *testing.T) {
	opts := memoryOptions(seeded(rent(), broken()))

	res := runCLI(t, opts, "--format", "json", "next", "rent", "--from", "2024-02-01", "--count", "3")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var got nextResult
	decodeData(t, res.stdout, &got)
	assert.Equal(t, []core.Date{
		core.NewDate(2024, 2, 29), core.NewDate(2024, 3, 31), core.NewDate(2024, 4, 30),
	}, got.Dates)
	assert.Contains(t, got.RRule, "FREQ=MONTHLY")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown id", []string{"next", "nope"}, ExitCommandError},
		{"count too small", []string{"next", "rent", "--count", "0"}, ExitCommandError},
		{"count too large", []string{"next", "rent", "--count", "367"}, ExitCommandError},
		{"broken definition", []string{"next", "broken"}, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, runCLI(t, opts, tt.args...).code)
		})
	}
}

func TestNext_Inactive(t *testing.T) {
	rt := rent()
	rt.IsActive = false
	res := runCLI(t, memoryOptions(seeded(rt)), "next", "rent")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "inactive")
}

func TestRun(t *testing.T) {
	store := seeded(rent(), gym())
	opts := memoryOptions(store)

	res := runCLI(t, opts, "--format", "json", "run")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var summary core.RunSummary
	decodeData(t, res.stdout, &summary)
	assert.True(t, summary.Success)
	assert.Equal(t, []string{"tx-1"}, summary.CreatedIDs)
	assert.Equal(t, 1, summary.SkippedCount)

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "rent", txs[0].RecurringID)
	assert.Equal(t, core.NewDate(2024, 2, 29), txs[0].Date)

	res = runCLI(t, opts, "run")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "created 0, skipped 2, errors 0")
	assert.Len(t, store.Transactions(), 1)
}

func TestRun_ItemErrorsFail(t *testing.T) {
	res := runCLI(t, memoryOptions(seeded(rent(), broken())), "run", "--date", "2024-02-29")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "created tx-1")
	assert.Contains(t, res.stdout, "error broken: invalid definition")
}

func TestRecurringAdd(t *testing.T) {
	store := seeded()
	opts := memoryOptions(store)

	res := runCLI(t, opts, "recurring", "add",
		"--user", "u1", "--category", " utilities ", "--amount", "49,9", "--currency", "usd",
		"--description", "Internet", "--frequency", "bi-weekly", "--weekday", "thu",
		"--start", "2024-02-29")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "every other Thursday")
	assert.Contains(t, res.stdout, "next 2024-02-29")

	items, err := store.ListRecurring(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "utilities", items[0].CategoryKey)
	assert.Equal(t, "49.90", items[0].Amount.Key())
	require.NotNil(t, items[0].Weekday)
	assert.Equal(t, int(time.Thursday), *items[0].Weekday)
	assert.Nil(t, items[0].DayOfMonth)
}

func TestRecurringAdd_Rejected(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing required flag", []string{"--amount", "10", "--description", "x", "--frequency", "daily"}},
		{"bad frequency", []string{"--category", "c", "--amount", "10", "--description", "x", "--frequency", "hourly"}},
		{"bad amount", []string{"--category", "c", "--amount", "-3", "--description", "x", "--frequency", "daily"}},
		{"monthly without day", []string{"--category", "c", "--amount", "10", "--description", "x", "--frequency", "monthly"}},
		{"bi-weekly weekday mismatch", []string{"--category", "c", "--amount", "10", "--description", "x",
			"--frequency", "bi-weekly", "--weekday", "1", "--start", "2024-02-29"}},
		{"end before start", []string{"--category", "c", "--amount", "10", "--description", "x",
			"--frequency", "daily", "--start", "2024-03-01", "--end", "2024-02-01"}},
		{"bad weekday", []string{"--category", "c", "--amount", "10", "--description", "x",
			"--frequency", "weekly", "--weekday", "someday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seeded()
			res := runCLI(t, memoryOptions(store), append([]string{"recurring", "add"}, tt.args...)...)
			assert.Equal(t, ExitCommandError, res.code, res.stdout)
			items, err := store.ListRecurring(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestRecurringList(t *testing.T) {
	paused := gym()
	paused.IsActive = false
	opts := memoryOptions(seeded(rent(), paused, broken()))

	res := runCLI(t, opts, "--format", "json", "recurring", "list")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var items []listItem
	decodeData(t, res.stdout, &items)
	require.Len(t, items, 3)

	assert.Equal(t, "rent", items[0].ID)
	require.NotNil(t, items[0].Next)
	assert.Equal(t, core.NewDate(2024, 2, 29), *items[0].Next)
	assert.Nil(t, items[1].Next, "paused definitions have no next date")
	assert.Equal(t, "invalid", items[2].Cadence)
	assert.NotEmpty(t, items[2].Error)

	res = runCLI(t, opts, "recurring", "list", "--active")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "$")
	assert.NotContains(t, res.stdout, "Gym")
}

func TestRecurringPauseResume(t *testing.T) {
	expired := gym()
	expired.ID = "old"
	expired.EndDate = core.NewDate(2024, 2, 1)
	expired.LastGenerated = core.NewDate(2024, 1, 29)
	expired.IsActive = false
	store := seeded(rent(), expired)
	opts := memoryOptions(store)
	ctx := context.Background()

	res := runCLI(t, opts, "recurring", "pause", "rent")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	rt, err := store.GetRecurring(ctx, "rent")
	require.NoError(t, err)
	assert.False(t, rt.IsActive)

	res = runCLI(t, opts, "recurring", "resume", "rent")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	rt, err = store.GetRecurring(ctx, "rent")
	require.NoError(t, err)
	assert.True(t, rt.IsActive)

	res = runCLI(t, opts, "recurring", "resume", "old")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "already expired")

	assert.Equal(t, ExitCommandError, runCLI(t, opts, "recurring", "pause", "nope").code)
}

func TestSQLiteStore(t *testing.T) {
	opts := memoryOptions(nil)
	opts.OpenStore = nil
	opts.Logger = log.Discard()
	db := filepath.Join(t.TempDir(), "data", "moneyflow.db")

	res := runCLI(t, opts, "--db", db, "recurring", "add", "--category", "food", "--amount", "45000",
		"--currency", "VND", "--description", "Coffee", "--frequency", "daily", "--start", "2024-02-28")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, opts, "--db", db, "--format", "json", "run")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var summary core.RunSummary
	decodeData(t, res.stdout, &summary)
	assert.Equal(t, 1, summary.Created)

	res = runCLI(t, opts, "--db", db, "--format", "json", "recurring", "list")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var items []listItem
	decodeData(t, res.stdout, &items)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LastGenerated)
	assert.Equal(t, core.NewDate(2024, 2, 29), *items[0].LastGenerated)
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{"0", time.Sunday, false},
		{"6", time.Saturday, false},
		{"mon", time.Monday, false},
		{"Wednesday", time.Wednesday, false},
		{" THU ", time.Thursday, false},
		{"7", 0, true},
		{"-1", 0, true},
		{"mo", 0, true},
		{"funday", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWeekday(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidWeekday)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
