package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentRecurring, Output: &buf})

	NewStructuredLogger(logger).LogRunCompleted(context.Background(), "2024-02-29", 3, 1, 2, 0, 12)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Recurring run completed", entry["msg"])
	assert.Equal(t, ComponentRecurring, entry[FieldComponent])
	assert.Equal(t, "2024-02-29", entry[FieldDate])
	assert.EqualValues(t, 1, entry[FieldCreated])
	assert.Equal(t, "INFO", entry["level"])
}

func TestRunWithFailuresLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentRecurring, Output: &buf})

	NewStructuredLogger(logger).LogRunCompleted(context.Background(), "2024-02-29", 2, 0, 0, 2, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "text", Component: ComponentApp, Output: &buf})
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.WithComponent(ComponentCLI).Info("shown", FieldRecurringID, "r1")
	assert.Contains(t, buf.String(), "component=cli")
	assert.Contains(t, buf.String(), "recurring_id=r1")
}

func TestMiddlewareInjectsRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "text", Component: ComponentHTTP, Output: &buf})

	h := Middleware(logger, func(*http.Request) string { return "req-42" })(
		ComponentMiddleware(ComponentCalendar)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "feed built")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/calendar/recurring.ics", nil))

	out := buf.String()
	assert.Contains(t, out, "component=calendar")
	assert.Contains(t, out, "request_id=req-42")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, ComponentApp, l.Component())
}

func TestLogErrorUsesComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "text", Component: ComponentApp, Output: &buf})

	NewStructuredLogger(logger).LogError(context.Background(), "Request failed", errors.New("disk full"),
		ComponentRecurring, OpServe, LogFields{FieldPath: "/api/recurring-transactions"})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "component="))
	assert.Contains(t, out, "component=recurring")
	assert.Contains(t, out, `error="disk full"`)
	assert.Contains(t, out, "operation=serve")
}

func TestFieldsToSliceIsOrdered(t *testing.T) {
	got := NewFields().WithTransaction("tx-1", "2024-02-29", "1200.00", "USD").ToSlice()
	assert.Equal(t, []any{
		FieldAmount, "1200.00",
		FieldCurrency, "USD",
		FieldDate, "2024-02-29",
		FieldTransactionID, "tx-1",
	}, got)
}
