package http

import (
	"net/url"
	"testing"

	"moneyflow/internal/core"
)

func TestParseDateParam(t *testing.T) {
	def := core.NewDate(2024, 2, 29)
	tests := []struct {
		name    string
		query   url.Values
		want    core.Date
		wantErr bool
	}{
		{"absent uses default", url.Values{}, def, false},
		{"blank uses default", url.Values{"from": {"  "}}, def, false},
		{"valid date", url.Values{"from": {"2024-03-31"}}, core.NewDate(2024, 3, 31), false},
		{"wrong layout", url.Values{"from": {"31/03/2024"}}, core.Date{}, true},
		{"impossible date", url.Values{"from": {"2023-02-29"}}, core.Date{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateParam(tt.query, "from", def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDateParam() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDateParam() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCountParam(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"", 10, false},
		{"1", 1, false},
		{"366", 366, false},
		{"0", 0, true},
		{"367", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		t.Run("count="+tt.value, func(t *testing.T) {
			q := url.Values{}
			if tt.value != "" {
				q.Set("count", tt.value)
			}
			got, err := ParseCountParam(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCountParam() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCountParam() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseUserParam(t *testing.T) {
	if got, err := ParseUserParam(url.Values{"user": {" u1 "}}); err != nil || got != "u1" {
		t.Errorf("ParseUserParam() = %q, %v, want u1", got, err)
	}
	if _, err := ParseUserParam(url.Values{"user": {"a\x00b"}}); err == nil {
		t.Error("ParseUserParam() accepted control characters")
	}
}
