package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "two-digit year", input: "01.01.24", want: day(2024, 1, 1)},
		{name: "two-digit year unpadded", input: "5.3.24", want: day(2024, 3, 5)},
		{name: "two-digit year 69 stays in 2000s", input: "01.01.69", want: day(2069, 1, 1)},
		{name: "four-digit year", input: "31.12.2023", want: day(2023, 12, 31)},
		{name: "four-digit year unpadded", input: "1.1.2024", want: day(2024, 1, 1)},
		{name: "ISO", input: "2024-02-29", want: day(2024, 2, 29)},
		{name: "slashes day first", input: "15/03/2024", want: day(2024, 3, 15)},
		{name: "surrounding whitespace", input: "  01.02.2024 ", want: day(2024, 2, 1)},
		{name: "epoch start accepted", input: "01.01.1970", want: day(1970, 1, 1)},

		{name: "before 1970 rejected", input: "31.12.1969", wantErr: true},
		{name: "far past rejected", input: "01.01.1900", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "invalid day", input: "32.01.2024", wantErr: true},
		{name: "not a leap year", input: "29.02.2023", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
		{name: "three-digit year", input: "01.01.924", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDate(%q) = %v, want error", tt.input, got)
				}
				if !ledger.IsValidation(err) {
					t.Errorf("error %v is not a ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseAmount Tests
// ----------------------------------------------------------------------------

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "grouping and decimal comma", input: "1.234,56", want: "1234.56"},
		{name: "negative", input: "-50,00", want: "-50"},
		{name: "plain comma decimal", input: "100,00", want: "100"},
		{name: "explicit plus", input: "+3,00", want: "3"},
		{name: "many groups", input: "-1.234.567,89", want: "-1234567.89"},
		{name: "euro sign", input: "12,30 €", want: "12.3"},
		{name: "EUR suffix", input: "-7,00 EUR", want: "-7"},
		{name: "accounting parentheses", input: "(12,30) €", want: "-12.3"},
		{name: "trailing minus", input: "7,50-", want: "-7.5"},
		{name: "space grouping", input: "1 234,56", want: "1234.56"},
		{name: "no-break space grouping", input: "1\u00a0234,56", want: "1234.56"},
		{name: "dot grouping only", input: "1.234", want: "1234"},
		{name: "dot decimal", input: "12.5", want: "12.5"},
		{name: "dot decimal two places", input: "-19.99", want: "-19.99"},
		{name: "integer", input: "42", want: "42"},
		{name: "zero parses", input: "0,00", want: "0"},

		{name: "empty", input: "", wantErr: true},
		{name: "only currency", input: "€", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "two decimal commas", input: "1,2,3", wantErr: true},
		{name: "double sign", input: "--5", wantErr: true},
		{name: "lone minus", input: "-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %s, want error", tt.input, got)
				}
				if !ledger.IsValidation(err) {
					t.Errorf("error %v is not a ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.input, err)
			}
			if want := decimal.RequireFromString(tt.want); !got.Equal(want) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}
