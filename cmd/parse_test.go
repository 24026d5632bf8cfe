package cmd

import (
	"testing"

	"github.com/h4jen/yspy/date"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"250", "250", false},
		{"250.5", "250.5", false},
		{"250,5", "250.5", false},
		{"1 234,50", "1234.5", false},
		{"10_000", "10000", false},
		{"1,234.5", "", true},
		{"abc", "", true},
		{"0", "", true},
		{"-5", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDecimal(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDecimal(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("parseDecimal(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		n       int
		want    int
		wantErr bool
	}{
		{"1", 3, 0, false},
		{"3", 3, 2, false},
		{"4", 3, 0, true},
		{"0", 3, 0, true},
		{"x", 3, 0, true},
		{"1", 0, 0, true},
	}
	for _, tt := range tests {
		got, err := parseIndex(tt.in, tt.n)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseIndex(%q, %d) = %d, %v", tt.in, tt.n, got, err)
		}
	}
}

func TestParseDay(t *testing.T) {
	if got, err := parseDay(""); err != nil || got != date.Today() {
		t.Errorf("parseDay(\"\") = %v, %v", got, err)
	}
	if got, err := parseDay("06/01/2024"); err != nil || got != date.New(2024, 6, 1) {
		t.Errorf("parseDay(06/01/2024) = %v, %v", got, err)
	}
	if _, err := parseDay("tomorrow"); err == nil {
		t.Error("parseDay(tomorrow) should fail")
	}
}

func TestDepositsFlag(t *testing.T) {
	var d deposits
	for _, s := range []string{"2024-01-15=10000", "2024-06-01=5 000=Bonus"} {
		if err := d.Set(s); err != nil {
			t.Fatalf("Set(%q) error = %v", s, err)
		}
	}
	if len(d) != 2 {
		t.Fatalf("len = %d, want 2", len(d))
	}
	if d[0].Date != date.New(2024, 1, 15) || d[0].Amount.Float() != 10000 || d[0].Description != "Initial deposit" {
		t.Errorf("first deposit = %+v", d[0])
	}
	if d[1].Amount.Float() != 5000 || d[1].Description != "Bonus" || d[1].Amount.Currency() != "SEK" {
		t.Errorf("second deposit = %+v", d[1])
	}
	if got, want := d.String(), "2024-01-15=10000,2024-06-01=5000"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	for _, bad := range []string{"2024-01-15", "someday=100", "2024-01-15=-1"} {
		if err := d.Set(bad); err == nil {
			t.Errorf("Set(%q) should fail", bad)
		}
	}
}
