package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		err error
	}{
		{"1", "1", nil},
		{"1.0", "1", nil},
		{"1.23", "1.23", nil},
		{"1,23", "1.23", nil},
		{"0.01", "0.01", nil},
		{".5", "0.5", nil},
		{"7.", "7", nil},
		{"+4", "4", nil},
		{" 2.50 ", "2.5", nil},
		{"0", "0", nil},
		{"-1", "", ErrNegativeAmount},
		{"abc", "", ErrInvalidAmount},
		{"1.2.3", "", ErrInvalidAmount},
		{".", "", ErrInvalidAmount},
		{"1e5", "", ErrInvalidAmount},
		{"", "", ErrMissingAmount},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.err != nil {
			if err != tc.err {
				t.Fatalf("%q expected %v, got %v", tc.in, tc.err, err)
			}
			continue
		}
		if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
			t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"0":      "$0.00",
		"12.5":   "$12.50",
		"3.456":  "$3.46",
		"-10.25": "-$10.25",
	}
	for in, want := range cases {
		if got := FormatAmount(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}
