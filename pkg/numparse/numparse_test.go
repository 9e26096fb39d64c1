package numparse

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		// Plain forms.
		{"1234.56", "1234.56", true},
		{"0", "0", true},
		{"-42", "-42", true},
		{"+3.5", "3.5", true},

		// US grouping.
		{"1,234.56", "1234.56", true},
		{"12,345,678.90", "12345678.9", true},
		{"1,234", "1234", true},

		// European grouping.
		{"1.234,56", "1234.56", true},
		{"12.345.678,90", "12345678.9", true},
		{"12,5", "12.5", true},

		// Space and apostrophe grouping (ru/fr/ch locales).
		{"1 234,56", "1234.56", true},
		{"1 234,56", "1234.56", true},
		{"1 234,56", "1234.56", true},
		{"1'234.56", "1234.56", true},

		// Currency symbols, either side.
		{"$1,234.56", "1234.56", true},
		{"1.234,56 €", "1234.56", true},
		{"¥1235", "1235", true},

		// Not grouping: four digits before a three-digit tail.
		{"1234.567", "1234.567", true},
		{"1,234,567", "1234567", true},

		// Garbage stays garbage.
		{"", "0", false},
		{"abc", "0", false},
		{"12..34", "0", false},
		{"--5", "0", false},
		{"$", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got.String(), tt.want)
			}
		})
	}
}
