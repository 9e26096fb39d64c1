// Package numparse parses human-entered numeric strings.
//
// Admin price edits and imported price lists arrive with locale-specific
// digit grouping and decimal separators ("1 234,56", "1,234.56", "€1.234,56").
// Parse is total: it returns ok=false instead of guessing when the input is
// not a recognizable number.
package numparse

import (
	"strings"

	"github.com/shopspring/decimal"
)

// strippable characters: currency symbols, grouping spaces, apostrophes.
var stripped = strings.NewReplacer(
	"$", "", "€", "", "¥", "", "£", "",
	" ", "", " ", "", " ", "", "'", "",
)

// Parse converts a locale-formatted numeric string into a decimal.
// Rules:
//   - currency symbols, spaces (incl. NBSP and narrow NBSP) and apostrophe
//     grouping are removed;
//   - when both '.' and ',' appear, the rightmost one is the decimal
//     separator and the other is grouping;
//   - a single separator followed by exactly three digits, with at most
//     three digits before it, is grouping ("1,234"); any other single
//     separator is the decimal point ("1234.567", "12,5").
func Parse(raw string) (decimal.Decimal, bool) {
	s := stripped.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		s = normalizeSingle(s, ',', lastComma)
	case lastDot >= 0:
		s = normalizeSingle(s, '.', lastDot)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeSingle resolves a string containing one kind of separator.
func normalizeSingle(s string, sep byte, last int) string {
	if strings.IndexByte(s, sep) != last {
		// Repeated separator can only be grouping: "1,234,567".
		// Anything not shaped like 3-digit groups is left to fail parsing.
		if !validGroups(s, sep) {
			return s
		}
		return strings.ReplaceAll(s, string(sep), "")
	}

	head := strings.TrimLeft(s[:last], "+-")
	digitsAfter := len(s) - last - 1
	if digitsAfter == 3 && len(head) >= 1 && len(head) <= 3 {
		// "1,234" — grouping by convention. "1234.567" stays a decimal:
		// a grouped number never has four digits before the first separator.
		return strings.ReplaceAll(s, string(sep), "")
	}
	if sep == ',' {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

// validGroups checks that s (sign allowed) is digit groups of exactly three
// separated by sep, with a 1-3 digit leading group.
func validGroups(s string, sep byte) bool {
	s = strings.TrimLeft(s, "+-")
	parts := strings.Split(s, string(sep))
	for i, p := range parts {
		if !digitsOnly(p) {
			return false
		}
		if i == 0 {
			if len(p) < 1 || len(p) > 3 {
				return false
			}
			continue
		}
		if len(p) != 3 {
			return false
		}
	}
	return true
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
