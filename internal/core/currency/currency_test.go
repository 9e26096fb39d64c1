package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Code
		wantErr bool
	}{
		{name: "exact", raw: "USD", want: USD},
		{name: "lowercase", raw: "eur", want: EUR},
		{name: "whitespace", raw: "  jpy ", want: JPY},
		{name: "unknown", raw: "GBP", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeFallsBackToHome(t *testing.T) {
	assert.Equal(t, EUR, Normalize(" eur "))
	assert.Equal(t, Home, Normalize("GBP"))
	assert.Equal(t, Home, Normalize(""))
}

func TestFormat(t *testing.T) {
	amount := decimal.RequireFromString("1234.567")

	// 2-decimal units keep cents; the zero-decimal unit rounds whole,
	// half away from zero.
	assert.Equal(t, "$1234.57", Format(amount, USD))
	assert.Equal(t, "€1234.57", Format(amount, EUR))
	assert.Equal(t, "¥1235", Format(amount, JPY))
	assert.Equal(t, "¥-1235", Format(decimal.RequireFromString("-1234.5"), JPY))
}
