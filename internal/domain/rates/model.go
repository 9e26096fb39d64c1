// Package rates provides the exchange-rate store, cache, and conversion
// service. A snapshot is immutable once created; rate updates append a new
// snapshot and never mutate history.
package rates

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/id"
)

// Snapshot is one exchange-rate record: how many units of each foreign
// currency one home unit buys, effective from EffectiveAt.
type Snapshot struct {
	ID            id.ID                            `db:"id" json:"id"`
	HomeToForeign map[currency.Code]decimal.Decimal `db:"rates" json:"homeToForeign"`
	EffectiveAt   time.Time                        `db:"effective_at" json:"effectiveAt"`
	UpdatedBy     string                           `db:"updated_by" json:"updatedBy,omitempty"`
	Notes         string                           `db:"notes" json:"notes,omitempty"`
}

// NewSnapshot creates a snapshot effective now.
func NewSnapshot(homeToForeign map[currency.Code]decimal.Decimal, updatedBy, notes string) *Snapshot {
	return &Snapshot{
		ID:            id.New(),
		HomeToForeign: homeToForeign,
		EffectiveAt:   time.Now().UTC(),
		UpdatedBy:     updatedBy,
		Notes:         notes,
	}
}

// versionLayout is RFC 3339 with a fixed-width nanosecond fraction, so
// version strings sort lexicographically in effective-time order.
const versionLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Version is the stable identifier for "which snapshot produced this derived
// value". Two snapshots are the same version iff this string is equal, and
// versions compare as strings in snapshot order.
func (s *Snapshot) Version() string {
	return s.EffectiveAt.UTC().Format(versionLayout)
}

// Rate returns the home→code rate. The home currency itself is rate 1.
func (s *Snapshot) Rate(code currency.Code) (decimal.Decimal, bool) {
	if code == currency.Home {
		return decimal.NewFromInt(1), true
	}
	r, ok := s.HomeToForeign[code]
	return r, ok
}

// Validate implements entity self-validation: every rate must be positive
// and every supported foreign unit must be present.
func (s *Snapshot) Validate(ctx context.Context) error {
	for _, code := range currency.Foreign() {
		r, ok := s.HomeToForeign[code]
		if !ok {
			return apperror.NewValidation("missing rate for supported currency").
				WithDetail("currency", string(code))
		}
		if !r.IsPositive() {
			return apperror.NewValidation("exchange rate must be greater than zero").
				WithDetail("currency", string(code)).
				WithDetail("rate", r.String())
		}
	}
	for code := range s.HomeToForeign {
		if !currency.IsSupported(code) || code == currency.Home {
			return apperror.NewCurrencyNotSupported(string(code))
		}
	}
	return nil
}

// ParseVersion converts a rate-version string back into the snapshot's
// effective timestamp.
func ParseVersion(version string) (time.Time, error) {
	at, err := time.Parse(time.RFC3339Nano, version)
	if err != nil {
		return time.Time{}, apperror.NewValidation("malformed rate version").
			WithDetail("version", version).WithCause(err)
	}
	return at, nil
}

// DefaultSnapshot returns the documented bootstrap rates, used when the
// store is empty on first read: 1 USD = 0.92 EUR, 1 USD = 147 JPY.
func DefaultSnapshot() *Snapshot {
	return NewSnapshot(map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.92"),
		currency.JPY: decimal.RequireFromString("147"),
	}, "system", "bootstrap defaults")
}

// Conversion is the result of a single currency conversion.
type Conversion struct {
	Rate   decimal.Decimal `json:"rate"`
	Result decimal.Decimal `json:"result"`
}

// Totals is the per-currency breakdown of an order-level money summary.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}
