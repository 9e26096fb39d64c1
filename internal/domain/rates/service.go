package rates

import (
	"context"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/types"
	"mercatus/pkg/logger"
)

// computationPlaces is the rounding applied inside computation chains.
// Presentation rounding (0 decimals for JPY) happens only at format time.
const computationPlaces = 2

// UpdateListener is notified after a new snapshot is persisted and the
// cache invalidated. Listeners hook in the sync trigger and the audit
// trail without the rate service knowing about either.
type UpdateListener func(ctx context.Context, snap *Snapshot)

// Service provides stateless conversion arithmetic over the cache, plus the
// rate-update operation that appends snapshots.
type Service struct {
	repo      Repository
	cache     *Cache
	listeners []UpdateListener
}

// NewService creates a conversion service over repo and cache.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// OnUpdate registers a listener invoked after every successful rate update.
// Not safe to call after the service is serving requests.
func (s *Service) OnUpdate(l UpdateListener) {
	s.listeners = append(s.listeners, l)
}

// CurrentRates returns the cached snapshot if fresh, loading from the store
// otherwise. An empty store is bootstrapped with the documented defaults;
// a bootstrap persistence failure is fatal to the request. Transient read
// failures are retried once before surfacing RATE_UNAVAILABLE.
func (s *Service) CurrentRates(ctx context.Context) (*Snapshot, error) {
	if snap, ok := s.cache.Snapshot(); ok {
		return snap, nil
	}

	snap, err := s.repo.Latest(ctx)
	if err != nil && !apperror.IsNotFound(err) {
		snap, err = s.repo.Latest(ctx)
	}

	switch {
	case err == nil:
		// loaded
	case apperror.IsNotFound(err):
		snap = DefaultSnapshot()
		if insErr := s.repo.Insert(ctx, snap); insErr != nil {
			return nil, apperror.NewRateUnavailable(insErr)
		}
		logger.Info(ctx, "bootstrapped default exchange rates", "version", snap.Version())
	default:
		return nil, apperror.NewRateUnavailable(err)
	}

	s.cache.StoreSnapshot(snap)
	return snap, nil
}

// Convert converts amount between two supported currencies, pivoting
// through the home currency. Both codes are strict: an unknown code is a
// hard CURRENCY_NOT_SUPPORTED failure. Result and rate round to 2 places.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, fromRaw, toRaw string) (Conversion, error) {
	from, err := currency.Parse(fromRaw)
	if err != nil {
		return Conversion{}, err
	}
	to, err := currency.Parse(toRaw)
	if err != nil {
		return Conversion{}, err
	}

	if from == to {
		return Conversion{Rate: decimal.NewFromInt(1), Result: types.RoundMoney(amount, computationPlaces)}, nil
	}

	snap, err := s.CurrentRates(ctx)
	if err != nil {
		return Conversion{}, err
	}

	if conv, ok := s.cache.Conversion(from, to, amount, snap.Version()); ok {
		return conv, nil
	}

	conv, err := convertWithSnapshot(amount, from, to, snap)
	if err != nil {
		return Conversion{}, err
	}

	s.cache.StoreConversion(from, to, amount, snap.Version(), conv)
	return conv, nil
}

// convertWithSnapshot does the pivot arithmetic against a fixed snapshot.
func convertWithSnapshot(amount decimal.Decimal, from, to currency.Code, snap *Snapshot) (Conversion, error) {
	fromRate, ok := snap.Rate(from)
	if !ok {
		return Conversion{}, apperror.NewCurrencyNotSupported(string(from))
	}
	toRate, ok := snap.Rate(to)
	if !ok {
		return Conversion{}, apperror.NewCurrencyNotSupported(string(to))
	}

	// amount in home units, then into the target unit.
	amountHome := amount
	if from != currency.Home {
		amountHome = amount.Div(fromRate)
	}
	result := amountHome
	if to != currency.Home {
		result = amountHome.Mul(toRate)
	}

	rate := toRate.DivRound(fromRate, 8)
	return Conversion{
		Rate:   rate,
		Result: types.RoundMoney(result, computationPlaces),
	}, nil
}

// ConvertAmount is the engine-facing variant: codes already normalized,
// returns only the converted amount.
func (s *Service) ConvertAmount(ctx context.Context, amount decimal.Decimal, from, to currency.Code) (decimal.Decimal, error) {
	conv, err := s.Convert(ctx, amount, string(from), string(to))
	if err != nil {
		return decimal.Zero, err
	}
	return conv.Result, nil
}

// TotalsInAllCurrencies converts each home-currency component independently
// into every supported currency. Components are rounded per currency before
// summation so rounding drift never shows up inside a component.
func (s *Service) TotalsInAllCurrencies(ctx context.Context, subtotal, shipping, tax, discount decimal.Decimal) (map[currency.Code]Totals, error) {
	snap, err := s.CurrentRates(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[currency.Code]Totals, len(currency.All()))
	for _, code := range currency.All() {
		var t Totals
		components := []struct {
			src decimal.Decimal
			dst *decimal.Decimal
		}{
			{subtotal, &t.Subtotal},
			{shipping, &t.Shipping},
			{tax, &t.Tax},
			{discount, &t.Discount},
		}
		for _, comp := range components {
			conv, err := convertWithSnapshot(comp.src, currency.Home, code, snap)
			if err != nil {
				return nil, err
			}
			*comp.dst = conv.Result
		}
		t.Total = t.Subtotal.Add(t.Shipping).Add(t.Tax).Sub(t.Discount)
		out[code] = t
	}
	return out, nil
}

// UpdateRates validates and appends a new snapshot, invalidates caches, and
// notifies listeners (sync trigger, audit). Concurrent readers keep working
// off the previous cached snapshot until expiry or this invalidation.
func (s *Service) UpdateRates(ctx context.Context, homeToForeign map[currency.Code]decimal.Decimal, updatedBy, notes string) (*Snapshot, error) {
	snap := NewSnapshot(homeToForeign, updatedBy, notes)
	if err := snap.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, snap); err != nil {
		return nil, err
	}

	s.cache.Invalidate()
	s.cache.StoreSnapshot(snap)

	logger.Info(ctx, "exchange rates updated",
		"version", snap.Version(),
		"updated_by", updatedBy,
	)

	for _, l := range s.listeners {
		l(ctx, snap)
	}
	return snap, nil
}

// History returns recent snapshots newest-first.
func (s *Service) History(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.History(ctx, limit)
}

// SnapshotByVersion resolves a rate version string back to its snapshot.
// Used by targeted retry, which must re-derive with the job's recorded
// version, not necessarily the latest.
func (s *Service) SnapshotByVersion(ctx context.Context, version string) (*Snapshot, error) {
	at, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}
	return s.repo.ByEffectiveAt(ctx, at)
}
