package rates

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
)

// memRepo is an in-memory append-only snapshot store for tests.
type memRepo struct {
	snapshots  []*Snapshot
	latestErrs []error // consumed per Latest call before serving data
	insertErr  error
	latestCalls int
}

func (m *memRepo) Latest(ctx context.Context) (*Snapshot, error) {
	m.latestCalls++
	if len(m.latestErrs) > 0 {
		err := m.latestErrs[0]
		m.latestErrs = m.latestErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.snapshots) == 0 {
		return nil, apperror.NewNotFound("rate snapshot", nil)
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *memRepo) Insert(ctx context.Context, snap *Snapshot) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memRepo) ByEffectiveAt(ctx context.Context, at time.Time) (*Snapshot, error) {
	for _, s := range m.snapshots {
		if s.EffectiveAt.Equal(at) {
			return s, nil
		}
	}
	return nil, apperror.NewNotFound("rate snapshot", at)
}

func (m *memRepo) History(ctx context.Context, limit int) ([]*Snapshot, error) {
	out := make([]*Snapshot, 0, limit)
	for i := len(m.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.snapshots[i])
	}
	return out, nil
}

func testSnapshot() *Snapshot {
	return NewSnapshot(map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.92"),
		currency.JPY: decimal.RequireFromString("147"),
	}, "tester", "")
}

func newTestService(repo *memRepo, opts ...CacheOption) *Service {
	return NewService(repo, NewCache(opts...))
}

func TestConvertPivotsThroughHome(t *testing.T) {
	repo := &memRepo{snapshots: []*Snapshot{testSnapshot()}}
	svc := newTestService(repo)
	ctx := context.Background()

	// 92 EUR -> 100 USD -> 14700 JPY.
	conv, err := svc.Convert(ctx, decimal.RequireFromString("92"), "EUR", "JPY")
	require.NoError(t, err)
	assert.True(t, conv.Result.Equal(decimal.RequireFromString("14700")), "got %s", conv.Result)

	// Same currency short-circuits with rate 1.
	conv, err = svc.Convert(ctx, decimal.RequireFromString("5.555"), "usd", "USD")
	require.NoError(t, err)
	assert.True(t, conv.Rate.Equal(decimal.NewFromInt(1)))
	assert.True(t, conv.Result.Equal(decimal.RequireFromString("5.56")), "rounds half away from zero, got %s", conv.Result)
}

func TestConvertUnknownCurrencyFails(t *testing.T) {
	svc := newTestService(&memRepo{snapshots: []*Snapshot{testSnapshot()}})

	_, err := svc.Convert(context.Background(), decimal.NewFromInt(1), "USD", "GBP")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeCurrencyNotSupported))
}

func TestConvertRoundTripWithinOneRoundingUnit(t *testing.T) {
	svc := newTestService(&memRepo{snapshots: []*Snapshot{testSnapshot()}})
	ctx := context.Background()
	cent := decimal.RequireFromString("0.01")

	for _, amount := range []string{"0.01", "1", "19.99", "100", "12345.67", "0.37"} {
		for _, code := range []string{"EUR", "JPY"} {
			a := decimal.RequireFromString(amount)
			there, err := svc.Convert(ctx, a, "USD", code)
			require.NoError(t, err)
			back, err := svc.Convert(ctx, there.Result, code, "USD")
			require.NoError(t, err)

			diff := back.Result.Sub(a).Abs()
			assert.True(t, diff.LessThanOrEqual(cent),
				"round trip %s USD via %s drifted %s", amount, code, diff)
		}
	}
}

func TestCurrentRatesBootstrapsEmptyStore(t *testing.T) {
	repo := &memRepo{}
	svc := newTestService(repo)

	snap, err := svc.CurrentRates(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.snapshots, 1, "bootstrap snapshot persisted")
	assert.Equal(t, repo.snapshots[0].Version(), snap.Version())

	rate, ok := snap.Rate(currency.JPY)
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("147")))
}

func TestCurrentRatesBootstrapPersistFailureIsFatal(t *testing.T) {
	repo := &memRepo{insertErr: assert.AnError}
	svc := newTestService(repo)

	_, err := svc.CurrentRates(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRateUnavailable))
}

func TestCurrentRatesRetriesTransientReadOnce(t *testing.T) {
	repo := &memRepo{
		snapshots:  []*Snapshot{testSnapshot()},
		latestErrs: []error{assert.AnError},
	}
	svc := newTestService(repo)

	snap, err := svc.CurrentRates(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, 2, repo.latestCalls)

	// Two consecutive failures surface RATE_UNAVAILABLE.
	repo2 := &memRepo{latestErrs: []error{assert.AnError, assert.AnError}}
	_, err = newTestService(repo2).CurrentRates(context.Background())
	assert.True(t, apperror.IsCode(err, apperror.CodeRateUnavailable))
}

func TestSnapshotCacheExpiry(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := &memRepo{snapshots: []*Snapshot{testSnapshot()}}
	svc := newTestService(repo, WithClock(clock))
	ctx := context.Background()

	_, err := svc.CurrentRates(ctx)
	require.NoError(t, err)
	calls := repo.latestCalls

	// Within TTL: served from cache.
	now = now.Add(59 * time.Second)
	_, err = svc.CurrentRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, repo.latestCalls)

	// Past TTL: reloaded.
	now = now.Add(2 * time.Second)
	_, err = svc.CurrentRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls+1, repo.latestCalls)
}

func TestUpdateRatesValidatesInvalidatesAndNotifies(t *testing.T) {
	repo := &memRepo{snapshots: []*Snapshot{testSnapshot()}}
	svc := newTestService(repo)
	ctx := context.Background()

	var notified *Snapshot
	svc.OnUpdate(func(ctx context.Context, snap *Snapshot) { notified = snap })

	// Non-positive rate rejected.
	_, err := svc.UpdateRates(ctx, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.Zero,
		currency.JPY: decimal.NewFromInt(150),
	}, "admin", "")
	require.Error(t, err)
	assert.Nil(t, notified)

	snap, err := svc.UpdateRates(ctx, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.95"),
		currency.JPY: decimal.NewFromInt(150),
	}, "admin", "quarterly adjustment")
	require.NoError(t, err)
	require.NotNil(t, notified)
	assert.Equal(t, snap.Version(), notified.Version())

	// New snapshot serves immediately; conversions use the new rate.
	conv, err := svc.Convert(ctx, decimal.NewFromInt(100), "USD", "JPY")
	require.NoError(t, err)
	assert.True(t, conv.Result.Equal(decimal.NewFromInt(15000)), "got %s", conv.Result)
}

func TestTotalsInAllCurrenciesZeros(t *testing.T) {
	svc := newTestService(&memRepo{snapshots: []*Snapshot{testSnapshot()}})

	totals, err := svc.TotalsInAllCurrencies(context.Background(),
		decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	for code, tt := range totals {
		assert.True(t, tt.Total.IsZero(), "total for %s: %s", code, tt.Total)
		assert.True(t, tt.Subtotal.IsZero())
	}
}

func TestTotalsInAllCurrenciesComponentsRoundedBeforeSum(t *testing.T) {
	svc := newTestService(&memRepo{snapshots: []*Snapshot{testSnapshot()}})

	totals, err := svc.TotalsInAllCurrencies(context.Background(),
		decimal.RequireFromString("100"),
		decimal.RequireFromString("10"),
		decimal.RequireFromString("5"),
		decimal.RequireFromString("15"))
	require.NoError(t, err)

	eur := totals[currency.EUR]
	assert.True(t, eur.Subtotal.Equal(decimal.RequireFromString("92")), "got %s", eur.Subtotal)
	assert.True(t, eur.Total.Equal(eur.Subtotal.Add(eur.Shipping).Add(eur.Tax).Sub(eur.Discount)))

	usd := totals[currency.USD]
	assert.True(t, usd.Total.Equal(decimal.RequireFromString("100")), "got %s", usd.Total)
}

func TestConversionCacheKeyedByVersion(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := NewCache(WithClock(clock))

	snap := testSnapshot()
	amount := decimal.RequireFromString("10")
	conv := Conversion{Rate: decimal.RequireFromString("0.92"), Result: decimal.RequireFromString("9.20")}

	cache.StoreConversion(currency.USD, currency.EUR, amount, snap.Version(), conv)

	got, ok := cache.Conversion(currency.USD, currency.EUR, amount, snap.Version())
	require.True(t, ok)
	assert.True(t, got.Result.Equal(conv.Result))

	// Different version never hits.
	_, ok = cache.Conversion(currency.USD, currency.EUR, amount, "other-version")
	assert.False(t, ok)

	// TTL expiry.
	now = now.Add(DefaultConversionTTL + time.Second)
	_, ok = cache.Conversion(currency.USD, currency.EUR, amount, snap.Version())
	assert.False(t, ok)
}

func TestVersionSortsLexicographicallyByEffectiveTime(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 5, 0, time.UTC)
	times := []time.Time{
		base.Add(100 * time.Millisecond),
		base.Add(150 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 5*time.Nanosecond),
	}

	var prev string
	for i, at := range times {
		snap := NewSnapshot(map[currency.Code]decimal.Decimal{
			currency.EUR: decimal.RequireFromString("0.92"),
			currency.JPY: decimal.RequireFromString("147"),
		}, "test", "")
		snap.EffectiveAt = at

		version := snap.Version()
		if i > 0 {
			assert.Greater(t, version, prev)
		}
		prev = version

		parsed, err := ParseVersion(version)
		require.NoError(t, err)
		assert.True(t, parsed.Equal(at))
	}
}
