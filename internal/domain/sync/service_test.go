package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/rates"
)

type memJobs struct {
	jobs      map[id.ID]*Job
	insertErr error
	requeued  int
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[id.ID]*Job)}
}

func (m *memJobs) Insert(_ context.Context, job *Job) error {
	if m.insertErr != nil {
		err := m.insertErr
		m.insertErr = nil
		return err
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) FindActive(_ context.Context) (*Job, error) {
	for _, j := range m.jobs {
		if !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memJobs) GetByID(_ context.Context, jobID id.ID) (*Job, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, apperror.NewNotFound("sync job", jobID.String())
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) UpdateProgress(_ context.Context, job *Job) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) Finish(_ context.Context, job *Job) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) ListRecent(_ context.Context, limit int) ([]*Job, error) {
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobs) RequeueStuck(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	for _, j := range m.jobs {
		if j.Status == StatusRunning && j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			j.Status = StatusPending
			n++
		}
	}
	m.requeued += n
	return n, nil
}

type memProducts struct {
	products    []*product.Product
	variants    map[id.ID][]*product.Variant
	failOn      map[id.ID]error
	updateCount map[id.ID]int
	listCalls   int
}

func newMemProducts() *memProducts {
	return &memProducts{
		variants:    make(map[id.ID][]*product.Variant),
		failOn:      make(map[id.ID]error),
		updateCount: make(map[id.ID]int),
	}
}

func (m *memProducts) seed(n int) {
	for i := 0; i < n; i++ {
		p := product.NewProduct(fmt.Sprintf("P-%03d", i), fmt.Sprintf("product %d", i))
		base := decimal.NewFromInt(int64(10 + i))
		p.BasePriceHome = &base
		m.products = append(m.products, p)
	}
	sort.Slice(m.products, func(i, j int) bool {
		return bytes.Compare(m.products[i].ID[:], m.products[j].ID[:]) < 0
	})
}

func (m *memProducts) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	for _, p := range m.products {
		if p.ID == productID {
			return p, nil
		}
	}
	return nil, apperror.NewNotFound("product", productID.String())
}

func (m *memProducts) GetVariant(_ context.Context, variantID id.ID) (*product.Variant, error) {
	return nil, apperror.NewNotFound("variant", variantID.String())
}

func (m *memProducts) ListAfter(_ context.Context, after id.ID, limit int) ([]*product.Product, error) {
	m.listCalls++
	out := make([]*product.Product, 0, limit)
	for _, p := range m.products {
		if bytes.Compare(p.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memProducts) CountActive(_ context.Context) (int, error) {
	return len(m.products), nil
}

func (m *memProducts) VariantsByProduct(_ context.Context, productID id.ID) ([]*product.Variant, error) {
	return m.variants[productID], nil
}

func (m *memProducts) UpdateDerivedPrices(_ context.Context, p *product.Product) error {
	if err := m.failOn[p.ID]; err != nil {
		return err
	}
	m.updateCount[p.ID]++
	return nil
}

func (m *memProducts) BulkUpsertVariantPrices(_ context.Context, _ []*product.Variant) error {
	return nil
}

type fakeRates struct {
	current   *rates.Snapshot
	history   map[string]*rates.Snapshot
	requested []string
}

func newFakeRates(effectiveAt time.Time) *fakeRates {
	snap := &rates.Snapshot{
		ID: id.New(),
		HomeToForeign: map[currency.Code]decimal.Decimal{
			currency.EUR: decimal.RequireFromString("0.92"),
			currency.JPY: decimal.NewFromInt(147),
		},
		EffectiveAt: effectiveAt,
		UpdatedBy:   "tester",
	}
	return &fakeRates{
		current: snap,
		history: map[string]*rates.Snapshot{snap.Version(): snap},
	}
}

func (f *fakeRates) CurrentRates(_ context.Context) (*rates.Snapshot, error) {
	return f.current, nil
}

func (f *fakeRates) SnapshotByVersion(_ context.Context, version string) (*rates.Snapshot, error) {
	f.requested = append(f.requested, version)
	snap, ok := f.history[version]
	if !ok {
		return nil, apperror.NewNotFound("rate snapshot", version)
	}
	return snap, nil
}

func newTestService(products int) (*Service, *memJobs, *memProducts, *fakeRates) {
	jobs := newMemJobs()
	catalog := newMemProducts()
	catalog.seed(products)
	rateSource := newFakeRates(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(jobs, catalog, rateSource,
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }))
	return svc, jobs, catalog, rateSource
}

func TestTriggerIsIdempotentWhileJobActive(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(10)

	first, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 10, first.TotalItems)

	second, err := svc.Trigger(ctx, ReasonRateUpdate, "system")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, ReasonManual, second.Reason, "the existing job is returned untouched")

	require.NoError(t, svc.Run(ctx, first.ID))

	third, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestTriggerSurvivesInsertRace(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, _ := newTestService(5)

	winner := NewJob(ReasonManual, "v1", "other")
	winner.Status = StatusRunning

	// The winner lands between our FindActive and Insert.
	jobs.insertErr = ErrActiveJobExists
	jobs.jobs[winner.ID] = winner

	got, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
}

func TestRunProcessesCatalogInBatches(t *testing.T) {
	ctx := context.Background()
	svc, jobs, catalog, rateSource := newTestService(120)

	job, err := svc.Trigger(ctx, ReasonRateUpdate, "system")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	done, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 120, done.ProcessedItems)
	assert.Equal(t, 120, done.SucceededItems)
	assert.Zero(t, done.FailedItems)
	require.NotNil(t, done.FinishedAt)

	// 50 + 50 + 20
	assert.Equal(t, 3, catalog.listCalls)

	// Every product was stamped with the job's pinned snapshot.
	version := rateSource.current.Version()
	assert.Equal(t, version, done.RateVersion)
	for _, p := range catalog.products {
		assert.Equal(t, version, p.RateVersion)
		require.NotNil(t, p.PerCurrencyPrices)
	}
}

func TestRunResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	svc, jobs, catalog, _ := newTestService(120)

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)

	// Simulate a crash after the first batch: the stored job is Running
	// with the cursor and counters at the batch boundary.
	stored := jobs.jobs[job.ID]
	stored.Status = StatusRunning
	stored.ProcessedItems = 50
	stored.SucceededItems = 50
	stored.LastProcessedID = catalog.products[49].ID

	require.NoError(t, svc.Run(ctx, job.ID))

	done, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 120, done.ProcessedItems, "resume must not double count")
	assert.Equal(t, 120, done.SucceededItems)

	// The first batch was not reprocessed.
	assert.Zero(t, catalog.updateCount[catalog.products[0].ID])
	assert.Equal(t, 1, catalog.updateCount[catalog.products[50].ID])
}

func TestRunRecordsItemFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	svc, jobs, catalog, _ := newTestService(60)

	broken := catalog.products[7]
	catalog.failOn[broken.ID] = errors.New("price column constraint violated")

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	done, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 60, done.ProcessedItems)
	assert.Equal(t, 59, done.SucceededItems)
	assert.Equal(t, 1, done.FailedItems)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, broken.ID, done.Errors[0].ProductID)
}

func TestRunBoundsErrorList(t *testing.T) {
	ctx := context.Background()
	svc, jobs, catalog, _ := newTestService(70)

	// Fail more products than the error list holds.
	for _, p := range catalog.products[:60] {
		catalog.failOn[p.ID] = errors.New("boom")
	}

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	done, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, done.FailedItems, "counters keep the true total")
	assert.Len(t, done.Errors, MaxErrors)

	// Oldest entries were evicted, newest kept.
	assert.NotEqual(t, catalog.products[0].ID, done.Errors[0].ProductID)
	assert.Equal(t, catalog.products[59].ID, done.Errors[len(done.Errors)-1].ProductID)
}

func TestRetryProductUsesJobRateVersion(t *testing.T) {
	ctx := context.Background()
	svc, jobs, catalog, rateSource := newTestService(10)

	broken := catalog.products[3]
	catalog.failOn[broken.ID] = errors.New("deadlock detected")

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	// Rates move on after the job finished. The retry must still price
	// with the job's snapshot, not the newer one.
	newer := &rates.Snapshot{
		ID: id.New(),
		HomeToForeign: map[currency.Code]decimal.Decimal{
			currency.EUR: decimal.RequireFromString("0.95"),
			currency.JPY: decimal.NewFromInt(150),
		},
		EffectiveAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		UpdatedBy:   "tester",
	}
	rateSource.history[newer.Version()] = newer
	rateSource.current = newer

	delete(catalog.failOn, broken.ID)
	rateSource.requested = nil

	updated, err := svc.RetryProduct(ctx, job.ID, broken.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.FailedItems)
	assert.Equal(t, 10, updated.SucceededItems)
	assert.Empty(t, updated.Errors)

	require.Len(t, rateSource.requested, 1)
	assert.Equal(t, job.RateVersion, rateSource.requested[0])

	persisted, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, persisted.FailedItems)
}

func TestRetryProductRejectsUnlistedProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService(10)

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	_, err = svc.RetryProduct(ctx, job.ID, catalog.products[0].ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeSyncJobInvalid))
}

func TestRetryProductUnknownProductIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(5)

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	_, err = svc.RetryProduct(ctx, job.ID, id.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRunRejectsFinishedJob(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(5)

	job, err := svc.Trigger(ctx, ReasonManual, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID))

	err = svc.Run(ctx, job.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeSyncJobInvalid))
}

func TestRequeueStuckFlipsStaleRunningJobs(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, _ := newTestService(5)

	stale := NewJob(ReasonManual, "v1", "admin")
	stale.Status = StatusRunning
	old := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	stale.HeartbeatAt = &old
	jobs.jobs[stale.ID] = stale

	n, err := svc.RequeueStuck(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusPending, jobs.jobs[stale.ID].Status)
}
