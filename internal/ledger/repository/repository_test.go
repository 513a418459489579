package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/repository"
	apperrors "github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

// createTestItem persists a fresh item. Tests use distinct items instead of
// truncating, so they stay independent.
func createTestItem(t *testing.T, ctx context.Context, repo *repository.ItemRepository) *domain.Item {
	t.Helper()
	item := suite.Fixtures.Item()
	err := repo.Create(ctx, &item)
	require.NoError(t, err)
	return &item
}

func createTestBatch(t *testing.T, ctx context.Context, repo *repository.BatchRepository, itemID string, qty int, expiry *time.Time, receivedAt time.Time) *domain.Batch {
	t.Helper()
	batch := &domain.Batch{
		ItemID:           itemID,
		ExpiryDate:       expiry,
		ReceivedQuantity: qty,
		ReceivedAt:       receivedAt,
	}
	err := repo.Create(ctx, batch)
	require.NoError(t, err)
	return batch
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestItemRepository_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewItemRepository(suite.DB)

	item := createTestItem(t, ctx, repo)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 0, item.OnHandQuantity)
	assert.True(t, item.Active)

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Name, got.Name)

	_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-0000000000ff")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestItemRepository_SoftDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewItemRepository(suite.DB)

	item := createTestItem(t, ctx, repo)
	require.NoError(t, repo.SoftDelete(ctx, item.ID))

	// The item survives, marked inactive
	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestItemRepository_ApplyDelta_NegativeGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewItemRepository(suite.DB)

	item := createTestItem(t, ctx, repo)

	total, err := repo.ApplyDelta(ctx, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	// Driving the total below zero is refused and nothing changes
	_, err = repo.ApplyDelta(ctx, item.ID, -7)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNegativeStock))
	assert.True(t, apperrors.IsIntegrity(err))

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.OnHandQuantity)
}

func TestBatchRepository_ListOpen_AllocationOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	batches := repository.NewBatchRepository(suite.DB)

	item := createTestItem(t, ctx, items)
	received := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	// Inserted deliberately out of allocation order
	noExpiry := createTestBatch(t, ctx, batches, item.ID, 5, nil, received)
	late := createTestBatch(t, ctx, batches, item.ID, 5, datePtr(2027, 3, 1), received)
	early := createTestBatch(t, ctx, batches, item.ID, 5, datePtr(2026, 11, 1), received)

	open, err := batches.ListOpen(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, early.ID, open[0].ID)
	assert.Equal(t, late.ID, open[1].ID)
	assert.Equal(t, noExpiry.ID, open[2].ID, "non-expiring batches sort last")
}

func TestBatchRepository_ListOpen_TieBreakOnReceivedAt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	batches := repository.NewBatchRepository(suite.DB)

	item := createTestItem(t, ctx, items)
	expiry := datePtr(2026, 12, 1)

	newer := createTestBatch(t, ctx, batches, item.ID, 5, expiry, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	older := createTestBatch(t, ctx, batches, item.ID, 5, expiry, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	open, err := batches.ListOpen(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, older.ID, open[0].ID, "same expiry: earlier receipt drains first")
	assert.Equal(t, newer.ID, open[1].ID)
}

func TestBatchRepository_ApplyDraw(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	batches := repository.NewBatchRepository(suite.DB)

	item := createTestItem(t, ctx, items)
	batch := createTestBatch(t, ctx, batches, item.ID, 10, nil, time.Now())

	remaining, err := batches.ApplyDraw(ctx, batch.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	// Over-drawing is refused and the remainder is untouched
	_, err = batches.ApplyDraw(ctx, batch.ID, 7)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBatchShortfall))
	assert.True(t, apperrors.IsIntegrity(err))

	got, err := batches.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.RemainingQuantity)

	// A drained batch disappears from allocation but stays readable
	_, err = batches.ApplyDraw(ctx, batch.ID, 6)
	require.NoError(t, err)

	open, err := batches.ListOpen(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := batches.ListByItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEntryRepository_AppendAssignsMonotonicIDs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	entries := repository.NewEntryRepository(suite.DB)

	item := createTestItem(t, ctx, items)

	var last int64
	for i, delta := range []int{10, -3, -2, 4} {
		entry := suite.Fixtures.Entry(item.ID, testutil.WithDelta(delta, 0))
		entry.ResultingTotal = 10 // keep the check constraint satisfied
		entry.EntryID = 0
		err := entries.Append(ctx, &entry)
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, entry.EntryID, last)
		}
		last = entry.EntryID
	}

	sum, err := entries.SumDeltas(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, sum)
}

func TestEntryRepository_History(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	entries := repository.NewEntryRepository(suite.DB)

	item := createTestItem(t, ctx, items)

	deltas := []int{10, -3, 5, -2}
	reasons := []domain.Reason{domain.ReasonReceipt, domain.ReasonSale, domain.ReasonReceipt, domain.ReasonManualStockOut}
	running := 0
	ids := make([]int64, 0, len(deltas))
	for i, delta := range deltas {
		running += delta
		entry := suite.Fixtures.Entry(item.ID, testutil.WithDelta(delta, running), testutil.WithReason(reasons[i]))
		entry.EntryID = 0
		require.NoError(t, entries.Append(ctx, &entry))
		ids = append(ids, entry.EntryID)
	}

	// Audit order: entry_id ascending
	audit, err := entries.History(ctx, item.ID, repository.HistoryQuery{Order: repository.OrderEntryAsc})
	require.NoError(t, err)
	require.Len(t, audit, 4)
	for i := range audit {
		assert.Equal(t, ids[i], audit[i].EntryID)
	}

	// Resume from a cursor
	resumed, err := entries.History(ctx, item.ID, repository.HistoryQuery{Order: repository.OrderEntryAsc, Since: ids[1]})
	require.NoError(t, err)
	require.Len(t, resumed, 2)
	assert.Equal(t, ids[2], resumed[0].EntryID)

	// Display order: newest first
	display, err := entries.History(ctx, item.ID, repository.HistoryQuery{Order: repository.OrderDateDesc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, display, 2)
	assert.Equal(t, ids[3], display[0].EntryID)

	// One-sided filters
	receipts, err := entries.History(ctx, item.ID, repository.HistoryQuery{Filter: repository.FilterReceipts})
	require.NoError(t, err)
	assert.Len(t, receipts, 2)

	stockOuts, err := entries.History(ctx, item.ID, repository.HistoryQuery{Filter: repository.FilterStockOuts})
	require.NoError(t, err)
	require.Len(t, stockOuts, 2)
	for _, e := range stockOuts {
		assert.Negative(t, e.Delta)
	}
}

func TestBatchRepository_ExpiringWithin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	batches := repository.NewBatchRepository(suite.DB)

	item := createTestItem(t, ctx, items)
	now := time.Now()

	soonExpiry := now.AddDate(0, 0, 10)
	farExpiry := now.AddDate(0, 0, 200)
	soon := createTestBatch(t, ctx, batches, item.ID, 5, &soonExpiry, now)
	createTestBatch(t, ctx, batches, item.ID, 5, &farExpiry, now)
	createTestBatch(t, ctx, batches, item.ID, 5, nil, now)

	expiring, err := batches.ExpiringWithin(ctx, 30)
	require.NoError(t, err)

	found := false
	for _, b := range expiring {
		if b.ItemID != item.ID {
			continue // other tests' batches share the table
		}
		assert.Equal(t, soon.ID, b.ID)
		found = true
	}
	assert.True(t, found, "batch expiring in 10 days missing from a 30-day window")
}

func TestBatchRepository_NearestExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	items := repository.NewItemRepository(suite.DB)
	batches := repository.NewBatchRepository(suite.DB)

	item := createTestItem(t, ctx, items)

	nearest, err := batches.NearestExpiry(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, nearest)

	createTestBatch(t, ctx, batches, item.ID, 5, datePtr(2027, 6, 1), time.Now())
	createTestBatch(t, ctx, batches, item.ID, 5, datePtr(2026, 10, 1), time.Now())

	nearest, err = batches.NearestExpiry(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, nearest)
	assert.Equal(t, 2026, nearest.Year())
	assert.Equal(t, time.October, nearest.Month())
}
