package allocation

import (
	"testing"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func testBatch(id string, remaining int, expiry *time.Time, received time.Time) domain.Batch {
	return domain.Batch{
		ID:                id,
		ItemID:            "item-1",
		ExpiryDate:        expiry,
		ReceivedQuantity:  remaining,
		RemainingQuantity: remaining,
		ReceivedAt:        received,
	}
}

func TestPlan_ZeroQuantityIsNoOp(t *testing.T) {
	batches := []domain.Batch{
		testBatch("b1", 5, datePtr(2024, 1, 1), time.Now()),
	}

	plan, err := Plan("item-1", 0, batches)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 0, plan.Total())
}

func TestPlan_NegativeQuantityRejected(t *testing.T) {
	_, err := Plan("item-1", -3, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))
}

func TestPlan_DrawsEarliestExpiryFirst(t *testing.T) {
	received := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-march", 5, datePtr(2024, 3, 1), received),
		testBatch("b-january", 5, datePtr(2024, 1, 1), received),
		testBatch("b-never", 5, nil, received),
	}

	plan, err := Plan("item-1", 7, batches)
	require.NoError(t, err)

	require.Len(t, plan.Draws, 2)
	assert.Equal(t, domain.Draw{BatchID: "b-january", Amount: 5}, plan.Draws[0])
	assert.Equal(t, domain.Draw{BatchID: "b-march", Amount: 2}, plan.Draws[1])
	assert.Equal(t, 7, plan.Total())
}

func TestPlan_NonExpiringBatchesSortLast(t *testing.T) {
	received := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-never", 10, nil, received),
		testBatch("b-dated", 4, datePtr(2025, 12, 31), received),
	}

	plan, err := Plan("item-1", 6, batches)
	require.NoError(t, err)

	require.Len(t, plan.Draws, 2)
	assert.Equal(t, "b-dated", plan.Draws[0].BatchID)
	assert.Equal(t, 4, plan.Draws[0].Amount)
	assert.Equal(t, "b-never", plan.Draws[1].BatchID)
	assert.Equal(t, 2, plan.Draws[1].Amount)
}

func TestPlan_TieBreakByReceivedAtThenID(t *testing.T) {
	expiry := datePtr(2024, 6, 1)
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("oldest stock drawn first within same expiry", func(t *testing.T) {
		batches := []domain.Batch{
			testBatch("b-new", 5, expiry, newer),
			testBatch("b-old", 5, expiry, older),
		}

		plan, err := Plan("item-1", 3, batches)
		require.NoError(t, err)
		require.Len(t, plan.Draws, 1)
		assert.Equal(t, "b-old", plan.Draws[0].BatchID)
	})

	t.Run("batch id breaks a full tie deterministically", func(t *testing.T) {
		batches := []domain.Batch{
			testBatch("bbb", 5, expiry, older),
			testBatch("aaa", 5, expiry, older),
		}

		plan, err := Plan("item-1", 3, batches)
		require.NoError(t, err)
		require.Len(t, plan.Draws, 1)
		assert.Equal(t, "aaa", plan.Draws[0].BatchID)
	})
}

func TestPlan_InsufficientStockFailsWhole(t *testing.T) {
	batches := []domain.Batch{
		testBatch("b1", 5, datePtr(2024, 1, 1), time.Now()),
		testBatch("b2", 7, datePtr(2024, 2, 1), time.Now()),
	}

	plan, err := Plan("item-1", 100, batches)
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "100", appErr.Details["requested"])
	assert.Equal(t, "12", appErr.Details["available"])
}

func TestPlan_SkipsDrainedBatches(t *testing.T) {
	received := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	drained := testBatch("b-empty", 0, datePtr(2024, 1, 1), received)
	full := testBatch("b-full", 10, datePtr(2024, 2, 1), received)

	plan, err := Plan("item-1", 10, []domain.Batch{drained, full})
	require.NoError(t, err)
	require.Len(t, plan.Draws, 1)
	assert.Equal(t, "b-full", plan.Draws[0].BatchID)
}

func TestPlan_ExactFitAcrossAllBatches(t *testing.T) {
	batches := []domain.Batch{
		testBatch("b1", 5, datePtr(2024, 1, 1), time.Now()),
		testBatch("b2", 5, datePtr(2024, 2, 1), time.Now()),
		testBatch("b3", 5, nil, time.Now()),
	}

	plan, err := Plan("item-1", 15, batches)
	require.NoError(t, err)
	assert.Len(t, plan.Draws, 3)
	assert.Equal(t, 15, plan.Total())
}

func TestPlan_DoesNotMutateInput(t *testing.T) {
	received := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b2", 5, datePtr(2024, 2, 1), received),
		testBatch("b1", 5, datePtr(2024, 1, 1), received),
	}

	_, err := Plan("item-1", 8, batches)
	require.NoError(t, err)

	// The caller's slice keeps its original order and quantities.
	assert.Equal(t, "b2", batches[0].ID)
	assert.Equal(t, 5, batches[0].RemainingQuantity)
	assert.Equal(t, "b1", batches[1].ID)
}

func TestAvailable(t *testing.T) {
	batches := []domain.Batch{
		testBatch("b1", 5, nil, time.Now()),
		testBatch("b2", 0, nil, time.Now()),
		testBatch("b3", 3, nil, time.Now()),
	}
	assert.Equal(t, 8, Available(batches))
}
