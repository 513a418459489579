package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// BatchRepository handles batch persistence
type BatchRepository struct {
	q database.Queryer
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{q: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *BatchRepository) WithTx(tx *sqlx.Tx) *BatchRepository {
	return &BatchRepository{q: tx}
}

// Create creates a new batch with its full received quantity remaining.
// Quantity must already be validated positive by the caller; the table's
// CHECK constraint backstops it.
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}
	batch.RemainingQuantity = batch.ReceivedQuantity

	query := `
		INSERT INTO batches (id, item_id, expiry_date, received_quantity, remaining_quantity, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.q.QueryRowxContext(ctx, query,
		batch.ID, batch.ItemID, batch.ExpiryDate,
		batch.ReceivedQuantity, batch.RemainingQuantity, batch.ReceivedAt,
	).Scan(&batch.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	query := `SELECT * FROM batches WHERE id = $1`
	if err := r.q.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListOpen lists an item's batches with stock remaining, in allocation
// order: earliest expiry first with non-expiring batches last, then oldest
// received, then batch ID.
func (r *BatchRepository) ListOpen(ctx context.Context, itemID string) ([]domain.Batch, error) {
	var batches []domain.Batch
	query := `
		SELECT * FROM batches
		WHERE item_id = $1 AND remaining_quantity > 0
		ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC
	`
	if err := r.q.SelectContext(ctx, &batches, query, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByItem lists all of an item's batches, drained ones included, for
// audit views.
func (r *BatchRepository) ListByItem(ctx context.Context, itemID string) ([]domain.Batch, error) {
	var batches []domain.Batch
	query := `
		SELECT * FROM batches
		WHERE item_id = $1
		ORDER BY received_at DESC, id
	`
	if err := r.q.SelectContext(ctx, &batches, query, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ApplyDraw atomically decrements a batch's remaining quantity and returns
// the new remainder. The WHERE clause is the batch-level guard: a draw can
// never push the remainder negative. A correct plan never trips it, so a
// trip surfaces as an integrity error.
func (r *BatchRepository) ApplyDraw(ctx context.Context, batchID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, errors.InvalidQuantity(amount)
	}

	query := `
		UPDATE batches
		SET remaining_quantity = remaining_quantity - $2
		WHERE id = $1 AND remaining_quantity >= $2
		RETURNING remaining_quantity
	`

	var remaining int
	err := r.q.QueryRowxContext(ctx, query, batchID, amount).Scan(&remaining)
	if err == sql.ErrNoRows {
		batch, getErr := r.GetByID(ctx, batchID)
		if getErr != nil {
			return 0, getErr
		}
		return 0, errors.InsufficientBatchQuantity(batchID, amount, batch.RemainingQuantity)
	}
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return 0, mapped
		}
		return 0, err
	}
	return remaining, nil
}

// SumRemaining sums the remaining quantity across an item's batches.
// Together with the ledger delta sum this is the reconciliation cross-check
// for the cached aggregate.
func (r *BatchRepository) SumRemaining(ctx context.Context, itemID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(remaining_quantity) FROM batches WHERE item_id = $1`
	if err := r.q.GetContext(ctx, &total, query, itemID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ExpiringWithin lists open batches of active items whose expiry date falls
// within the given number of days, soonest first.
func (r *BatchRepository) ExpiringWithin(ctx context.Context, days int) ([]domain.Batch, error) {
	var batches []domain.Batch
	query := `
		SELECT b.* FROM batches b
		JOIN items i ON i.id = b.item_id
		WHERE i.active = true
		AND b.remaining_quantity > 0
		AND b.expiry_date IS NOT NULL
		AND b.expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY b.expiry_date, b.id
	`
	if err := r.q.SelectContext(ctx, &batches, query, days); err != nil {
		return nil, err
	}
	return batches, nil
}

// NearestExpiry returns the earliest expiry date among an item's open
// batches, or nil when none expires.
func (r *BatchRepository) NearestExpiry(ctx context.Context, itemID string) (*time.Time, error) {
	var nearest sql.NullTime
	query := `
		SELECT MIN(expiry_date) FROM batches
		WHERE item_id = $1 AND remaining_quantity > 0
	`
	if err := r.q.GetContext(ctx, &nearest, query, itemID); err != nil {
		return nil, err
	}
	if !nearest.Valid {
		return nil, nil
	}
	return &nearest.Time, nil
}
