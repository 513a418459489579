package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// ItemRepository handles item persistence and the cached on-hand aggregate
type ItemRepository struct {
	q database.Queryer
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{q: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *ItemRepository) WithTx(tx *sqlx.Tx) *ItemRepository {
	return &ItemRepository{q: tx}
}

// Create creates a new item
func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO items (id, name, category, on_hand_quantity, reorder_threshold, active)
		VALUES ($1, $2, $3, 0, $4, true)
		RETURNING on_hand_quantity, active, created_at, updated_at
	`

	err := r.q.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.ReorderThreshold,
	).Scan(&item.OnHandQuantity, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	query := `SELECT * FROM items WHERE id = $1`
	if err := r.q.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// LockForUpdate loads an item and takes its row lock for the duration of the
// surrounding transaction. Every ledger operation starts here so operations
// on the same item serialize.
func (r *ItemRepository) LockForUpdate(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	query := `SELECT * FROM items WHERE id = $1 FOR UPDATE`
	if err := r.q.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// List lists active items
func (r *ItemRepository) List(ctx context.Context) ([]*domain.Item, error) {
	var items []*domain.Item
	query := `SELECT * FROM items WHERE active = true ORDER BY name`
	if err := r.q.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// SoftDelete marks an item inactive. Inactive items keep their batches and
// ledger history but are excluded from future allocation.
func (r *ItemRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE items SET active = false, updated_at = NOW() WHERE id = $1`
	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}
	return nil
}

// ApplyDelta adds delta to the cached on-hand total and returns the new
// total. The WHERE clause is the authoritative item-level guard against
// over-consumption: the update refuses to drive the total negative.
func (r *ItemRepository) ApplyDelta(ctx context.Context, id string, delta int) (int, error) {
	query := `
		UPDATE items
		SET on_hand_quantity = on_hand_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND on_hand_quantity + $2 >= 0
		RETURNING on_hand_quantity
	`

	var newTotal int
	err := r.q.QueryRowxContext(ctx, query, id, delta).Scan(&newTotal)
	if err == sql.ErrNoRows {
		// Distinguish a missing item from a guard trip
		item, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		return 0, errors.NegativeStock(id, delta, item.OnHandQuantity)
	}
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return 0, mapped
		}
		return 0, err
	}
	return newTotal, nil
}

// SetOnHand overwrites the cached total. Used only by reconciliation, under
// the same item lock as live operations.
func (r *ItemRepository) SetOnHand(ctx context.Context, id string, total int) error {
	query := `UPDATE items SET on_hand_quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.q.ExecContext(ctx, query, id, total)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}
	return nil
}
