package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
)

// HistoryOrder selects the ordering of a history query
type HistoryOrder string

const (
	// OrderEntryAsc orders by entry_id ascending, the canonical audit order.
	// Restartable: pass the last seen entry_id as Since to resume.
	OrderEntryAsc HistoryOrder = "entry_asc"

	// OrderDateDesc orders newest first, the display order.
	OrderDateDesc HistoryOrder = "date_desc"
)

// HistoryFilter restricts a history query to one side of the ledger
type HistoryFilter string

const (
	FilterAll       HistoryFilter = "all"
	FilterReceipts  HistoryFilter = "receipts"   // delta > 0
	FilterStockOuts HistoryFilter = "stock_outs" // delta < 0
)

// HistoryQuery parameterizes a ledger history read
type HistoryQuery struct {
	Order  HistoryOrder
	Filter HistoryFilter
	// Since excludes entries with entry_id <= Since. Zero means from the
	// beginning. Only meaningful with OrderEntryAsc.
	Since int64
	// Limit caps the result size; zero means no cap.
	Limit int
}

// EntryRepository handles the append-only ledger
type EntryRepository struct {
	q database.Queryer
}

// NewEntryRepository creates a new ledger entry repository
func NewEntryRepository(db *database.DB) *EntryRepository {
	return &EntryRepository{q: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *EntryRepository) WithTx(tx *sqlx.Tx) *EntryRepository {
	return &EntryRepository{q: tx}
}

// Append writes one immutable ledger entry. The store assigns the strictly
// increasing entry_id and the timestamp. Entries are never updated or
// deleted; corrections are new ADJUSTMENT entries.
func (r *EntryRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (item_id, batch_id, delta, resulting_total, reason, actor_id, actor_name, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING entry_id, created_at
	`

	err := r.q.QueryRowxContext(ctx, query,
		entry.ItemID, entry.BatchID, entry.Delta, entry.ResultingTotal,
		entry.Reason, entry.ActorID, entry.ActorName, entry.Note,
	).Scan(&entry.EntryID, &entry.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// History reads an item's ledger entries per the query
func (r *EntryRepository) History(ctx context.Context, itemID string, q HistoryQuery) ([]*domain.LedgerEntry, error) {
	query := `SELECT * FROM ledger_entries WHERE item_id = $1`
	args := []interface{}{itemID}

	switch q.Filter {
	case FilterReceipts:
		query += ` AND delta > 0`
	case FilterStockOuts:
		query += ` AND delta < 0`
	}

	if q.Since > 0 {
		args = append(args, q.Since)
		query += fmt.Sprintf(` AND entry_id > $%d`, len(args))
	}

	switch q.Order {
	case OrderDateDesc:
		query += ` ORDER BY created_at DESC, entry_id DESC`
	default:
		query += ` ORDER BY entry_id ASC`
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var entries []*domain.LedgerEntry
	if err := r.q.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// SumDeltas computes the running sum of an item's ledger deltas, the
// ground truth the cached aggregate is reconciled against.
func (r *EntryRepository) SumDeltas(ctx context.Context, itemID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(delta) FROM ledger_entries WHERE item_id = $1`
	if err := r.q.GetContext(ctx, &total, query, itemID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}
