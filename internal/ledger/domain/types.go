// Package domain holds the inventory ledger's core types: items, expiry
// batches, immutable ledger entries, and draw plans. Types here carry no
// persistence or transport behavior so the allocation engine stays pure.
package domain

import (
	"time"
)

// Reason classifies a ledger entry
type Reason string

const (
	ReasonReceipt        Reason = "RECEIPT"
	ReasonSale           Reason = "SALE"
	ReasonManualStockOut Reason = "MANUAL_STOCK_OUT"
	ReasonAdjustment     Reason = "ADJUSTMENT"
)

// Valid reports whether r is a known reason
func (r Reason) Valid() bool {
	switch r {
	case ReasonReceipt, ReasonSale, ReasonManualStockOut, ReasonAdjustment:
		return true
	}
	return false
}

// Consuming reports whether r is a reason a caller may consume stock under.
// Receipts and adjustments go through their own operations.
func (r Reason) Consuming() bool {
	return r == ReasonSale || r == ReasonManualStockOut
}

func (r Reason) String() string {
	return string(r)
}

// Item is one tracked inventory item. OnHandQuantity is a cache: it always
// equals the sum of open batch remainders and the running sum of the item's
// ledger deltas, and is recomputable from the ledger.
type Item struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Category         string    `db:"category" json:"category"`
	OnHandQuantity   int       `db:"on_hand_quantity" json:"on_hand_quantity"`
	ReorderThreshold int       `db:"reorder_threshold" json:"reorder_threshold"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether the item is at or below its reorder threshold.
func (i *Item) LowStock() bool {
	return i.ReorderThreshold > 0 && i.OnHandQuantity < i.ReorderThreshold
}

// Batch is one received lot of an item. ReceivedQuantity is immutable;
// RemainingQuantity only decreases, via draws, and never below zero.
// A nil ExpiryDate means the batch does not expire and sorts last in
// allocation order. Batches are never deleted; a drained batch is inert
// but retained for audit.
type Batch struct {
	ID                string     `db:"id" json:"id"`
	ItemID            string     `db:"item_id" json:"item_id"`
	ExpiryDate        *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	ReceivedQuantity  int        `db:"received_quantity" json:"received_quantity"`
	RemainingQuantity int        `db:"remaining_quantity" json:"remaining_quantity"`
	ReceivedAt        time.Time  `db:"received_at" json:"received_at"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Open reports whether the batch still has stock to draw from
func (b *Batch) Open() bool {
	return b.RemainingQuantity > 0
}

// Expired reports whether the batch's expiry date has passed
func (b *Batch) Expired(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(now)
}

// DaysUntilExpiry returns the number of days until expiry, -1 if the batch
// does not expire
func (b *Batch) DaysUntilExpiry(now time.Time) int {
	if b.ExpiryDate == nil {
		return -1
	}
	return int(b.ExpiryDate.Sub(now).Hours() / 24)
}

// LedgerEntry is one immutable quantity change. Entries are append-only:
// corrections are new ADJUSTMENT entries, never edits. EntryID is assigned
// by the store and strictly increases. ResultingTotal is the item's on-hand
// total immediately after this entry, stamped for audit reconciliation.
type LedgerEntry struct {
	EntryID        int64     `db:"entry_id" json:"entry_id"`
	ItemID         string    `db:"item_id" json:"item_id"`
	BatchID        *string   `db:"batch_id" json:"batch_id,omitempty"`
	Delta          int       `db:"delta" json:"delta"`
	ResultingTotal int       `db:"resulting_total" json:"resulting_total"`
	Reason         Reason    `db:"reason" json:"reason"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	ActorName      string    `db:"actor_name" json:"actor_name"`
	Note           *string   `db:"note" json:"note,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Draw is one planned deduction from a specific batch
type Draw struct {
	BatchID string `json:"batch_id"`
	Amount  int    `json:"amount"`
}

// DrawPlan is the precomputed allocation for one consumption request:
// an ordered sequence of batch draws that exactly satisfies the requested
// quantity. A plan is produced before any mutation; committing it is the
// caller's job, inside a transaction.
type DrawPlan struct {
	ItemID    string `json:"item_id"`
	Requested int    `json:"requested"`
	Draws     []Draw `json:"draws"`
}

// Total returns the summed draw amounts
func (p *DrawPlan) Total() int {
	total := 0
	for _, d := range p.Draws {
		total += d.Amount
	}
	return total
}

// Empty reports whether the plan draws nothing
func (p *DrawPlan) Empty() bool {
	return len(p.Draws) == 0
}
