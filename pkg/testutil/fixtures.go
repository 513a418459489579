package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Item creates an item fixture with defaults
func (f *FixtureFactory) Item(opts ...func(*domain.Item)) domain.Item {
	seq := f.nextSeq()

	item := domain.Item{
		ID:               uuid.New().String(),
		Name:             fmt.Sprintf("Test Item %d", seq),
		Category:         "analgesics",
		OnHandQuantity:   0,
		ReorderThreshold: 0,
		Active:           true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithOnHand sets the item's cached on-hand total
func WithOnHand(qty int) func(*domain.Item) {
	return func(i *domain.Item) {
		i.OnHandQuantity = qty
	}
}

// WithReorderThreshold sets the item's low-stock threshold
func WithReorderThreshold(threshold int) func(*domain.Item) {
	return func(i *domain.Item) {
		i.ReorderThreshold = threshold
	}
}

// WithInactive marks the item as soft-deleted
func WithInactive() func(*domain.Item) {
	return func(i *domain.Item) {
		i.Active = false
	}
}

// Batch creates a batch fixture with defaults. The batch is full
// (remaining == received) and expires in 30 days.
func (f *FixtureFactory) Batch(itemID string, opts ...func(*domain.Batch)) domain.Batch {
	f.nextSeq()
	expiry := time.Now().AddDate(0, 0, 30).Truncate(24 * time.Hour)

	batch := domain.Batch{
		ID:                uuid.New().String(),
		ItemID:            itemID,
		ExpiryDate:        &expiry,
		ReceivedQuantity:  10,
		RemainingQuantity: 10,
		ReceivedAt:        time.Now(),
		CreatedAt:         time.Now(),
	}

	for _, opt := range opts {
		opt(&batch)
	}

	return batch
}

// WithExpiry sets the batch expiry date
func WithExpiry(expiry time.Time) func(*domain.Batch) {
	return func(b *domain.Batch) {
		e := expiry
		b.ExpiryDate = &e
	}
}

// WithoutExpiry makes the batch non-expiring
func WithoutExpiry() func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.ExpiryDate = nil
	}
}

// WithQuantity sets both received and remaining quantity
func WithQuantity(qty int) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.ReceivedQuantity = qty
		b.RemainingQuantity = qty
	}
}

// WithRemaining sets the remaining quantity only, for partially drawn batches
func WithRemaining(qty int) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.RemainingQuantity = qty
	}
}

// WithReceivedAt sets the batch's received timestamp
func WithReceivedAt(at time.Time) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.ReceivedAt = at
	}
}

// Entry creates a ledger entry fixture with defaults
func (f *FixtureFactory) Entry(itemID string, opts ...func(*domain.LedgerEntry)) domain.LedgerEntry {
	seq := f.nextSeq()

	entry := domain.LedgerEntry{
		EntryID:        int64(seq),
		ItemID:         itemID,
		Delta:          10,
		ResultingTotal: 10,
		Reason:         domain.ReasonReceipt,
		ActorID:        uuid.New().String(),
		ActorName:      fmt.Sprintf("Test Operator %d", seq),
		CreatedAt:      time.Now(),
	}

	for _, opt := range opts {
		opt(&entry)
	}

	return entry
}

// WithDelta sets the entry's delta and resulting total
func WithDelta(delta, resultingTotal int) func(*domain.LedgerEntry) {
	return func(e *domain.LedgerEntry) {
		e.Delta = delta
		e.ResultingTotal = resultingTotal
	}
}

// WithReason sets the entry's reason
func WithReason(reason domain.Reason) func(*domain.LedgerEntry) {
	return func(e *domain.LedgerEntry) {
		e.Reason = reason
	}
}
