// Package allocation plans how a consumption request is satisfied across an
// item's open batches. Planning is pure: it reads a snapshot of batches and
// produces a draw plan without touching any state, so either the full
// requested quantity can be satisfied and committed, or nothing changes.
package allocation

import (
	"sort"

	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// Plan computes the FEFO draw plan for a requested quantity over the given
// open batches.
//
// Ordering: earliest expiry first with non-expiring batches last, then
// oldest received first, then batch ID for determinism. Batches with no
// remaining quantity are skipped.
//
// A zero request yields an empty plan, not an error. If the batches cannot
// cover the request the whole plan fails with an insufficient-stock error
// carrying the available total.
func Plan(itemID string, requested int, batches []domain.Batch) (*domain.DrawPlan, error) {
	if requested < 0 {
		return nil, errors.InvalidQuantity(requested)
	}

	plan := &domain.DrawPlan{
		ItemID:    itemID,
		Requested: requested,
	}
	if requested == 0 {
		return plan, nil
	}

	open := make([]domain.Batch, 0, len(batches))
	available := 0
	for _, b := range batches {
		if b.Open() {
			open = append(open, b)
			available += b.RemainingQuantity
		}
	}

	if available < requested {
		return nil, errors.InsufficientStock(requested, available)
	}

	sortFEFO(open)

	needed := requested
	for _, b := range open {
		amount := b.RemainingQuantity
		if amount > needed {
			amount = needed
		}
		plan.Draws = append(plan.Draws, domain.Draw{
			BatchID: b.ID,
			Amount:  amount,
		})
		needed -= amount
		if needed == 0 {
			break
		}
	}

	return plan, nil
}

// sortFEFO orders batches first-expired-first-out: expiry ascending with
// nil (non-expiring) last, received_at ascending as tie-break, batch ID
// ascending as the final tie-break.
func sortFEFO(batches []domain.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := &batches[i], &batches[j]

		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			// fall through to received_at
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}

		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
}

// Available sums the remaining quantity across open batches. Exposed so
// callers can report shortfalls without re-walking the slice.
func Available(batches []domain.Batch) int {
	total := 0
	for _, b := range batches {
		if b.Open() {
			total += b.RemainingQuantity
		}
	}
	return total
}
