package service

import (
	"context"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
)

// ItemWithBatches is the item read model for listing screens: the cached
// total plus open batches, nearest expiry, and a derived stock status.
type ItemWithBatches struct {
	*domain.Item
	Batches       []domain.Batch `json:"batches"`
	NearestExpiry *time.Time     `json:"nearest_expiry,omitempty"`
	Status        string         `json:"status"`
}

// CreateItem creates a new inventory item
func (s *LedgerService) CreateItem(ctx context.Context, item *domain.Item) error {
	return s.items.Create(ctx, item)
}

// GetItem gets an item with its open batches
func (s *LedgerService) GetItem(ctx context.Context, id string) (*ItemWithBatches, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.batches.ListOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	return enrichItem(item, batches), nil
}

// ListItems lists active items with their open batches
func (s *LedgerService) ListItems(ctx context.Context) ([]*ItemWithBatches, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*ItemWithBatches, len(items))
	for i, item := range items {
		batches, err := s.batches.ListOpen(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		result[i] = enrichItem(item, batches)
	}

	return result, nil
}

// DeleteItem soft-deletes an item, excluding it from future allocation.
// Its batches and ledger history are retained for audit.
func (s *LedgerService) DeleteItem(ctx context.Context, id string) error {
	return s.items.SoftDelete(ctx, id)
}

// ListBatches lists all of an item's batches, drained ones included
func (s *LedgerService) ListBatches(ctx context.Context, itemID string) ([]domain.Batch, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.batches.ListByItem(ctx, itemID)
}

// ListOpenBatches lists an item's open batches in allocation order
func (s *LedgerService) ListOpenBatches(ctx context.Context, itemID string) ([]domain.Batch, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.batches.ListOpen(ctx, itemID)
}

// ExpiringBatches lists open batches expiring within the given window
func (s *LedgerService) ExpiringBatches(ctx context.Context, withinDays int) ([]domain.Batch, error) {
	if withinDays <= 0 {
		withinDays = s.cfg.ExpiryAlertWindowDays
	}
	return s.batches.ExpiringWithin(ctx, withinDays)
}

// SweepExpiring publishes an expiry alert for every open batch inside the
// configured alert window. Intended for a periodic job.
func (s *LedgerService) SweepExpiring(ctx context.Context) (int, error) {
	batches, err := s.batches.ExpiringWithin(ctx, s.cfg.ExpiryAlertWindowDays)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for i := range batches {
		b := &batches[i]
		s.publisher.PublishBatchExpiring(ctx, b, b.DaysUntilExpiry(now))
	}

	return len(batches), nil
}

func enrichItem(item *domain.Item, batches []domain.Batch) *ItemWithBatches {
	result := &ItemWithBatches{
		Item:    item,
		Batches: batches,
	}

	var nearest *time.Time
	for i := range batches {
		b := &batches[i]
		if b.ExpiryDate != nil && (nearest == nil || b.ExpiryDate.Before(*nearest)) {
			nearest = b.ExpiryDate
		}
	}
	result.NearestExpiry = nearest

	switch {
	case item.OnHandQuantity == 0:
		result.Status = "out_of_stock"
	case item.LowStock():
		result.Status = "low_stock"
	default:
		result.Status = "in_stock"
	}

	return result
}
