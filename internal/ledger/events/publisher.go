package events

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
)

// LedgerEventPublisher publishes ledger events. Publishing is best-effort:
// a failed publish is logged but never fails the committed operation.
type LedgerEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewLedgerEventPublisher creates a new ledger event publisher
func NewLedgerEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*LedgerEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeLedgerEvents, "ledger-service", log)
	if err != nil {
		return nil, err
	}

	return &LedgerEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishStockReceived publishes a stock received event
func (p *LedgerEventPublisher) PublishStockReceived(ctx context.Context, entry *domain.LedgerEntry, batch *domain.Batch) {
	if p == nil {
		return
	}

	data := messaging.StockReceivedEvent{
		ItemID:         entry.ItemID,
		BatchID:        batch.ID,
		Quantity:       entry.Delta,
		ExpiryDate:     batch.ExpiryDate,
		ResultingTotal: entry.ResultingTotal,
		ActorID:        entry.ActorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReceived, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", entry.ItemID).Msg("failed to publish stock received event")
	}
}

// PublishStockConsumed publishes a stock consumed event
func (p *LedgerEventPublisher) PublishStockConsumed(ctx context.Context, itemID string, quantity int, reason domain.Reason, batchesDrawn, resultingTotal int, actorID string) {
	if p == nil {
		return
	}

	data := messaging.StockConsumedEvent{
		ItemID:         itemID,
		Quantity:       quantity,
		Reason:         reason.String(),
		BatchesDrawn:   batchesDrawn,
		ResultingTotal: resultingTotal,
		ActorID:        actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockConsumed, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to publish stock consumed event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *LedgerEventPublisher) PublishStockAdjusted(ctx context.Context, entry *domain.LedgerEntry) {
	if p == nil {
		return
	}

	note := ""
	if entry.Note != nil {
		note = *entry.Note
	}

	data := messaging.StockAdjustedEvent{
		ItemID:         entry.ItemID,
		Delta:          entry.Delta,
		ResultingTotal: entry.ResultingTotal,
		Note:           note,
		ActorID:        entry.ActorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", entry.ItemID).Msg("failed to publish stock adjusted event")
	}
}

// PublishLowStock publishes a low stock alert
func (p *LedgerEventPublisher) PublishLowStock(ctx context.Context, item *domain.Item) {
	if p == nil {
		return
	}

	data := messaging.LowStockEvent{
		ItemID:           item.ID,
		ItemName:         item.Name,
		OnHandQuantity:   item.OnHandQuantity,
		ReorderThreshold: item.ReorderThreshold,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLowStock, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to publish low stock event")
	}
}

// PublishBatchExpiring publishes a batch expiring alert
func (p *LedgerEventPublisher) PublishBatchExpiring(ctx context.Context, batch *domain.Batch, daysUntil int) {
	if p == nil || batch.ExpiryDate == nil {
		return
	}

	data := messaging.BatchExpiringEvent{
		ItemID:            batch.ItemID,
		BatchID:           batch.ID,
		ExpiryDate:        *batch.ExpiryDate,
		RemainingQuantity: batch.RemainingQuantity,
		DaysUntilExpiry:   daysUntil,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchExpiring, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch expiring event")
	}
}
