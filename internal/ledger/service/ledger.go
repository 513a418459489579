// Package service exposes the inventory ledger to the rest of the system.
// Every mutating operation runs in one atomic transaction: the item row is
// locked first, so operations on the same item serialize, and a bounded
// retry absorbs transient serialization failures.
package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/allocation"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/events"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/config"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// LedgerService is the single entry point for all stock mutations
type LedgerService struct {
	db        *database.DB
	items     *repository.ItemRepository
	batches   *repository.BatchRepository
	entries   *repository.EntryRepository
	publisher *events.LedgerEventPublisher
	logger    *logger.Logger
	cfg       config.LedgerConfig
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	items *repository.ItemRepository,
	batches *repository.BatchRepository,
	entries *repository.EntryRepository,
	publisher *events.LedgerEventPublisher,
	log *logger.Logger,
	cfg config.LedgerConfig,
) *LedgerService {
	return &LedgerService{
		db:        db,
		items:     items,
		batches:   batches,
		entries:   entries,
		publisher: publisher,
		logger:    log,
		cfg:       cfg,
	}
}

// ReceiveResult reports a completed receipt
type ReceiveResult struct {
	Batch  *domain.Batch       `json:"batch"`
	Entry  *domain.LedgerEntry `json:"entry"`
	OnHand int                 `json:"on_hand_quantity"`
}

// ConsumeResult reports a completed consumption
type ConsumeResult struct {
	Plan    *domain.DrawPlan      `json:"plan"`
	Entries []*domain.LedgerEntry `json:"entries"`
	OnHand  int                   `json:"on_hand_quantity"`

	item *domain.Item
}

// AdjustResult reports a completed correction entry
type AdjustResult struct {
	Entry  *domain.LedgerEntry `json:"entry"`
	OnHand int                 `json:"on_hand_quantity"`
}

// ReconcileResult reports an aggregate reconciliation
type ReconcileResult struct {
	ItemID string `json:"item_id"`
	// Previous is the cached total before reconciliation
	Previous int `json:"previous"`
	// LedgerTotal is the running sum of ledger deltas, the ground truth
	LedgerTotal int `json:"ledger_total"`
	// BatchTotal is the sum of batch remainders, the cross-check
	BatchTotal int  `json:"batch_total"`
	Drifted    bool `json:"drifted"`
}

// Receive creates a new expiry batch and records the receipt. One atomic
// transaction: batch creation, aggregate update, ledger entry.
func (s *LedgerService) Receive(ctx context.Context, itemID string, quantity int, expiryDate *time.Time, note *string) (*ReceiveResult, error) {
	if quantity <= 0 {
		return nil, errors.InvalidQuantity(quantity)
	}
	act := actorOrSystem(ctx)

	var result *ReceiveResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		items := s.items.WithTx(tx)
		batches := s.batches.WithTx(tx)
		entries := s.entries.WithTx(tx)

		item, err := items.LockForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return errors.BadRequest("item is inactive")
		}

		batch := &domain.Batch{
			ItemID:           itemID,
			ExpiryDate:       expiryDate,
			ReceivedQuantity: quantity,
		}
		if err := batches.Create(ctx, batch); err != nil {
			return err
		}

		newTotal, err := items.ApplyDelta(ctx, itemID, quantity)
		if err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			ItemID:         itemID,
			BatchID:        &batch.ID,
			Delta:          quantity,
			ResultingTotal: newTotal,
			Reason:         domain.ReasonReceipt,
			ActorID:        act.ID,
			ActorName:      act.Name,
			Note:           note,
		}
		if err := entries.Append(ctx, entry); err != nil {
			return err
		}

		result = &ReceiveResult{Batch: batch, Entry: entry, OnHand: newTotal}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockReceived(ctx, result.Entry, result.Batch)
	return result, nil
}

// Consume draws the requested quantity from the item's open batches in FEFO
// order. The draw plan is fully simulated before any write: either the whole
// request is satisfied and recorded, or nothing changes.
func (s *LedgerService) Consume(ctx context.Context, itemID string, quantity int, reason domain.Reason) (*ConsumeResult, error) {
	if quantity < 0 {
		return nil, errors.InvalidQuantity(quantity)
	}
	if !reason.Consuming() {
		return nil, errors.BadRequest("reason must be SALE or MANUAL_STOCK_OUT")
	}
	act := actorOrSystem(ctx)

	if quantity == 0 {
		return &ConsumeResult{
			Plan: &domain.DrawPlan{ItemID: itemID, Requested: 0},
		}, nil
	}

	var result *ConsumeResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		items := s.items.WithTx(tx)
		batches := s.batches.WithTx(tx)

		item, err := items.LockForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return errors.BadRequest("item is inactive")
		}

		open, err := batches.ListOpen(ctx, itemID)
		if err != nil {
			return err
		}

		plan, err := allocation.Plan(itemID, quantity, open)
		if err != nil {
			return err
		}

		planned, err := s.commitPlan(ctx, tx, item, plan, reason, act, nil)
		if err != nil {
			return err
		}

		result = planned
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockConsumed(ctx, itemID, quantity, reason, len(result.Plan.Draws), result.OnHand, act.ID)
	s.alertIfLow(ctx, result.item)
	return result, nil
}

// ConsumeFromBatch draws from one operator-chosen batch, bypassing FEFO.
// Used when the operator picks an exact expiry lot by hand.
func (s *LedgerService) ConsumeFromBatch(ctx context.Context, itemID, batchID string, quantity int, reason domain.Reason, note *string) (*ConsumeResult, error) {
	if quantity <= 0 {
		return nil, errors.InvalidQuantity(quantity)
	}
	if !reason.Consuming() {
		return nil, errors.BadRequest("reason must be SALE or MANUAL_STOCK_OUT")
	}
	act := actorOrSystem(ctx)

	var result *ConsumeResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		items := s.items.WithTx(tx)
		batches := s.batches.WithTx(tx)

		item, err := items.LockForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return errors.BadRequest("item is inactive")
		}

		batch, err := batches.GetByID(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.ItemID != itemID {
			return errors.NotFound("batch")
		}

		// An operator over-asking a hand-picked lot is an ordinary
		// shortfall, not a guard trip.
		if batch.RemainingQuantity < quantity {
			return errors.InsufficientStock(quantity, batch.RemainingQuantity)
		}

		plan := &domain.DrawPlan{
			ItemID:    itemID,
			Requested: quantity,
			Draws:     []domain.Draw{{BatchID: batchID, Amount: quantity}},
		}

		planned, err := s.commitPlan(ctx, tx, item, plan, reason, act, note)
		if err != nil {
			return err
		}

		result = planned
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockConsumed(ctx, itemID, quantity, reason, 1, result.OnHand, act.ID)
	s.alertIfLow(ctx, result.item)
	return result, nil
}

// commitPlan applies a validated draw plan: one batch decrement and one
// ledger entry per draw, then the aggregate delta. Each entry's resulting
// total steps down from the locked item's total; the aggregate update must
// land on the same number, otherwise the two guards disagree and the
// operation aborts as a detected corruption.
func (s *LedgerService) commitPlan(ctx context.Context, tx *sqlx.Tx, item *domain.Item, plan *domain.DrawPlan, reason domain.Reason, act *actor.Actor, note *string) (*ConsumeResult, error) {
	items := s.items.WithTx(tx)
	batches := s.batches.WithTx(tx)
	entries := s.entries.WithTx(tx)

	running := item.OnHandQuantity
	drawn := make([]*domain.LedgerEntry, 0, len(plan.Draws))

	for _, draw := range plan.Draws {
		if _, err := batches.ApplyDraw(ctx, draw.BatchID, draw.Amount); err != nil {
			if errors.IsIntegrity(err) {
				s.logger.Integrity().
					Str("item_id", item.ID).
					Str("batch_id", draw.BatchID).
					Int("amount", draw.Amount).
					Msg("batch guard tripped while committing a validated plan")
			}
			return nil, err
		}

		running -= draw.Amount
		batchID := draw.BatchID
		entry := &domain.LedgerEntry{
			ItemID:         item.ID,
			BatchID:        &batchID,
			Delta:          -draw.Amount,
			ResultingTotal: running,
			Reason:         reason,
			ActorID:        act.ID,
			ActorName:      act.Name,
			Note:           note,
		}
		if err := entries.Append(ctx, entry); err != nil {
			return nil, err
		}
		drawn = append(drawn, entry)
	}

	newTotal, err := items.ApplyDelta(ctx, item.ID, -plan.Total())
	if err != nil {
		if errors.IsIntegrity(err) {
			s.logger.Integrity().
				Str("item_id", item.ID).
				Int("delta", -plan.Total()).
				Msg("aggregate guard tripped while committing a validated plan")
		}
		return nil, err
	}

	if newTotal != running {
		s.logger.Integrity().
			Str("item_id", item.ID).
			Int("aggregate_total", newTotal).
			Int("expected_total", running).
			Msg("aggregate and batch totals diverged")
		return nil, errors.LedgerDivergence(item.ID, newTotal, running)
	}

	item.OnHandQuantity = newTotal
	return &ConsumeResult{
		Plan:    plan,
		Entries: drawn,
		OnHand:  newTotal,
		item:    item,
	}, nil
}

// Adjust records a direct correction entry with no batch attribution. Used
// for stock counts; it bypasses allocation but not the aggregate guard.
func (s *LedgerService) Adjust(ctx context.Context, itemID string, delta int, note *string) (*AdjustResult, error) {
	if delta == 0 {
		return nil, errors.InvalidQuantity(delta)
	}
	act := actorOrSystem(ctx)

	var result *AdjustResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		items := s.items.WithTx(tx)
		entries := s.entries.WithTx(tx)

		// Adjustments are allowed on inactive items so residual stock can
		// be counted out after a soft delete.
		item, err := items.LockForUpdate(ctx, itemID)
		if err != nil {
			return err
		}

		if item.OnHandQuantity+delta < 0 {
			return errors.InsufficientStock(-delta, item.OnHandQuantity)
		}

		newTotal, err := items.ApplyDelta(ctx, itemID, delta)
		if err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			ItemID:         itemID,
			Delta:          delta,
			ResultingTotal: newTotal,
			Reason:         domain.ReasonAdjustment,
			ActorID:        act.ID,
			ActorName:      act.Name,
			Note:           note,
		}
		if err := entries.Append(ctx, entry); err != nil {
			return err
		}

		result = &AdjustResult{Entry: entry, OnHand: newTotal}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockAdjusted(ctx, result.Entry)
	return result, nil
}

// Reconcile recomputes the cached on-hand total from the ledger's delta sum
// and resynchronizes the cache if it drifted. Runs under the same item lock
// as live operations so it never races a concurrent consumption. On a
// consistent ledger it is a no-op.
func (s *LedgerService) Reconcile(ctx context.Context, itemID string) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		items := s.items.WithTx(tx)
		batches := s.batches.WithTx(tx)
		entries := s.entries.WithTx(tx)

		item, err := items.LockForUpdate(ctx, itemID)
		if err != nil {
			return err
		}

		ledgerTotal, err := entries.SumDeltas(ctx, itemID)
		if err != nil {
			return err
		}

		batchTotal, err := batches.SumRemaining(ctx, itemID)
		if err != nil {
			return err
		}

		// Adjustment entries carry no batch attribution, so the batch sum
		// can legitimately differ from the ledger sum once adjustments
		// exist. The ledger is the source of truth.
		drifted := item.OnHandQuantity != ledgerTotal
		if drifted {
			s.logger.Integrity().
				Str("item_id", itemID).
				Int("cached", item.OnHandQuantity).
				Int("ledger_total", ledgerTotal).
				Msg("aggregate cache drift detected, resynchronizing")

			if err := items.SetOnHand(ctx, itemID, ledgerTotal); err != nil {
				return err
			}
		}

		result = &ReconcileResult{
			ItemID:      itemID,
			Previous:    item.OnHandQuantity,
			LedgerTotal: ledgerTotal,
			BatchTotal:  batchTotal,
			Drifted:     drifted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// History reads an item's ledger entries
func (s *LedgerService) History(ctx context.Context, itemID string, q repository.HistoryQuery) ([]*domain.LedgerEntry, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.entries.History(ctx, itemID, q)
}

// inTx runs fn in a transaction, retrying a bounded number of times on
// serialization or deadlock failures. fn must reset any captured state on
// entry since it may run more than once.
func (s *LedgerService) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	maxAttempts := s.cfg.TxMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.db.Transaction(ctx, fn)
		if err == nil || !database.IsRetryable(err) {
			return err
		}

		s.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.TxRetryBackoff):
		}
	}

	return errors.ConcurrencyConflict(maxAttempts)
}

func (s *LedgerService) alertIfLow(ctx context.Context, item *domain.Item) {
	if item != nil && item.LowStock() {
		s.publisher.PublishLowStock(ctx, item)
	}
}

func actorOrSystem(ctx context.Context) *actor.Actor {
	if a := actor.FromContext(ctx); a != nil {
		return a
	}
	return actor.SystemActor()
}
