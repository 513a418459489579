package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Ledger events
	EventStockReceived = "ledger.stock.received"
	EventStockConsumed = "ledger.stock.consumed"
	EventStockAdjusted = "ledger.stock.adjusted"

	// Alert events
	EventLowStock      = "ledger.alert.low_stock"
	EventBatchExpiring = "ledger.batch.expiring"
)

// Exchange names
const (
	ExchangeLedgerEvents = "ledger.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockReceivedEvent is published when a new batch is received
type StockReceivedEvent struct {
	ItemID         string     `json:"item_id"`
	BatchID        string     `json:"batch_id"`
	Quantity       int        `json:"quantity"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	ResultingTotal int        `json:"resulting_total"`
	ActorID        string     `json:"actor_id"`
}

// StockConsumedEvent is published when stock is drawn from batches
type StockConsumedEvent struct {
	ItemID         string `json:"item_id"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason"`
	BatchesDrawn   int    `json:"batches_drawn"`
	ResultingTotal int    `json:"resulting_total"`
	ActorID        string `json:"actor_id"`
}

// StockAdjustedEvent is published for manual correction entries
type StockAdjustedEvent struct {
	ItemID         string `json:"item_id"`
	Delta          int    `json:"delta"`
	ResultingTotal int    `json:"resulting_total"`
	Note           string `json:"note,omitempty"`
	ActorID        string `json:"actor_id"`
}

// LowStockEvent is published when an item's on-hand total drops below its
// reorder threshold
type LowStockEvent struct {
	ItemID           string `json:"item_id"`
	ItemName         string `json:"item_name"`
	OnHandQuantity   int    `json:"on_hand_quantity"`
	ReorderThreshold int    `json:"reorder_threshold"`
}

// BatchExpiringEvent is published by the expiry sweep for batches that are
// about to expire with stock still remaining
type BatchExpiringEvent struct {
	ItemID            string    `json:"item_id"`
	BatchID           string    `json:"batch_id"`
	ExpiryDate        time.Time `json:"expiry_date"`
	RemainingQuantity int       `json:"remaining_quantity"`
	DaysUntilExpiry   int       `json:"days_until_expiry"`
}
