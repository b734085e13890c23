package domain

import "time"

// Outbox event types
const (
	EventTypeJournalPosted     = "journal.posted"
	EventTypeJournalReversed   = "journal.reversed"
	EventTypeStockMoved        = "stock.moved"
	EventTypeOpenItemOpened    = "openitem.opened"
	EventTypeOpenItemSettled   = "openitem.settled"
	EventTypeOpenItemCancelled = "openitem.cancelled"
	EventTypePostingFailed     = "posting.failed"
)

// Aggregate types
const (
	AggregateTypeJournalEntry = "journal_entry"
	AggregateTypeStock        = "stock"
	AggregateTypeOpenItem     = "open_item"
	AggregateTypeEvent        = "accounting_event"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// JournalPostedEvent payload
type JournalPostedEvent struct {
	JournalEntryID string `json:"journal_entry_id"`
	JournalNo      string `json:"journal_no"`
	SourceType     string `json:"source_type"`
	SourceID       string `json:"source_id"`
	EventID        string `json:"event_id,omitempty"`
	Amount         string `json:"amount"`
	PostedAt       string `json:"posted_at"`
}

// JournalReversedEvent payload
type JournalReversedEvent struct {
	ReversalEntryID string `json:"reversal_entry_id"`
	OriginalEntryID string `json:"original_entry_id"`
	JournalNo       string `json:"journal_no"`
	Amount          string `json:"amount"`
}

// StockMovedEvent payload
type StockMovedEvent struct {
	MovementID   string `json:"movement_id"`
	MaterialID   string `json:"material_id"`
	Type         string `json:"type"`
	Quantity     string `json:"quantity"`
	OnHand       string `json:"on_hand"`
	AvgUnitPrice string `json:"avg_unit_price"`
}

// OpenItemChangedEvent payload, used for both opened and settled items.
type OpenItemChangedEvent struct {
	OpenItemID string `json:"open_item_id"`
	Kind       string `json:"kind"`
	SourceID   string `json:"source_id"`
	PartyID    string `json:"party_id"`
	Amount     string `json:"amount"`
	Balance    string `json:"balance"`
	Status     string `json:"status"`
}

// PostingFailedEvent payload
type PostingFailedEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	SourceID  string `json:"source_id"`
	Error     string `json:"error"`
}
