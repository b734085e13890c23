package domain

import (
	"encoding/json"
	"time"
)

// AuditAction names a ledger mutation recorded in the audit trail.
type AuditAction string

const (
	AuditActionJournalPost    AuditAction = "journal.post"
	AuditActionJournalReverse AuditAction = "journal.reverse"
	AuditActionStockReceive   AuditAction = "stock.receive"
	AuditActionStockIssue     AuditAction = "stock.issue"
	AuditActionStockAdjust    AuditAction = "stock.adjust"
	AuditActionOpenItemOpen   AuditAction = "openitem.open"
	AuditActionOpenItemSettle AuditAction = "openitem.settle"
	AuditActionOpenItemCancel AuditAction = "openitem.cancel"
)

// AuditStatusSuccess is the status of every committed mutation. Rejected
// postings are kept as ERROR accounting events instead.
const AuditStatusSuccess = "success"

// JSON is a loosely typed snapshot of a record.
type JSON map[string]any

// AuditLog is one row of the audit trail, written in the same transaction
// as the change it describes. ResourceType uses the aggregate names of the
// outbox (journal_entry, stock, open_item).
type AuditLog struct {
	ID           string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// NewAuditLog records action on a resource by the caller described by meta.
// before is nil for creations.
func NewAuditLog(id string, meta RequestMeta, action AuditAction, resourceType, resourceID string, before, after any, now time.Time) *AuditLog {
	return &AuditLog{
		ID:           id,
		UserID:       meta.UserID,
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		RequestID:    meta.RequestID,
		BeforeState:  MarshalState(before),
		AfterState:   MarshalState(after),
		Status:       AuditStatusSuccess,
		CreatedAt:    now,
	}
}

// MarshalState snapshots v through its JSON encoding. Values that do not
// encode to a JSON object are kept under "value".
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": err.Error()}
	}

	var state JSON
	if err := json.Unmarshal(data, &state); err != nil {
		var scalar any
		_ = json.Unmarshal(data, &scalar)
		return JSON{"value": scalar}
	}
	return state
}

// AuditFilter selects audit rows. Zero fields match everything.
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}
