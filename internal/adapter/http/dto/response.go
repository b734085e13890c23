package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// JournalLineResponse represents one journal line.
type JournalLineResponse struct {
	LineNo      int             `json:"line_no"`
	AccountCode string          `json:"account_code"`
	DrAmount    decimal.Decimal `json:"dr_amount"`
	CrAmount    decimal.Decimal `json:"cr_amount"`
	CustomerID  string          `json:"customer_id,omitempty"`
	SupplierID  string          `json:"supplier_id,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	MaterialID  string          `json:"material_id,omitempty"`
	Memo        string          `json:"memo,omitempty"`
}

// JournalEntryResponse represents a journal entry in API responses.
type JournalEntryResponse struct {
	ID          string                `json:"id"`
	JournalNo   string                `json:"journal_no"`
	PostingDate time.Time             `json:"posting_date"`
	SourceType  string                `json:"source_type"`
	SourceID    string                `json:"source_id"`
	SourceNo    string                `json:"source_no,omitempty"`
	EventID     string                `json:"event_id,omitempty"`
	Description string                `json:"description"`
	Status      string                `json:"status"`
	ReversalOf  string                `json:"reversal_of,omitempty"`
	ReversedBy  string                `json:"reversed_by,omitempty"`
	PostedBy    string                `json:"posted_by"`
	TotalDebit  decimal.Decimal       `json:"total_debit"`
	TotalCredit decimal.Decimal       `json:"total_credit"`
	Lines       []JournalLineResponse `json:"lines"`
	CreatedAt   time.Time             `json:"created_at"`
}

// JournalEntryFromDomain converts a domain journal entry to response.
func JournalEntryFromDomain(e *domain.JournalEntry) *JournalEntryResponse {
	if e == nil {
		return nil
	}

	lines := make([]JournalLineResponse, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = JournalLineResponse{
			LineNo:      l.LineNo,
			AccountCode: l.AccountCode,
			DrAmount:    l.DrAmount,
			CrAmount:    l.CrAmount,
			CustomerID:  l.CustomerID,
			SupplierID:  l.SupplierID,
			ProjectID:   l.ProjectID,
			MaterialID:  l.MaterialID,
			Memo:        l.Memo,
		}
	}

	return &JournalEntryResponse{
		ID:          e.ID,
		JournalNo:   e.JournalNo,
		PostingDate: e.PostingDate,
		SourceType:  string(e.SourceType),
		SourceID:    e.SourceID,
		SourceNo:    e.SourceNo,
		EventID:     e.EventID,
		Description: e.Description,
		Status:      string(e.Status),
		ReversalOf:  e.ReversalOf,
		ReversedBy:  e.ReversedBy,
		PostedBy:    e.PostedBy,
		TotalDebit:  e.TotalDebit(),
		TotalCredit: e.TotalCredit(),
		Lines:       lines,
		CreatedAt:   e.CreatedAt,
	}
}

// JournalEntriesFromDomain converts domain journal entries to responses.
func JournalEntriesFromDomain(entries []*domain.JournalEntry) []*JournalEntryResponse {
	result := make([]*JournalEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = JournalEntryFromDomain(e)
	}
	return result
}

// EventResponse represents an accounting event in API responses.
type EventResponse struct {
	ID             string          `json:"id"`
	SourceType     string          `json:"source_type"`
	SourceID       string          `json:"source_id"`
	SourceNo       string          `json:"source_no,omitempty"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Description    string          `json:"description,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	JournalEntryID string          `json:"journal_entry_id,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EventFromDomain converts a domain event to response.
func EventFromDomain(e *domain.AccountingEvent) *EventResponse {
	var payload json.RawMessage
	if e.Payload != nil {
		payload, _ = json.Marshal(e.Payload)
	}

	return &EventResponse{
		ID:             e.ID,
		SourceType:     string(e.SourceType),
		SourceID:       e.SourceID,
		SourceNo:       e.SourceNo,
		EventType:      string(e.EventType),
		OccurredAt:     e.OccurredAt,
		Description:    e.Description,
		Payload:        payload,
		Status:         string(e.Status),
		JournalEntryID: e.JournalEntryID,
		Error:          e.Error,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// EventsFromDomain converts domain events to responses.
func EventsFromDomain(events []*domain.AccountingEvent) []*EventResponse {
	result := make([]*EventResponse, len(events))
	for i, e := range events {
		result[i] = EventFromDomain(e)
	}
	return result
}

// AccountResponse represents a chart-of-accounts entry.
type AccountResponse struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

// AccountsFromDomain converts the chart of accounts to responses.
func AccountsFromDomain(accounts []domain.Account) []AccountResponse {
	result := make([]AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountResponse{
			Code:     a.Code,
			Name:     a.Name,
			Type:     string(a.Type),
			IsActive: a.IsActive,
		}
	}
	return result
}

// AccountBalanceResponse is the running balance of one account.
type AccountBalanceResponse struct {
	Account AccountResponse `json:"account"`
	Debits  decimal.Decimal `json:"debits"`
	Credits decimal.Decimal `json:"credits"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountBalanceFromUseCase converts a ledger balance to a response.
func AccountBalanceFromUseCase(b *usecase.AccountBalance) *AccountBalanceResponse {
	return &AccountBalanceResponse{
		Account: AccountsFromDomain([]domain.Account{b.Account})[0],
		Debits:  b.Debits,
		Credits: b.Credits,
		Balance: b.Balance,
	}
}

// StockResponse represents an on-hand position.
type StockResponse struct {
	MaterialID   string          `json:"material_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price"`
	Value        decimal.Decimal `json:"value"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// StockFromDomain converts a domain stock to response.
func StockFromDomain(s *domain.Stock) *StockResponse {
	if s == nil {
		return nil
	}
	return &StockResponse{
		MaterialID:   s.MaterialID,
		Quantity:     s.Quantity,
		AvgUnitPrice: s.AvgUnitPrice,
		Value:        s.Value(),
		Version:      s.Version,
		UpdatedAt:    s.UpdatedAt,
	}
}

// StocksFromDomain converts domain stocks to responses.
func StocksFromDomain(stocks []*domain.Stock) []*StockResponse {
	result := make([]*StockResponse, len(stocks))
	for i, s := range stocks {
		result[i] = StockFromDomain(s)
	}
	return result
}

// MovementResponse represents a stock movement.
type MovementResponse struct {
	ID              string           `json:"id"`
	MaterialID      string           `json:"material_id"`
	Type            string           `json:"type"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	ProjectID       string           `json:"project_id,omitempty"`
	PurchaseOrderID string           `json:"purchase_order_id,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	JournalEntryID  string           `json:"journal_entry_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// MovementFromDomain converts a domain movement to response.
func MovementFromDomain(m *domain.StockMovement) *MovementResponse {
	if m == nil {
		return nil
	}
	return &MovementResponse{
		ID:              m.ID,
		MaterialID:      m.MaterialID,
		Type:            string(m.Type),
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		ProjectID:       m.ProjectID,
		PurchaseOrderID: m.PurchaseOrderID,
		Reason:          m.Reason,
		JournalEntryID:  m.JournalEntryID,
		CreatedAt:       m.CreatedAt,
	}
}

// MovementsFromDomain converts domain movements to responses.
func MovementsFromDomain(movements []*domain.StockMovement) []*MovementResponse {
	result := make([]*MovementResponse, len(movements))
	for i, m := range movements {
		result[i] = MovementFromDomain(m)
	}
	return result
}

// StockResultResponse is returned by receive, issue and adjust.
type StockResultResponse struct {
	Stock    *StockResponse        `json:"stock"`
	Movement *MovementResponse     `json:"movement"`
	Entry    *JournalEntryResponse `json:"journal_entry,omitempty"`
}

// StockResultFromUseCase converts a movement result to response.
func StockResultFromUseCase(r *usecase.StockResult) *StockResultResponse {
	return &StockResultResponse{
		Stock:    StockFromDomain(r.Stock),
		Movement: MovementFromDomain(r.Movement),
		Entry:    JournalEntryFromDomain(r.Entry),
	}
}

// BulkAdjustOutcomeResponse reports one stocktake line.
type BulkAdjustOutcomeResponse struct {
	MaterialID string            `json:"material_id"`
	Stock      *StockResponse    `json:"stock,omitempty"`
	Movement   *MovementResponse `json:"movement,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// BulkAdjustResponse partitions a stocktake.
type BulkAdjustResponse struct {
	Applied []BulkAdjustOutcomeResponse `json:"applied"`
	Skipped []BulkAdjustOutcomeResponse `json:"skipped"`
	Failed  []BulkAdjustOutcomeResponse `json:"failed"`
}

// BulkAdjustFromUseCase converts a stocktake result to response.
func BulkAdjustFromUseCase(r *usecase.BulkAdjustResult) *BulkAdjustResponse {
	convert := func(outcomes []usecase.BulkAdjustOutcome) []BulkAdjustOutcomeResponse {
		result := make([]BulkAdjustOutcomeResponse, len(outcomes))
		for i, o := range outcomes {
			result[i] = BulkAdjustOutcomeResponse{
				MaterialID: o.MaterialID,
				Stock:      StockFromDomain(o.Stock),
				Movement:   MovementFromDomain(o.Movement),
			}
			if o.Err != nil {
				result[i].Error = o.Err.Error()
			}
		}
		return result
	}

	return &BulkAdjustResponse{
		Applied: convert(r.Applied),
		Skipped: convert(r.Skipped),
		Failed:  convert(r.Failed),
	}
}

// OpenItemResponse represents a receivable or payable.
type OpenItemResponse struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	SourceID       string          `json:"source_id"`
	PartyID        string          `json:"party_id"`
	DueDate        time.Time       `json:"due_date"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	BalanceAmount  decimal.Decimal `json:"balance_amount"`
	Status         string          `json:"status"`
	Overdue        bool            `json:"overdue"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OpenItemFromDomain converts a domain open item to response.
func OpenItemFromDomain(o *domain.OpenItem, now time.Time) *OpenItemResponse {
	return &OpenItemResponse{
		ID:             o.ID,
		Kind:           string(o.Kind),
		SourceID:       o.SourceID,
		PartyID:        o.PartyID,
		DueDate:        o.DueDate,
		OriginalAmount: o.OriginalAmount,
		BalanceAmount:  o.BalanceAmount,
		Status:         string(o.Status),
		Overdue:        o.IsOverdue(now),
		Version:        o.Version,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OpenItemsFromDomain converts domain open items to responses.
func OpenItemsFromDomain(items []*domain.OpenItem, now time.Time) []*OpenItemResponse {
	result := make([]*OpenItemResponse, len(items))
	for i, o := range items {
		result[i] = OpenItemFromDomain(o, now)
	}
	return result
}

// OutstandingResponse totals the open balance of a party or a whole kind.
type OutstandingResponse struct {
	Kind        string          `json:"kind"`
	PartyID     string          `json:"party_id,omitempty"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// ReconciliationResultResponse compares one control account.
type ReconciliationResultResponse struct {
	Kind          string          `json:"kind"`
	AccountCode   string          `json:"account_code"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	OpenItems     decimal.Decimal `json:"open_items"`
	Difference    decimal.Decimal `json:"difference"`
	IsReconciled  bool            `json:"is_reconciled"`
}

// ReconciliationResponse is the full report.
type ReconciliationResponse struct {
	Reconciled       bool                           `json:"reconciled"`
	LedgerConsistent bool                           `json:"ledger_consistent"`
	Results          []ReconciliationResultResponse `json:"results"`
	CheckedAt        time.Time                      `json:"checked_at"`
}

// ReconciliationFromUseCase converts a report to response.
func ReconciliationFromUseCase(r *usecase.ReconciliationReport) *ReconciliationResponse {
	results := make([]ReconciliationResultResponse, len(r.Results))
	for i, res := range r.Results {
		results[i] = ReconciliationResultResponse{
			Kind:          string(res.Kind),
			AccountCode:   res.AccountCode,
			LedgerBalance: res.LedgerBalance,
			OpenItems:     res.OpenItems,
			Difference:    res.Difference,
			IsReconciled:  res.IsReconciled,
		}
	}

	return &ReconciliationResponse{
		Reconciled:       r.Reconciled(),
		LedgerConsistent: r.LedgerConsistent,
		Results:          results,
		CheckedAt:        r.CheckedAt,
	}
}

// TokenResponse carries a signed access token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaginatedResponse wraps a page of results.
type PaginatedResponse[T any] struct {
	Data   []T `json:"data"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PostEventResponse is returned when an event is booked.
type PostEventResponse struct {
	EventID string                `json:"event_id"`
	Entry   *JournalEntryResponse `json:"journal_entry"`
}
