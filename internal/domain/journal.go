package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType identifies the kind of business document behind a journal entry.
type SourceType string

const (
	SourceTypeOrder         SourceType = "ORDER"
	SourceTypePayment       SourceType = "PAYMENT"
	SourceTypePurchaseOrder SourceType = "PURCHASE_ORDER"
	SourceTypeStockMovement SourceType = "STOCK_MOVEMENT"
)

// IsValid reports whether s is a known source type.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeOrder, SourceTypePayment, SourceTypePurchaseOrder, SourceTypeStockMovement:
		return true
	}
	return false
}

// JournalStatus is the lifecycle state of a journal entry.
type JournalStatus string

const (
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// JournalLine is one debit or credit of a journal entry.
type JournalLine struct {
	LineNo      int
	AccountCode string
	DrAmount    decimal.Decimal
	CrAmount    decimal.Decimal
	CustomerID  string
	SupplierID  string
	ProjectID   string
	MaterialID  string
	Memo        string
}

// Debit builds a debit line.
func Debit(accountCode string, amount decimal.Decimal) JournalLine {
	return JournalLine{AccountCode: accountCode, DrAmount: amount, CrAmount: decimal.Zero}
}

// Credit builds a credit line.
func Credit(accountCode string, amount decimal.Decimal) JournalLine {
	return JournalLine{AccountCode: accountCode, DrAmount: decimal.Zero, CrAmount: amount}
}

// IsDebit reports whether the line is on the debit side.
func (l JournalLine) IsDebit() bool {
	return l.DrAmount.IsPositive()
}

// Amount returns the non-zero side of the line.
func (l JournalLine) Amount() decimal.Decimal {
	if l.IsDebit() {
		return l.DrAmount
	}
	return l.CrAmount
}

// JournalEntry is an immutable, balanced set of lines recording the financial
// effect of one business event. Its only mutation is POSTED -> REVERSED.
type JournalEntry struct {
	ID          string
	JournalNo   string
	PostingDate time.Time
	SourceType  SourceType
	SourceID    string
	SourceNo    string
	EventID     string
	Description string
	Status      JournalStatus
	ReversalOf  string
	ReversedBy  string
	PostedBy    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// TotalDebit sums all debit amounts.
func (e *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.DrAmount)
	}
	return total
}

// TotalCredit sums all credit amounts.
func (e *JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.CrAmount)
	}
	return total
}

// NumberLines assigns 1-based line numbers in order.
func (e *JournalEntry) NumberLines() {
	for i := range e.Lines {
		e.Lines[i].LineNo = i + 1
	}
}

// CheckBalanced verifies the structural invariants of the entry: at least two
// lines, exactly one non-negative side per line, and debits equal to credits.
func (e *JournalEntry) CheckBalanced() error {
	if len(e.Lines) < 2 {
		return &InvariantViolation{Rule: "journal.lines", Detail: fmt.Sprintf("entry has %d lines, need at least 2", len(e.Lines))}
	}

	for _, l := range e.Lines {
		if l.DrAmount.IsNegative() || l.CrAmount.IsNegative() {
			return &InvariantViolation{Rule: "journal.lines", Detail: fmt.Sprintf("line %d has a negative amount", l.LineNo)}
		}
		if l.DrAmount.IsZero() == l.CrAmount.IsZero() {
			return &InvariantViolation{Rule: "journal.lines", Detail: fmt.Sprintf("line %d must have exactly one non-zero side", l.LineNo)}
		}
	}

	dr, cr := e.TotalDebit(), e.TotalCredit()
	if !dr.Equal(cr) {
		return &InvariantViolation{Rule: "journal.balance", Detail: fmt.Sprintf("debits %s != credits %s", dr.String(), cr.String())}
	}

	return nil
}

// CanReverse reports whether the entry may be reversed.
func (e *JournalEntry) CanReverse() error {
	if e.Status != JournalStatusPosted {
		return fmt.Errorf("%w: entry %s is %s", ErrInvalidStatus, e.ID, e.Status)
	}
	if e.ReversalOf != "" {
		return fmt.Errorf("%w: entry %s is itself a reversal", ErrInvalidStatus, e.ID)
	}
	return nil
}

// Reversal builds the mirror entry: same source, every line's sides swapped.
// JournalNo is assigned by the caller.
func (e *JournalEntry) Reversal(id, postedBy, reason string, now time.Time) *JournalEntry {
	lines := make([]JournalLine, len(e.Lines))
	for i, l := range e.Lines {
		l.DrAmount, l.CrAmount = l.CrAmount, l.DrAmount
		lines[i] = l
	}

	description := "Reversal of " + e.JournalNo
	if reason != "" {
		description += ": " + reason
	}

	return &JournalEntry{
		ID:          id,
		PostingDate: now,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID,
		SourceNo:    e.SourceNo,
		Description: description,
		Status:      JournalStatusPosted,
		ReversalOf:  e.ID,
		PostedBy:    postedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       lines,
	}
}

// JournalPeriod returns the numbering scope for a posting date, e.g. "202610".
func JournalPeriod(t time.Time) string {
	return t.UTC().Format("200601")
}

// FormatJournalNo renders a sequence number as JE-YYYYMM-NNNNNN.
func FormatJournalNo(period string, seq int64) string {
	return fmt.Sprintf("JE-%s-%06d", period, seq)
}
