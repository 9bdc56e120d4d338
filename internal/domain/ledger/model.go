package ledger

import (
	"time"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

// Status of a ledger entry with respect to the bank
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReconciled Status = "RECONCILED"
)

// EntryType is independent of the amount sign and used for grouping only
type EntryType string

const (
	TypeIncome  EntryType = "INCOME"
	TypeExpense EntryType = "EXPENSE"
)

// Entry represents a financial record tracked by the organization's bookkeeping
type Entry struct {
	EntryID               string       `json:"entryId"`
	OrganizationID        string       `json:"organizationId"`
	AccountID             string       `json:"accountId"`
	Amount                money.Amount `json:"amount"` // smallest currency unit
	Description           string       `json:"description"`
	Type                  EntryType    `json:"type"`
	Status                Status       `json:"status"`
	TransactionDate       string       `json:"transactionDate,omitempty"` // YYYY-MM-DD
	DueDate               string       `json:"dueDate,omitempty"`         // YYYY-MM-DD
	PaidDate              string       `json:"paidDate,omitempty"`        // YYYY-MM-DD
	ExternalTransactionID string       `json:"externalTransactionId,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// IsReconciled reports whether the entry has been settled against a statement
func (e Entry) IsReconciled() bool {
	return e.Status == StatusReconciled
}

// OccurrenceDate is the date the entry is expected on a statement: the paid date once
// reconciled, otherwise the due date, falling back to the transaction date.
func (e Entry) OccurrenceDate() string {
	if e.IsReconciled() && e.PaidDate != "" {
		return e.PaidDate
	}
	if e.DueDate != "" {
		return e.DueDate
	}
	return e.TransactionDate
}

// InRange reports whether any candidate date falls in [start, end].
func (e Entry) InRange(start, end string) bool {
	for _, d := range []string{e.PaidDate, e.DueDate, e.TransactionDate} {
		if d != "" && d >= start && d <= end {
			return true
		}
	}
	return false
}

// QueryRequest selects the entries of one account whose candidate dates fall in a range
type QueryRequest struct {
	OrganizationID string `json:"organizationId"`
	AccountID      string `json:"accountId"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
}

// Reconciliation is the per-entry update applied when a match is confirmed
type Reconciliation struct {
	EntryID               string        `json:"entryId"`
	PaidDate              string        `json:"paidDate"`
	ExternalTransactionID string        `json:"externalTransactionId"`
	Amount                *money.Amount `json:"amount,omitempty"` // nil keeps the stored amount
}

// Index maps entry ids to entries
func Index(entries []Entry) map[string]Entry {
	idx := make(map[string]Entry, len(entries))
	for _, e := range entries {
		idx[e.EntryID] = e
	}
	return idx
}
