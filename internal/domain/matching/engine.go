package matching

import (
	"github.com/hirosato/go-bank-reconciliation/internal/common/utils"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// Default candidate windows
const (
	DefaultAmountWindow money.Amount = 1000
	DefaultDayWindow                 = 5
)

// ProposeMatches runs the automatic pass. Each transaction, in input order, takes the first
// unclaimed pending entry that occurs on the same date with the same absolute amount.
func ProposeMatches(txns []statement.Transaction, entries []ledger.Entry) []Match {
	settled := SettledTransactions(entries)
	claimed := make(map[string]struct{}, len(entries))

	var matches []Match
	for _, txn := range txns {
		if _, ok := settled[txn.ID]; ok {
			continue
		}
		for _, e := range entries {
			if _, ok := claimed[e.EntryID]; ok || e.IsReconciled() {
				continue
			}
			if e.OccurrenceDate() != txn.Date || !money.EqualAbs(txn.Amount, e.Amount) {
				continue
			}
			claimed[e.EntryID] = struct{}{}
			matches = append(matches, NewMatch(txn.ID, SourceAutomatic, e.EntryID))
			break
		}
	}
	return matches
}

// SettledTransactions returns the statement transaction ids referenced by reconciled entries
func SettledTransactions(entries []ledger.Entry) map[string]struct{} {
	settled := make(map[string]struct{})
	for _, e := range entries {
		if e.IsReconciled() && e.ExternalTransactionID != "" {
			settled[e.ExternalTransactionID] = struct{}{}
		}
	}
	return settled
}

// PairCheck is the outcome of validating a manual one-to-one pair
type PairCheck struct {
	Divergent bool `json:"divergent"`
	// Difference is |statement| - |ledger|
	Difference money.Amount `json:"difference"`
}

// ValidatePair compares absolute amounts of a transaction and an entry
func ValidatePair(txn statement.Transaction, entry ledger.Entry) PairCheck {
	diff := txn.Amount.Abs() - entry.Amount.Abs()
	return PairCheck{
		Divergent:  !money.Equal(diff, 0),
		Difference: diff,
	}
}

// Aggregate is the calculator state for a many-to-one pairing
type Aggregate struct {
	Target     money.Amount `json:"target"`
	Sum        money.Amount `json:"sum"`
	Difference money.Amount `json:"difference"`
	IsMatch    bool         `json:"isMatch"`
}

// ComputeAggregate sums the absolute amounts of the selected entries and compares them with the
// absolute target. An empty selection never matches.
func ComputeAggregate(target money.Amount, selected []ledger.Entry) Aggregate {
	var sum money.Amount
	for _, e := range selected {
		sum += e.Amount.Abs()
	}
	diff := target.Abs() - sum
	return Aggregate{
		Target:     target.Abs(),
		Sum:        sum,
		Difference: diff,
		IsMatch:    len(selected) > 0 && money.Equal(diff, 0),
	}
}

// Window bounds the candidate list shown for a selected transaction
type Window struct {
	Amount money.Amount
	Days   int
}

// DefaultWindow returns the standard candidate window
func DefaultWindow() Window {
	return Window{Amount: DefaultAmountWindow, Days: DefaultDayWindow}
}

// Candidates narrows the pending entries to those close to the transaction by amount or by date.
func Candidates(txn statement.Transaction, entries []ledger.Entry, window Window) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range entries {
		if e.IsReconciled() {
			continue
		}
		diff := (txn.Amount.Abs() - e.Amount.Abs()).Abs()
		if diff < window.Amount {
			out = append(out, e)
			continue
		}
		days, err := utils.DaysBetween(txn.Date, e.OccurrenceDate())
		if err == nil && days <= window.Days {
			out = append(out, e)
		}
	}
	return out
}
