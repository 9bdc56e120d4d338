package matching

import (
	"context"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// Proposal is a suggested one-to-one pairing from a strategy
type Proposal struct {
	StatementTransactionID string `json:"statementTransactionId"`
	LedgerEntryID          string `json:"ledgerEntryId"`
}

// Rejection explains why a proposal was not merged
type Rejection struct {
	Proposal Proposal `json:"proposal"`
	Reason   string   `json:"reason"`
}

// Rejection reasons
const (
	ReasonUnknownTransaction = "unknown statement transaction"
	ReasonUnknownEntry       = "unknown ledger entry"
	ReasonTransactionClaimed = "statement transaction already matched"
	ReasonEntryClaimed       = "ledger entry already matched"
	ReasonSettled            = "already reconciled"
)

//go:generate mockgen -source=strategy.go -destination=strategy_mock.go -package=matching

// Strategy proposes pairings between unmatched transactions and pending entries
type Strategy interface {
	Propose(ctx context.Context, txns []statement.Transaction, entries []ledger.Entry) ([]Proposal, error)
}

// ExactStrategy exposes the automatic pass as a Strategy
type ExactStrategy struct{}

// Propose implements Strategy
func (ExactStrategy) Propose(ctx context.Context, txns []statement.Transaction, entries []ledger.Entry) ([]Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := ProposeMatches(txns, entries)
	proposals := make([]Proposal, 0, len(matches))
	for _, m := range matches {
		proposals = append(proposals, Proposal{
			StatementTransactionID: m.StatementTransactionID,
			LedgerEntryID:          m.LedgerEntryIDs[0],
		})
	}
	return proposals, nil
}

// Merge turns proposals into matches under the uniqueness rules of the existing list. The
// existing matches are not modified; accepted matches are returned separately.
func Merge(existing []Match, proposals []Proposal, txns []statement.Transaction, entries []ledger.Entry, source Source) ([]Match, []Rejection) {
	claims := NewClaims(existing)
	txnIndex := statement.Index(txns)
	entryIndex := ledger.Index(entries)
	settled := SettledTransactions(entries)

	var (
		accepted []Match
		rejected []Rejection
	)
	for _, p := range proposals {
		reason := ""
		entry, entryKnown := entryIndex[p.LedgerEntryID]
		_, txnKnown := txnIndex[p.StatementTransactionID]
		_, txnSettled := settled[p.StatementTransactionID]

		switch {
		case !txnKnown:
			reason = ReasonUnknownTransaction
		case !entryKnown:
			reason = ReasonUnknownEntry
		case txnSettled || entry.IsReconciled():
			reason = ReasonSettled
		case claims.TransactionClaimed(p.StatementTransactionID):
			reason = ReasonTransactionClaimed
		case claims.EntryClaimed(p.LedgerEntryID):
			reason = ReasonEntryClaimed
		}
		if reason != "" {
			rejected = append(rejected, Rejection{Proposal: p, Reason: reason})
			continue
		}

		m := NewMatch(p.StatementTransactionID, source, p.LedgerEntryID)
		_ = claims.Claim(m)
		accepted = append(accepted, m)
	}
	return accepted, rejected
}
