package reconciliation

import (
	"crypto/sha256"
	"encoding/json"
	"time"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// MatchedPair is one ledger entry settled by one statement transaction
type MatchedPair struct {
	PairID                 string       `json:"pairId"`
	LedgerEntryID          string       `json:"ledgerEntryId"`
	LedgerDescription      string       `json:"ledgerDescription"`
	LedgerAmount           money.Amount `json:"ledgerAmount"`
	StatementTransactionID string       `json:"statementTransactionId"`
	StatementDescription   string       `json:"statementDescription"`
	StatementAmount        money.Amount `json:"statementAmount"`
}

// AuditRecord summarizes one confirmed batch. It is never modified after it is stored.
type AuditRecord struct {
	AuditID               string        `json:"auditId"`
	OrganizationID        string        `json:"organizationId"`
	AccountID             string        `json:"accountId"`
	SourceFileReference   string        `json:"sourceFileReference"`
	SourceDigest          string        `json:"sourceDigest"`
	PeriodStart           string        `json:"periodStart"`
	PeriodEnd             string        `json:"periodEnd"`
	MatchedPairs          []MatchedPair `json:"matchedPairs"`
	TotalReconciledAmount money.Amount  `json:"totalReconciledAmount"`
	PerformedBy           string        `json:"performedBy"`
	Timestamp             time.Time     `json:"timestamp"`

	// Set when a signing key is configured. The signature covers Digest().
	Signature      string `json:"signature,omitempty"`
	SignatureKeyID string `json:"signatureKeyId,omitempty"`
}

// Digest is the SHA-256 of the record's JSON encoding without its signature fields
func (r AuditRecord) Digest() ([]byte, error) {
	r.Signature, r.SignatureKeyID = "", ""
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// newAuditRecord captures every pair of the session. Ledger amounts are the values before
// confirmation so overwritten amounts stay visible.
func newAuditRecord(s *Session, sourceRef string, at time.Time) *AuditRecord {
	txns := statement.Index(s.StatementTransactions)
	entries := ledger.Index(s.LedgerEntries)

	rec := &AuditRecord{
		AuditID:             s.AuditID,
		OrganizationID:      s.Key.OrganizationID,
		AccountID:           s.Key.AccountID,
		SourceFileReference: sourceRef,
		PeriodStart:         s.DateFilter.Start,
		PeriodEnd:           s.DateFilter.End,
		PerformedBy:         s.Key.UserID,
		Timestamp:           at.UTC(),
	}
	if s.Source != nil {
		rec.SourceDigest = s.Source.Digest
	}

	for _, m := range s.Matches {
		txn := txns[m.StatementTransactionID]
		rec.TotalReconciledAmount += txn.Amount
		for _, id := range m.LedgerEntryIDs {
			e := entries[id]
			rec.MatchedPairs = append(rec.MatchedPairs, MatchedPair{
				PairID:                 m.PairID,
				LedgerEntryID:          id,
				LedgerDescription:      e.Description,
				LedgerAmount:           e.Amount,
				StatementTransactionID: txn.ID,
				StatementDescription:   txn.Description,
				StatementAmount:        txn.Amount,
			})
		}
	}
	return rec
}
