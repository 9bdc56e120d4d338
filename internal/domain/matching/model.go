package matching

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

// Source records how a tentative match was produced
type Source string

const (
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
	SourceAggregate Source = "aggregate"
	SourceAssisted  Source = "assisted"
)

// Match is a tentative correspondence between one statement transaction and one or more
// ledger entries
type Match struct {
	PairID                 string   `json:"pairId"`
	StatementTransactionID string   `json:"statementTransactionId"`
	LedgerEntryIDs         []string `json:"ledgerEntryIds"`
	Source                 Source   `json:"source"`
	// Divergence is the accepted |statement| - |ledger| difference of a manual pair
	Divergence money.Amount `json:"divergence,omitempty"`
}

// NewMatch creates a match with a fresh pair id
func NewMatch(statementTransactionID string, source Source, ledgerEntryIDs ...string) Match {
	ids := make([]string, len(ledgerEntryIDs))
	copy(ids, ledgerEntryIDs)
	return Match{
		PairID:                 ulid.Make().String(),
		StatementTransactionID: statementTransactionID,
		LedgerEntryIDs:         ids,
		Source:                 source,
	}
}

// IsAggregate reports whether several entries settle the transaction together
func (m Match) IsAggregate() bool {
	return len(m.LedgerEntryIDs) > 1
}

// Claims indexes which transactions and entries are already part of a match
type Claims struct {
	transactions map[string]string
	entries      map[string]string
}

// NewClaims builds the claim index of a match list. Later duplicates are ignored.
func NewClaims(matches []Match) *Claims {
	c := &Claims{
		transactions: make(map[string]string, len(matches)),
		entries:      make(map[string]string, len(matches)),
	}
	for _, m := range matches {
		_ = c.Claim(m)
	}
	return c
}

// TransactionClaimed reports whether the statement transaction is part of a match
func (c *Claims) TransactionClaimed(id string) bool {
	_, ok := c.transactions[id]
	return ok
}

// EntryClaimed reports whether the ledger entry is part of a match
func (c *Claims) EntryClaimed(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Claim registers a match, failing with CONFLICT when any of its ids is already taken.
func (c *Claims) Claim(m Match) error {
	if pairID, ok := c.transactions[m.StatementTransactionID]; ok {
		return errors.NewConflictError("statement transaction already matched").
			WithDetail("statementTransactionId", m.StatementTransactionID).
			WithDetail("pairId", pairID)
	}
	seen := make(map[string]struct{}, len(m.LedgerEntryIDs))
	for _, id := range m.LedgerEntryIDs {
		if pairID, ok := c.entries[id]; ok {
			return errors.NewConflictError("ledger entry already matched").
				WithDetail("ledgerEntryId", id).
				WithDetail("pairId", pairID)
		}
		if _, dup := seen[id]; dup {
			return errors.NewValidationError(fmt.Sprintf("ledger entry %s selected twice", id))
		}
		seen[id] = struct{}{}
	}

	c.transactions[m.StatementTransactionID] = m.PairID
	for _, id := range m.LedgerEntryIDs {
		c.entries[id] = m.PairID
	}
	return nil
}

// ValidateUnique checks that no transaction or entry id appears in two matches
func ValidateUnique(matches []Match) error {
	c := &Claims{
		transactions: make(map[string]string, len(matches)),
		entries:      make(map[string]string, len(matches)),
	}
	for _, m := range matches {
		if err := c.Claim(m); err != nil {
			return err
		}
	}
	return nil
}
