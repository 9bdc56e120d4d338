package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

func TestMerge(t *testing.T) {
	// Setup
	txns := []statement.Transaction{
		txn("T1", "2024-03-01", "-150.00", "Supplier A"),
		txn("T2", "2024-03-02", "2000.00", "Client payment"),
		txn("T3", "2024-03-05", "-75.50", "Fee"),
		txn("T4", "2024-03-06", "-1.00", "Tariff"),
	}
	entries := []ledger.Entry{
		pending("E1", "2024-03-01", "-150.00"),
		pending("E2", "2024-03-03", "2000.00"),
		pending("E3", "2024-03-05", "-75.00"),
		reconciled("E4", "2024-03-06", "-1.00", "OLD"),
	}
	existing := []Match{NewMatch("T1", SourceAutomatic, "E1")}
	proposals := []Proposal{
		{StatementTransactionID: "T2", LedgerEntryID: "E2"},
		{StatementTransactionID: "T1", LedgerEntryID: "E3"},
		{StatementTransactionID: "T3", LedgerEntryID: "E1"},
		{StatementTransactionID: "T3", LedgerEntryID: "E9"},
		{StatementTransactionID: "T9", LedgerEntryID: "E3"},
		{StatementTransactionID: "T4", LedgerEntryID: "E4"},
		{StatementTransactionID: "T3", LedgerEntryID: "E2"},
		{StatementTransactionID: "T3", LedgerEntryID: "E3"},
	}

	// Act
	accepted, rejected := Merge(existing, proposals, txns, entries, SourceAssisted)

	// Assert
	require.Len(t, accepted, 2)
	assert.Equal(t, "T2", accepted[0].StatementTransactionID)
	assert.Equal(t, []string{"E2"}, accepted[0].LedgerEntryIDs)
	assert.Equal(t, SourceAssisted, accepted[0].Source)
	assert.Equal(t, "T3", accepted[1].StatementTransactionID)
	assert.Equal(t, []string{"E3"}, accepted[1].LedgerEntryIDs)

	reasons := make([]string, 0, len(rejected))
	for _, r := range rejected {
		reasons = append(reasons, r.Reason)
	}
	assert.Equal(t, []string{
		ReasonTransactionClaimed,
		ReasonEntryClaimed,
		ReasonUnknownEntry,
		ReasonUnknownTransaction,
		ReasonSettled,
		ReasonEntryClaimed,
	}, reasons)

	assert.Len(t, existing, 1)
	assert.NoError(t, ValidateUnique(append(existing, accepted...)))
}

func TestMerge_NoProposals(t *testing.T) {
	accepted, rejected := Merge(nil, nil, nil, nil, SourceAssisted)

	assert.Empty(t, accepted)
	assert.Empty(t, rejected)
}
