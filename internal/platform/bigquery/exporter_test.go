package bigquery

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
)

type fakeInserter struct {
	src interface{}
	err error
}

func (f *fakeInserter) Put(ctx context.Context, src interface{}) error {
	f.src = src
	return f.err
}

func auditRecord() *reconciliation.AuditRecord {
	return &reconciliation.AuditRecord{
		AuditID:             "01HTAUDIT",
		OrganizationID:      "org-1",
		AccountID:           "acct-1",
		SourceFileReference: "gs://statements/org-1/acct-1/march.csv",
		PeriodStart:         "2024-03-01",
		PeriodEnd:           "",
		PerformedBy:         "user-1",
		Timestamp:           time.Date(2024, 4, 2, 10, 30, 0, 0, time.UTC),
		MatchedPairs: []reconciliation.MatchedPair{
			{PairID: "p-1", LedgerEntryID: "4", LedgerAmount: money.MustParse("-30.00"), StatementTransactionID: "t-3", StatementAmount: money.MustParse("-75.50")},
			{PairID: "p-1", LedgerEntryID: "5", LedgerAmount: money.MustParse("-45.50"), StatementTransactionID: "t-3", StatementAmount: money.MustParse("-75.50")},
		},
	}
}

func TestRows(t *testing.T) {
	// Act
	rows := Rows(auditRecord())

	// Assert
	require.Len(t, rows, 2)
	assert.Equal(t, "5", rows[1].LedgerEntryID)
	assert.Equal(t, 0, rows[1].LedgerAmount.Cmp(big.NewRat(-4550, 100)))
	assert.Equal(t, "-75.50", rows[0].StatementAmount.FloatString(2))
	assert.True(t, rows[0].PeriodStart.Valid)
	assert.Equal(t, "2024-03-01", rows[0].PeriodStart.Date.String())
	assert.False(t, rows[0].PeriodEnd.Valid)
}

func TestExporter_Export(t *testing.T) {
	t.Run("one saver per pair with stable insert ids", func(t *testing.T) {
		// Setup
		ins := &fakeInserter{}
		e := &Exporter{inserter: ins, logger: zaptest.NewLogger(t)}

		// Act
		err := e.Export(context.Background(), auditRecord())

		// Assert
		require.NoError(t, err)
		savers, ok := ins.src.([]*bigquery.StructSaver)
		require.True(t, ok)
		require.Len(t, savers, 2)
		assert.Equal(t, "01HTAUDIT/4", savers[0].InsertID)
		assert.Equal(t, "01HTAUDIT/5", savers[1].InsertID)
	})

	t.Run("insert failure is returned", func(t *testing.T) {
		// Setup
		e := &Exporter{inserter: &fakeInserter{err: errors.New("table not found")}, logger: zaptest.NewLogger(t)}

		// Act
		err := e.Export(context.Background(), auditRecord())

		// Assert
		assert.ErrorContains(t, err, "table not found")
	})
}
