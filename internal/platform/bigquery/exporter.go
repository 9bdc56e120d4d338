package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
)

// MatchedPairRow is one row of the reconciliation analytics table
type MatchedPairRow struct {
	AuditID                string            `bigquery:"audit_id"`
	OrganizationID         string            `bigquery:"organization_id"`
	AccountID              string            `bigquery:"account_id"`
	PairID                 string            `bigquery:"pair_id"`
	LedgerEntryID          string            `bigquery:"ledger_entry_id"`
	LedgerDescription      string            `bigquery:"ledger_description"`
	LedgerAmount           *big.Rat          `bigquery:"ledger_amount"` // NUMERIC
	StatementTransactionID string            `bigquery:"statement_transaction_id"`
	StatementDescription   string            `bigquery:"statement_description"`
	StatementAmount        *big.Rat          `bigquery:"statement_amount"` // NUMERIC
	SourceFileReference    string            `bigquery:"source_file_reference"`
	SourceDigest           string            `bigquery:"source_digest"`
	PeriodStart            bigquery.NullDate `bigquery:"period_start"`
	PeriodEnd              bigquery.NullDate `bigquery:"period_end"`
	PerformedBy            string            `bigquery:"performed_by"`
	ReconciledAt           time.Time         `bigquery:"reconciled_at"`
}

type putter interface {
	Put(ctx context.Context, src interface{}) error
}

// Exporter streams audit records into BigQuery. It implements reconciliation.AuditSink.
type Exporter struct {
	inserter putter
	logger   *zap.Logger
}

// NewExporter creates an exporter writing to project.dataset.table
func NewExporter(client *bigquery.Client, dataset, table string, logger *zap.Logger) *Exporter {
	return &Exporter{
		inserter: client.Dataset(dataset).Table(table).Inserter(),
		logger:   logger,
	}
}

// Export inserts one row per matched pair. Insert ids make retried exports idempotent.
func (e *Exporter) Export(ctx context.Context, record *reconciliation.AuditRecord) error {
	rows := Rows(record)
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   row,
			InsertID: row.AuditID + "/" + row.LedgerEntryID,
		})
	}
	if err := e.inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("insert audit rows: %w", err)
	}

	e.logger.Debug("audit exported", zap.String("auditId", record.AuditID), zap.Int("rows", len(rows)))
	return nil
}

// Rows flattens an audit record into table rows
func Rows(record *reconciliation.AuditRecord) []MatchedPairRow {
	rows := make([]MatchedPairRow, 0, len(record.MatchedPairs))
	for _, p := range record.MatchedPairs {
		rows = append(rows, MatchedPairRow{
			AuditID:                record.AuditID,
			OrganizationID:         record.OrganizationID,
			AccountID:              record.AccountID,
			PairID:                 p.PairID,
			LedgerEntryID:          p.LedgerEntryID,
			LedgerDescription:      p.LedgerDescription,
			LedgerAmount:           numeric(p.LedgerAmount),
			StatementTransactionID: p.StatementTransactionID,
			StatementDescription:   p.StatementDescription,
			StatementAmount:        numeric(p.StatementAmount),
			SourceFileReference:    record.SourceFileReference,
			SourceDigest:           record.SourceDigest,
			PeriodStart:            nullDate(record.PeriodStart),
			PeriodEnd:              nullDate(record.PeriodEnd),
			PerformedBy:            record.PerformedBy,
			ReconciledAt:           record.Timestamp,
		})
	}
	return rows
}

func numeric(a money.Amount) *big.Rat {
	return big.NewRat(int64(a), 100)
}

func nullDate(iso string) bigquery.NullDate {
	d, err := civil.ParseDate(iso)
	if err != nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: d, Valid: true}
}
