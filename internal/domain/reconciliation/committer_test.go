package reconciliation

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

const archivePrefix = "org-1/acct-1/2024/04/20240402T103000.000Z-"

func expectArchive(h *harness, times int) {
	h.archiver.EXPECT().
		Archive(gomock.Any(), archivePrefix+"march.csv", []byte(threeTransactionCSV), "text/csv").
		Return("gs://statements/"+archivePrefix+"march.csv", nil).
		Times(times)
}

func TestService_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles every match and clears the session", func(t *testing.T) {
		// Setup
		h := newHarness(t, baseEntries())
		view := h.importCSV(t, threeTransactionCSV)
		expectArchive(h, 1)

		// Act
		record, err := h.svc.Confirm(ctx, testKey)

		// Assert
		require.NoError(t, err)
		supplier := txnID(t, view, "Supplier A")
		client := txnID(t, view, "Client payment")

		e1 := h.repo.entry("1")
		assert.Equal(t, ledger.StatusReconciled, e1.Status)
		assert.Equal(t, supplier, e1.ExternalTransactionID)
		assert.Equal(t, "2024-03-01", e1.PaidDate)
		e2 := h.repo.entry("2")
		assert.Equal(t, ledger.StatusReconciled, e2.Status)
		assert.Equal(t, client, e2.ExternalTransactionID)

		assert.Equal(t, "gs://statements/"+archivePrefix+"march.csv", record.SourceFileReference)
		assert.Equal(t, "2024-03-01", record.PeriodStart)
		assert.Equal(t, "2024-03-05", record.PeriodEnd)
		assert.Equal(t, "user-1", record.PerformedBy)
		assert.Equal(t, money.MustParse("1850.00"), record.TotalReconciledAmount)
		assert.Len(t, record.MatchedPairs, 2)
		assert.NotEmpty(t, record.SourceDigest)
		assert.Len(t, h.audits.records, 1)

		after, err := h.svc.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, StateEmpty, after.State)

		audits, err := h.svc.ListAudits(ctx, "org-1", "acct-1", 0)
		require.NoError(t, err)
		require.Len(t, audits, 1)
		assert.Equal(t, record.AuditID, audits[0].AuditID)
	})

	t.Run("single pairs take the statement amount and aggregates keep theirs", func(t *testing.T) {
		h := newHarness(t, manualEntries())
		view := h.importCSV(t, threeTransactionCSV)
		fee := txnID(t, view, "Fee")
		_, err := h.svc.PairAggregate(ctx, testKey, AggregateRequest{StatementTransactionID: fee, LedgerEntryIDs: []string{"4", "5"}})
		require.NoError(t, err)
		expectArchive(h, 1)

		record, err := h.svc.Confirm(ctx, testKey)

		require.NoError(t, err)
		assert.Equal(t, money.MustParse("-30.00"), h.repo.entry("4").Amount)
		assert.Equal(t, money.MustParse("-45.50"), h.repo.entry("5").Amount)
		assert.Equal(t, fee, h.repo.entry("4").ExternalTransactionID)
		assert.Equal(t, fee, h.repo.entry("5").ExternalTransactionID)
		assert.Equal(t, "2024-03-05", h.repo.entry("5").PaidDate)
		assert.Equal(t, ledger.StatusPending, h.repo.entry("3").Status)
		assert.Len(t, record.MatchedPairs, 4)
		assert.Equal(t, money.MustParse("1774.50"), record.TotalReconciledAmount)
	})

	t.Run("accepted divergence overwrites the ledger amount", func(t *testing.T) {
		h := newHarness(t, manualEntries())
		view := h.importCSV(t, threeTransactionCSV)
		fee := txnID(t, view, "Fee")
		_, err := h.svc.Pair(ctx, testKey, PairRequest{StatementTransactionID: fee, LedgerEntryID: "3", AcceptDivergence: true})
		require.NoError(t, err)
		expectArchive(h, 1)

		record, err := h.svc.Confirm(ctx, testKey)

		require.NoError(t, err)
		assert.Equal(t, money.MustParse("-75.50"), h.repo.entry("3").Amount)
		var pair MatchedPair
		for _, p := range record.MatchedPairs {
			if p.LedgerEntryID == "3" {
				pair = p
			}
		}
		assert.Equal(t, money.MustParse("-75.00"), pair.LedgerAmount)
		assert.Equal(t, money.MustParse("-75.50"), pair.StatementAmount)
	})

	t.Run("retry after a partial failure succeeds and audits once", func(t *testing.T) {
		// Setup
		h := newHarness(t, baseEntries())
		view := h.importCSV(t, threeTransactionCSV)
		h.repo.failOnce["2"] = stderrors.New("provisioned throughput exceeded")
		expectArchive(h, 2)

		// Act
		_, err := h.svc.Confirm(ctx, testKey)

		// Assert
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrCommit))
		var appErr errors.AppError
		require.True(t, stderrors.As(err, &appErr))
		assert.True(t, appErr.Retryable())
		assert.Equal(t, "2", appErr.Details["ledgerEntryId"])
		assert.Equal(t, ledger.StatusReconciled, h.repo.entry("1").Status)
		assert.Equal(t, ledger.StatusPending, h.repo.entry("2").Status)
		assert.Empty(t, h.audits.records)

		pending, err := h.svc.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, StateMatching, pending.State)

		record, err := h.svc.Confirm(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, txnID(t, view, "Supplier A"), h.repo.entry("1").ExternalTransactionID)
		assert.Equal(t, ledger.StatusReconciled, h.repo.entry("2").Status)
		assert.Len(t, h.audits.records, 1)
		assert.Equal(t, 1, h.audits.creates)
		assert.Len(t, record.MatchedPairs, 2)
	})

	t.Run("reimport after a partial failure sees the reconciled entry", func(t *testing.T) {
		// Setup
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		h.repo.failOnce["2"] = stderrors.New("provisioned throughput exceeded")
		expectArchive(h, 1)
		_, err := h.svc.Confirm(ctx, testKey)
		require.Error(t, err)
		_, err = h.svc.Reset(ctx, testKey)
		require.NoError(t, err)

		// Act
		view := h.importCSV(t, threeTransactionCSV)

		// Assert
		assert.Equal(t, ClassDBConciliated, classOf(view, "1"))
		for _, tv := range view.Transactions {
			if tv.Description == "Supplier A" {
				assert.Equal(t, ClassDBConciliated, tv.Classification)
			}
		}
		assert.NotEqual(t, ClassDBConciliated, classOf(view, "2"))
	})

	t.Run("audit already written by an earlier attempt", func(t *testing.T) {
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		expectArchive(h, 1)
		h.store.update(t, testKey, func(s *Session) {
			s.AuditID = "01HQZXAUDIT"
		})
		h.audits.records["01HQZXAUDIT"] = AuditRecord{AuditID: "01HQZXAUDIT", OrganizationID: "org-1", AccountID: "acct-1"}

		record, err := h.svc.Confirm(ctx, testKey)

		require.NoError(t, err)
		assert.Equal(t, "01HQZXAUDIT", record.AuditID)
		assert.Len(t, h.audits.records, 1)
	})

	t.Run("entry claimed by another transaction", func(t *testing.T) {
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		expectArchive(h, 1)
		_, err := h.repo.MarkReconciled(ctx, "org-1", ledger.Reconciliation{EntryID: "1", PaidDate: "2024-03-01", ExternalTransactionID: "other-statement"})
		require.NoError(t, err)

		_, err = h.svc.Confirm(ctx, testKey)

		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrCommit))
		assert.True(t, stderrors.Is(err, errors.ErrConflict))
	})

	t.Run("archive failure touches no entry", func(t *testing.T) {
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		h.archiver.EXPECT().Archive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", stderrors.New("bucket unavailable"))

		_, err := h.svc.Confirm(ctx, testKey)

		assert.True(t, stderrors.Is(err, errors.ErrCommit))
		assert.Equal(t, ledger.StatusPending, h.repo.entry("1").Status)
		session, err := h.store.Load(ctx, testKey)
		require.NoError(t, err)
		assert.Nil(t, session.ConfirmingSince)
	})

	t.Run("missing source fails before any side effect", func(t *testing.T) {
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		h.store.update(t, testKey, func(s *Session) { s.Source.Data = nil })

		_, err := h.svc.Confirm(ctx, testKey)

		assert.True(t, stderrors.Is(err, errors.ErrSourceUnavailable))
		assert.Equal(t, ledger.StatusPending, h.repo.entry("1").Status)
	})

	t.Run("second confirmation in flight is rejected", func(t *testing.T) {
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		started := h.now.Add(-time.Minute)
		h.store.update(t, testKey, func(s *Session) { s.ConfirmingSince = &started })

		_, err := h.svc.Confirm(ctx, testKey)
		assert.True(t, stderrors.Is(err, errors.ErrConflict))

		_, err = h.svc.Unpair(ctx, testKey, "any")
		assert.True(t, stderrors.Is(err, errors.ErrConflict))
	})

	t.Run("stale marker is ignored", func(t *testing.T) {
		h := newHarness(t, baseEntries())
		h.importCSV(t, threeTransactionCSV)
		started := h.now.Add(-time.Hour)
		h.store.update(t, testKey, func(s *Session) { s.ConfirmingSince = &started })
		expectArchive(h, 1)

		_, err := h.svc.Confirm(ctx, testKey)

		assert.NoError(t, err)
	})

	t.Run("nothing to confirm", func(t *testing.T) {
		h := newHarness(t, nil)
		h.importCSV(t, threeTransactionCSV)

		_, err := h.svc.Confirm(ctx, testKey)

		assert.True(t, stderrors.Is(err, errors.ErrValidation))
	})

	t.Run("export failure does not fail the confirmation", func(t *testing.T) {
		sink := &fakeSink{err: stderrors.New("bigquery down")}
		h := newHarness(t, baseEntries(), WithAuditSink(sink))
		h.importCSV(t, threeTransactionCSV)
		expectArchive(h, 1)

		record, err := h.svc.Confirm(ctx, testKey)

		require.NoError(t, err)
		require.Len(t, sink.exported, 1)
		assert.Equal(t, record.AuditID, sink.exported[0].AuditID)
	})

	t.Run("signed audit record covers its own digest", func(t *testing.T) {
		// Setup
		signer := &fakeSigner{}
		h := newHarness(t, baseEntries(), WithAuditSigner(signer))
		h.importCSV(t, threeTransactionCSV)
		expectArchive(h, 1)

		// Act
		record, err := h.svc.Confirm(ctx, testKey)

		// Assert
		require.NoError(t, err)
		digest, err := record.Digest()
		require.NoError(t, err)
		assert.Equal(t, digest, signer.digest)
		assert.Equal(t, "sig", record.Signature)
		assert.Equal(t, "alias/audit", record.SignatureKeyID)
		assert.Equal(t, "sig", h.audits.records[record.AuditID].Signature)
	})

	t.Run("signing failure stores no audit and keeps the session", func(t *testing.T) {
		// Setup
		h := newHarness(t, baseEntries(), WithAuditSigner(&fakeSigner{err: stderrors.New("kms down")}))
		h.importCSV(t, threeTransactionCSV)
		expectArchive(h, 1)

		// Act
		_, err := h.svc.Confirm(ctx, testKey)

		// Assert
		assert.True(t, stderrors.Is(err, errors.ErrCommit))
		assert.Empty(t, h.audits.records)
		view, err := h.svc.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, StateMatching, view.State)
	})
}

func TestService_UndoAfterConfirm(t *testing.T) {
	// Setup
	ctx := context.Background()
	h := newHarness(t, baseEntries())
	h.importCSV(t, threeTransactionCSV)
	expectArchive(h, 1)
	record, err := h.svc.Confirm(ctx, testKey)
	require.NoError(t, err)
	other := h.repo.entry("2")

	// Act
	entry, err := h.svc.Undo(ctx, "org-1", "1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, entry.Status)
	assert.Empty(t, entry.PaidDate)
	assert.Empty(t, entry.ExternalTransactionID)
	assert.Equal(t, other, h.repo.entry("2"))
	assert.Equal(t, *record, h.audits.records[record.AuditID])

	view := h.importCSV(t, threeTransactionCSV)
	assert.Equal(t, ClassSessionMatch, classOf(view, "1"))
	assert.Equal(t, ClassDBConciliated, classOf(view, "2"))
	for _, tv := range view.Transactions {
		if tv.Description == "Client payment" {
			assert.Equal(t, ClassDBConciliated, tv.Classification)
		}
	}
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2024, 3, 31, 23, 59, 59, 0, time.FixedZone("BRT", -3*3600))

	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{"plain", "extrato.ofx", "org-1/acct-1/2024/04/20240401T025959.000Z-extrato.ofx"},
		{"directories stripped", "../../etc/passwd", "org-1/acct-1/2024/04/20240401T025959.000Z-passwd"},
		{"windows path", `C:\Users\op\march 2024.csv`, "org-1/acct-1/2024/04/20240401T025959.000Z-march_2024.csv"},
		{"empty", "", "org-1/acct-1/2024/04/20240401T025959.000Z-statement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ArchivePath(testKey, at, tt.fileName)

			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(got, "org-1/acct-1/"))
		})
	}
}
