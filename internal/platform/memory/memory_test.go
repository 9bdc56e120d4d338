package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
)

const fixtureYAML = `
organizationId: org-1
accountId: acct-1
entries:
  - id: "1"
    amount: "-150.00"
    description: Supplier A invoice
    dueDate: "2024-03-01"
  - id: "2"
    amount: "2000.00"
    description: Client invoice
    dueDate: "2024-03-02"
  - id: "3"
    amount: "-75.50"
    description: Bank fee
    status: RECONCILED
    paidDate: "2024-02-27"
    externalTransactionId: txn-old
`

func TestLoadFixture(t *testing.T) {
	t.Run("decodes entries with defaults", func(t *testing.T) {
		// Act
		fixture, entries, err := LoadFixture(strings.NewReader(fixtureYAML))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "acct-1", fixture.AccountID)
		require.Len(t, entries, 3)
		assert.Equal(t, money.MustParse("-150.00"), entries[0].Amount)
		assert.Equal(t, ledger.StatusPending, entries[0].Status)
		assert.Equal(t, ledger.TypeExpense, entries[0].Type)
		assert.Equal(t, ledger.TypeIncome, entries[1].Type)
		assert.Equal(t, ledger.StatusReconciled, entries[2].Status)
		assert.Equal(t, "txn-old", entries[2].ExternalTransactionID)
	})

	t.Run("rejects bad amounts", func(t *testing.T) {
		// Setup
		raw := "organizationId: o\naccountId: a\nentries:\n  - id: x\n    amount: abc\n"

		// Act
		_, _, err := LoadFixture(strings.NewReader(raw))

		// Assert
		require.Error(t, err)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		// Setup
		raw := "organizationId: o\naccountId: a\nentries:\n  - id: x\n    amount: \"1.00\"\n  - id: x\n    amount: \"2.00\"\n"

		// Act
		_, _, err := LoadFixture(strings.NewReader(raw))

		// Assert
		assert.True(t, errors.Is(err, commonErrors.ErrValidation))
	})
}

func TestLedgerRepository(t *testing.T) {
	// Setup
	_, entries, err := LoadFixture(strings.NewReader(fixtureYAML))
	require.NoError(t, err)
	repo := NewLedgerRepository(entries...)
	ctx := context.Background()

	t.Run("query by candidate dates", func(t *testing.T) {
		// Act
		got, err := repo.QueryEntries(ctx, ledger.QueryRequest{
			OrganizationID: "org-1", AccountID: "acct-1", StartDate: "2024-03-01", EndDate: "2024-03-31",
		})

		// Assert
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "1", got[0].EntryID)
		assert.Equal(t, "2", got[1].EntryID)
	})

	t.Run("reconcile is idempotent for the same transaction", func(t *testing.T) {
		// Setup
		rec := ledger.Reconciliation{EntryID: "1", PaidDate: "2024-03-01", ExternalTransactionID: "txn-1"}

		// Act
		_, first := repo.MarkReconciled(ctx, "org-1", rec)
		_, second := repo.MarkReconciled(ctx, "org-1", rec)
		rec.ExternalTransactionID = "txn-2"
		_, third := repo.MarkReconciled(ctx, "org-1", rec)

		// Assert
		assert.NoError(t, first)
		assert.NoError(t, second)
		assert.True(t, errors.Is(third, commonErrors.ErrConflict))
	})

	t.Run("mark pending clears reconciliation fields", func(t *testing.T) {
		// Act
		e, err := repo.MarkPending(ctx, "org-1", "1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPending, e.Status)
		assert.Empty(t, e.PaidDate)
		assert.Empty(t, e.ExternalTransactionID)
	})

	t.Run("unknown entry", func(t *testing.T) {
		// Act
		_, err := repo.GetEntry(ctx, "org-2", "1")

		// Assert
		assert.True(t, errors.Is(err, commonErrors.ErrNotFound))
	})
}

func TestSessionStore(t *testing.T) {
	key := reconciliation.SessionKey{OrganizationID: "org-1", UserID: "user-1", AccountID: "acct-1"}
	now := time.Date(2024, 4, 2, 10, 30, 0, 0, time.UTC)

	t.Run("versioned saves", func(t *testing.T) {
		// Setup
		store := NewSessionStore()
		store.now = func() time.Time { return now }
		session := &reconciliation.Session{Key: key, State: reconciliation.StateMatching, ExpiresAt: now.Add(time.Hour)}

		// Act
		require.NoError(t, store.Save(context.Background(), session))
		stale := &reconciliation.Session{Key: key}
		err := store.Save(context.Background(), stale)
		loaded, loadErr := store.Load(context.Background(), key)

		// Assert
		assert.True(t, errors.Is(err, commonErrors.ErrConflict))
		require.NoError(t, loadErr)
		assert.Equal(t, int64(1), loaded.Version)
	})

	t.Run("expired sessions are gone", func(t *testing.T) {
		// Setup
		store := NewSessionStore()
		store.now = func() time.Time { return now }
		require.NoError(t, store.Save(context.Background(), &reconciliation.Session{Key: key, ExpiresAt: now.Add(-time.Second)}))

		// Act
		_, err := store.Load(context.Background(), key)

		// Assert
		assert.True(t, errors.Is(err, commonErrors.ErrNotFound))
		assert.NoError(t, store.Save(context.Background(), &reconciliation.Session{Key: key, ExpiresAt: now.Add(time.Hour)}))
	})
}

func TestAuditRepository(t *testing.T) {
	// Setup
	repo := NewAuditRepository()
	ctx := context.Background()
	for _, id := range []string{"01A", "01C", "01B"} {
		require.NoError(t, repo.Create(ctx, &reconciliation.AuditRecord{AuditID: id, OrganizationID: "org-1", AccountID: "acct-1"}))
	}

	// Act
	records, err := repo.List(ctx, "org-1", "acct-1", 2)
	dup := repo.Create(ctx, &reconciliation.AuditRecord{AuditID: "01A"})

	// Assert
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "01C", records[0].AuditID)
	assert.Equal(t, "01B", records[1].AuditID)
	assert.True(t, errors.Is(dup, commonErrors.ErrConflict))
}

func TestArchiver(t *testing.T) {
	// Setup
	a := NewArchiver()

	// Act
	ref, err := a.Archive(context.Background(), "org-1/acct-1/march.csv", []byte("data"), "text/csv")
	_, again := a.Archive(context.Background(), "org-1/acct-1/march.csv", []byte("other"), "text/csv")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "mem://org-1/acct-1/march.csv", ref)
	assert.True(t, errors.Is(again, commonErrors.ErrConflict))
	data, ok := a.Object("org-1/acct-1/march.csv")
	assert.True(t, ok)
	assert.Equal(t, []byte("data"), data)
}
